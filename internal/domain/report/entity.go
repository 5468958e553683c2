// Package report holds the persisted shapes of the intake pipeline: reports,
// canonical medications, the links between them and the retrieval chunks
// built from report text.
package report

import (
	"time"

	"github.com/turtacn/RAG-HealthBot/internal/domain/medication"
)

// Report is one ingested document. ContentHash is unique when set;
// ExtractedTextHash is indexed but may repeat.
type Report struct {
	ID                int64              `json:"id"`
	FileName          string             `json:"file_name"`
	Summary           string             `json:"summary"`
	ExtractedText     *string            `json:"extracted_text,omitempty"`
	ContentHash       *string            `json:"content_hash,omitempty"`
	ExtractedTextHash *string            `json:"extracted_text_hash,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	Medications       []ReportMedication `json:"medications,omitempty"`
}

// Medication is a canonical drug name shared across reports.
type Medication struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	RxNormCode *string   `json:"rxnorm_code,omitempty"`
	NDCCode    *string   `json:"ndc_code,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReportMedication links a report to a medication with the per-report
// details the extractor found. MedicationName is filled on reads.
type ReportMedication struct {
	ID             int64   `json:"id"`
	ReportID       int64   `json:"report_id"`
	MedicationID   int64   `json:"medication_id"`
	MedicationName string  `json:"name"`
	Dosage         *string `json:"dosage,omitempty"`
	Frequency      *string `json:"frequency,omitempty"`
	StartDate      *string `json:"start_date,omitempty"`
	EndDate        *string `json:"end_date,omitempty"`
	Purpose        *string `json:"purpose,omitempty"`
}

// Mentions rebuilds the report's medication list from its links, normalized
// and merged the same way a fresh extraction is.
func (r *Report) Mentions() []medication.Mention {
	if r == nil {
		return nil
	}
	mentions := make([]medication.Mention, 0, len(r.Medications))
	for _, link := range r.Medications {
		if link.MedicationName == "" {
			continue
		}
		mentions = append(mentions, medication.Mention{
			Name:      link.MedicationName,
			Dosage:    link.Dosage,
			Frequency: link.Frequency,
			StartDate: link.StartDate,
			EndDate:   link.EndDate,
			Purpose:   link.Purpose,
		})
	}
	return medication.Merge(mentions)
}

// Chunk is one embedded slice of a report's extracted text.
type Chunk struct {
	ReportID  int64     `json:"report_id"`
	Index     int       `json:"chunk_index"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

// ScoredChunk is a retrieval hit. Distance is cosine distance; lower is closer.
type ScoredChunk struct {
	Chunk
	Distance float64 `json:"distance"`
}

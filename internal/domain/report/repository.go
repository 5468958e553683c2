package report

import "context"

// ReportRepository persists reports. Lookups return an error carrying
// errors.ErrCodeReportNotFound when nothing matches; Create returns one
// carrying errors.ErrCodeReportDuplicate on a content hash collision.
type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id int64) (*Report, error)
	GetByContentHash(ctx context.Context, hash string) (*Report, error)
	// GetByTextHash returns the oldest report with the given text hash.
	GetByTextHash(ctx context.Context, hash string) (*Report, error)
	List(ctx context.Context) ([]*Report, error)
	Delete(ctx context.Context, id int64) error
}

// MedicationRepository persists canonical medications. Name comparisons are
// case-insensitive. Create and Rename return errors.ErrCodeMedicationDuplicate
// when the name is already taken.
type MedicationRepository interface {
	GetByName(ctx context.Context, name string) (*Medication, error)
	// FindByNamePrefix lists medications whose name starts with prefix.
	FindByNamePrefix(ctx context.Context, prefix string, limit int) ([]*Medication, error)
	Create(ctx context.Context, m *Medication) error
	Rename(ctx context.Context, id int64, name string) (*Medication, error)
	List(ctx context.Context) ([]*Medication, error)
}

// ReportMedicationRepository persists report to medication links.
type ReportMedicationRepository interface {
	Create(ctx context.Context, link *ReportMedication) error
	ListByReport(ctx context.Context, reportID int64) ([]ReportMedication, error)
}

// ChunkStore persists embedded report chunks for similarity search.
type ChunkStore interface {
	// ReplaceChunks drops the report's existing chunks and stores chunks.
	ReplaceChunks(ctx context.Context, reportID int64, chunks []Chunk) error
	// SearchChunks returns the topK chunks closest to embedding. A reportID
	// of zero searches every report.
	SearchChunks(ctx context.Context, reportID int64, embedding []float32, topK int) ([]ScoredChunk, error)
	DeleteChunks(ctx context.Context, reportID int64) error
}

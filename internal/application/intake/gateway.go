package intake

import (
	"context"
	"strings"

	"github.com/turtacn/RAG-HealthBot/internal/domain/medication"
	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// prefixCandidateLimit bounds the legacy-name prefix lookup.
const prefixCandidateLimit = 5

// SaveRequest is everything the pipeline persists for one document.
type SaveRequest struct {
	FileName      string
	Summary       string
	ExtractedText string
	ContentHash   *string
	TextHash      *string
	Medications   []medication.Mention
}

// SaveResult reports the stored document. Existing is true when another
// writer had already stored the same content; Report is then that record.
type SaveResult struct {
	Report   *report.Report
	Existing bool
	Created  int
	Reused   int
}

// Persister stores pipeline output.
type Persister interface {
	Save(ctx context.Context, req SaveRequest) (SaveResult, error)
}

// Gateway writes reports, canonical medications and their links. The
// medications of one report are not written atomically: a failure midway
// leaves the earlier links in place.
type Gateway struct {
	reports ReportStore
	meds    report.MedicationRepository
	links   report.ReportMedicationRepository
	metrics *prom.AppMetrics
	logger  logging.Logger
}

// ReportStore is the part of report.ReportRepository the gateway uses.
type ReportStore interface {
	Create(ctx context.Context, r *report.Report) error
	GetByContentHash(ctx context.Context, hash string) (*report.Report, error)
}

func NewGateway(reports ReportStore, meds report.MedicationRepository, links report.ReportMedicationRepository,
	metrics *prom.AppMetrics, logger logging.Logger) *Gateway {
	return &Gateway{reports: reports, meds: meds, links: links, metrics: metrics, logger: logger}
}

func (g *Gateway) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	text := req.ExtractedText
	rep := &report.Report{
		FileName:          req.FileName,
		Summary:           req.Summary,
		ExtractedText:     &text,
		ContentHash:       req.ContentHash,
		ExtractedTextHash: req.TextHash,
	}

	if err := g.reports.Create(ctx, rep); err != nil {
		if !errors.IsCode(err, errors.ErrCodeReportDuplicate) || req.ContentHash == nil {
			return SaveResult{}, err
		}
		existing, lerr := g.reports.GetByContentHash(ctx, *req.ContentHash)
		if lerr != nil {
			return SaveResult{}, errors.Wrap(lerr, errors.ErrCodeDatabaseError, "lookup after duplicate insert")
		}
		g.logger.Info("report inserted concurrently, reusing existing record",
			logging.Int64("report_id", existing.ID),
			logging.String("content_hash", *req.ContentHash))
		return SaveResult{Report: existing, Existing: true}, nil
	}

	res := SaveResult{Report: rep}
	for _, m := range req.Medications {
		med, created, err := g.resolveMedication(ctx, m.Name)
		if err != nil {
			return res, err
		}
		if med == nil {
			continue
		}
		if created {
			res.Created++
		} else {
			res.Reused++
		}

		link := &report.ReportMedication{
			ReportID:       rep.ID,
			MedicationID:   med.ID,
			MedicationName: med.Name,
			Dosage:         m.Dosage,
			Frequency:      m.Frequency,
			StartDate:      m.StartDate,
			EndDate:        m.EndDate,
			Purpose:        m.Purpose,
		}
		if err := g.links.Create(ctx, link); err != nil {
			return res, err
		}
		rep.Medications = append(rep.Medications, *link)
	}

	prom.RecordMedications(g.metrics, "created", res.Created)
	prom.RecordMedications(g.metrics, "reused", res.Reused)
	g.logger.Debug("report persisted",
		logging.Int64("report_id", rep.ID),
		logging.Int("medications_created", res.Created),
		logging.Int("medications_reused", res.Reused))
	return res, nil
}

// resolveMedication returns the canonical record for raw, creating it when
// needed. created reports whether a new row was inserted.
func (g *Gateway) resolveMedication(ctx context.Context, raw string) (*report.Medication, bool, error) {
	name := strings.TrimSpace(medication.Normalize(raw))
	if name == "" {
		return nil, false, nil
	}

	med, err := g.lookup(ctx, name)
	if err != nil || med != nil {
		return med, false, err
	}

	// A single longer legacy name starting with this one is renamed in place.
	candidates, err := g.meds.FindByNamePrefix(ctx, name, prefixCandidateLimit)
	if err != nil {
		return nil, false, err
	}
	if len(candidates) == 1 {
		renamed, err := g.meds.Rename(ctx, candidates[0].ID, name)
		if err == nil {
			g.logger.Info("medication renamed to canonical name",
				logging.Int64("medication_id", renamed.ID),
				logging.String("from", candidates[0].Name),
				logging.String("to", name))
			return renamed, false, nil
		}
		if !errors.IsCode(err, errors.ErrCodeMedicationDuplicate) {
			return nil, false, err
		}
		if med, err = g.lookup(ctx, name); err != nil || med != nil {
			return med, false, err
		}
	}

	med = &report.Medication{Name: name}
	if err := g.meds.Create(ctx, med); err != nil {
		if !errors.IsCode(err, errors.ErrCodeMedicationDuplicate) {
			return nil, false, err
		}
		existing, lerr := g.lookup(ctx, name)
		if lerr != nil {
			return nil, false, lerr
		}
		if existing == nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return med, true, nil
}

// lookup is GetByName with not-found mapped to (nil, nil).
func (g *Gateway) lookup(ctx context.Context, name string) (*report.Medication, error) {
	med, err := g.meds.GetByName(ctx, name)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return med, nil
}

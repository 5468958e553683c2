package report

import (
	"context"

	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// DedupLookup finds a previously persisted report for an upload.
type DedupLookup struct {
	reports ReportRepository
}

func NewDedupLookup(reports ReportRepository) *DedupLookup {
	return &DedupLookup{reports: reports}
}

// Find checks the content fingerprint first and falls back to the text
// fingerprint only when the content lookup misses or contentFP is absent.
// It returns (nil, nil) when neither matches.
func (d *DedupLookup) Find(ctx context.Context, contentFP, textFP *string) (*Report, error) {
	if contentFP != nil && *contentFP != "" {
		r, err := d.reports.GetByContentHash(ctx, *contentFP)
		if err == nil {
			return r, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}
	if textFP != nil && *textFP != "" {
		r, err := d.reports.GetByTextHash(ctx, *textFP)
		if err == nil {
			return r, nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, nil
}

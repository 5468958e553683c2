package indexing

import (
	"context"

	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
)

// ReportDeleter removes a stored report and, through cascades, its
// medication links.
type ReportDeleter interface {
	Delete(ctx context.Context, id int64) error
}

// DocumentRemover drops the full-text search document of a report.
type DocumentRemover interface {
	DeleteReport(ctx context.Context, reportID int64) error
}

// Purger deletes a report everywhere it was written: the report row, its
// vector chunks and its search document. Docs may be nil.
type Purger struct {
	reports ReportDeleter
	chunks  report.ChunkStore
	docs    DocumentRemover
	logger  logging.Logger
}

func NewPurger(reports ReportDeleter, chunks report.ChunkStore, docs DocumentRemover, logger logging.Logger) *Purger {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Purger{reports: reports, chunks: chunks, docs: docs, logger: logger}
}

// Purge deletes report id. The row goes first so a missing report returns
// its not-found error untouched. Chunks cascade with the row in Postgres but
// not in Milvus, so they are always deleted explicitly. Failures after the row
// is gone are logged and leave orphans that no lookup can reach.
func (p *Purger) Purge(ctx context.Context, id int64) error {
	if err := p.reports.Delete(ctx, id); err != nil {
		return err
	}
	log := p.logger.With(logging.Int64("report_id", id))

	if err := p.chunks.DeleteChunks(ctx, id); err != nil {
		log.Warn("failed to delete report chunks", logging.Err(err))
	}
	if p.docs != nil {
		if err := p.docs.DeleteReport(ctx, id); err != nil {
			log.Warn("failed to delete search document", logging.Err(err))
		}
	}
	log.Info("report deleted")
	return nil
}

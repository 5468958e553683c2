package indexing

import (
	"context"
	"time"

	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/search/opensearch"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentIndex stores the full-text search document of a report.
type DocumentIndex interface {
	IndexReport(ctx context.Context, doc opensearch.ReportDocument) error
}

// ReportReader loads a stored report with its medications.
type ReportReader interface {
	GetByID(ctx context.Context, id int64) (*report.Report, error)
}

// Indexer handles embedding jobs. Docs may be nil when full-text search is
// not configured.
type Indexer struct {
	chunker *SentenceChunker
	embed   Embedder
	chunks  report.ChunkStore
	docs    DocumentIndex
	reports ReportReader
	backend string
	metrics *prom.AppMetrics
	logger  logging.Logger
}

type IndexerOptions struct {
	Chunker  *SentenceChunker
	Embedder Embedder
	Chunks   report.ChunkStore
	Docs     DocumentIndex
	Reports  ReportReader
	// Backend labels the chunks-indexed metric ("postgres", "milvus").
	Backend string
	Metrics *prom.AppMetrics
	Logger  logging.Logger
}

func NewIndexer(o IndexerOptions) *Indexer {
	ch := o.Chunker
	if ch == nil {
		ch = NewSentenceChunker(DefaultSentencesPerChunk, DefaultOverlapSentences)
	}
	return &Indexer{
		chunker: ch,
		embed:   o.Embedder,
		chunks:  o.Chunks,
		docs:    o.Docs,
		reports: o.Reports,
		backend: o.Backend,
		metrics: o.Metrics,
		logger:  o.Logger,
	}
}

// Result summarizes one indexing pass.
type Result struct {
	ReportID int64 `json:"report_id"`
	Chunks   int   `json:"chunks"`
}

// Index replaces the report's chunks with freshly embedded ones and
// refreshes its search document. Reindexing the same report is idempotent.
func (ix *Indexer) Index(ctx context.Context, job kafka.EmbeddingJob) (Result, error) {
	if job.ReportID <= 0 {
		return Result{}, errors.New(errors.ErrCodeValidation, "embedding job has no report id")
	}
	start := time.Now()
	log := ix.logger.With(logging.Int64("report_id", job.ReportID), logging.String("job_id", job.JobID))

	rep, err := ix.reports.GetByID(ctx, job.ReportID)
	if err != nil {
		return Result{}, err
	}
	text := job.ExtractedText
	if text == "" && rep.ExtractedText != nil {
		text = *rep.ExtractedText
	}

	pieces := ix.chunker.Split(text)
	chunks := make([]report.Chunk, 0, len(pieces))
	if len(pieces) > 0 {
		vectors, err := ix.embed.EmbedBatch(ctx, pieces)
		if err != nil {
			return Result{}, err
		}
		if len(vectors) != len(pieces) {
			return Result{}, errors.Newf(errors.ErrCodeEmbeddingFailed,
				"embedder returned %d vectors for %d chunks", len(vectors), len(pieces))
		}
		for i, p := range pieces {
			chunks = append(chunks, report.Chunk{ReportID: job.ReportID, Index: i, Text: p, Embedding: vectors[i]})
		}
	}
	if err := ix.chunks.ReplaceChunks(ctx, job.ReportID, chunks); err != nil {
		return Result{}, err
	}
	prom.RecordChunksIndexed(ix.metrics, ix.backend, len(chunks))

	if ix.docs != nil {
		doc := opensearch.ReportDocument{
			ReportID:      rep.ID,
			FileName:      rep.FileName,
			Summary:       rep.Summary,
			ExtractedText: text,
			CreatedAt:     rep.CreatedAt,
		}
		for _, m := range rep.Mentions() {
			doc.Medications = append(doc.Medications, m.Name)
		}
		if err := ix.docs.IndexReport(ctx, doc); err != nil {
			return Result{}, err
		}
	}

	log.Info("report indexed",
		logging.Int("chunks", len(chunks)),
		logging.Duration("elapsed", time.Since(start)))
	return Result{ReportID: job.ReportID, Chunks: len(chunks)}, nil
}

package bootstrap

import (
	"github.com/turtacn/RAG-HealthBot/internal/application/indexing"
	"github.com/turtacn/RAG-HealthBot/internal/application/intake"
	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/redis"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/search/milvus"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/search/opensearch"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/storage/minio"
	"github.com/turtacn/RAG-HealthBot/internal/intelligence/embedding"
	"github.com/turtacn/RAG-HealthBot/internal/intelligence/llm"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

func (in *Infra) require(ok bool, name string) error {
	if !ok {
		return errors.Newf(errors.ErrCodeInternal, "bootstrap: %s was not opened", name)
	}
	return nil
}

func (in *Infra) Reports() report.ReportRepository {
	return repositories.NewPostgresReportRepo(in.Postgres, in.Logger)
}

func (in *Infra) JobStore() *redis.JobStore {
	return redis.NewJobStore(in.Redis, in.Config.Pipeline.JobStatusTTL, in.Logger)
}

func (in *Infra) Uploads() *minio.UploadStore {
	return minio.NewUploadStore(in.MinIO, in.Logger)
}

func (in *Infra) Queue() *kafka.Queue {
	return kafka.NewQueue(in.Producer, in.Config.Messaging.Kafka)
}

// ReportCache is the read-through cache in front of report lookups.
func (in *Infra) ReportCache() redis.Cache {
	return redis.NewRedisCache(in.Redis, in.Logger, redis.WithPrefix("healthbot:"))
}

// ReportIndex returns nil when OpenSearch is not configured.
func (in *Infra) ReportIndex() *opensearch.ReportIndex {
	if in.OpenSearch == nil {
		return nil
	}
	return opensearch.NewReportIndex(in.OpenSearch, in.Config.Search.OpenSearch.Index, in.Logger)
}

func (in *Infra) milvusIndex() *milvus.ChunkIndex {
	s := in.Config.Search
	return milvus.NewChunkIndex(in.Milvus, s.Milvus.Collection, s.Vector.Dimension, in.Logger)
}

// ChunkStore returns the vector store selected by search.vector.backend.
func (in *Infra) ChunkStore() report.ChunkStore {
	if in.Config.Search.Vector.Backend == config.VectorBackendMilvus && in.Milvus != nil {
		return in.milvusIndex()
	}
	return repositories.NewPostgresChunkRepo(in.Postgres, in.Config.Search.Vector.Dimension, in.Logger)
}

func (in *Infra) Embedder() *embedding.OllamaEmbedder {
	return embedding.NewOllamaEmbedder(in.Config.Embedding, in.Config.Search.Vector.Dimension, in.Metrics, in.Logger)
}

// Pipeline assembles the intake orchestrator. It needs Postgres, Redis and
// Kafka.
func (in *Infra) Pipeline() (*intake.Orchestrator, error) {
	if err := in.require(in.Postgres != nil && in.Redis != nil && in.Producer != nil, "postgres, redis and kafka"); err != nil {
		return nil, err
	}
	chat, err := llm.NewClient(in.Config.LLM, in.Metrics, in.Logger)
	if err != nil {
		return nil, err
	}

	reports := in.Reports()
	gateway := intake.NewGateway(
		reports,
		repositories.NewPostgresMedicationRepo(in.Postgres, in.Logger),
		repositories.NewPostgresReportMedicationRepo(in.Postgres, in.Logger),
		in.Metrics, in.Logger,
	)

	return intake.NewOrchestrator(intake.Deps{
		Locker:    redis.NewLocker(in.Redis, in.Logger),
		Recorder:  in.JobStore(),
		Dedup:     report.NewDedupLookup(reports),
		OCR:       intake.NewOCRStage(chat, in.Config.LLM.VisionModel, in.Logger),
		Summarize: intake.NewSummarizeStage(chat, in.Config.LLM.SummaryTemperature),
		Extract:   intake.NewExtractStage(chat),
		Persist:   gateway,
		Enqueuer:  in.Queue(),
		Metrics:   in.Metrics,
		Logger:    in.Logger,
		LockTTL:   in.Config.Pipeline.LockTTL,
	}), nil
}

// Indexer assembles the embedding indexer. It needs Postgres.
func (in *Infra) Indexer() (*indexing.Indexer, error) {
	if err := in.require(in.Postgres != nil, "postgres"); err != nil {
		return nil, err
	}
	p := in.Config.Pipeline
	opts := indexing.IndexerOptions{
		Chunker:  indexing.NewSentenceChunker(p.ChunkSentences, p.ChunkOverlap),
		Embedder: in.Embedder(),
		Chunks:   in.ChunkStore(),
		Reports:  in.Reports(),
		Backend:  in.Config.Search.Vector.Backend,
		Metrics:  in.Metrics,
		Logger:   in.Logger,
	}
	if idx := in.ReportIndex(); idx != nil {
		opts.Docs = idx
	}
	return indexing.NewIndexer(opts), nil
}

func (in *Infra) Retriever() (*indexing.Retriever, error) {
	if err := in.require(in.Postgres != nil, "postgres"); err != nil {
		return nil, err
	}
	return indexing.NewRetriever(in.Embedder(), in.ChunkStore(), in.Config.Search.Vector.TopK), nil
}

// Purger assembles report deletion across Postgres, the vector store and
// the search index. It needs Postgres.
func (in *Infra) Purger() (*indexing.Purger, error) {
	if err := in.require(in.Postgres != nil, "postgres"); err != nil {
		return nil, err
	}
	var docs indexing.DocumentRemover
	if idx := in.ReportIndex(); idx != nil {
		docs = idx
	}
	return indexing.NewPurger(in.Reports(), in.ChunkStore(), docs, in.Logger), nil
}

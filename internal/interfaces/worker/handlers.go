// Package worker routes Kafka messages to the intake pipeline and the
// embedding indexer.
package worker

import (
	"context"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/turtacn/RAG-HealthBot/internal/application/indexing"
	"github.com/turtacn/RAG-HealthBot/internal/application/intake"
	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/redis"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

const (
	DefaultJobTimeout = 10 * time.Minute

	// MetaIndexedChunks is the job meta key holding the chunk count of the
	// last indexing pass.
	MetaIndexedChunks = "indexed_chunks"
)

type ObjectFetcher interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// JobRecorder is the write side of the job status store.
type JobRecorder interface {
	SetStatus(ctx context.Context, id string, status redis.JobStatus) error
	SetMeta(ctx context.Context, id, key, value string) error
	Finish(ctx context.Context, id string, result interface{}) error
	Fail(ctx context.Context, id, message string) error
	FailWithResult(ctx context.Context, id, message string, result interface{}) error
}

type PipelineRunner interface {
	Run(ctx context.Context, req intake.RunRequest) intake.RunResult
}

type ReportIndexer interface {
	Index(ctx context.Context, job kafka.EmbeddingJob) (indexing.Result, error)
}

// Subscriber is the part of kafka.Consumer the router needs.
type Subscriber interface {
	Subscribe(topic string, handler kafka.MessageHandler) error
}

// ─── Intake ──────────────────────────────────────────────────────────────────

type IntakeHandler struct {
	objects ObjectFetcher
	jobs    JobRecorder
	runner  PipelineRunner
	timeout time.Duration
	logger  logging.Logger
}

func NewIntakeHandler(objects ObjectFetcher, jobs JobRecorder, runner PipelineRunner, timeout time.Duration, logger logging.Logger) *IntakeHandler {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &IntakeHandler{objects: objects, jobs: jobs, runner: runner, timeout: timeout, logger: logger}
}

// Handle runs one queued upload through the pipeline. A pipeline failure is
// recorded on the job and is not retried; only infrastructure errors before
// the run are returned to the consumer for retry.
func (h *IntakeHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	job, err := kafka.DecodeIntakeJob(msg)
	if err != nil {
		return err
	}
	log := h.logger.With(logging.String("job_id", job.JobID), logging.String("run_id", job.RunID))

	h.record(log, "status", h.jobs.SetStatus(ctx, job.JobID, redis.JobStarted))

	data, err := h.objects.Get(ctx, job.ObjectKey)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Error("upload object missing", logging.String("object_key", job.ObjectKey), logging.Err(err))
			h.record(log, "fail", h.jobs.Fail(ctx, job.JobID, "uploaded file is no longer available"))
			return nil
		}
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res := h.runner.Run(runCtx, intake.RunRequest{
		FileName:      job.FileName,
		MimeType:      job.MimeType,
		Base64Content: base64.StdEncoding.EncodeToString(data),
		RunID:         job.RunID,
		JobID:         job.JobID,
	})

	if res.Status == intake.RunCompleted {
		h.record(log, "finish", h.jobs.Finish(ctx, job.JobID, res))
		return nil
	}
	msgText := res.Error
	if msgText == "" {
		msgText = string(res.Reason)
	}
	h.record(log, "fail", h.jobs.FailWithResult(ctx, job.JobID, msgText, res))
	return nil
}

func (h *IntakeHandler) record(log logging.Logger, op string, err error) {
	if err != nil {
		log.Warn("job status update failed", logging.String("op", op), logging.Err(err))
	}
}

// ─── Indexing ────────────────────────────────────────────────────────────────

type IndexingHandler struct {
	indexer ReportIndexer
	jobs    JobRecorder
	logger  logging.Logger
}

// NewIndexingHandler builds the embeddings consumer. jobs may be nil.
func NewIndexingHandler(indexer ReportIndexer, jobs JobRecorder, logger logging.Logger) *IndexingHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &IndexingHandler{indexer: indexer, jobs: jobs, logger: logger}
}

// Handle indexes one persisted report. A report deleted since the job was
// queued is skipped.
func (h *IndexingHandler) Handle(ctx context.Context, msg *kafka.Message) error {
	job, err := kafka.DecodeEmbeddingJob(msg)
	if err != nil {
		return err
	}

	res, err := h.indexer.Index(ctx, *job)
	if err != nil {
		if errors.IsNotFound(err) {
			h.logger.Warn("report gone before indexing", logging.Int64("report_id", job.ReportID))
			return nil
		}
		return err
	}

	if h.jobs != nil && job.JobID != "" {
		if err := h.jobs.SetMeta(ctx, job.JobID, MetaIndexedChunks, strconv.Itoa(res.Chunks)); err != nil {
			h.logger.Warn("job status update failed", logging.String("job_id", job.JobID), logging.Err(err))
		}
	}
	return nil
}

// ─── Routing ─────────────────────────────────────────────────────────────────

// Register subscribes the handlers to their topics. A nil handler leaves its
// topic unconsumed.
func Register(sub Subscriber, k config.KafkaConfig, in *IntakeHandler, idx *IndexingHandler) error {
	if in != nil {
		if err := sub.Subscribe(k.IntakeTopic, in.Handle); err != nil {
			return err
		}
	}
	if idx != nil {
		if err := sub.Subscribe(k.EmbeddingsTopic, idx.Handle); err != nil {
			return err
		}
	}
	return nil
}

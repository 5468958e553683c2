package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// JobStatus is the coarse lifecycle of a queued intake job. The finer
// pipeline position is tracked in the stage field.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobStarted  JobStatus = "started"
	JobFinished JobStatus = "finished"
	JobFailed   JobStatus = "failed"
)

const (
	jobKeyPrefix = "job:"
	metaPrefix   = "meta."

	fieldStatus    = "status"
	fieldStage     = "stage"
	fieldError     = "error"
	fieldResult    = "result"
	fieldFileName  = "file_name"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// Job is the polled view of one intake job.
type Job struct {
	ID        string            `json:"job_id"`
	FileName  string            `json:"file_name,omitempty"`
	Status    JobStatus         `json:"status"`
	Stage     string            `json:"stage,omitempty"`
	Error     string            `json:"error,omitempty"`
	Result    json.RawMessage   `json:"result,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// JobStore keeps one hash per job under job:<id>. Every write refreshes the
// key's TTL.
type JobStore struct {
	client *Client
	ttl    time.Duration
	logger logging.Logger
	now    func() time.Time
}

func NewJobStore(client *Client, ttl time.Duration, log logging.Logger) *JobStore {
	return &JobStore{client: client, ttl: ttl, logger: log, now: time.Now}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

// Create registers a queued job.
func (s *JobStore) Create(ctx context.Context, id, fileName string) error {
	now := s.now().UTC().Format(time.RFC3339Nano)
	return s.write(ctx, id,
		fieldStatus, string(JobQueued),
		fieldFileName, fileName,
		fieldCreatedAt, now,
	)
}

func (s *JobStore) SetStatus(ctx context.Context, id string, status JobStatus) error {
	return s.write(ctx, id, fieldStatus, string(status))
}

// SetStage records the pipeline stage about to run.
func (s *JobStore) SetStage(ctx context.Context, id, stage string) error {
	return s.write(ctx, id, fieldStage, stage)
}

func (s *JobStore) SetError(ctx context.Context, id, message string) error {
	return s.write(ctx, id, fieldError, message)
}

// SetMeta stores an auxiliary run attribute such as existing_report_id.
func (s *JobStore) SetMeta(ctx context.Context, id, key, value string) error {
	return s.write(ctx, id, metaPrefix+key, value)
}

// Finish marks the job finished and stores result as JSON.
func (s *JobStore) Finish(ctx context.Context, id string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode job result")
	}
	return s.write(ctx, id, fieldStatus, string(JobFinished), fieldResult, string(data))
}

// Fail marks the job failed with message.
func (s *JobStore) Fail(ctx context.Context, id, message string) error {
	return s.write(ctx, id, fieldStatus, string(JobFailed), fieldError, message)
}

// FailWithResult marks the job failed and keeps the run's result next to
// the error message.
func (s *JobStore) FailWithResult(ctx context.Context, id, message string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode job result")
	}
	return s.write(ctx, id, fieldStatus, string(JobFailed), fieldError, message, fieldResult, string(data))
}

// Get returns the job or an ErrCodeJobNotFound error.
func (s *JobStore) Get(ctx context.Context, id string) (*Job, error) {
	fields, err := s.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read job")
	}
	if len(fields) == 0 {
		return nil, errors.New(errors.ErrCodeJobNotFound, "job not found").WithDetail(id)
	}

	job := &Job{
		ID:       id,
		FileName: fields[fieldFileName],
		Status:   JobStatus(fields[fieldStatus]),
		Stage:    fields[fieldStage],
		Error:    fields[fieldError],
	}
	if raw := fields[fieldResult]; raw != "" {
		job.Result = json.RawMessage(raw)
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt])
	for k, v := range fields {
		if strings.HasPrefix(k, metaPrefix) {
			if job.Meta == nil {
				job.Meta = make(map[string]string)
			}
			job.Meta[strings.TrimPrefix(k, metaPrefix)] = v
		}
	}
	return job, nil
}

func (s *JobStore) write(ctx context.Context, id string, pairs ...interface{}) error {
	if s.client.isClosed() {
		return ErrClientClosed
	}
	key := jobKey(id)
	pairs = append(pairs, fieldUpdatedAt, s.now().UTC().Format(time.RFC3339Nano))

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, pairs...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("job status write failed", logging.String("job_id", id), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to write job status")
	}
	return nil
}

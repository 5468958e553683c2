package kafka

import (
	"context"
	"strconv"
	"time"

	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

const queueSource = "healthbot"

// Queue publishes intake and embedding jobs as enveloped events.
type Queue struct {
	pub             Publisher
	intakeTopic     string
	embeddingsTopic string
}

// NewQueue binds pub to the configured topics.
func NewQueue(pub Publisher, cfg config.KafkaConfig) *Queue {
	return &Queue{
		pub:             pub,
		intakeTopic:     cfg.IntakeTopic,
		embeddingsTopic: cfg.EmbeddingsTopic,
	}
}

// EnqueueIntake publishes job keyed by its job id.
func (q *Queue) EnqueueIntake(ctx context.Context, job IntakeJob) error {
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}
	return q.publish(ctx, q.intakeTopic, EventIntakeRequested, []byte(job.JobID), job,
		map[string]string{"job_id": job.JobID})
}

// EnqueueEmbedding publishes job keyed by its report id so re-index requests
// for one report stay ordered.
func (q *Queue) EnqueueEmbedding(ctx context.Context, job EmbeddingJob) error {
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}
	id := strconv.FormatInt(job.ReportID, 10)
	return q.publish(ctx, q.embeddingsTopic, EventEmbeddingRequested, []byte(id), job,
		map[string]string{"report_id": id})
}

func (q *Queue) publish(ctx context.Context, topic, eventType string, key []byte, payload interface{}, meta map[string]string) error {
	env, err := NewEventEnvelope(eventType, queueSource, payload)
	if err != nil {
		return err
	}
	env.Metadata = meta
	msg, err := env.ToMessage(topic, key)
	if err != nil {
		return err
	}
	if err := q.pub.Publish(ctx, msg); err != nil {
		return errors.Wrap(err, errors.ErrCodeEnqueueFailed, "failed to enqueue job").WithDetail(topic)
	}
	return nil
}

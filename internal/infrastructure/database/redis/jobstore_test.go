package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

func TestJobStore_Lifecycle(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewJobStore(client, time.Hour, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "j1", "scan.pdf"))
	job, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, JobQueued, job.Status)
	assert.Equal(t, "scan.pdf", job.FileName)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, time.Hour, mr.TTL("job:j1"))

	require.NoError(t, store.SetStatus(ctx, "j1", JobStarted))
	require.NoError(t, store.SetStage(ctx, "j1", "ocr"))
	require.NoError(t, store.SetMeta(ctx, "j1", "existing_report_id", "42"))
	require.NoError(t, store.Finish(ctx, "j1", map[string]interface{}{"report_id": 7}))

	job, err = store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, JobFinished, job.Status)
	assert.Equal(t, "ocr", job.Stage)
	assert.Equal(t, "42", job.Meta["existing_report_id"])
	assert.Empty(t, job.Error)

	var result map[string]int
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Equal(t, 7, result["report_id"])
}

func TestJobStore_Fail(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewJobStore(client, time.Hour, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "j2", "x.png"))
	require.NoError(t, store.SetStage(ctx, "j2", "failed"))
	require.NoError(t, store.Fail(ctx, "j2", "ocr returned no text"))

	job, err := store.Get(ctx, "j2")
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status)
	assert.Equal(t, "failed", job.Stage)
	assert.Equal(t, "ocr returned no text", job.Error)
	assert.Nil(t, job.Result)
}

func TestJobStore_FailWithResult(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewJobStore(client, time.Hour, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "j3", "x.pdf"))
	require.NoError(t, store.FailWithResult(ctx, "j3", "summary failed",
		map[string]string{"status": "failed", "reason_code": "processing_error"}))

	job, err := store.Get(ctx, "j3")
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status)
	assert.Equal(t, "summary failed", job.Error)
	assert.JSONEq(t, `{"status":"failed","reason_code":"processing_error"}`, string(job.Result))
}

func TestJobStore_NotFound(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewJobStore(client, time.Hour, logging.NewNopLogger())

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeJobNotFound))
	assert.True(t, errors.IsNotFound(err))
}

func TestJobStore_Expires(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewJobStore(client, time.Minute, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "j3", "a.pdf"))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "j3")
	assert.True(t, errors.IsNotFound(err))
}

func TestJobStore_ClosedClient(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewJobStore(client, time.Minute, logging.NewNopLogger())
	require.NoError(t, client.Close())

	assert.Equal(t, ErrClientClosed, store.SetStage(context.Background(), "j", "ocr"))
}

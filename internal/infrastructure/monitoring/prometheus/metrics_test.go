package prometheus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAppMetrics(t *testing.T) (*AppMetrics, MetricsCollector) {
	t.Helper()
	c := newTestCollector(t)
	m := NewAppMetrics(c)
	require.NotNil(t, m)
	return m, c
}

func TestRecordHTTPRequest(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordHTTPRequest(m, "POST", "/api/report", 200, 120*time.Millisecond)
	RecordHTTPRequest(m, "POST", "/api/report", 200, 80*time.Millisecond)

	out := scrapeMetrics(t, c)
	assert.Equal(t, 2.0, metricValue(t, out, `test_unit_http_requests_total{method="POST",path="/api/report",status_code="200"}`))
	assert.Equal(t, 2.0, metricValue(t, out, `test_unit_http_request_duration_seconds_count{method="POST",path="/api/report"}`))
}

func TestRecordIntakeOutcomes(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordIntakeRun(m, OutcomeSucceeded, 3*time.Second)
	RecordIntakeRun(m, OutcomeDuplicate, time.Second)
	RecordIntakeRun(m, OutcomeDuplicate, time.Second)
	RecordDuplicate(m, CheckpointContent)
	RecordDuplicate(m, CheckpointText)
	RecordLockContention(m)
	RecordStage(m, "ocr", true, 2*time.Second)
	RecordMedications(m, "created", 3)
	RecordMedications(m, "reused", 0)

	out := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_intake_runs_total{outcome="succeeded"}`))
	assert.Equal(t, 2.0, metricValue(t, out, `test_unit_intake_runs_total{outcome="duplicate"}`))
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_intake_duplicates_total{checkpoint="content"}`))
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_intake_duplicates_total{checkpoint="text"}`))
	assert.Equal(t, 1.0, metricValue(t, out, "test_unit_intake_lock_contention_total"))
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_intake_stage_duration_seconds_count{stage="ocr",status="success"}`))
	assert.Equal(t, 3.0, metricValue(t, out, `test_unit_intake_medications_total{action="created"}`))
	assert.NotContains(t, out, `action="reused"`)
}

func TestRecordLLMAndIndexing(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordLLMCall(m, "gpt", "summarize", false, time.Second)
	RecordEmbedding(m, "mxbai", true)
	RecordChunksIndexed(m, "postgres", 7)

	out := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_llm_requests_total{model="gpt",operation="summarize",status="failure"}`))
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_embedding_requests_total{model="mxbai",status="success"}`))
	assert.Equal(t, 7.0, metricValue(t, out, `test_unit_chunks_indexed_total{backend="postgres"}`))
}

func TestRecordInfrastructure(t *testing.T) {
	m, c := newTestAppMetrics(t)
	RecordCacheAccess(m, "report", true)
	RecordCacheAccess(m, "report", false)
	RecordCacheAccess(m, "report", false)
	RecordMessage(m, "report.intake", true, time.Second)
	RecordDeadLetter(m, "report.intake")
	SetHealth(m, "postgres", true)
	SetHealth(m, "redis", false)

	out := scrapeMetrics(t, c)
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_cache_hits_total{cache="report"}`))
	assert.Equal(t, 2.0, metricValue(t, out, `test_unit_cache_misses_total{cache="report"}`))
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_mq_messages_processed_total{status="success",topic="report.intake"}`))
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_mq_dead_lettered_total{topic="report.intake"}`))
	assert.Equal(t, 1.0, metricValue(t, out, `test_unit_health_check_status{component="postgres"}`))
	assert.Equal(t, 0.0, metricValue(t, out, `test_unit_health_check_status{component="redis"}`))
}

func TestNilAppMetrics_IsNoop(t *testing.T) {
	var m *AppMetrics
	assert.NotPanics(t, func() {
		RecordHTTPRequest(m, "GET", "/", 200, time.Millisecond)
		RecordIntakeRun(m, OutcomeFailed, time.Second)
		RecordStage(m, "ocr", false, time.Second)
		RecordDuplicate(m, CheckpointText)
		RecordLockContention(m)
		RecordMedications(m, "created", 1)
		RecordLLMCall(m, "x", "y", true, time.Second)
		RecordEmbedding(m, "x", true)
		RecordChunksIndexed(m, "milvus", 1)
		RecordCacheAccess(m, "c", true)
		RecordMessage(m, "t", false, time.Second)
		RecordDeadLetter(m, "t")
		SetHealth(m, "c", true)
	})
}

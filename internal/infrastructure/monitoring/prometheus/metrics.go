package prometheus

import (
	"strconv"
	"time"
)

// Intake run outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// Duplicate checkpoints.
const (
	CheckpointContent = "content"
	CheckpointText    = "text"
)

// AppMetrics holds every metric the HealthBot binaries emit. A nil
// *AppMetrics is valid and records nothing.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Intake pipeline
	IntakeRunsTotal        CounterVec
	IntakeRunDuration      HistogramVec
	IntakeStageDuration    HistogramVec
	IntakeDuplicatesTotal  CounterVec
	IntakeLockContention   CounterVec
	IntakeMedicationsTotal CounterVec

	// Language model and embeddings
	LLMRequestsTotal       CounterVec
	LLMRequestDuration     HistogramVec
	EmbeddingRequestsTotal CounterVec
	ChunksIndexedTotal     CounterVec

	// Infrastructure
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	MessagesProcessedTotal CounterVec
	MessageProcessDuration HistogramVec
	DeadLetteredTotal      CounterVec
	HealthCheckStatus      GaugeVec
}

var (
	DefaultHTTPDurationBuckets   = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultIntakeDurationBuckets = []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600}
	DefaultLLMDurationBuckets    = []float64{.5, 1, 2, 5, 10, 30, 60, 120}
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method")

	m.IntakeRunsTotal = collector.RegisterCounter("intake_runs_total", "Intake pipeline runs by outcome", "outcome")
	m.IntakeRunDuration = collector.RegisterHistogram("intake_run_duration_seconds", "Intake pipeline run duration", DefaultIntakeDurationBuckets, "outcome")
	m.IntakeStageDuration = collector.RegisterHistogram("intake_stage_duration_seconds", "Intake stage duration", DefaultIntakeDurationBuckets, "stage", "status")
	m.IntakeDuplicatesTotal = collector.RegisterCounter("intake_duplicates_total", "Uploads short-circuited as duplicates", "checkpoint")
	m.IntakeLockContention = collector.RegisterCounter("intake_lock_contention_total", "Intake runs rejected because the report lock was held")
	m.IntakeMedicationsTotal = collector.RegisterCounter("intake_medications_total", "Medications persisted by intake", "action")

	m.LLMRequestsTotal = collector.RegisterCounter("llm_requests_total", "LLM requests total", "model", "operation", "status")
	m.LLMRequestDuration = collector.RegisterHistogram("llm_request_duration_seconds", "LLM request duration", DefaultLLMDurationBuckets, "model", "operation")
	m.EmbeddingRequestsTotal = collector.RegisterCounter("embedding_requests_total", "Embedding requests total", "model", "status")
	m.ChunksIndexedTotal = collector.RegisterCounter("chunks_indexed_total", "Report chunks written to the vector store", "backend")

	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.MessagesProcessedTotal = collector.RegisterCounter("mq_messages_processed_total", "Queue messages processed", "topic", "status")
	m.MessageProcessDuration = collector.RegisterHistogram("mq_process_duration_seconds", "Queue message processing duration", DefaultIntakeDurationBuckets, "topic")
	m.DeadLetteredTotal = collector.RegisterCounter("mq_dead_lettered_total", "Messages routed to the dead letter topic", "topic")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")

	return m
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordIntakeRun(m *AppMetrics, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.IntakeRunsTotal.WithLabelValues(outcome).Inc()
	m.IntakeRunDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordStage(m *AppMetrics, stage string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.IntakeStageDuration.WithLabelValues(stage, statusLabel(success)).Observe(duration.Seconds())
}

func RecordDuplicate(m *AppMetrics, checkpoint string) {
	if m == nil {
		return
	}
	m.IntakeDuplicatesTotal.WithLabelValues(checkpoint).Inc()
}

func RecordLockContention(m *AppMetrics) {
	if m == nil {
		return
	}
	m.IntakeLockContention.WithLabelValues().Inc()
}

// RecordMedications counts medications by action: "created" or "reused".
func RecordMedications(m *AppMetrics, action string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.IntakeMedicationsTotal.WithLabelValues(action).Add(float64(n))
}

func RecordLLMCall(m *AppMetrics, model, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(model, operation, statusLabel(success)).Inc()
	m.LLMRequestDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
}

func RecordEmbedding(m *AppMetrics, model string, success bool) {
	if m == nil {
		return
	}
	m.EmbeddingRequestsTotal.WithLabelValues(model, statusLabel(success)).Inc()
}

func RecordChunksIndexed(m *AppMetrics, backend string, n int) {
	if m == nil {
		return
	}
	m.ChunksIndexedTotal.WithLabelValues(backend).Add(float64(n))
}

func RecordCacheAccess(m *AppMetrics, cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordMessage(m *AppMetrics, topic string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.MessagesProcessedTotal.WithLabelValues(topic, statusLabel(success)).Inc()
	m.MessageProcessDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

func RecordDeadLetter(m *AppMetrics, topic string) {
	if m == nil {
		return
	}
	m.DeadLetteredTotal.WithLabelValues(topic).Inc()
}

func SetHealth(m *AppMetrics, component string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}

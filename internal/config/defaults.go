// Package config provides configuration loading, defaults, and validation for
// RAG-HealthBot.
package config

import "time"

const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"

	VectorBackendPostgres = "postgres"
	VectorBackendMilvus   = "milvus"
)

const (
	DefaultHTTPHost            = "0.0.0.0"
	DefaultHTTPPort            = 8000
	DefaultServerMode          = "release"
	DefaultHTTPReadTimeout     = 30 * time.Second
	DefaultHTTPWriteTimeout    = 60 * time.Second
	DefaultHTTPShutdownTimeout = 15 * time.Second
	DefaultMaxBodySize         = 64 << 20
	DefaultCORSOrigin          = "http://localhost:3000"
	DefaultUploadBurst         = 10

	DefaultPostgresHost    = "localhost"
	DefaultPostgresPort    = 5432
	DefaultPostgresDB      = "healthbot"
	DefaultPostgresSSLMode = "disable"
	DefaultMaxOpenConns    = 20
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 30 * time.Minute

	DefaultRedisAddr     = "localhost:6379"
	DefaultRedisPoolSize = 10

	DefaultKafkaBroker       = "localhost:9092"
	DefaultConsumerGroup     = "healthbot-worker"
	DefaultIntakeTopic       = "report.intake"
	DefaultEmbeddingsTopic   = "report.embeddings"
	DefaultDeadLetterTopic   = "report.dead_letter"
	DefaultKafkaMaxRetries   = 3
	DefaultKafkaRetryBackoff = time.Second
	DefaultKafkaBatchSize    = 100
	DefaultKafkaWriteTimeout = 10 * time.Second

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "healthbot-uploads"

	DefaultVectorBackend   = VectorBackendPostgres
	DefaultVectorDimension = 1024
	DefaultTopK            = 6
	DefaultMilvusAddress   = "localhost:19530"
	DefaultMilvusTimeout   = 10 * time.Second
	DefaultMilvusCollect   = "report_chunks"
	DefaultOpenSearchIndex = "healthbot-reports"

	DefaultLLMBaseURL         = "https://api.groq.com/openai/v1"
	DefaultLLMModel           = "openai/gpt-oss-120b"
	DefaultLLMVisionModel     = "meta-llama/llama-4-scout-17b-16e-instruct"
	DefaultSummaryTemperature = 0.2
	DefaultLLMTimeout         = 2 * time.Minute

	DefaultEmbeddingBaseURL = "http://localhost:11434"
	DefaultEmbeddingModel   = "mxbai-embed-large"
	DefaultEmbeddingTimeout = time.Minute

	DefaultLockTTL        = 10 * time.Minute
	DefaultJobTimeout     = 10 * time.Minute
	DefaultJobStatusTTL   = 24 * time.Hour
	DefaultChunkSentences = 5
	DefaultChunkOverlap   = 1

	DefaultWorkerConcurrency = 4
	DefaultWorkerQueueDepth  = 64
	DefaultWorkerHealthPort  = 8081
	DefaultWorkerShutdown    = 30 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "healthbot"
	DefaultMetricsPath      = "/metrics"
)

// ApplyDefaults fills every zero-value field in cfg. Explicit values win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	h := &cfg.Server.HTTP
	if h.Host == "" {
		h.Host = DefaultHTTPHost
	}
	if h.Port == 0 {
		h.Port = DefaultHTTPPort
	}
	if h.Mode == "" {
		h.Mode = DefaultServerMode
	}
	if h.ReadTimeout == 0 {
		h.ReadTimeout = DefaultHTTPReadTimeout
	}
	if h.WriteTimeout == 0 {
		h.WriteTimeout = DefaultHTTPWriteTimeout
	}
	if h.ShutdownTimeout == 0 {
		h.ShutdownTimeout = DefaultHTTPShutdownTimeout
	}
	if h.MaxBodySize == 0 {
		h.MaxBodySize = DefaultMaxBodySize
	}
	if len(h.CORSOrigins) == 0 {
		h.CORSOrigins = []string{DefaultCORSOrigin}
	}
	if h.UploadRateLimit > 0 && h.UploadBurst == 0 {
		h.UploadBurst = DefaultUploadBurst
	}

	// ── Postgres ──────────────────────────────────────────────────────────────
	pg := &cfg.Database.Postgres
	if pg.Driver == "" {
		pg.Driver = DriverPQ
	}
	if pg.DSN == "" {
		if pg.Host == "" {
			pg.Host = DefaultPostgresHost
		}
		if pg.Port == 0 {
			pg.Port = DefaultPostgresPort
		}
		if pg.DBName == "" {
			pg.DBName = DefaultPostgresDB
		}
		if pg.SSLMode == "" {
			pg.SSLMode = DefaultPostgresSSLMode
		}
	}
	if pg.MaxOpenConns == 0 {
		pg.MaxOpenConns = DefaultMaxOpenConns
	}
	if pg.MaxIdleConns == 0 {
		pg.MaxIdleConns = DefaultMaxIdleConns
	}
	if pg.ConnMaxLifetime == 0 {
		pg.ConnMaxLifetime = DefaultConnMaxLifetime
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	rd := &cfg.Database.Redis
	if rd.URL == "" && rd.Addr == "" {
		rd.Addr = DefaultRedisAddr
	}
	if rd.PoolSize == 0 {
		rd.PoolSize = DefaultRedisPoolSize
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	k := &cfg.Messaging.Kafka
	if len(k.Brokers) == 0 {
		k.Brokers = []string{DefaultKafkaBroker}
	}
	if k.ConsumerGroup == "" {
		k.ConsumerGroup = DefaultConsumerGroup
	}
	if k.IntakeTopic == "" {
		k.IntakeTopic = DefaultIntakeTopic
	}
	if k.EmbeddingsTopic == "" {
		k.EmbeddingsTopic = DefaultEmbeddingsTopic
	}
	if k.DeadLetterTopic == "" {
		k.DeadLetterTopic = DefaultDeadLetterTopic
	}
	if k.MaxRetries == 0 {
		k.MaxRetries = DefaultKafkaMaxRetries
	}
	if k.RetryBackoff == 0 {
		k.RetryBackoff = DefaultKafkaRetryBackoff
	}
	if k.BatchSize == 0 {
		k.BatchSize = DefaultKafkaBatchSize
	}
	if k.WriteTimeout == 0 {
		k.WriteTimeout = DefaultKafkaWriteTimeout
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.Storage.MinIO.Endpoint == "" {
		cfg.Storage.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.Storage.MinIO.Bucket == "" {
		cfg.Storage.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Search ────────────────────────────────────────────────────────────────
	s := &cfg.Search
	if s.Vector.Backend == "" {
		s.Vector.Backend = DefaultVectorBackend
	}
	if s.Vector.Dimension == 0 {
		s.Vector.Dimension = DefaultVectorDimension
	}
	if s.Vector.TopK == 0 {
		s.Vector.TopK = DefaultTopK
	}
	if s.Milvus.Address == "" {
		s.Milvus.Address = DefaultMilvusAddress
	}
	if s.Milvus.ConnectTimeout == 0 {
		s.Milvus.ConnectTimeout = DefaultMilvusTimeout
	}
	if s.Milvus.Collection == "" {
		s.Milvus.Collection = DefaultMilvusCollect
	}
	if s.OpenSearch.Index == "" {
		s.OpenSearch.Index = DefaultOpenSearchIndex
	}

	// ── LLM / embeddings ──────────────────────────────────────────────────────
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = DefaultLLMBaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultLLMModel
	}
	if cfg.LLM.VisionModel == "" {
		cfg.LLM.VisionModel = DefaultLLMVisionModel
	}
	if cfg.LLM.SummaryTemperature == 0 {
		cfg.LLM.SummaryTemperature = DefaultSummaryTemperature
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = DefaultLLMTimeout
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = DefaultEmbeddingBaseURL
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = DefaultEmbeddingTimeout
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	p := &cfg.Pipeline
	if p.LockTTL == 0 {
		p.LockTTL = DefaultLockTTL
	}
	if p.JobTimeout == 0 {
		p.JobTimeout = DefaultJobTimeout
	}
	if p.JobStatusTTL == 0 {
		p.JobStatusTTL = DefaultJobStatusTTL
	}
	if p.ChunkSentences == 0 {
		p.ChunkSentences = DefaultChunkSentences
	}
	if p.ChunkOverlap == 0 {
		p.ChunkOverlap = DefaultChunkOverlap
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	w := &cfg.Worker
	if w.Concurrency == 0 {
		w.Concurrency = DefaultWorkerConcurrency
	}
	if w.QueueDepth == 0 {
		w.QueueDepth = DefaultWorkerQueueDepth
	}
	if w.HealthPort == 0 {
		w.HealthPort = DefaultWorkerHealthPort
	}
	if w.ShutdownTimeout == 0 {
		w.ShutdownTimeout = DefaultWorkerShutdown
	}

	// ── Log / metrics ─────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

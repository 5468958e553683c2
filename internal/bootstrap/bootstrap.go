// Package bootstrap opens the infrastructure shared by the API server, the
// worker and the CLI, and assembles the pipeline components on top of it.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/postgres"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/redis"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/search/milvus"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/search/opensearch"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/storage/minio"
)

// Component selects what Open connects to.
type Component uint8

const (
	Postgres Component = 1 << iota
	Redis
	Storage
	Kafka
	// Search opens OpenSearch when addresses are configured and Milvus when
	// it is the vector backend.
	Search

	All = Postgres | Redis | Storage | Kafka | Search
)

func (c Component) has(x Component) bool { return c&x != 0 }

// NewLogger builds the process logger from cfg.Log tagged with service.
func NewLogger(cfg *config.Config, service string) (logging.Logger, error) {
	lc := cfg.Log
	if lc.Service == "" {
		lc.Service = service
	}
	return logging.NewLogger(lc)
}

// NewMetrics registers the application metrics in a fresh registry. Every
// series carries service as a const label.
func NewMetrics(cfg *config.Config, service string, logger logging.Logger) (prom.MetricsCollector, *prom.AppMetrics, error) {
	collector, err := prom.NewMetricsCollector(prom.CollectorConfigFrom(cfg.Metrics, service), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}
	return collector, prom.NewAppMetrics(collector), nil
}

// Infra holds the opened clients. Fields for components that were not
// requested stay nil.
type Infra struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *prom.AppMetrics

	Postgres   *postgres.Connection
	Redis      *redis.Client
	MinIO      *minio.Client
	Producer   *kafka.Producer
	OpenSearch *opensearch.Client
	Milvus     *milvus.Client

	closers []func() error
}

// Open connects to every component in need. On failure the components
// opened so far are closed.
func Open(cfg *config.Config, logger logging.Logger, metrics *prom.AppMetrics, need Component) (*Infra, error) {
	in := &Infra{Config: cfg, Logger: logger, Metrics: metrics}

	fail := func(name string, err error) (*Infra, error) {
		in.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if need.has(Postgres) {
		pg, err := postgres.NewConnection(cfg.Database.Postgres, logger)
		if err != nil {
			return fail("postgres", err)
		}
		in.Postgres = pg
		in.closers = append(in.closers, pg.Close)
	}

	if need.has(Redis) {
		rc, err := redis.NewClient(cfg.Database.Redis, logger)
		if err != nil {
			return fail("redis", err)
		}
		in.Redis = rc
		in.closers = append(in.closers, rc.Close)
	}

	if need.has(Storage) {
		mc, err := minio.NewClient(cfg.Storage.MinIO, logger)
		if err != nil {
			return fail("minio", err)
		}
		in.MinIO = mc
		in.closers = append(in.closers, mc.Close)
	}

	if need.has(Kafka) {
		p, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Messaging.Kafka), logger)
		if err != nil {
			return fail("kafka", err)
		}
		in.Producer = p
		in.closers = append(in.closers, p.Close)
	}

	if need.has(Search) {
		if len(cfg.Search.OpenSearch.Addresses) > 0 {
			oc, err := opensearch.NewClient(opensearch.ClientConfigFrom(cfg.Search.OpenSearch), logger)
			if err != nil {
				return fail("opensearch", err)
			}
			in.OpenSearch = oc
			in.closers = append(in.closers, oc.Close)
		}
		if cfg.Search.Vector.Backend == config.VectorBackendMilvus {
			mv, err := milvus.NewClient(cfg.Search.Milvus, logger)
			if err != nil {
				return fail("milvus", err)
			}
			in.Milvus = mv
			in.closers = append(in.closers, mv.Close)
		}
	}

	return in, nil
}

// Close releases every opened component in reverse order.
func (in *Infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil {
			in.Logger.Warn("close failed", logging.Err(err))
		}
	}
	in.closers = nil
}

// Prepare creates the bucket, topics, search index and vector collection
// the opened components need. Each step is idempotent.
func (in *Infra) Prepare(ctx context.Context) error {
	if in.MinIO != nil {
		if err := in.MinIO.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("minio bucket: %w", err)
		}
	}
	if in.Producer != nil {
		tm, err := kafka.NewTopicManager(in.Config.Messaging.Kafka.Brokers, in.Logger)
		if err != nil {
			return fmt.Errorf("kafka topics: %w", err)
		}
		defer tm.Close()
		if err := tm.EnsureTopics(ctx, kafka.DefaultTopics(in.Config.Messaging.Kafka)); err != nil {
			return fmt.Errorf("kafka topics: %w", err)
		}
	}
	if idx := in.ReportIndex(); idx != nil {
		if err := idx.EnsureIndex(ctx); err != nil {
			return fmt.Errorf("opensearch index: %w", err)
		}
	}
	if in.Milvus != nil {
		if err := in.milvusIndex().EnsureCollection(ctx); err != nil {
			return fmt.Errorf("milvus collection: %w", err)
		}
	}
	return nil
}

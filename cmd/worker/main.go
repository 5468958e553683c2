// Command worker consumes intake and embedding jobs from Kafka.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/RAG-HealthBot/internal/bootstrap"
	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/RAG-HealthBot/internal/interfaces/http"
	"github.com/turtacn/RAG-HealthBot/internal/interfaces/http/handlers"
	"github.com/turtacn/RAG-HealthBot/internal/interfaces/worker"
)

var version = "dev"

const (
	roleIntake     = "intake"
	roleEmbeddings = "embeddings"
	prepareTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (env only when empty)")
	workers := flag.Int("workers", 0, "handler goroutines (overrides worker.concurrency)")
	topics := flag.String("topics", "", "comma-separated roles to consume: intake,embeddings (default: both)")
	flag.Parse()

	if err := run(*configPath, *workers, *topics); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func parseRoles(s string) (intake, embeddings bool, err error) {
	if strings.TrimSpace(s) == "" {
		return true, true, nil
	}
	for _, r := range strings.Split(s, ",") {
		switch strings.TrimSpace(r) {
		case roleIntake:
			intake = true
		case roleEmbeddings:
			embeddings = true
		default:
			return false, false, fmt.Errorf("unknown topic role %q", r)
		}
	}
	return intake, embeddings, nil
}

func run(configPath string, workers int, topics string) error {
	withIntake, withEmbeddings, err := parseRoles(topics)
	if err != nil {
		return err
	}

	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Worker.Concurrency = workers
	}

	logger, err := bootstrap.NewLogger(cfg, "worker")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	collector, metrics, err := bootstrap.NewMetrics(cfg, "worker", logger)
	if err != nil {
		return err
	}

	infra, err := bootstrap.Open(cfg, logger, metrics, bootstrap.All)
	if err != nil {
		return err
	}
	defer infra.Close()

	ctx, cancel := context.WithTimeout(context.Background(), prepareTimeout)
	err = infra.Prepare(ctx)
	cancel()
	if err != nil {
		return err
	}

	k := cfg.Messaging.Kafka
	consumerCfg := kafka.ConsumerConfigFrom(k, cfg.Worker)
	consumerCfg.Topics = nil

	var intakeHandler *worker.IntakeHandler
	if withIntake {
		pipeline, err := infra.Pipeline()
		if err != nil {
			return err
		}
		intakeHandler = worker.NewIntakeHandler(infra.Uploads(), infra.JobStore(), pipeline, cfg.Pipeline.JobTimeout, logger)
		consumerCfg.Topics = append(consumerCfg.Topics, k.IntakeTopic)
	}

	var indexingHandler *worker.IndexingHandler
	if withEmbeddings {
		indexer, err := infra.Indexer()
		if err != nil {
			return err
		}
		indexingHandler = worker.NewIndexingHandler(indexer, infra.JobStore(), logger)
		consumerCfg.Topics = append(consumerCfg.Topics, k.EmbeddingsTopic)
	}

	consumer, err := kafka.NewConsumer(consumerCfg, infra.Producer, logger)
	if err != nil {
		return err
	}
	if err := worker.Register(consumer, k, intakeHandler, indexingHandler); err != nil {
		return err
	}

	health := handlers.NewHealthHandler(version, bootstrap.HealthCheckers(infra)...)
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	health.RegisterRoutes(engine)
	if cfg.Metrics.Enabled {
		engine.GET(cfg.Metrics.Path, gin.WrapH(collector.Handler()))
	}
	probe := httpserver.NewServer(config.HTTPServerConfig{
		Host:            cfg.Server.HTTP.Host,
		Port:            cfg.Worker.HealthPort,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}, engine, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- probe.Start() }()

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := consumer.Start(runCtx); err != nil {
		return err
	}
	logger.Info("worker started",
		logging.String("version", version),
		logging.Int("concurrency", cfg.Worker.Concurrency),
		logging.String("topics", strings.Join(consumerCfg.Topics, ",")),
		logging.String("health_addr", probe.Addr()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", logging.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("health server failed", logging.Err(err))
		}
	}

	// Close waits for in-flight handlers; bound it by the shutdown timeout.
	done := make(chan error, 1)
	go func() { done <- consumer.Close() }()
	select {
	case err := <-done:
		if err != nil {
			logger.Error("consumer close failed", logging.Err(err))
		}
	case <-time.After(cfg.Worker.ShutdownTimeout):
		logger.Warn("consumer did not drain before shutdown timeout")
	}
	stop()

	if err := probe.Stop(context.Background()); err != nil {
		logger.Error("health server shutdown failed", logging.Err(err))
	}
	logger.Info("worker stopped")
	return nil
}

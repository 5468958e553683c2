// Command apiserver serves the RAG-HealthBot HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/RAG-HealthBot/internal/bootstrap"
	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/RAG-HealthBot/internal/interfaces/http"
	"github.com/turtacn/RAG-HealthBot/internal/interfaces/http/handlers"
	"github.com/turtacn/RAG-HealthBot/internal/interfaces/http/middleware"
)

// version is set via ldflags.
var version = "dev"

const prepareTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file (env only when empty)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	logger, err := bootstrap.NewLogger(cfg, "apiserver")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	collector, metrics, err := bootstrap.NewMetrics(cfg, "apiserver", logger)
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

	deps := handlers.ReportHandlerDeps{
		Uploads:     infra.Uploads(),
		Jobs:        infra.JobStore(),
		Queue:       infra.Queue(),
		Reports:     infra.Reports(),
		Cache:       infra.ReportCache(),
		MaxBodySize: cfg.Server.HTTP.MaxBodySize,
		Logger:      logger,
	}
	if idx := infra.ReportIndex(); idx != nil {
		deps.Search = idx
	}
	retriever, err := infra.Retriever()
	if err != nil {
		return err
	}
	deps.Retriever = retriever
	purger, err := infra.Purger()
	if err != nil {
		return err
	}
	deps.Purger = purger

	health := handlers.NewHealthHandler(version, bootstrap.HealthCheckers(infra)...)

	gin.SetMode(cfg.Server.HTTP.Mode)
	routerCfg := httpserver.RouterConfig{
		ReportHandler: handlers.NewReportHandler(deps),
		HealthHandler: health,
		CORSOrigins:   cfg.Server.HTTP.CORSOrigins,
		Metrics:       metrics,
		MetricsPath:   cfg.Metrics.Path,
		Logger:        logger,
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsCollector = collector
	}
	if cfg.Server.HTTP.UploadRateLimit > 0 {
		limiter := middleware.NewTokenBucketLimiter(cfg.Server.HTTP.UploadRateLimit, cfg.Server.HTTP.UploadBurst, time.Minute)
		defer limiter.Stop()
		routerCfg.UploadLimiter = limiter
	}

	srv := httpserver.NewServer(cfg.Server.HTTP, httpserver.NewRouter(routerCfg), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Info("apiserver started",
		logging.String("version", version),
		logging.String("addr", srv.Addr()),
		logging.String("vector_backend", cfg.Search.Vector.Backend))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", logging.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	if err := srv.Stop(context.Background()); err != nil {
		logger.Error("http shutdown failed", logging.Err(err))
	}
	logger.Info("apiserver stopped")
	return nil
}

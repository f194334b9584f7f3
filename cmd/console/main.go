// Package main is the entry point for the cargolog console server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cargolog/console/internal/config"
	"github.com/cargolog/console/internal/contract"
	"github.com/cargolog/console/internal/dashboard"
	"github.com/cargolog/console/internal/entity"
	"github.com/cargolog/console/internal/listing"
	"github.com/cargolog/console/internal/observability"
	"github.com/cargolog/console/internal/resource"
	"github.com/cargolog/console/internal/search"
	"github.com/cargolog/console/internal/session"
	"github.com/cargolog/console/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "cargolog-console", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Load entity definitions, validate, build registry.
	loader := entity.NewLoader()
	defs, err := loader.LoadDir(cfg.Definitions.Directory)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}

	validator := entity.NewValidator()
	if verrs := validator.Validate(defs); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		logger.Error("definition validation failed", zap.Int("errors", len(verrs)))
		return 1
	}

	registry := entity.NewRegistry(defs)
	metrics.SetDefinitionsLoaded(float64(registry.Count()))
	logger.Info("definitions loaded",
		zap.Int("entities", registry.Count()),
		zap.String("checksum", registry.Checksum()))

	// Verify the backend contract when a spec file is configured.
	// Deviations are reported, not fatal.
	if cfg.Contract.SpecFile != "" {
		checker, err := contract.Load(ctx, cfg.Contract.SpecFile, logger)
		if err != nil {
			logger.Error("contract check failed", zap.Error(err))
			return 1
		}
		issues := checker.Check(registry.All())
		metrics.SetContractIssuesFound(float64(checker.Report(issues)))
	}

	// Backend client and providers.
	backend := resource.New(cfg.Backend, logger, resource.WithObserver(metrics))

	sessions := session.NewStore()
	deps := transport.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Registry:  registry,
		Backend:   backend,
		Auth:      session.NewManager(backend, cfg.Session, logger),
		Sessions:  sessions,
		Listing:   listing.NewProvider(backend, logger, listing.WithSupersedeObserver(metrics.RecordListSupersede)),
		Lookups:   search.NewLookupProvider(registry, backend, cfg.Lookup.TTL, cfg.Lookup.MaxEntries),
		Tracker:   search.NewTracker(registry, backend, logger),
		Dashboard: dashboard.NewAggregator(backend, logger),
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return registry.Count() > 0 },
		},
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      transport.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", registry.Count()))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

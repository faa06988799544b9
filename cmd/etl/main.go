package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/met-diagnostics-etl/internal/adapter/cimiss"
	httpadapter "github.com/couchcryptid/met-diagnostics-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/met-diagnostics-etl/internal/adapter/kafka"
	"github.com/couchcryptid/met-diagnostics-etl/internal/adapter/micaps"
	"github.com/couchcryptid/met-diagnostics-etl/internal/catalog"
	"github.com/couchcryptid/met-diagnostics-etl/internal/compose"
	"github.com/couchcryptid/met-diagnostics-etl/internal/config"
	"github.com/couchcryptid/met-diagnostics-etl/internal/domain"
	"github.com/couchcryptid/met-diagnostics-etl/internal/normalize"
	"github.com/couchcryptid/met-diagnostics-etl/internal/observability"
	"github.com/couchcryptid/met-diagnostics-etl/internal/pipeline"
	"github.com/couchcryptid/met-diagnostics-etl/internal/recipe"
	"github.com/couchcryptid/met-diagnostics-etl/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			logger.Error("failed to load catalog", "path", cfg.CatalogPath, "error", err)
			os.Exit(1)
		}
	}
	units := normalize.DefaultUnitTable()
	if cfg.UnitTablePath != "" {
		if units, err = normalize.LoadUnitTable(cfg.UnitTablePath); err != nil {
			logger.Error("failed to load unit table", "path", cfg.UnitTablePath, "error", err)
			os.Exit(1)
		}
	}

	router := source.NewRouter(cat, metrics, logger)
	router.Register(domain.SourceMICAPS,
		micaps.NewClient(cfg.MICAPSURL, cfg.SourceTimeout, cfg.SourceRateLimit, cat, logger))
	// Station charts are feature-flagged via CIMISS_USER / CIMISS_PASSWORD.
	if cfg.CIMISSEnabled() {
		router.Register(domain.SourceCIMISS,
			cimiss.NewClient(cfg.CIMISSURL, cfg.CIMISSUser, cfg.CIMISSPassword, cfg.SourceTimeout, cfg.SourceRateLimit, cat, logger))
		logger.Info("cimiss station queries enabled")
	} else {
		logger.Info("cimiss station queries disabled")
	}

	runner := recipe.NewRunner(router, normalize.New(units, cat), compose.New(), logger)
	logger.Info("chart recipes loaded", "recipes", runner.Recipes(), "sources", router.Sources())

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(runner, metrics, logger, cfg.SourceMaxAttempts)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize, cfg.ChartWorkers)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, runner, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

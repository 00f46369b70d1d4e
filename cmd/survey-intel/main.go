package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/facilityiq/survey-intel/internal/api"
	"github.com/facilityiq/survey-intel/internal/cache"
	"github.com/facilityiq/survey-intel/internal/config"
	"github.com/facilityiq/survey-intel/internal/engine"
	"github.com/facilityiq/survey-intel/internal/metrics"
	"github.com/facilityiq/survey-intel/internal/repo"
	"github.com/facilityiq/survey-intel/internal/services"
	"github.com/facilityiq/survey-intel/internal/utils"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.JSON)
	slog.SetDefault(logger)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		surveys       engine.SurveyStore
		citations     engine.CitationStore
		relationships engine.RelationshipStore
	)

	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := repo.NewPostgresPool(ctx, cfg.Storage.DSN, cfg.Storage.ConnTimeout)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to ensure database schema", "error", err)
			os.Exit(1)
		}
		records := repo.NewPostgresRecordStore(pool)
		surveys = records
		citations = records
		relationships = repo.NewPostgresRelationshipStore(pool)
		logger.Info("storage initialised", "driver", "postgres")
	case "memory":
		records := repo.NewMemoryRecordStore()
		surveys = records
		citations = records
		relationships = repo.NewMemoryRelationshipStore()
		logger.Warn("using in-memory storage, data will not persist")
	default:
		logger.Error("unknown storage driver", "driver", cfg.Storage.Driver)
		os.Exit(1)
	}

	var provider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		provider = cache.NewMemoryProvider()
	}
	defer provider.Close()

	factors, err := engine.LoadFactorTable(cfg.Forecast.FactorsPath, logger)
	if err != nil {
		logger.Error("failed to load factor table", "error", err)
		os.Exit(1)
	}

	miner := engine.NewMiner(logger, surveys, relationships)
	lifecycle := engine.NewLifecycleManager(logger, surveys, relationships)
	forecast := engine.NewForecastModel(logger, surveys, relationships, factors, provider, cfg.Forecast.StateAvgTTL)
	riskProfile := engine.NewRiskProfileAggregator(logger, surveys, citations)

	svc := services.New(logger, miner, lifecycle, forecast, riskProfile, surveys, relationships)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(svc, logger, cfg.Server.AllowedOrigins)
	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	go func() {
		logger.Info("http server listening", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsekit/pulse-tuner/internal/api"
	"github.com/pulsekit/pulse-tuner/internal/cache"
	"github.com/pulsekit/pulse-tuner/internal/config"
	"github.com/pulsekit/pulse-tuner/internal/engine"
	"github.com/pulsekit/pulse-tuner/internal/metrics"
	"github.com/pulsekit/pulse-tuner/internal/repo"
	"github.com/pulsekit/pulse-tuner/internal/services"
	"github.com/pulsekit/pulse-tuner/internal/tuning"
	"github.com/pulsekit/pulse-tuner/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting pulse-tuner", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	var paramStore tuning.ParameterStore = tuning.NewMemoryStore()
	if cacheProvider != nil {
		paramStore = tuning.NewCachedStore(logger, paramStore, cacheProvider, cfg.Cache.ParameterTTL)
	}

	svc := services.NewAnalyticsService(logger, services.Options{
		Engine:       engineOptions(cfg.Engine),
		AutoGenerate: cfg.Tuning.AutoGenerate,
	}, paramStore)

	server, err := api.NewServer(cfg.Server)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start analytics service", slog.Any("error", err))
		stop()
	}

	if cfg.Feed.BaseURL != "" {
		feed := repo.NewFeedClient(cfg.Feed.BaseURL, cfg.Feed.EventsPath, cfg.Feed.Timeout, cacheProvider, 0)
		collector := services.NewCollector(logger, feed, svc, cfg.Feed.PollInterval, cfg.Feed.BatchLimit)
		go collector.Run(ctx)
		logger.Info("telemetry feed poller started",
			slog.String("url", cfg.Feed.BaseURL),
			slog.Duration("interval", cfg.Feed.PollInterval),
		)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	svc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("pulse-tuner stopped")
}

func engineOptions(cfg config.EngineConfig) engine.Options {
	return engine.Options{
		BufferCap:             cfg.BufferCap,
		SpikeBufferCap:        cfg.SpikeBufferCap,
		SpikeImpactThreshold:  cfg.SpikeImpactThreshold,
		DensityAlertThreshold: cfg.DensityAlertThreshold,
		AnalysisWindow:        cfg.AnalysisWindow,
		HistoryCap:            cfg.HistoryCap,
		AlertCap:              cfg.AlertCap,
		InsightCap:            cfg.InsightCap,
		BaseCost:              cfg.BaseCost,
	}
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-spiro/internal/api"
	"github.com/miradorstack/mirador-spiro/internal/cache"
	"github.com/miradorstack/mirador-spiro/internal/config"
	"github.com/miradorstack/mirador-spiro/internal/engine"
	"github.com/miradorstack/mirador-spiro/internal/metrics"
	"github.com/miradorstack/mirador-spiro/internal/services"
	"github.com/miradorstack/mirador-spiro/internal/utils"
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
	logger.Info("starting mirador-spiro",
		slog.String("grpc_address", cfg.Server.Address),
		slog.String("http_address", cfg.Server.HTTPAddress),
		slog.String("time_unit", string(cfg.TimeUnit())),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
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
			logger.Warn("result cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = cache.NewBreakerProvider(provider, cache.BreakerConfig{
				Failures: uint32(cfg.Cache.BreakerFailures),
				Cooldown: cfg.Cache.BreakerCooldown,
			}, logger)
		}
	}
	defer cacheProvider.Close()

	ruleEngine, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load rule pack", slog.String("path", cfg.Rules.Path), slog.Any("error", err))
		os.Exit(1)
	}
	if ruleEngine == nil {
		logger.Warn("no rule pack loaded, using default recommendations", slog.String("path", cfg.Rules.Path))
	}

	pipeline := engine.NewPipeline(logger, ruleEngine, cacheProvider, engine.PipelineOptions{
		DefaultTimeUnit: cfg.TimeUnit(),
		MaxSamples:      cfg.Analysis.MaxSamples,
		CacheTTL:        cfg.Cache.ResultTTL,
	})
	analysisService := services.NewAnalysisService(logger, pipeline)

	server, err := api.NewServer(cfg.Server, analysisService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var httpServer *api.HTTPServer
	if cfg.Server.HTTPAddress != "" {
		httpServer = api.NewHTTPServer(cfg.Server, analysisService, prometheus.DefaultGatherer, logger)
		go func() {
			logger.Info("http server listening", slog.String("address", cfg.Server.HTTPAddress))
			if err := httpServer.Start(); err != nil {
				logger.Error("http server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("gRPC server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", slog.Any("error", err))
		}
	}

	logger.Info("mirador-spiro stopped", slog.Duration("p95_latency", analysisService.LatencyP95()))
}

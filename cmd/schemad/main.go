package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robso86/jsonschema-mapper/internal/api"
	"github.com/robso86/jsonschema-mapper/internal/events"
	"github.com/robso86/jsonschema-mapper/internal/manager"
	"github.com/robso86/jsonschema-mapper/internal/metaschema"
	"github.com/robso86/jsonschema-mapper/internal/source"
	"github.com/robso86/jsonschema-mapper/pkg/config"
	"github.com/robso86/jsonschema-mapper/pkg/health"
	"github.com/robso86/jsonschema-mapper/pkg/kafka"
	"github.com/robso86/jsonschema-mapper/pkg/logger"
	"github.com/robso86/jsonschema-mapper/pkg/metrics"
	"github.com/robso86/jsonschema-mapper/pkg/middleware"
	"github.com/robso86/jsonschema-mapper/pkg/postgres"
	pkgredis "github.com/robso86/jsonschema-mapper/pkg/redis"
	"github.com/robso86/jsonschema-mapper/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and SM_* env vars apply without one)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting schema service", "port", cfg.Server.Port, "strict", cfg.Import.Strict)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mt := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	readers := source.NewMux()
	readers.Handle(source.NewFileReader(cfg.Sources.BaseDir, cfg.Sources.MaxBodyBytes), "file")
	readers.Handle(source.NewHTTPReader(source.HTTPOptions{
		Timeout:  cfg.Sources.HTTPTimeout,
		MaxBytes: cfg.Sources.MaxBodyBytes,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Sources.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Sources.Breaker.ResetTimeout,
			OnStateChange: func(name string, _, to resilience.State) {
				mt.BreakerState.WithLabelValues(name).Set(float64(to))
			},
		},
		Retry: resilience.RetryConfig{MaxAttempts: cfg.Sources.HTTPRetries},
	}), "http", "https")

	var pg *postgres.Client
	if cfg.Postgres.Host != "" {
		var err error
		pg, err = resilience.Retry(ctx, "postgres connect", resilience.RetryConfig{MaxAttempts: 5}, func(context.Context) (*postgres.Client, error) {
			return postgres.New(cfg.Postgres)
		})
		if err != nil {
			slog.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare registry table", "error", err)
			os.Exit(1)
		}
		readers.Handle(source.NewPostgresReader(pg), "pg")
		slog.Info("schema registry enabled", "table", pg.Table())
	}

	var (
		reader      source.Reader = readers
		docCache    *source.CachedReader
		redisClient *pkgredis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, document caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			docCache = source.NewCachedReader(readers, redisClient, cfg.Redis.CacheTTL)
			reader = docCache
			slog.Info("document cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	opts := []manager.Option{
		manager.WithCache(manager.NewMemoryCache(cfg.Import.CacheTTL)),
		manager.WithMetrics(mt),
		manager.WithResolveTimeout(cfg.Import.ResolveTimeout),
		manager.WithReadTimeout(cfg.Import.ReadTimeout),
	}
	if cfg.Import.Strict {
		opts = append(opts, manager.WithPreflight(metaschema.MustNew().Check))
	}

	var (
		producer *kafka.Producer
		consumer *kafka.Consumer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ImportCompleted)
		defer producer.Close()
		collector := events.NewCollector(producer, events.CollectorOptions{
			BatchSize:     cfg.Kafka.Events.BatchSize,
			FlushInterval: cfg.Kafka.Events.FlushInterval,
			IncludeModel:  cfg.Kafka.Events.IncludeModel,
			Metrics:       mt,
		})
		collector.Start(ctx)
		defer collector.Close()
		opts = append(opts, manager.WithListener(collector))
		slog.Info("import events enabled", "topic", cfg.Kafka.Topics.ImportCompleted)
	}

	mgr := manager.New(reader, opts...)

	if len(cfg.Kafka.Brokers) > 0 {
		consumer = kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ImportRequests, events.RequestHandler(mgr))
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("import request consumer error", "error", err)
			}
		}()
		slog.Info("import requests enabled", "topic", cfg.Kafka.Topics.ImportRequests)
	}

	checker := health.NewChecker()
	checker.Register("import_cache", func(ctx context.Context) health.ComponentHealth {
		st := mgr.Stats()
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d imports cached", st.Cached)}
	})
	if pg != nil {
		checker.Register("postgres", health.PingCheck(pg.Ping, false))
	}
	if cfg.Redis.Addr != "" {
		var ping func(context.Context) error
		if redisClient != nil {
			ping = redisClient.Ping
		}
		checker.Register("redis", health.PingCheck(ping, true))
	}
	if producer != nil {
		checker.Register("kafka", health.PingCheck(producer.Ping, true))
	}

	var docs api.DocumentCache
	if docCache != nil {
		docs = docCache
	}
	h := api.New(mgr, docs, cfg.Sources.MaxBodyBytes)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.TolerantReadyHandler())

	var limiter *middleware.Limiter
	if cfg.Server.WriteRateLimit > 0 {
		limiter = middleware.NewLimiter(ctx, cfg.Server.WriteRateLimit, time.Minute)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.WriteRateLimit(limiter)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	chain = middleware.RequestID(chain)
	chain = middleware.Metrics(mt)(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("schema service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("schema service stopped", "imports", mgr.Stats().Cached)
}

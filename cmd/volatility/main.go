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

	"github.com/rankpulse/rankpulse/internal/serp/cache"
	"github.com/rankpulse/rankpulse/internal/serp/handler"
	"github.com/rankpulse/rankpulse/internal/serp/notify"
	"github.com/rankpulse/rankpulse/internal/store"
	"github.com/rankpulse/rankpulse/pkg/config"
	"github.com/rankpulse/rankpulse/pkg/health"
	"github.com/rankpulse/rankpulse/pkg/kafka"
	"github.com/rankpulse/rankpulse/pkg/logger"
	"github.com/rankpulse/rankpulse/pkg/metrics"
	"github.com/rankpulse/rankpulse/pkg/middleware"
	"github.com/rankpulse/rankpulse/pkg/postgres"
	pkgredis "github.com/rankpulse/rankpulse/pkg/redis"
	"github.com/rankpulse/rankpulse/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting volatility service", "port", cfg.Server.Port)

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
		slog.Info("metrics server started", "port", cfg.Metrics.Port)
	}

	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgClient.Close()
	slog.Info("postgres connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)

	serpStore := store.New(pgClient)

	var summaryCache *cache.SummaryCache
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, summary caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		summaryCache = cache.New(redisClient, cfg.Redis)
		slog.Info("summary cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	alertProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AlertEvents)
	defer alertProducer.Close()
	publisher := notify.New(alertProducer, cfg.Volatility.AlertEventBufferSize)
	publisher.Start(ctx)
	defer publisher.Close()
	slog.Info("alert publisher started", "topic", cfg.Kafka.Topics.AlertEvents)

	// Snapshot-captured events from the ingestion side drop the project's
	// cached summaries so the next read recomputes over fresh data.
	if summaryCache != nil {
		invalidator := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SnapshotCaptured,
			func(ctx context.Context, key, value []byte) error {
				event, err := kafka.DecodeJSON[struct {
					ProjectID string `json:"project_id"`
				}](value)
				if err != nil {
					return err
				}
				if event.ProjectID == "" {
					return nil
				}
				return resilience.WithTimeout(ctx, 5*time.Second, "invalidate-project-cache",
					func(ctx context.Context) error {
						return summaryCache.InvalidateProject(ctx, event.ProjectID)
					})
			},
		)
		go func() {
			if err := invalidator.Start(ctx); err != nil {
				slog.Error("snapshot consumer error", "error", err)
			}
		}()
		slog.Info("cache invalidation consumer started", "topic", cfg.Kafka.Topics.SnapshotCaptured)
	}

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pgClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := handler.New(serpStore, summaryCache, publisher, m)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

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
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("volatility service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("volatility service stopped")
}

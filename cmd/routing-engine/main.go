// cmd/routing-engine/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"crisis-routing/internal/common/config"
	"crisis-routing/internal/common/database"
	"crisis-routing/internal/common/logger"
	"crisis-routing/internal/common/observability"
	"crisis-routing/internal/notify"
	"crisis-routing/internal/routing/audit"
	"crisis-routing/internal/routing/blackout"
	"crisis-routing/internal/routing/childctx"
	"crisis-routing/internal/routing/delivery"
	"crisis-routing/internal/routing/encryption"
	"crisis-routing/internal/routing/orchestrator"
	"crisis-routing/internal/routing/store"
	"crisis-routing/internal/server"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting routing engine...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	tracing, err := observability.NewTracing(cfg.App.Name, cfg.App.JaegerEndpoint)
	if err != nil {
		zapLog.Fatal("tracing init failed", zap.Error(err))
	}
	defer tracing.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Wire routing components ---
	records := store.NewPostgresRecordStore(pg.DB)
	partners := store.NewCachedPartnerStore(
		store.NewPostgresPartnerStore(pg.DB),
		redis.Client,
		time.Duration(cfg.Routing.RegistryCacheTTL)*time.Second,
	)
	blackouts := store.NewRedisBlackoutStore(redis.Client)
	children := childctx.NewTimeoutProvider(
		childctx.NewPostgresProvider(pg.DB),
		cfg.Routing.ChildContextTimeoutDuration(),
	)
	auditSink := audit.NewElasticsearchSink(esClient.Client, cfg.Database.Elasticsearch.AuditIndex)

	deliverer := delivery.NewClient(delivery.Config{
		InstanceID:     cfg.Routing.InstanceID,
		AttemptTimeout: cfg.Routing.DeliveryTimeoutDuration(),
		MaxAttempts:    cfg.Routing.MaxDeliveryAttempts,
		BackoffBase:    cfg.Routing.BackoffBaseDuration(),
	}, log)

	orch := orchestrator.New(
		records,
		partners,
		children,
		encryption.NewService(),
		deliverer,
		blackout.NewManager(blackouts, log),
		auditSink,
		log,
	)

	gate, err := notify.NewGate(cfg.Notifications, blackouts, log)
	if err != nil {
		zapLog.Fatal("notification gate init failed", zap.Error(err))
	}

	handler := server.NewHandler(orch, gate, log)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      tracing.Middleware(handler.Router()),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Millisecond,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Millisecond)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Routing engine stopped")
}

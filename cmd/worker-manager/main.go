// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"gritsync/internal/api"
	awsclients "gritsync/internal/common/aws"
	"gritsync/internal/common/camunda"
	"gritsync/internal/common/config"
	"gritsync/internal/common/database"
	"gritsync/internal/common/logger"
	"gritsync/internal/common/observability"
	"gritsync/internal/common/payments"
	"gritsync/internal/common/secrets"
	"gritsync/internal/feed"
	"gritsync/internal/store"
)

var connectRetry = &camunda.RetryConfig{
	MaxRetries: 15,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

	// --- Zeebe ---
	zeebeClient, err := camunda.Connect(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
	}, nil, zapLog)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = camunda.RetryWithBackoff(ctx, connectRetry, zapLog, "PostgreSQL connection", func() error {
		c, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return err
		}
		pg = c
		return nil
	})
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Elasticsearch ---
	var es *database.ElasticsearchClient
	err = camunda.RetryWithBackoff(ctx, connectRetry, zapLog, "Elasticsearch connection", func() error {
		c, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		if err := c.Ping(); err != nil {
			return err
		}
		es = c
		return nil
	})
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	if err := es.EnsureIndex(ctx, cfg.Database.Elasticsearch.ProgressIndex, database.ProgressIndexMapping); err != nil {
		zapLog.Fatal("progress index setup failed", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully",
		zap.String("index", cfg.Database.Elasticsearch.ProgressIndex))

	// --- Redis ---
	var rdb *database.RedisClient
	err = camunda.RetryWithBackoff(ctx, connectRetry, zapLog, "Redis connection", func() error {
		c, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return err
		}
		rdb = c
		return nil
	})
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- External service clients ---
	s3Client, err := awsclients.NewS3Client(ctx, awsclients.S3Options{
		Region:       cfg.Storage.S3.Region,
		Bucket:       cfg.Storage.S3.Bucket,
		Endpoint:     cfg.Storage.S3.Endpoint,
		UsePathStyle: cfg.Storage.S3.UsePathStyle,
	})
	if err != nil {
		zapLog.Fatal("s3 client init failed", zap.Error(err))
	}
	sesClient, err := awsclients.NewSESClient(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		zapLog.Fatal("ses client init failed", zap.Error(err))
	}
	snsClient, err := awsclients.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		zapLog.Fatal("sns client init failed", zap.Error(err))
	}

	var sealer *secrets.Sealer
	if cfg.Security.CredentialKey != "" {
		if sealer, err = secrets.NewSealer(cfg.Security.CredentialKey); err != nil {
			zapLog.Fatal("credential key invalid", zap.Error(err))
		}
	} else {
		zapLog.Warn("security.credential_key not set, processing account workers stay disabled")
	}

	zapLog.Info("All external service clients initialized")

	records := store.New(pg.DB)
	deps := &workerDeps{
		cfg:       cfg,
		log:       log,
		zapLog:    zapLog,
		obs:       obs,
		store:     records,
		publisher: feed.NewPublisher(rdb.Client, cfg.Database.Redis.ChannelPrefix, log),
		es:        es.Client,
		redis:     rdb.Client,
		s3:        s3Client,
		ses:       sesClient,
		sns:       snsClient,
		payments:  payments.NewClient(cfg.Payments.BaseURL, cfg.Payments.SecretKey, config.GetDuration(cfg.Payments.Timeout)),
		sealer:    sealer,
	}
	workers := registerWorkers(zeebeClient, deps)
	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Health, metrics and progress server ---
	srv := api.New(api.Options{
		Reader:     records,
		Subscriber: feed.NewSubscriber(rdb.Client, cfg.Database.Redis.ChannelPrefix, log),
		Heartbeat:  config.GetDuration(cfg.HTTP.StreamHeartbeat),
		Logger:     log,
		Checks: []api.Check{
			{Name: "postgres", Ping: pg.Ping},
			{Name: "redis", Ping: rdb.Ping},
			{Name: "elasticsearch", Ping: func(context.Context) error { return es.Ping() }},
			{Name: "zeebe", Ping: func(ctx context.Context) error {
				return camunda.HealthCheck(ctx, zeebeClient, 2*time.Second)
			}},
		},
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: config.GetDuration(cfg.HTTP.ReadHeaderTimeout),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	closeWorkers(workers)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing telemetry", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func closeWorkers(workers []worker.JobWorker) {
	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
}

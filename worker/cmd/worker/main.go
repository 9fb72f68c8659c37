package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fileIngestor/cache"
	"fileIngestor/queue"
	"fileIngestor/repository"
	"fileIngestor/worker/config"
	"fileIngestor/worker/lifecycle"
	"fileIngestor/worker/pool"
	"fileIngestor/worker/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("Worker exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Worker Service starting",
		zap.String("store", cfg.StoreBackend),
		zap.String("queue", cfg.QueueBackend),
		zap.Int("workers", cfg.WorkerCount),
	)

	repo, err := repository.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer repo.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisAddr, cache.PoolSizeFor(cfg.WorkerCount))
	if err != nil {
		return err
	}
	defer redisClient.Close()

	consumer, err := openConsumer(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	machine := lifecycle.NewMachine(repo, logger,
		lifecycle.WithPublisher(cache.NewStatusCache(redisClient, cfg.StatusTTL)),
		lifecycle.WithRetryPolicy(lifecycle.RetryPolicy{
			Attempts: cfg.RetryAttempts,
			Base:     cfg.RetryBase,
			Max:      5 * time.Second,
		}),
	)
	processor := service.NewProcessor(machine, logger)
	workers := pool.NewWorkerPool(cfg.WorkerCount, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	srv := &http.Server{Addr: ":" + cfg.HealthPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		workers.Run(gctx, consumer, pool.Tracing(processor.Process))
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Worker Service shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openConsumer(ctx context.Context, cfg *config.Config, client *redis.Client, logger *zap.Logger) (queue.Consumer, error) {
	switch cfg.QueueBackend {
	case "kafka":
		return queue.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic, logger)
	case "redis":
		q := queue.NewRedisQueue(client, cfg.RedisQueue, logger)
		moved, err := q.Recover(ctx)
		if err != nil {
			return nil, err
		}
		if moved > 0 {
			logger.Info("Requeued tasks left in processing", zap.Int("count", moved))
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

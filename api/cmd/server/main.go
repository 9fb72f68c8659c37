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

	"fileIngestor/api/config"
	"fileIngestor/api/handlers"
	"fileIngestor/api/middleware"
	"fileIngestor/api/service"
	"fileIngestor/cache"
	"fileIngestor/queue"
	"fileIngestor/repository"
)

func main() {
	logger, _ := zap.NewProduction()
	if os.Getenv("ENV") == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("API Service exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("API Service starting",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("store", cfg.StoreBackend),
		zap.String("queue", cfg.QueueBackend),
	)

	repo, err := repository.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer repo.Close()

	redisClient, err := cache.Connect(ctx, cfg.RedisAddr, cache.PoolSizeFor(0))
	if err != nil {
		return err
	}
	defer redisClient.Close()

	producer, err := openProducer(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer producer.Close()

	files := service.NewFileService(repo, cache.NewStatusCache(redisClient, cfg.StatusTTL), producer, logger)
	handler := handlers.NewFileHandler(files, logger, cfg.MaxFileSize)

	mux := http.NewServeMux()
	handler.Routes(mux)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: middleware.Chain(mux,
			middleware.TraceID,
			middleware.Logging(logger),
			middleware.Recovery(logger),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server started", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("API Service shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openProducer(cfg *config.Config, client *redis.Client, logger *zap.Logger) (queue.Producer, error) {
	switch cfg.QueueBackend {
	case "kafka":
		return queue.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.MaxFileSize)
	case "redis":
		return queue.NewRedisQueue(client, cfg.RedisQueue, logger), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tariffwise/tariffwise/pkg/api"
	"github.com/tariffwise/tariffwise/pkg/blob"
	"github.com/tariffwise/tariffwise/pkg/logging"
	"github.com/tariffwise/tariffwise/pkg/pipeline"
	"github.com/tariffwise/tariffwise/pkg/plan"
	"github.com/tariffwise/tariffwise/pkg/recommend"
	"github.com/tariffwise/tariffwise/pkg/registry"
	"github.com/tariffwise/tariffwise/pkg/store"
	redislease "github.com/tariffwise/tariffwise/pkg/store/redis"
)

// modelName is the single model family tariffd trains and serves.
const modelName = "plan-recommender"

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "tariffd: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "tariffd: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("daemon failed", zap.Error(err))
	}
}

func run(cfg Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := plan.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load plan catalog: %w", err)
	}
	logger.Info("loaded plan catalog",
		zap.String("path", cfg.CatalogPath),
		zap.Int("plans", len(catalog.Plans())))

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}
	defer st.Close()
	logger.Info("store initialized", zap.String("path", cfg.DBPath))

	blobStore, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	reg := registry.New(blobStore, modelName)

	leases, err := newLeaseStore(cfg, st, logger)
	if err != nil {
		return err
	}

	pipe := pipeline.New(st, leases, catalog, reg, pipeline.Config{
		WindowDays:      cfg.WindowDays,
		MinCustomers:    cfg.MinCustomers,
		Seed:            cfg.TrainingSeed,
		RetrainInterval: cfg.RetrainInterval,
	}, logger.Named("pipeline"))

	svc := recommend.NewService(catalog, reg, recommend.Config{
		RefreshInterval:  cfg.RefreshInterval,
		InferenceTimeout: cfg.InferenceTimeout,
	}, logger.Named("recommend"))

	server := api.NewServer(st, svc, pipe, reg, cfg.WindowDays, cfg.Addr, logger.Named("api"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		svc.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		pipe.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-serverErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("api server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop api server", zap.Error(err))
	}
	wg.Wait()

	logger.Info("shutdown complete")
	return nil
}

func newBlobStore(ctx context.Context, cfg Config, logger *zap.Logger) (blob.BlobStore, error) {
	if cfg.S3Endpoint != "" {
		s3Store, err := blob.NewS3BlobStore(ctx, blob.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init s3 blob store: %w", err)
		}
		logger.Info("using s3 blob store",
			zap.String("endpoint", cfg.S3Endpoint),
			zap.String("bucket", cfg.S3Bucket))
		return s3Store, nil
	}
	logger.Info("using local blob store", zap.String("root", cfg.BlobDir))
	return blob.NewLocalBlobStore(cfg.BlobDir), nil
}

func newLeaseStore(cfg Config, st *store.Store, logger *zap.Logger) (store.LeaseStore, error) {
	if cfg.RedisAddr == "" {
		return st, nil
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	logger.Info("using redis lease store", zap.String("addr", cfg.RedisAddr))
	return redislease.NewLeaseStore(client), nil
}

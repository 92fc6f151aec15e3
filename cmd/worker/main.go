// Command worker drains the reconcile queue, writing ledger records for
// mints whose original write failed.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/rwavault/internal/config"
	"github.com/dharsanguruparan/rwavault/internal/ledger"
	"github.com/dharsanguruparan/rwavault/internal/logging"
	"github.com/dharsanguruparan/rwavault/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.ValidateQueue(); err != nil {
		return err
	}
	l, closeLedger, err := ledger.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger.Named("asynq").Sugar(),
	})
	processor := worker.NewProcessor(l, logger)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	logger.Info("reconcile worker started", zap.String("redis", cfg.RedisAddr), zap.Int("concurrency", cfg.WorkerConcurrency))
	return server.Run(processor.Handler())
}

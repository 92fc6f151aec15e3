// Command api serves the tokenization endpoints and, when a staking contract
// is configured, runs the stake monitor in the same process.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/rwavault/internal/api"
	"github.com/dharsanguruparan/rwavault/internal/archive"
	"github.com/dharsanguruparan/rwavault/internal/chain"
	"github.com/dharsanguruparan/rwavault/internal/config"
	"github.com/dharsanguruparan/rwavault/internal/ledger"
	"github.com/dharsanguruparan/rwavault/internal/logging"
	"github.com/dharsanguruparan/rwavault/internal/metrics"
	"github.com/dharsanguruparan/rwavault/internal/monitor"
	"github.com/dharsanguruparan/rwavault/internal/queue"
	"github.com/dharsanguruparan/rwavault/internal/tokenize"
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
		logger.Error("api stopped", zap.Error(err))
		os.Exit(1)
	}
}

// signer is the chain surface used by both the tokenize service and the
// stake monitor. They share one instance so every transaction sent with the
// custodial key draws from one nonce sequence.
type signer interface {
	tokenize.Minter
	monitor.Staker
	monitor.HeadSource
	monitor.HeaderSource
	Address() common.Address
}

var _ signer = (*chain.Client)(nil)

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.ValidateSigner(); err != nil {
		return err
	}
	if cfg.StakingEnabled() {
		if err := cfg.ValidateStaking(); err != nil {
			return err
		}
	}

	client, err := chain.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	custodian := client.Address()
	if cfg.CustodianAddress != "" {
		if !common.IsHexAddress(cfg.CustodianAddress) {
			return &config.Error{Field: "CUSTODIAN_ADDRESS", Reason: "not a hex address"}
		}
		custodian = common.HexToAddress(cfg.CustodianAddress)
	}

	l, closeLedger, err := ledger.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLedger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := tokenize.Options{
		Custodian:       custodian,
		MetadataScheme:  cfg.MetadataScheme,
		DuplicatePolicy: cfg.DuplicatePolicy,
		MintTimeout:     cfg.ReceiptTimeout,
		Metrics:         metrics.NewTokenize(reg),
		Logger:          logger,
	}

	var presigner api.Presigner
	if cfg.ArchiveEnabled() {
		store, err := archive.New(cfg)
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return err
		}
		opts.Archive = store
		presigner = store
	}

	if cfg.QueueEnabled() {
		q := queue.NewClient(asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}))
		defer q.Close()
		opts.Reconciler = q
	} else {
		logger.Warn("reconcile queue disabled; orphaned mints are only logged")
	}

	svc := tokenize.New(client, l, opts)
	stake, err := newMonitor(cfg, client, reg, logger)
	if err != nil {
		return err
	}
	logger.Info("tokenize service ready",
		zap.String("signer", client.Address().Hex()),
		zap.String("custodian", custodian.Hex()),
		zap.String("ledger", cfg.LedgerDriver),
		zap.String("duplicatePolicy", cfg.DuplicatePolicy),
		zap.Bool("archive", cfg.ArchiveEnabled()),
		zap.Bool("stakeMonitor", stake != nil),
	)

	runners := []func(context.Context) error{api.New(cfg, svc, presigner, reg, logger).Run}
	if stake != nil {
		runners = append(runners, stake.Run)
	}
	return serve(ctx, runners...)
}

// newMonitor builds the stake monitor over the process's signer. It returns
// nil when no staking contract is configured.
func newMonitor(cfg *config.Config, client signer, reg prometheus.Registerer, logger *zap.Logger) (*monitor.Monitor, error) {
	if !cfg.StakingEnabled() {
		return nil, nil
	}
	wallet := client.Address()
	if cfg.StakeWallet != "" {
		if !common.IsHexAddress(cfg.StakeWallet) {
			return nil, &config.Error{Field: "STAKE_WALLET", Reason: "not a hex address"}
		}
		wallet = common.HexToAddress(cfg.StakeWallet)
	}

	var feed monitor.Feed
	if cfg.BlockPollInterval > 0 {
		feed = monitor.NewPollFeed(client, cfg.BlockPollInterval, logger)
	} else {
		feed = monitor.NewHeadFeed(client, 30*time.Second, logger)
	}
	return monitor.New(feed, client, monitor.Options{
		Wallet:       wallet,
		StakeTimeout: cfg.StakeTimeout,
		Metrics:      metrics.NewStake(reg),
		Logger:       logger,
	}), nil
}

// serve runs every runner until ctx is done or one of them returns, then
// cancels the rest and waits for all of them. The monitor's in-flight stake
// therefore finishes before the chain client is closed.
func serve(ctx context.Context, runners ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, len(runners))
	for _, run := range runners {
		go func(run func(context.Context) error) {
			err := run(ctx)
			cancel()
			errc <- err
		}(run)
	}
	var first error
	for range runners {
		if err := <-errc; err != nil && first == nil {
			first = err
		}
	}
	return first
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blockscan/internal/chain"
	"blockscan/internal/config"
	"blockscan/internal/indexer"
	"blockscan/internal/storage/postgres"
	"blockscan/internal/storage/redis"
)

func runSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSync(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.RPCURLs) == 0 {
		return fmt.Errorf("at least one rpc url is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("redis url is required")
	}
	if cfg.BatchSize <= 0 || cfg.Workers <= 0 {
		return fmt.Errorf("batch size and workers must be greater than zero")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources := make([]indexer.BlockSource, 0, len(cfg.RPCURLs))
	for _, rpcURL := range cfg.RPCURLs {
		client, err := chain.NewClient(ctx, rpcURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer client.Close()
		sources = append(sources, client)
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	set, err := redis.NewIndexedSet(ctx, cfg.RedisURL, cfg.Chain)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer set.Close()

	if cfg.Reset {
		if err := set.Clear(ctx); err != nil {
			return fmt.Errorf("reset indexed set: %w", err)
		}
		logger.Info("indexed set cleared, full resync forced")
	}

	if err := seedIndexedSet(ctx, store, set); err != nil {
		return fmt.Errorf("seed indexed set: %w", err)
	}

	scheduler := indexer.NewScheduler(indexer.SchedulerConfig{
		Chain:        cfg.Chain,
		StartBlock:   cfg.StartBlock,
		BatchSize:    cfg.BatchSize,
		Workers:      cfg.Workers,
		BulkReceipts: cfg.BlockReceipts,
	}, sources, store, set, logger)

	logger.Info("sync start",
		zap.Strings("rpc", cfg.RPCURLs),
		zap.String("chain", cfg.Chain),
		zap.Int64("start_block", cfg.StartBlock),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("workers", cfg.Workers),
		zap.Bool("block_receipts", cfg.BlockReceipts),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Duration("poll_interval", cfg.PollInterval),
	)

	for {
		if err := scheduler.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("backfill pass failed", zap.Error(err))
		}

		timer := time.NewTimer(cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// seedIndexedSet unions the durably stored block numbers into the
// redis set, so membership survives cache loss without re-fetching.
func seedIndexedSet(ctx context.Context, store *postgres.Store, set *redis.IndexedSet) error {
	numbers, err := store.IndexedBlockNumbers(ctx)
	if err != nil {
		return err
	}

	const seedChunk = 10000
	for start := 0; start < len(numbers); start += seedChunk {
		end := start + seedChunk
		if end > len(numbers) {
			end = len(numbers)
		}
		if err := set.Add(ctx, numbers[start:end]...); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"blockscan/internal/chain"
	"blockscan/internal/config"
	"blockscan/internal/indexer"
	"blockscan/internal/storage/postgres"
	"blockscan/internal/storage/redis"
)

func runTail(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadTail(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if cfg.RedisURL == "" {
		return fmt.Errorf("redis url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

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

	assembler := indexer.NewAssembler(client, cfg.BlockReceipts, logger)
	subscriber := indexer.NewHeadSubscriber(client, assembler, store, set, cfg.Chain, cfg.ReconnectDelay, logger)

	logger.Info("tail start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain", cfg.Chain),
		zap.Bool("block_receipts", cfg.BlockReceipts),
		zap.Duration("reconnect_delay", cfg.ReconnectDelay),
	)

	if err := subscriber.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

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

	"blockscan/internal/config"
	"blockscan/internal/erc20"
	"blockscan/internal/storage/postgres"
)

func runParse(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadParse(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	parser := erc20.NewParser(store, cfg.PageSize, logger)

	logger.Info("parse start",
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("page_size", cfg.PageSize),
		zap.Duration("interval", cfg.Interval),
	)

	for {
		attempted, err := parser.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("parse pass failed", zap.Error(err))
		}

		// A full page means more work is likely queued; only idle
		// between passes when the backlog is drained.
		if attempted >= cfg.PageSize {
			continue
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

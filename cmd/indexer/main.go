package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "EVM chain indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Backfill missing blocks until stopped",
		RunE:  runSync,
	}

	syncCmd.Flags().StringSlice("rpc", nil, "RPC URLs, one per provider (comma-separated)")
	syncCmd.Flags().String("chain", "mainnet", "chain name")
	syncCmd.Flags().Int64("start-block", 0, "first block to index")
	syncCmd.Flags().Int("batch-size", 100, "blocks per worker batch")
	syncCmd.Flags().Int("workers", 10, "concurrent batches per provider")
	syncCmd.Flags().Bool("block-receipts", false, "chain supports eth_getBlockReceipts")
	syncCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	syncCmd.Flags().String("redis-url", "redis://127.0.0.1:6379/0", "redis URL for the indexed-block set")
	syncCmd.Flags().Bool("reset", false, "clear the indexed-block set to force a full resync")
	syncCmd.Flags().Duration("poll-interval", time.Minute, "delay between backfill passes")
	syncCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(syncCmd)

	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow new blocks via head subscription",
		RunE:  runTail,
	}

	tailCmd.Flags().String("rpc", "", "websocket RPC URL")
	tailCmd.Flags().String("chain", "mainnet", "chain name")
	tailCmd.Flags().Bool("block-receipts", false, "chain supports eth_getBlockReceipts")
	tailCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	tailCmd.Flags().String("redis-url", "redis://127.0.0.1:6379/0", "redis URL for the indexed-block set")
	tailCmd.Flags().Duration("reconnect-delay", 5*time.Second, "delay before re-subscribing after a drop")
	tailCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(tailCmd)

	parseCmd := &cobra.Command{
		Use:   "parse",
		Short: "Decode stored logs into erc20 transfers",
		RunE:  runParse,
	}

	parseCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	parseCmd.Flags().Int("page-size", 50000, "logs per decode pass")
	parseCmd.Flags().Duration("interval", 30*time.Second, "delay between passes when idle")
	parseCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(parseCmd)

	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Fetch metadata for tokens seen in transfers",
		RunE:  runTokens,
	}

	tokensCmd.Flags().String("rpc", "", "RPC URL")
	tokensCmd.Flags().String("chain", "mainnet", "chain name")
	tokensCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	tokensCmd.Flags().Int("page-size", 100, "token addresses per page")
	tokensCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(tokensCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}

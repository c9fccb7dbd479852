package config

import (
	"time"

	"github.com/spf13/pflag"
)

// TailConfig holds configuration for the head subscriber.
type TailConfig struct {
	RPCURL         string
	Chain          string
	BlockReceipts  bool
	PGDSN          string
	RedisURL       string
	ReconnectDelay time.Duration
	LogLevel       string
}

// LoadTail merges config file, environment variables, and flags into
// TailConfig.
func LoadTail(cfgFile string, flags *pflag.FlagSet) (TailConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"chain":           "mainnet",
		"reconnect-delay": 5 * time.Second,
		"log-level":       "info",
	})
	if err != nil {
		return TailConfig{}, err
	}

	cfg := TailConfig{
		RPCURL:         v.GetString("rpc"),
		Chain:          v.GetString("chain"),
		BlockReceipts:  v.GetBool("block-receipts"),
		PGDSN:          v.GetString("pg-dsn"),
		RedisURL:       v.GetString("redis-url"),
		ReconnectDelay: v.GetDuration("reconnect-delay"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}

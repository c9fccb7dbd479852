package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SyncConfig holds configuration for the backfill driver.
type SyncConfig struct {
	RPCURLs       []string
	Chain         string
	StartBlock    int64
	BatchSize     int
	Workers       int
	BlockReceipts bool
	PGDSN         string
	RedisURL      string
	Reset         bool
	PollInterval  time.Duration
	LogLevel      string
}

// LoadSync merges config file, environment variables, and flags into
// SyncConfig.
func LoadSync(cfgFile string, flags *pflag.FlagSet) (SyncConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"chain":         "mainnet",
		"start-block":   int64(0),
		"batch-size":    100,
		"workers":       10,
		"poll-interval": time.Minute,
		"log-level":     "info",
	})
	if err != nil {
		return SyncConfig{}, err
	}

	cfg := SyncConfig{
		RPCURLs:       getStringSlice(v, "rpc"),
		Chain:         v.GetString("chain"),
		StartBlock:    v.GetInt64("start-block"),
		BatchSize:     v.GetInt("batch-size"),
		Workers:       v.GetInt("workers"),
		BlockReceipts: v.GetBool("block-receipts"),
		PGDSN:         v.GetString("pg-dsn"),
		RedisURL:      v.GetString("redis-url"),
		Reset:         v.GetBool("reset"),
		PollInterval:  v.GetDuration("poll-interval"),
		LogLevel:      v.GetString("log-level"),
	}

	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

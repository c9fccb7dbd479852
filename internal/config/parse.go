package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ParseConfig holds configuration for the transfer parser.
type ParseConfig struct {
	PGDSN    string
	PageSize int
	Interval time.Duration
	LogLevel string
}

// LoadParse merges config file, environment variables, and flags into
// ParseConfig.
func LoadParse(cfgFile string, flags *pflag.FlagSet) (ParseConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"page-size": 50000,
		"interval":  30 * time.Second,
		"log-level": "info",
	})
	if err != nil {
		return ParseConfig{}, err
	}

	cfg := ParseConfig{
		PGDSN:    v.GetString("pg-dsn"),
		PageSize: v.GetInt("page-size"),
		Interval: v.GetDuration("interval"),
		LogLevel: v.GetString("log-level"),
	}

	return cfg, nil
}

package config

import (
	"github.com/spf13/pflag"
)

// TokensConfig holds configuration for token metadata enrichment.
type TokensConfig struct {
	RPCURL   string
	Chain    string
	PGDSN    string
	PageSize int
	LogLevel string
}

// LoadTokens merges config file, environment variables, and flags into
// TokensConfig.
func LoadTokens(cfgFile string, flags *pflag.FlagSet) (TokensConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"chain":     "mainnet",
		"page-size": 100,
		"log-level": "info",
	})
	if err != nil {
		return TokensConfig{}, err
	}

	cfg := TokensConfig{
		RPCURL:   v.GetString("rpc"),
		Chain:    v.GetString("chain"),
		PGDSN:    v.GetString("pg-dsn"),
		PageSize: v.GetInt("page-size"),
		LogLevel: v.GetString("log-level"),
	}

	return cfg, nil
}

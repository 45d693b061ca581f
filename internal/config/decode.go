package config

import (
	"github.com/spf13/pflag"

	"traceScope/internal/dex"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	RPCURL      string
	In          string
	Out         string
	Errors      string
	Tokens      string
	Workers     int
	BatchSize   int
	MetricsAddr string
	LogLevel    string
	Routers     []dex.Router
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":        "./data/actions.jsonl",
		"errors":     "./data/decode_errors.jsonl",
		"tokens":     "./data/tokens.jsonl",
		"workers":    4,
		"batch-size": 500,
		"log-level":  "info",
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	routers, err := loadRouters(v)
	if err != nil {
		return DecodeConfig{}, err
	}

	cfg := DecodeConfig{
		RPCURL:      v.GetString("rpc"),
		In:          v.GetString("in"),
		Out:         v.GetString("out"),
		Errors:      v.GetString("errors"),
		Tokens:      v.GetString("tokens"),
		Workers:     v.GetInt("workers"),
		BatchSize:   v.GetInt("batch-size"),
		MetricsAddr: v.GetString("metrics-addr"),
		LogLevel:    v.GetString("log-level"),
		Routers:     routers,
	}

	return cfg, nil
}

package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"traceScope/internal/dex"
	"traceScope/internal/metrics"
)

func main() {
	root := &cobra.Command{
		Use:          "tracescope",
		Short:        "Uniswap-V2 router trace decoder",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Trace a block range or transactions and decode router actions",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("rpc", "", "RPC URL (must expose debug_trace*)")
	runCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	runCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	runCmd.Flags().StringSlice("tx", nil, "transaction hashes to decode instead of a block range (comma-separated)")
	runCmd.Flags().Uint64("batch-size", 20, "blocks per batch")
	runCmd.Flags().Int("workers", 4, "blocks traced and traces decoded in parallel")
	runCmd.Flags().String("out", "./data/actions.jsonl", "output actions JSONL path")
	runCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL path")
	runCmd.Flags().String("tokens", "./data/tokens.jsonl", "token metadata JSONL path")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN; replaces the JSONL outputs when set")
	runCmd.Flags().Bool("enrich", true, "resolve token metadata via eth_call")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode router actions from recorded call traces",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "optional RPC URL for token metadata")
	decodeCmd.Flags().String("in", "", "input trace records JSONL")
	decodeCmd.Flags().String("out", "./data/actions.jsonl", "output actions JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("tokens", "./data/tokens.jsonl", "token metadata JSONL, written when --rpc is set")
	decodeCmd.Flags().Int("workers", 4, "traces decoded in parallel")
	decodeCmd.Flags().Int("batch-size", 500, "trace records per decode batch")
	decodeCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate decoded actions into pool window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("rpc", "", "RPC URL for reserves and decimals")
	aggregateCmd.Flags().String("in", "", "input actions JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().Bool("skip-partial", false, "ignore actions with structural mismatches")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	selectorsCmd := &cobra.Command{
		Use:   "selectors",
		Short: "Print every recognized router function with its selector",
		RunE:  runSelectors,
	}

	root.AddCommand(selectorsCmd)

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

// newEngine builds the router registry and the decode engine. Engine
// outcomes are counted in the returned metrics.
func newEngine(routers []dex.Router, logger *zap.Logger) (*dex.Engine, *dex.Registry, *metrics.Decoder, error) {
	reg, err := dex.NewRegistry(routers...)
	if err != nil {
		return nil, nil, nil, err
	}
	decoders, err := dex.DefaultDecoders(reg)
	if err != nil {
		return nil, nil, nil, err
	}
	observer := metrics.NewDecoder()
	engine := dex.NewEngine(decoders, dex.WithLogger(logger), dex.WithObserver(observer))
	return engine, reg, observer, nil
}

// serveMetrics starts the metrics listener in the background when addr is
// set.
func serveMetrics(ctx context.Context, observer *metrics.Decoder, addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	go func() {
		if err := observer.Serve(ctx, addr, logger); err != nil {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
}

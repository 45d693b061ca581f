package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"traceScope/internal/chain"
	"traceScope/internal/config"
	"traceScope/internal/dex"
	"traceScope/internal/indexer"
	"traceScope/internal/storage"
	"traceScope/internal/storage/postgres"
)

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
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

	txHashes, err := indexer.ParseTxHashes(cfg.TxHashes)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var storageSink storage.Storage
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		storageSink = store
	} else {
		storageSink = storage.NewJsonlStorage(cfg.Out, cfg.Errors, cfg.Tokens)
	}

	engine, reg, observer, err := newEngine(cfg.Routers, logger)
	if err != nil {
		return err
	}
	serveMetrics(ctx, observer, cfg.MetricsAddr, logger)

	var enricher *dex.Enricher
	if cfg.Enrich {
		enricher = dex.NewEnricher(chainClient, dex.NewTokenMetaCache(), logger)
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		TxHashes:          txHashes,
		BatchSize:         cfg.BatchSize,
		Workers:           cfg.Workers,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, indexer.NewPipeline(engine, reg, logger), storageSink, enricher, logger)

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("tx_hashes", len(txHashes)),
		zap.Int("routers", len(reg.Routers())),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Int("workers", cfg.Workers),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.String("out", cfg.Out),
		zap.Bool("enrich", cfg.Enrich),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}

package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"traceScope/internal/chain"
	"traceScope/internal/dex"
	"traceScope/internal/model"
	"traceScope/internal/storage"
)

// ChainSource is the RPC surface the runner needs. *chain.Client implements
// it.
type ChainSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TraceBlockByNumber(ctx context.Context, number uint64) ([]chain.TxTrace, error)
	TraceTransaction(ctx context.Context, txHash common.Hash) (json.RawMessage, error)
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock uint64
	ToBlock   uint64
	// TxHashes switches the runner to single-transaction mode; the block
	// range and checkpoint are ignored.
	TxHashes          []common.Hash
	BatchSize         uint64
	Workers           int
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner traces blocks, decodes router actions and writes them to storage.
type Runner struct {
	cfg        RunConfig
	source     ChainSource
	pipeline   *Pipeline
	storage    storage.Storage
	enricher   *dex.Enricher
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies. enricher may be nil, in
// which case token metadata is not resolved.
func NewRunner(cfg RunConfig, source ChainSource, pipeline *Pipeline, storageSink storage.Storage, enricher *dex.Enricher, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		pipeline:   pipeline,
		storage:    storageSink,
		enricher:   enricher,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.source == nil {
		return fmt.Errorf("chain source is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.pipeline == nil {
		return fmt.Errorf("pipeline is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	chainID, err := r.source.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	if len(r.cfg.TxHashes) > 0 {
		return r.runTransactions(ctx, chainIDValue)
	}

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.source.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load(chainIDValue)
		if err != nil {
			return err
		}
		if ok && cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("trace blocks", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		records, traceErrs, err := r.traceRange(ctx, chainIDValue, blockRange)
		if err != nil {
			return err
		}
		actions, errs, err := r.process(ctx, records, traceErrs)
		if err != nil {
			return err
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(chainIDValue, blockRange.To); err != nil {
				return err
			}
		}

		r.logger.Info("batch complete",
			zap.Int("traces", len(records)),
			zap.Int("actions", actions),
			zap.Int("errors", errs),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	return nil
}

func (r *Runner) runTransactions(ctx context.Context, chainID uint64) error {
	records := make([]model.TraceRecord, 0, len(r.cfg.TxHashes))
	var traceErrs []model.DecodeError
	for _, hash := range r.cfg.TxHashes {
		if r.isDuplicate(hash.Hex()) {
			continue
		}
		receipt, err := r.receiptWithRetry(ctx, hash)
		if err != nil {
			return fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}
		header, err := r.headerWithRetry(ctx, receipt.BlockNumber.Uint64())
		if err != nil {
			return fmt.Errorf("header %d: %w", receipt.BlockNumber.Uint64(), err)
		}
		tx := model.TraceRecord{
			ChainID:     chainID,
			BlockNumber: receipt.BlockNumber.Uint64(),
			BlockHash:   receipt.BlockHash.Hex(),
			TxHash:      hash.Hex(),
			TxIndex:     uint64(receipt.TransactionIndex),
			Timestamp:   header.Time,
		}
		result, err := r.traceTxWithRetry(ctx, hash)
		if err != nil {
			traceErrs = append(traceErrs, traceError(tx, err.Error()))
			continue
		}
		tx.Trace = result
		records = append(records, tx)
	}

	actions, errs, err := r.process(ctx, records, traceErrs)
	if err != nil {
		return err
	}
	r.logger.Info("transactions complete",
		zap.Int("traces", len(records)),
		zap.Int("actions", actions),
		zap.Int("errors", errs),
	)
	return nil
}

// traceRange traces every block of the range with up to Workers blocks in
// flight. Records come back in block then transaction order.
func (r *Runner) traceRange(ctx context.Context, chainID uint64, blockRange BlockRange) ([]model.TraceRecord, []model.DecodeError, error) {
	blocks := blockRange.Blocks()
	perBlock := make([][]model.TraceRecord, len(blocks))
	perBlockErrs := make([][]model.DecodeError, len(blocks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, number := range blocks {
		i, number := i, number
		g.Go(func() error {
			records, errs, err := r.traceBlock(gctx, chainID, number)
			if err != nil {
				return err
			}
			perBlock[i] = records
			perBlockErrs[i] = errs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var records []model.TraceRecord
	var traceErrs []model.DecodeError
	for i := range perBlock {
		for _, record := range perBlock[i] {
			if r.isDuplicate(record.TxHash) {
				continue
			}
			records = append(records, record)
		}
		traceErrs = append(traceErrs, perBlockErrs[i]...)
	}
	return records, traceErrs, nil
}

func (r *Runner) traceBlock(ctx context.Context, chainID, number uint64) ([]model.TraceRecord, []model.DecodeError, error) {
	header, err := r.headerWithRetry(ctx, number)
	if err != nil {
		return nil, nil, fmt.Errorf("header %d: %w", number, err)
	}
	traces, err := r.traceBlockWithRetry(ctx, number)
	if err != nil {
		return nil, nil, fmt.Errorf("trace block %d: %w", number, err)
	}

	// Older nodes omit txHash from block traces; fill it from the block body.
	var txs types.Transactions
	for _, t := range traces {
		if t.TxHash == (common.Hash{}) {
			block, err := r.blockWithRetry(ctx, number)
			if err != nil {
				return nil, nil, fmt.Errorf("block %d: %w", number, err)
			}
			txs = block.Transactions()
			break
		}
	}

	records := make([]model.TraceRecord, 0, len(traces))
	var errs []model.DecodeError
	for i, t := range traces {
		hash := t.TxHash
		if hash == (common.Hash{}) && i < len(txs) {
			hash = txs[i].Hash()
		}
		record := model.TraceRecord{
			ChainID:     chainID,
			BlockNumber: number,
			BlockHash:   header.Hash().Hex(),
			TxHash:      hash.Hex(),
			TxIndex:     uint64(i),
			Timestamp:   header.Time,
			Trace:       t.Result,
		}
		if t.Error != "" || len(t.Result) == 0 {
			msg := t.Error
			if msg == "" {
				msg = "empty trace result"
			}
			errs = append(errs, traceError(record, msg))
			continue
		}
		records = append(records, record)
	}
	return records, errs, nil
}

// process decodes the records and writes actions, errors and token metadata.
func (r *Runner) process(ctx context.Context, records []model.TraceRecord, traceErrs []model.DecodeError) (int, int, error) {
	out, err := r.pipeline.DecodeRecords(ctx, records, r.cfg.Workers)
	if err != nil {
		return 0, 0, err
	}
	errs := append(traceErrs, out.Errors...)

	if err := r.storage.PutActionBatch(ctx, out.Actions); err != nil {
		return 0, 0, fmt.Errorf("store actions: %w", err)
	}
	if err := r.storage.PutDecodeErrors(ctx, errs); err != nil {
		return 0, 0, fmt.Errorf("store decode errors: %w", err)
	}

	if r.enricher != nil && len(out.Metadata) > 0 {
		tokens, err := r.enricher.Resolve(ctx, out.Metadata)
		if err != nil {
			return 0, 0, fmt.Errorf("resolve token metadata: %w", err)
		}
		if err := r.storage.PutTokens(ctx, tokens); err != nil {
			return 0, 0, fmt.Errorf("store tokens: %w", err)
		}
	}
	return len(out.Actions), len(errs), nil
}

func traceError(record model.TraceRecord, msg string) model.DecodeError {
	return model.DecodeError{
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		Stage:       model.StageTrace,
		Error:       msg,
	}
}

func (r *Runner) retry() retryPolicy {
	return retryPolicy{maxRetries: r.cfg.MaxRetries, baseDelay: r.cfg.RetryBackoff, logger: r.logger}
}

func (r *Runner) traceBlockWithRetry(ctx context.Context, number uint64) ([]chain.TxTrace, error) {
	return call(ctx, r.retry(), "trace block", func(ctx context.Context) ([]chain.TxTrace, error) {
		return r.source.TraceBlockByNumber(ctx, number)
	}, zap.Uint64("block_number", number))
}

func (r *Runner) traceTxWithRetry(ctx context.Context, hash common.Hash) (json.RawMessage, error) {
	return call(ctx, r.retry(), "trace transaction", func(ctx context.Context) (json.RawMessage, error) {
		return r.source.TraceTransaction(ctx, hash)
	}, zap.String("tx_hash", hash.Hex()))
}

func (r *Runner) headerWithRetry(ctx context.Context, number uint64) (*types.Header, error) {
	return call(ctx, r.retry(), "header fetch", func(ctx context.Context) (*types.Header, error) {
		return r.source.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	}, zap.Uint64("block_number", number))
}

func (r *Runner) blockWithRetry(ctx context.Context, number uint64) (*types.Block, error) {
	return call(ctx, r.retry(), "block fetch", func(ctx context.Context) (*types.Block, error) {
		return r.source.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	}, zap.Uint64("block_number", number))
}

func (r *Runner) receiptWithRetry(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return call(ctx, r.retry(), "receipt fetch", func(ctx context.Context) (*types.Receipt, error) {
		return r.source.TransactionReceipt(ctx, hash)
	}, zap.String("tx_hash", hash.Hex()))
}

func (r *Runner) isDuplicate(txHash string) bool {
	if _, ok := r.seen[txHash]; ok {
		return true
	}
	r.seen[txHash] = struct{}{}
	return false
}

package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"traceScope/internal/dex"
	"traceScope/internal/model"
)

const (
	feeMethodRouter     = "router_fee_bps"
	reserveMethodBlock  = "get_reserves_block"
	reserveMethodLatest = "get_reserves_latest"
	reserveMethodNone   = "unavailable"
)

// MetricsStore persists pools and their window metrics. *postgres.Store
// implements it.
type MetricsStore interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	// SkipPartial drops partial actions instead of counting their known
	// amounts.
	SkipPartial bool
	StateStore  StateStore
}

// Aggregator aggregates decoded router actions into pool window metrics.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	caller       dex.ContractCaller
	logger       *zap.Logger
	tokens       *dex.Enricher
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.Pool
}

func NewAggregator(cfg Config, store MetricsStore, caller dex.ContractCaller, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		caller:       caller,
		logger:       logger,
		tokens:       dex.NewEnricher(caller, nil, logger),
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.Pool),
	}
}

// windowBatch collects closed windows and newly seen pools until they are
// written.
type windowBatch struct {
	metrics []model.PoolWindowMetrics
	pools   []model.Pool
}

func (b *windowBatch) reset() {
	b.metrics = b.metrics[:0]
	b.pools = b.pools[:0]
}

type runStats struct {
	total, windows, skipped, failed int
}

// Run aggregates an action records JSONL file. Records at or before the
// resume timestamp are skipped. Windows are closed when a pool sees a record
// from a later window and at the end of input.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.caller == nil {
		return fmt.Errorf("contract caller is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := &windowBatch{}
	maxTs := startTs
	var stats runStats

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.total++

		var record model.RawActionRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.failed++
			a.logger.Warn("decode action record", zap.Error(err))
			continue
		}
		if record.Timestamp <= startTs || record.Reverted || (record.Partial && a.cfg.SkipPartial) {
			stats.skipped++
			continue
		}

		activities, err := splitAction(record)
		if err != nil {
			stats.failed++
			a.logger.Warn("aggregate action", zap.Error(err), zap.String("id", record.ID()), zap.String("kind", record.Kind))
			continue
		}
		for _, activity := range activities {
			if err := a.addActivity(ctx, record, activity, batch, &stats); err != nil {
				return err
			}
		}
		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch.metrics) >= a.cfg.BatchSize {
			if err := a.commit(ctx, batch, maxTs); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	for _, key := range sortedKeys(a.accumulators) {
		if err := a.closeWindow(ctx, a.accumulators[key], batch, &stats); err != nil {
			return err
		}
		delete(a.accumulators, key)
	}
	if err := a.commit(ctx, batch, maxTs); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", stats.total),
		zap.Int("windows", stats.windows),
		zap.Int("skipped", stats.skipped),
		zap.Int("failed", stats.failed),
		zap.Uint64("last_ts", maxTs),
	)

	return nil
}

// addActivity folds one pool's share of an action into the pool's open
// window, closing the previous window first when the action starts a new
// one.
func (a *Aggregator) addActivity(ctx context.Context, record model.RawActionRecord, activity poolActivity, batch *windowBatch, stats *runStats) error {
	start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
	key := poolKey(activity.Pool.Address)

	acc := a.accumulators[key]
	if acc != nil && acc.WindowStart != start {
		if err := a.closeWindow(ctx, acc, batch, stats); err != nil {
			return err
		}
		acc = nil
	}
	if acc == nil {
		acc = NewAccumulator(record, activity, start, start+a.cfg.WindowSeconds)
		a.accumulators[key] = acc
	}
	acc.AddActivity(record, activity)
	return nil
}

func (a *Aggregator) closeWindow(ctx context.Context, acc *Accumulator, batch *windowBatch, stats *runStats) error {
	metrics, pool, err := a.flushAccumulator(ctx, acc)
	if err != nil {
		return err
	}
	if metrics != nil {
		batch.metrics = append(batch.metrics, *metrics)
		stats.windows++
	}
	if pool != nil {
		batch.pools = append(batch.pools, *pool)
	}
	return nil
}

// commit writes the batch and then advances the saved state. With windows
// still open the state stops just before the earliest of them so a resumed
// run rebuilds it from its first record.
func (a *Aggregator) commit(ctx context.Context, batch *windowBatch, processedThrough uint64) error {
	if len(batch.pools) > 0 {
		if err := a.store.UpsertPools(ctx, batch.pools); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}
	if len(batch.metrics) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, batch.metrics); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	batch.reset()

	if a.cfg.StateStore == nil {
		return nil
	}
	safeTs := processedThrough
	if len(a.accumulators) > 0 {
		safeTs = 0
		if open := minOpenWindowStart(a.accumulators); open > 0 {
			safeTs = open - 1
		}
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, _, err := a.cfg.StateStore.Load(ctx)
	return last, err
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) (*model.PoolWindowMetrics, *model.Pool, error) {
	if acc == nil {
		return nil, nil, nil
	}

	poolMeta := acc.PoolMeta
	if !common.IsHexAddress(poolMeta.Token0) || !common.IsHexAddress(poolMeta.Token1) {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolAddress))
		return nil, nil, nil
	}

	poolRecord := a.registerPool(acc)

	// Tokens whose metadata cannot be read are formatted as raw integers.
	metas, err := a.tokens.Resolve(ctx, []common.Address{
		common.HexToAddress(poolMeta.Token0),
		common.HexToAddress(poolMeta.Token1),
	})
	if err != nil {
		return nil, nil, err
	}
	decimals0, decimals1 := metas[0].Decimals, metas[1].Decimals

	var reserve0Str, reserve1Str *string
	var reserve0, reserve1 *big.Int
	reserveMethod := reserveMethodNone
	if acc.LastBlock > 0 {
		r0, r1, method, err := a.fetchReserves(ctx, acc.PoolAddress, acc.LastBlock)
		if err != nil {
			a.logger.Warn("reserves fetch failed", zap.String("pool", acc.PoolAddress), zap.Error(err))
		} else {
			reserve0, reserve1 = r0, r1
			val0 := formatTokenAmount(r0, decimals0)
			val1 := formatTokenAmount(r1, decimals1)
			reserve0Str, reserve1Str = &val0, &val1
			reserveMethod = method
		}
	}

	feeRate0 := ratString(feeRate(acc.Fee0, reserve0))
	feeRate1 := ratString(feeRate(acc.Fee1, reserve1))
	apr := computeAPR(acc.Fee0, acc.Fee1, reserve0, reserve1, a.cfg.WindowSeconds)

	metrics := &model.PoolWindowMetrics{
		ChainID:        acc.ChainID,
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		AddCount:       acc.AddCount,
		RemoveCount:    acc.RemoveCount,
		PartialCount:   acc.PartialCount,
		Volume0:        formatTokenAmount(acc.Volume0, decimals0),
		Volume1:        formatTokenAmount(acc.Volume1, decimals1),
		Fee0:           formatTokenAmount(acc.Fee0, decimals0),
		Fee1:           formatTokenAmount(acc.Fee1, decimals1),
		Added0:         formatTokenAmount(acc.Added0, decimals0),
		Added1:         formatTokenAmount(acc.Added1, decimals1),
		Removed0:       formatTokenAmount(acc.Removed0, decimals0),
		Removed1:       formatTokenAmount(acc.Removed1, decimals1),
		FeeRate0:       feeRate0,
		FeeRate1:       feeRate1,
		Reserve0:       reserve0Str,
		Reserve1:       reserve1Str,
		APR:            apr,
		FeeMethod:      feeMethodRouter,
		ReserveMethod:  reserveMethod,
	}

	return metrics, poolRecord, nil
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	key := poolKey(acc.PoolAddress)
	pool := model.Pool{
		ChainID:        acc.ChainID,
		Address:        acc.PoolAddress,
		Router:         acc.Router,
		Token0:         acc.PoolMeta.Token0,
		Token1:         acc.PoolMeta.Token1,
		FeeBps:         acc.PoolMeta.FeeBps,
		FirstSeenBlock: acc.FirstBlock,
	}

	existing, ok := a.poolSeen[key]
	if ok {
		if existing.FirstSeenBlock <= pool.FirstSeenBlock {
			return nil
		}
	}

	a.poolSeen[key] = pool
	return &pool
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func sortedKeys(acc map[string]*Accumulator) []string {
	keys := make([]string, 0, len(acc))
	for key := range acc {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}

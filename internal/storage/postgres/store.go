package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"traceScope/internal/model"
)

// Store provides Postgres persistence for decoded actions and pool metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutActionBatch upserts decoded actions keyed by transaction and trace path.
func (s *Store) PutActionBatch(ctx context.Context, actions []model.ActionRecord) error {
	if len(actions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range actions {
		decoded, err := json.Marshal(a.Decoded)
		if err != nil {
			return fmt.Errorf("marshal action %s:%s: %w", a.TxHash, a.TracePath, err)
		}
		batch.Queue(`
			INSERT INTO router_actions (
				chain_id, tx_hash, trace_path, block_number, block_hash, tx_index, block_ts,
				kind, decoder, function, router, operator, recipient, partial, reverted, issues, decoded, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now())
			ON CONFLICT (chain_id, tx_hash, trace_path)
			DO UPDATE SET
				kind = EXCLUDED.kind,
				decoder = EXCLUDED.decoder,
				function = EXCLUDED.function,
				partial = EXCLUDED.partial,
				reverted = EXCLUDED.reverted,
				issues = EXCLUDED.issues,
				decoded = EXCLUDED.decoded
		`,
			int64(a.ChainID),
			a.TxHash,
			a.TracePath,
			int64(a.BlockNumber),
			a.BlockHash,
			int64(a.TxIndex),
			int64(a.Timestamp),
			a.Kind,
			a.Decoder,
			a.Function,
			a.Router,
			a.Operator,
			a.Recipient,
			a.Partial,
			a.Reverted,
			a.Issues,
			decoded,
		)
	}
	return s.sendBatch(ctx, batch, len(actions))
}

// PutDecodeErrors records decode failures. Repeated failures for the same
// node are kept once.
func (s *Store) PutDecodeErrors(ctx context.Context, errs []model.DecodeError) error {
	if len(errs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range errs {
		batch.Queue(`
			INSERT INTO decode_errors (chain_id, block_number, tx_hash, stage, trace_path, decoder, error, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (chain_id, tx_hash, stage, trace_path, decoder)
			DO UPDATE SET error = EXCLUDED.error
		`, int64(e.ChainID), int64(e.BlockNumber), e.TxHash, e.Stage, e.Path, e.Decoder, e.Error)
	}
	return s.sendBatch(ctx, batch, len(errs))
}

// PutTokens upserts token metadata.
func (s *Store) PutTokens(ctx context.Context, tokens []model.TokenMeta) error {
	if len(tokens) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range tokens {
		batch.Queue(`
			INSERT INTO tokens (address, decimals, symbol, name, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (address)
			DO UPDATE SET
				decimals = EXCLUDED.decimals,
				symbol = EXCLUDED.symbol,
				name = EXCLUDED.name,
				updated_at = now()
		`, t.Address, int16(t.Decimals), t.Symbol, t.Name)
	}
	return s.sendBatch(ctx, batch, len(tokens))
}

// UpsertPools inserts or updates pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, router, token0, token1, fee_bps, first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				router = EXCLUDED.router,
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				fee_bps = EXCLUDED.fee_bps,
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.Router,
			pool.Token0,
			pool.Token1,
			int32(pool.FeeBps),
			int64(pool.FirstSeenBlock),
		)
	}
	return s.sendBatch(ctx, batch, len(pools))
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, add_count, remove_count, partial_count,
				volume0, volume1, fee0, fee1, added0, added1, removed0, removed1,
				fee_rate0, fee_rate1, reserve0, reserve1, apr, fee_method, reserve_method,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				add_count = EXCLUDED.add_count,
				remove_count = EXCLUDED.remove_count,
				partial_count = EXCLUDED.partial_count,
				volume0 = EXCLUDED.volume0,
				volume1 = EXCLUDED.volume1,
				fee0 = EXCLUDED.fee0,
				fee1 = EXCLUDED.fee1,
				added0 = EXCLUDED.added0,
				added1 = EXCLUDED.added1,
				removed0 = EXCLUDED.removed0,
				removed1 = EXCLUDED.removed1,
				fee_rate0 = EXCLUDED.fee_rate0,
				fee_rate1 = EXCLUDED.fee_rate1,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				apr = EXCLUDED.apr,
				fee_method = EXCLUDED.fee_method,
				reserve_method = EXCLUDED.reserve_method,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			int64(m.AddCount),
			int64(m.RemoveCount),
			int64(m.PartialCount),
			m.Volume0,
			m.Volume1,
			m.Fee0,
			m.Fee1,
			m.Added0,
			m.Added1,
			m.Removed0,
			m.Removed1,
			m.FeeRate0,
			m.FeeRate1,
			m.Reserve0,
			m.Reserve1,
			m.APR,
			m.FeeMethod,
			m.ReserveMethod,
		)
	}
	return s.sendBatch(ctx, batch, len(metrics))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return ts, true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, ts)
	return err
}

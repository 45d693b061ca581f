package indexer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"traceScope/internal/dex"
	"traceScope/internal/model"
	"traceScope/internal/trace"
)

// Output is the result of decoding a batch of trace records.
type Output struct {
	Actions []model.ActionRecord
	Errors  []model.DecodeError
	// Metadata lists the token addresses requested across the batch, in
	// first-seen order.
	Metadata []common.Address
}

// Pipeline turns trace records into action records.
type Pipeline struct {
	engine  *dex.Engine
	routers *dex.Registry
	logger  *zap.Logger
}

func NewPipeline(engine *dex.Engine, routers *dex.Registry, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{engine: engine, routers: routers, logger: logger}
}

// DecodeRecords parses and decodes records with up to workers traces in
// flight. A record whose trace cannot be parsed yields a trace-stage error
// and does not stop the batch.
func (p *Pipeline) DecodeRecords(ctx context.Context, records []model.TraceRecord, workers int) (Output, error) {
	var out Output
	roots := make([]*trace.Node, 0, len(records))
	txs := make([]TxContext, 0, len(records))
	for _, record := range records {
		tx := txContextFromRecord(record)
		root, err := trace.ParseCallFrame(record.Trace)
		if err != nil {
			p.logger.Warn("trace parse failed", zap.String("tx_hash", record.TxHash), zap.Error(err))
			out.Errors = append(out.Errors, model.DecodeError{
				ChainID:     tx.ChainID,
				BlockNumber: tx.BlockNumber,
				TxHash:      tx.TxHash,
				Stage:       model.StageTrace,
				Error:       err.Error(),
			})
			continue
		}
		roots = append(roots, root)
		txs = append(txs, tx)
	}

	results, err := p.engine.DecodeAll(ctx, roots, workers)
	if err != nil {
		return out, fmt.Errorf("decode traces: %w", err)
	}

	seen := make(map[common.Address]struct{})
	for i, res := range results {
		out.Actions = append(out.Actions, BuildActionRecords(txs[i], res.Claims, p.routers)...)
		out.Errors = append(out.Errors, BuildDecodeErrors(txs[i], res.Failures)...)
		for _, addr := range res.Metadata {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out.Metadata = append(out.Metadata, addr)
		}
	}
	return out, nil
}

package dex

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"traceScope/internal/trace"
)

// Claim is an action together with the node and decoder that produced it.
type Claim struct {
	Path    string
	Decoder string
	Action  Action
}

// Failure records a selector match whose payload could not be decoded.
type Failure struct {
	Path    string
	Decoder string
	Err     error
}

// Result is the outcome of decoding one trace.
type Result struct {
	Claims   []Claim
	Metadata []common.Address
	Failures []Failure
	Nodes    int
	Consumed int
}

// Observer receives per-decoder outcomes. Implementations must be safe for
// concurrent use when DecodeAll runs with several workers.
type Observer interface {
	Claimed(decoder string, partial bool)
	DecodeFailed(decoder string)
	TraceDecoded()
}

type nopObserver struct{}

func (nopObserver) Claimed(string, bool) {}
func (nopObserver) DecodeFailed(string)  {}
func (nopObserver) TraceDecoded()        {}

// Engine offers every node of a trace, in pre-order, to each decoder in
// registration order. The first decoder to claim a node wins.
type Engine struct {
	decoders []Decoder
	logger   *zap.Logger
	observer Observer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithObserver(observer Observer) EngineOption {
	return func(e *Engine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// NewEngine builds an engine over decoders.
func NewEngine(decoders []Decoder, opts ...EngineOption) *Engine {
	e := &Engine{
		decoders: append([]Decoder(nil), decoders...),
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultDecoders returns the swap, add-liquidity and remove-liquidity
// decoders over routers.
func DefaultDecoders(routers *Registry) ([]Decoder, error) {
	swap, err := NewSwapDecoder(routers)
	if err != nil {
		return nil, fmt.Errorf("swap decoder: %w", err)
	}
	add, err := NewAddLiquidityDecoder(routers)
	if err != nil {
		return nil, fmt.Errorf("add liquidity decoder: %w", err)
	}
	remove, err := NewRemoveLiquidityDecoder(routers)
	if err != nil {
		return nil, fmt.Errorf("remove liquidity decoder: %w", err)
	}
	return []Decoder{swap, add, remove}, nil
}

// Decoders returns the registered decoders in order.
func (e *Engine) Decoders() []Decoder {
	return append([]Decoder(nil), e.decoders...)
}

// Decode runs one decode pass over a trace with a fresh State.
func (e *Engine) Decode(root *trace.Node) Result {
	return e.DecodeWithState(NewState(), root)
}

// DecodeWithState runs one decode pass using the caller's state. Descendants
// of a claimed node that were not consumed are still offered, so nested
// independent actions are found.
func (e *Engine) DecodeWithState(state *State, root *trace.Node) Result {
	var res Result
	trace.Walk(root, func(node *trace.Node) {
		res.Nodes++
		if state.IsConsumed(node.Path) {
			return
		}
		for _, decoder := range e.decoders {
			action, err := decoder.DecodeCall(state, node)
			if err != nil {
				e.logger.Debug("decode failed",
					zap.String("decoder", decoder.Name()),
					zap.String("path", node.Path),
					zap.Error(err),
				)
				e.observer.DecodeFailed(decoder.Name())
				res.Failures = append(res.Failures, Failure{Path: node.Path, Decoder: decoder.Name(), Err: err})
				continue
			}
			if action == nil {
				continue
			}
			base := action.Base()
			if base.Partial {
				e.logger.Debug("structural mismatch",
					zap.String("decoder", decoder.Name()),
					zap.String("path", node.Path),
					zap.Strings("issues", base.Issues),
				)
			}
			e.observer.Claimed(decoder.Name(), base.Partial)
			res.Claims = append(res.Claims, Claim{Path: node.Path, Decoder: decoder.Name(), Action: action})
			return
		}
	})
	res.Metadata = state.PendingMetadata()
	res.Consumed = state.ConsumedCount()
	e.observer.TraceDecoded()
	e.logger.Debug("trace decoded",
		zap.Int("nodes", res.Nodes),
		zap.Int("claims", len(res.Claims)),
		zap.Int("failures", len(res.Failures)),
	)
	return res
}

// DecodeAll decodes independent traces in parallel, each with its own State.
// Results are returned in input order.
func (e *Engine) DecodeAll(ctx context.Context, roots []*trace.Node, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]Result, len(roots))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range roots {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.Decode(roots[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

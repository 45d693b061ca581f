package dex

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"traceScope/internal/abicodec"
	"traceScope/internal/trace"
)

// Decoder recognizes one family of router operations in a call tree.
type Decoder interface {
	Name() string
	// Signatures lists the recognized router functions in table order.
	Signatures() []abicodec.Signature
	// Recognizes reports whether the node is a call to a known router whose
	// selector is in the table. Consumption is not checked.
	Recognizes(node *trace.Node) bool
	// DecodeCall returns (nil, nil) when the node is not claimed. A
	// *abicodec.DecodeError means the selector matched but the payload did
	// not; the node stays unclaimed. On success the node and its helper
	// sub-calls are marked consumed in state.
	DecodeCall(state *State, node *trace.Node) (Action, error)
}

// ActionKind names an action variant.
type ActionKind string

const (
	ActionSwap            ActionKind = "swap"
	ActionAddLiquidity    ActionKind = "add_liquidity"
	ActionRemoveLiquidity ActionKind = "remove_liquidity"
)

// Action is a decoded router operation.
type Action interface {
	Kind() ActionKind
	Base() *ActionBase
}

// ErrStructuralMismatch marks an action whose nested calls did not have the
// expected shape. The action is still returned, with the affected amounts
// left nil.
var ErrStructuralMismatch = errors.New("structural mismatch")

// ActionBase carries the fields every action has.
type ActionBase struct {
	Decoder  string
	Function string
	Path     string
	Router   common.Address
	// Operator is the caller of the router.
	Operator  common.Address
	Recipient common.Address
	Partial   bool
	// Reverted marks a router call whose frame failed. Only its arguments
	// are decoded and nothing it did is counted.
	Reverted bool
	Issues   []string
}

func (b *ActionBase) Base() *ActionBase { return b }

// Mismatch returns an error wrapping ErrStructuralMismatch when the action is
// partial.
func (b *ActionBase) Mismatch() error {
	if !b.Partial {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrStructuralMismatch, strings.Join(b.Issues, "; "))
}

func (b *ActionBase) mismatch(format string, args ...interface{}) {
	b.Partial = true
	b.Issues = append(b.Issues, fmt.Sprintf(format, args...))
}

func (b *ActionBase) markReverted(reason string) {
	if reason == "" {
		reason = "execution reverted"
	}
	b.Reverted = true
	b.Issues = append(b.Issues, "call reverted: "+reason)
}

// routerCall is a node matched against a decoder table and the registry.
type routerCall[M any] struct {
	node   *trace.Node
	router *Router
	entry  FunctionEntry[M]
}

// matchRouterCall performs the claim preconditions shared by all router
// decoders: the node is an unconsumed call to a registered router whose
// selector is in the table.
func matchRouterCall[M any](state *State, node *trace.Node, routers *Registry, table *FunctionTable[M]) (routerCall[M], bool) {
	if node == nil || node.Kind != trace.KindCall {
		return routerCall[M]{}, false
	}
	if state != nil && state.IsConsumed(node.Path) {
		return routerCall[M]{}, false
	}
	to, ok := node.Callee()
	if !ok {
		return routerCall[M]{}, false
	}
	router, ok := routers.Lookup(to)
	if !ok {
		return routerCall[M]{}, false
	}
	entry, ok := table.Lookup(node.CallData)
	if !ok {
		return routerCall[M]{}, false
	}
	return routerCall[M]{node: node, router: router, entry: entry}, true
}

func newActionBase(decoder string, call *trace.Node, router *Router, sig abicodec.Signature) ActionBase {
	return ActionBase{
		Decoder:  decoder,
		Function: sig.Canonical,
		Path:     call.Path,
		Router:   router.Address,
		Operator: call.From,
	}
}

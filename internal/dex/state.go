package dex

import (
	"github.com/ethereum/go-ethereum/common"

	"traceScope/internal/trace"
)

// State is the per-trace bookkeeping shared by every decoder during one
// decode pass. It is not safe for concurrent use; each trace gets its own.
type State struct {
	consumed   map[string]struct{}
	pending    []common.Address
	pendingSet map[common.Address]struct{}
}

func NewState() *State {
	return &State{
		consumed:   make(map[string]struct{}),
		pendingSet: make(map[common.Address]struct{}),
	}
}

// IsConsumed reports whether a path has already been explained by a decoder.
func (s *State) IsConsumed(path string) bool {
	_, ok := s.consumed[path]
	return ok
}

// Consume marks nodes as explained.
func (s *State) Consume(nodes ...*trace.Node) {
	for _, n := range nodes {
		if n != nil {
			s.consumed[n.Path] = struct{}{}
		}
	}
}

// ConsumeTree marks a node and all of its descendants.
func (s *State) ConsumeTree(node *trace.Node) {
	trace.Walk(node, func(n *trace.Node) { s.consumed[n.Path] = struct{}{} })
}

// ConsumedCount returns the number of consumed paths.
func (s *State) ConsumedCount() int {
	return len(s.consumed)
}

// RequestMetadata queues token addresses for enrichment. The zero address and
// the native-currency placeholder are skipped; each address is kept once, in
// first-request order.
func (s *State) RequestMetadata(addrs ...common.Address) {
	for _, addr := range addrs {
		if addr == (common.Address{}) || addr == NativeCurrency {
			continue
		}
		if _, ok := s.pendingSet[addr]; ok {
			continue
		}
		s.pendingSet[addr] = struct{}{}
		s.pending = append(s.pending, addr)
	}
}

// PendingMetadata returns the queued addresses.
func (s *State) PendingMetadata() []common.Address {
	return append([]common.Address(nil), s.pending...)
}

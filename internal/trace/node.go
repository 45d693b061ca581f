package trace

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Kind classifies a call-tree node.
type Kind int

const (
	KindOther Kind = iota
	KindCall
	KindStaticCall
	KindCreate
)

func (k Kind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindStaticCall:
		return "staticCall"
	case KindCreate:
		return "create"
	default:
		return "other"
	}
}

// ParseKind maps a tracer frame type (CALL, STATICCALL, CREATE2, ...) or a
// Kind string back to a Kind. Unknown types are KindOther.
func ParseKind(s string) Kind {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL":
		return KindCall
	case "STATICCALL":
		return KindStaticCall
	case "CREATE", "CREATE2":
		return KindCreate
	default:
		return KindOther
	}
}

// Log is an event emitted by a node.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Topic0 returns the first topic, if any.
func (l Log) Topic0() (common.Hash, bool) {
	if len(l.Topics) == 0 {
		return common.Hash{}, false
	}
	return l.Topics[0], true
}

// Node is one frame of a transaction call tree. Nodes are built once by a
// loader and treated as read-only afterwards.
type Node struct {
	Kind Kind
	From common.Address
	// To is nil for create frames.
	To         *common.Address
	Value      *uint256.Int
	CallData   []byte
	ReturnData []byte
	// Error holds the revert reason of a failed frame. ReturnData is nil then.
	Error    string
	Logs     []Log
	Children []*Node
	// Path is the dotted trace address: "" for the root, "0.2" for the third
	// child of the first child.
	Path string
}

// Callee returns the destination address.
func (n *Node) Callee() (common.Address, bool) {
	if n == nil || n.To == nil {
		return common.Address{}, false
	}
	return *n.To, true
}

// CallsTo reports whether the node is a plain call to addr.
func (n *Node) CallsTo(addr common.Address) bool {
	if n == nil || n.Kind != KindCall || n.To == nil {
		return false
	}
	return *n.To == addr
}

// Selector returns the first four bytes of the call data.
func (n *Node) Selector() ([4]byte, bool) {
	var sel [4]byte
	if n == nil || len(n.CallData) < 4 {
		return sel, false
	}
	copy(sel[:], n.CallData[:4])
	return sel, true
}

// Succeeded reports whether the frame completed without error.
func (n *Node) Succeeded() bool {
	return n != nil && n.Error == ""
}

// ValueBig returns the attached value as a new big.Int; zero when unset.
func (n *Node) ValueBig() *big.Int {
	if n == nil || n.Value == nil {
		return new(big.Int)
	}
	return n.Value.ToBig()
}

// HasValue reports whether the frame moved a non-zero amount of native currency.
func (n *Node) HasValue() bool {
	return n != nil && n.Value != nil && !n.Value.IsZero()
}

// CallChildren returns the direct children of kind call, in execution order.
func (n *Node) CallChildren() []*Node {
	if n == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.Children))
	for _, child := range n.Children {
		if child.Kind == KindCall {
			out = append(out, child)
		}
	}
	return out
}

// Walk visits the node and its descendants in pre-order (parent before
// children, children in execution order).
func Walk(root *Node, fn func(*Node)) {
	if root == nil {
		return
	}
	fn(root)
	for _, child := range root.Children {
		Walk(child, fn)
	}
}

// Count returns the number of nodes in the tree.
func Count(root *Node) int {
	total := 0
	Walk(root, func(*Node) { total++ })
	return total
}

// ChildPath returns the path of the i-th child of a node at parent.
func ChildPath(parent string, i int) string {
	if parent == "" {
		return strconv.Itoa(i)
	}
	return parent + "." + strconv.Itoa(i)
}

// AssignPaths overwrites every path in the tree with its dotted trace address.
func AssignPaths(root *Node) {
	if root == nil {
		return
	}
	root.Path = ""
	assignChildPaths(root)
}

func assignChildPaths(n *Node) {
	for i, child := range n.Children {
		child.Path = ChildPath(n.Path, i)
		assignChildPaths(child)
	}
}

// Validate checks that paths are unique and that create frames carry no
// destination.
func Validate(root *Node) error {
	seen := make(map[string]struct{})
	var err error
	Walk(root, func(n *Node) {
		if err != nil {
			return
		}
		if _, dup := seen[n.Path]; dup {
			err = fmt.Errorf("duplicate trace path %q", n.Path)
			return
		}
		seen[n.Path] = struct{}{}
		if n.Kind == KindCreate && n.To != nil {
			err = fmt.Errorf("create frame %q has a destination", n.Path)
		}
	})
	return err
}

// Find returns the node at path, or nil.
func Find(root *Node, path string) *Node {
	var found *Node
	Walk(root, func(n *Node) {
		if found == nil && n.Path == path {
			found = n
		}
	})
	return found
}

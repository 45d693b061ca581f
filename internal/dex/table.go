package dex

import (
	"fmt"

	"traceScope/internal/abicodec"
)

// FunctionDef binds a human-readable signature to decoder-specific metadata.
type FunctionDef[M any] struct {
	Signature string
	Meta      M
}

// FunctionEntry is a parsed FunctionDef.
type FunctionEntry[M any] struct {
	Signature abicodec.Signature
	Meta      M
}

// FunctionTable maps 4-byte selectors to typed metadata. It is immutable
// after construction.
type FunctionTable[M any] struct {
	entries    []FunctionEntry[M]
	bySelector map[[4]byte]int
}

// NewFunctionTable parses every signature and rejects malformed ones,
// duplicates and selector collisions.
func NewFunctionTable[M any](defs []FunctionDef[M]) (*FunctionTable[M], error) {
	table := &FunctionTable[M]{
		entries:    make([]FunctionEntry[M], 0, len(defs)),
		bySelector: make(map[[4]byte]int, len(defs)),
	}
	canonical := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		sig, err := abicodec.ParseSignature(def.Signature)
		if err != nil {
			return nil, err
		}
		if _, dup := canonical[sig.Canonical]; dup {
			return nil, fmt.Errorf("duplicate signature %s", sig.Canonical)
		}
		sel := sig.Selector()
		if idx, dup := table.bySelector[sel]; dup {
			return nil, fmt.Errorf("selector 0x%x of %s collides with %s", sel, sig.Canonical, table.entries[idx].Signature.Canonical)
		}
		canonical[sig.Canonical] = struct{}{}
		table.bySelector[sel] = len(table.entries)
		table.entries = append(table.entries, FunctionEntry[M]{Signature: sig, Meta: def.Meta})
	}
	return table, nil
}

// MustFunctionTable is like NewFunctionTable but panics on error.
func MustFunctionTable[M any](defs []FunctionDef[M]) *FunctionTable[M] {
	table, err := NewFunctionTable(defs)
	if err != nil {
		panic(err)
	}
	return table
}

// Lookup matches the first four bytes of call data exactly.
func (t *FunctionTable[M]) Lookup(callData []byte) (FunctionEntry[M], bool) {
	if t == nil || len(callData) < 4 {
		return FunctionEntry[M]{}, false
	}
	var sel [4]byte
	copy(sel[:], callData[:4])
	idx, ok := t.bySelector[sel]
	if !ok {
		return FunctionEntry[M]{}, false
	}
	return t.entries[idx], true
}

// Signatures returns the parsed signatures in declaration order.
func (t *FunctionTable[M]) Signatures() []abicodec.Signature {
	out := make([]abicodec.Signature, 0, len(t.entries))
	for _, entry := range t.entries {
		out = append(out, entry.Signature)
	}
	return out
}

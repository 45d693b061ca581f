package abicodec

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signature is a parsed human-readable function or event signature, e.g.
//
//	swapExactTokensForTokens(uint256 amountIn, uint256 amountOutMin, address[] path, address to, uint256 deadline) returns (uint256[] amounts)
//	Swap(address indexed sender, uint256 amount0In, uint256 amount1In, uint256 amount0Out, uint256 amount1Out, address indexed to)
type Signature struct {
	Name    string
	Inputs  abi.Arguments
	Outputs abi.Arguments
	// Canonical is the name followed by the parameter types only, the form
	// that is hashed for selectors and topics.
	Canonical string
}

// ParseSignature parses a signature with optional parameter names, "indexed"
// markers, data-location keywords and a trailing "returns (...)" clause.
func ParseSignature(signature string) (Signature, error) {
	text := strings.TrimSpace(signature)
	for _, prefix := range []string{"function ", "event "} {
		text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	}

	open := strings.IndexByte(text, '(')
	if open <= 0 {
		return Signature{}, fmt.Errorf("malformed signature %q: missing name or parameter list", signature)
	}
	name := strings.TrimSpace(text[:open])
	if !isIdentifier(name) {
		return Signature{}, fmt.Errorf("malformed signature %q: invalid name %q", signature, name)
	}
	end := matchParen(text, open)
	if end < 0 {
		return Signature{}, fmt.Errorf("malformed signature %q: unbalanced parentheses", signature)
	}

	inputs, err := parseArguments(text[open+1:end], "arg")
	if err != nil {
		return Signature{}, fmt.Errorf("malformed signature %q: %w", signature, err)
	}

	var outputs abi.Arguments
	rest := strings.TrimSpace(text[end+1:])
	for _, keyword := range []string{"external", "public", "view", "pure", "payable", "nonpayable"} {
		rest = strings.TrimSpace(strings.TrimPrefix(rest, keyword))
	}
	if rest != "" {
		if !strings.HasPrefix(rest, "returns") {
			return Signature{}, fmt.Errorf("malformed signature %q: unexpected trailing text %q", signature, rest)
		}
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "returns"))
		if rest == "" || rest[0] != '(' || matchParen(rest, 0) != len(rest)-1 {
			return Signature{}, fmt.Errorf("malformed signature %q: bad returns clause", signature)
		}
		outputs, err = parseArguments(rest[1:len(rest)-1], "out")
		if err != nil {
			return Signature{}, fmt.Errorf("malformed signature %q: %w", signature, err)
		}
	}

	return Signature{
		Name:      name,
		Inputs:    inputs,
		Outputs:   outputs,
		Canonical: canonical(name, inputs),
	}, nil
}

// MustParseSignature is like ParseSignature but panics on error. Intended for
// package-level tables.
func MustParseSignature(signature string) Signature {
	sig, err := ParseSignature(signature)
	if err != nil {
		panic(err)
	}
	return sig
}

// FromMethod adapts a method of a JSON-parsed ABI.
func FromMethod(m abi.Method) Signature {
	return Signature{Name: m.RawName, Inputs: m.Inputs, Outputs: m.Outputs, Canonical: m.Sig}
}

// FromEvent adapts an event of a JSON-parsed ABI.
func FromEvent(e abi.Event) Signature {
	return Signature{Name: e.RawName, Inputs: e.Inputs, Canonical: e.Sig}
}

// Canonicalize strips names and whitespace from a signature.
func Canonicalize(signature string) (string, error) {
	sig, err := ParseSignature(signature)
	if err != nil {
		return "", err
	}
	return sig.Canonical, nil
}

// Selector returns the 4-byte function selector of a signature.
func Selector(signature string) ([4]byte, error) {
	sig, err := ParseSignature(signature)
	if err != nil {
		return [4]byte{}, err
	}
	return sig.Selector(), nil
}

// EventTopic returns the topic0 hash of an event signature.
func EventTopic(signature string) (common.Hash, error) {
	sig, err := ParseSignature(signature)
	if err != nil {
		return common.Hash{}, err
	}
	return sig.Topic(), nil
}

// Selector returns keccak256(canonical)[:4].
func (s Signature) Selector() [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(s.Canonical))[:4])
	return sel
}

// Topic returns keccak256(canonical).
func (s Signature) Topic() common.Hash {
	return crypto.Keccak256Hash([]byte(s.Canonical))
}

// Matches reports whether call data starts with this signature's selector.
func (s Signature) Matches(callData []byte) bool {
	if len(callData) < 4 {
		return false
	}
	sel := s.Selector()
	return sel[0] == callData[0] && sel[1] == callData[1] && sel[2] == callData[2] && sel[3] == callData[3]
}

func (s Signature) String() string {
	return s.Canonical
}

func canonical(name string, args abi.Arguments) string {
	types := make([]string, 0, len(args))
	for _, arg := range args {
		types = append(types, arg.Type.String())
	}
	return name + "(" + strings.Join(types, ",") + ")"
}

type param struct {
	typ        string
	name       string
	indexed    bool
	components []param
}

func parseArguments(text, fallbackPrefix string) (abi.Arguments, error) {
	params, err := parseParams(text)
	if err != nil {
		return nil, err
	}
	args := make(abi.Arguments, 0, len(params))
	seen := make(map[string]struct{}, len(params))
	for i, p := range params {
		name := p.name
		if name == "" {
			name = fmt.Sprintf("%s%d", fallbackPrefix, i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate parameter name %q", name)
		}
		seen[name] = struct{}{}

		typ, err := abi.NewType(p.typ, "", marshalComponents(p.components))
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		args = append(args, abi.Argument{Name: name, Type: typ, Indexed: p.indexed})
	}
	return args, nil
}

func marshalComponents(params []param) []abi.ArgumentMarshaling {
	if len(params) == 0 {
		return nil
	}
	out := make([]abi.ArgumentMarshaling, 0, len(params))
	for i, p := range params {
		name := p.name
		if name == "" {
			name = fmt.Sprintf("field%d", i)
		}
		out = append(out, abi.ArgumentMarshaling{
			Name:       name,
			Type:       p.typ,
			Components: marshalComponents(p.components),
		})
	}
	return out
}

func parseParams(text string) ([]param, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := splitTopLevel(text)
	if err != nil {
		return nil, err
	}
	params := make([]param, 0, len(parts))
	for _, part := range parts {
		p, err := parseParam(part)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

func parseParam(text string) (param, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return param{}, fmt.Errorf("empty parameter")
	}

	var p param
	var rest string
	if strings.HasPrefix(text, "tuple(") {
		text = text[len("tuple"):]
	}
	if text[0] == '(' {
		end := matchParen(text, 0)
		if end < 0 {
			return param{}, fmt.Errorf("unbalanced tuple in %q", text)
		}
		components, err := parseParams(text[1:end])
		if err != nil {
			return param{}, err
		}
		if len(components) == 0 {
			return param{}, fmt.Errorf("empty tuple in %q", text)
		}
		suffix, tail := splitArraySuffix(text[end+1:])
		p.typ = "tuple" + suffix
		p.components = components
		rest = tail
	} else {
		fields := strings.Fields(text)
		p.typ = normalizeElementary(fields[0])
		rest = strings.Join(fields[1:], " ")
	}

	for _, field := range strings.Fields(rest) {
		switch field {
		case "indexed":
			p.indexed = true
		case "memory", "calldata", "storage", "payable":
		default:
			if p.name != "" || !isIdentifier(field) {
				return param{}, fmt.Errorf("unexpected token %q in parameter %q", field, text)
			}
			p.name = field
		}
	}
	return p, nil
}

func normalizeElementary(typ string) string {
	base, suffix := typ, ""
	if idx := strings.IndexByte(typ, '['); idx >= 0 {
		base, suffix = typ[:idx], typ[idx:]
	}
	switch base {
	case "uint":
		base = "uint256"
	case "int":
		base = "int256"
	case "byte":
		base = "bytes1"
	}
	return base + suffix
}

// splitArraySuffix separates leading "[]" / "[N]" groups from the remainder.
func splitArraySuffix(text string) (string, string) {
	i := 0
	for i < len(text) && text[i] == '[' {
		end := strings.IndexByte(text[i:], ']')
		if end < 0 {
			break
		}
		i += end + 1
	}
	return text[:i], text[i:]
}

func splitTopLevel(text string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses in %q", text)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, text[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses in %q", text)
	}
	return append(parts, text[start:]), nil
}

func matchParen(text string, open int) int {
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

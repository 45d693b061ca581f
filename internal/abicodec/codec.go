package abicodec

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DecodeError reports a payload that does not fit the declared types: a slot
// underflow, an out-of-bounds offset, or a selector mismatch. It is
// recoverable; callers treat the node as unrecognized.
type DecodeError struct {
	Op        string
	Signature string
	Err       error
}

func (e *DecodeError) Error() string {
	if e.Signature != "" {
		return fmt.Sprintf("abi %s %s: %v", e.Op, e.Signature, e.Err)
	}
	return fmt.Sprintf("abi %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is, or wraps, a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

var errSelectorMismatch = errors.New("selector mismatch")

// ParseType parses a single type string such as "uint256", "address[]",
// "bytes" or "(address,uint256)[]".
func ParseType(typ string) (abi.Type, error) {
	p, err := parseParam(typ)
	if err != nil {
		return abi.Type{}, err
	}
	if p.name != "" || p.indexed {
		return abi.Type{}, fmt.Errorf("type %q must not carry a name", typ)
	}
	return abi.NewType(p.typ, "", marshalComponents(p.components))
}

// ParseTypes parses a list of type strings.
func ParseTypes(types ...string) ([]abi.Type, error) {
	out := make([]abi.Type, 0, len(types))
	for _, typ := range types {
		parsed, err := ParseType(typ)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}

// MustParseTypes is like ParseTypes but panics on error.
func MustParseTypes(types ...string) []abi.Type {
	out, err := ParseTypes(types...)
	if err != nil {
		panic(err)
	}
	return out
}

// Decode reads values of the given types from data using the head/tail
// layout. Static values are read in place; dynamic values follow the offset
// stored in their head slot.
func Decode(types []abi.Type, data []byte) ([]interface{}, error) {
	return unpack(argumentsOf(types), data, "decode", "")
}

// Encode packs values of the given types.
func Encode(types []abi.Type, values ...interface{}) ([]byte, error) {
	out, err := argumentsOf(types).Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("abi encode: %w", err)
	}
	return out, nil
}

// DecodeInput decodes call data (selector included) against the inputs.
func (s Signature) DecodeInput(callData []byte) (Values, error) {
	if !s.Matches(callData) {
		return Values{}, &DecodeError{Op: "decode input", Signature: s.Canonical, Err: errSelectorMismatch}
	}
	args := s.Inputs.NonIndexed()
	values, err := unpack(args, callData[4:], "decode input", s.Canonical)
	if err != nil {
		return Values{}, err
	}
	return newValues(args, values), nil
}

// DecodeOutput decodes return data against the outputs.
func (s Signature) DecodeOutput(returnData []byte) (Values, error) {
	values, err := unpack(s.Outputs, returnData, "decode output", s.Canonical)
	if err != nil {
		return Values{}, err
	}
	return newValues(s.Outputs, values), nil
}

// DecodeEventData decodes the non-indexed fields of an event log.
func (s Signature) DecodeEventData(data []byte) (Values, error) {
	args := s.Inputs.NonIndexed()
	values, err := unpack(args, data, "decode event", s.Canonical)
	if err != nil {
		return Values{}, err
	}
	return newValues(args, values), nil
}

// EncodeCall returns selector ++ packed inputs.
func (s Signature) EncodeCall(values ...interface{}) ([]byte, error) {
	packed, err := s.Inputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("abi encode %s: %w", s.Canonical, err)
	}
	sel := s.Selector()
	return append(sel[:], packed...), nil
}

// EncodeEventData packs the non-indexed fields of an event.
func (s Signature) EncodeEventData(values ...interface{}) ([]byte, error) {
	packed, err := s.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("abi encode %s data: %w", s.Canonical, err)
	}
	return packed, nil
}

// EncodeOutput packs return values.
func (s Signature) EncodeOutput(values ...interface{}) ([]byte, error) {
	packed, err := s.Outputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("abi encode %s outputs: %w", s.Canonical, err)
	}
	return packed, nil
}

func unpack(args abi.Arguments, data []byte, op, signature string) (values []interface{}, err error) {
	if len(args) == 0 {
		return nil, nil
	}
	// A hostile length word can panic inside the go-ethereum unpacker.
	defer func() {
		if r := recover(); r != nil {
			values = nil
			err = &DecodeError{Op: op, Signature: signature, Err: fmt.Errorf("%v", r)}
		}
	}()
	if len(data) < 32 {
		return nil, &DecodeError{Op: op, Signature: signature, Err: fmt.Errorf("data too short: %d bytes", len(data))}
	}
	values, err = args.Unpack(data)
	if err != nil {
		return nil, &DecodeError{Op: op, Signature: signature, Err: err}
	}
	return values, nil
}

func argumentsOf(types []abi.Type) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for i, typ := range types {
		args = append(args, abi.Argument{Name: fmt.Sprintf("arg%d", i), Type: typ})
	}
	return args
}

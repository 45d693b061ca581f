package abicodec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Values holds decoded arguments in declaration order, addressable by name.
type Values struct {
	names  []string
	values []interface{}
}

func newValues(args abi.Arguments, values []interface{}) Values {
	names := make([]string, 0, len(args))
	for _, arg := range args {
		names = append(names, arg.Name)
	}
	return Values{names: names, values: values}
}

// Len returns the number of decoded values.
func (v Values) Len() int {
	return len(v.values)
}

// At returns the i-th value or nil when out of range.
func (v Values) At(i int) interface{} {
	if i < 0 || i >= len(v.values) {
		return nil
	}
	return v.values[i]
}

// Get returns a value by parameter name.
func (v Values) Get(name string) (interface{}, bool) {
	for i, n := range v.names {
		if n == name && i < len(v.values) {
			return v.values[i], true
		}
	}
	return nil, false
}

// Big returns a copy of an integer value, or nil when absent or not an integer.
func (v Values) Big(name string) *big.Int {
	raw, ok := v.Get(name)
	if !ok {
		return nil
	}
	val, err := AsBigInt(raw)
	if err != nil {
		return nil
	}
	return val
}

// Address returns an address value.
func (v Values) Address(name string) (common.Address, bool) {
	raw, ok := v.Get(name)
	if !ok {
		return common.Address{}, false
	}
	addr, err := AsAddress(raw)
	if err != nil {
		return common.Address{}, false
	}
	return addr, true
}

// Addresses returns an address[] value.
func (v Values) Addresses(name string) []common.Address {
	raw, ok := v.Get(name)
	if !ok {
		return nil
	}
	addrs, ok := raw.([]common.Address)
	if !ok {
		return nil
	}
	return append([]common.Address(nil), addrs...)
}

// Bigs returns a uint256[] value.
func (v Values) Bigs(name string) []*big.Int {
	raw, ok := v.Get(name)
	if !ok {
		return nil
	}
	items, ok := raw.([]*big.Int)
	if !ok {
		return nil
	}
	out := make([]*big.Int, 0, len(items))
	for _, item := range items {
		out = append(out, new(big.Int).Set(item))
	}
	return out
}

// Bool returns a bool value.
func (v Values) Bool(name string) bool {
	raw, ok := v.Get(name)
	if !ok {
		return false
	}
	b, _ := raw.(bool)
	return b
}

// AsAddress converts an unpacked value to an address.
func AsAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

// AsBigInt converts an unpacked integer of any width to *big.Int.
func AsBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

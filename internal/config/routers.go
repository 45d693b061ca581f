package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/viper"

	"traceScope/internal/dex"
)

const defaultFeeBps = 30

// RouterEntry is one element of the routers config list.
type RouterEntry struct {
	Name          string `mapstructure:"name"`
	Address       string `mapstructure:"address"`
	Factory       string `mapstructure:"factory"`
	InitCodeHash  string `mapstructure:"init-code-hash"`
	WrappedNative string `mapstructure:"wrapped-native"`
	FeeBps        uint32 `mapstructure:"fee-bps"`
}

// loadRouters returns the built-in routers followed by the configured ones,
// so a configured router replaces a built-in one at the same address.
func loadRouters(v *viper.Viper) ([]dex.Router, error) {
	routers := dex.DefaultRouters()
	if !v.IsSet("routers") {
		return routers, nil
	}
	var entries []RouterEntry
	if err := v.UnmarshalKey("routers", &entries); err != nil {
		return nil, fmt.Errorf("parse routers: %w", err)
	}
	extra, err := ParseRouters(entries)
	if err != nil {
		return nil, err
	}
	return append(routers, extra...), nil
}

// ParseRouters validates router entries.
func ParseRouters(entries []RouterEntry) ([]dex.Router, error) {
	out := make([]dex.Router, 0, len(entries))
	for i, e := range entries {
		router := dex.Router{Name: e.Name, FeeBps: e.FeeBps}
		var err error
		if router.Address, err = parseAddress(e.Address); err != nil {
			return nil, fmt.Errorf("router %d address: %w", i, err)
		}
		if router.Factory, err = parseAddress(e.Factory); err != nil {
			return nil, fmt.Errorf("router %d factory: %w", i, err)
		}
		if router.WrappedNative, err = parseAddress(e.WrappedNative); err != nil {
			return nil, fmt.Errorf("router %d wrapped-native: %w", i, err)
		}
		hash, err := hexutil.Decode(e.InitCodeHash)
		if err != nil || len(hash) != common.HashLength {
			return nil, fmt.Errorf("router %d init-code-hash: invalid hash %q", i, e.InitCodeHash)
		}
		router.InitCodeHash = common.BytesToHash(hash)
		if router.FeeBps == 0 {
			router.FeeBps = defaultFeeBps
		}
		out = append(out, router)
	}
	return out, nil
}

func parseAddress(input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address %q", input)
	}
	return common.HexToAddress(input), nil
}

package dex

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"traceScope/internal/abicodec"
)

// NativeCurrency stands in for the chain's native currency wherever an action
// leg is paid or received natively rather than as a token.
var NativeCurrency = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Router describes a deployed Uniswap-V2 style router.
type Router struct {
	Name          string
	Address       common.Address
	Factory       common.Address
	InitCodeHash  common.Hash
	WrappedNative common.Address
	// FeeBps is the pair swap fee in basis points, 0 when unknown.
	FeeBps uint32

	pairs *PairCache
}

// PairFor returns the derived pair address of two tokens.
func (r *Router) PairFor(tokenA, tokenB common.Address) common.Address {
	token0, token1 := abicodec.SortTokens(tokenA, tokenB)
	key := PairKey{Token0: token0, Token1: token1}
	if r.pairs != nil {
		if pair, ok := r.pairs.Get(key); ok {
			return pair
		}
	}
	pair := abicodec.PairAddress(r.Factory, r.InitCodeHash, token0, token1)
	if r.pairs != nil {
		r.pairs.Set(key, pair)
	}
	return pair
}

// HopPools returns the pair address of every consecutive token pair in path.
func (r *Router) HopPools(path []common.Address) []common.Address {
	if len(path) < 2 {
		return nil
	}
	pools := make([]common.Address, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		pools = append(pools, r.PairFor(path[i], path[i+1]))
	}
	return pools
}

// PairKey is a sorted token pair.
type PairKey struct {
	Token0 common.Address
	Token1 common.Address
}

// PairCache caches derived pair addresses per sorted token pair.
type PairCache struct {
	mu   sync.RWMutex
	data map[PairKey]common.Address
}

func NewPairCache() *PairCache {
	return &PairCache{data: make(map[PairKey]common.Address)}
}

func (c *PairCache) Get(key PairKey) (common.Address, bool) {
	c.mu.RLock()
	pair, ok := c.data[key]
	c.mu.RUnlock()
	return pair, ok
}

func (c *PairCache) Set(key PairKey, pair common.Address) {
	c.mu.Lock()
	c.data[key] = pair
	c.mu.Unlock()
}

// DefaultRouters returns the built-in router table.
func DefaultRouters() []Router {
	return []Router{
		{
			Name:          "uniswap-v2",
			Address:       common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
			Factory:       common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
			InitCodeHash:  common.HexToHash("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f"),
			WrappedNative: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
			FeeBps:        30,
		},
		{
			Name:          "pancakeswap-v2",
			Address:       common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E"),
			Factory:       common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73"),
			InitCodeHash:  common.HexToHash("0x00fb7f630766e6a796048ea87d01acd3068e8ff67d078148a3fa3f4a84f69bd5"),
			WrappedNative: common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"),
			FeeBps:        25,
		},
	}
}

// Registry is a fixed lookup table keyed by router address. It is safe for
// concurrent use once built.
type Registry struct {
	routers map[common.Address]*Router
	order   []common.Address
}

// NewRegistry validates routers and indexes them by address. A later entry
// with the same address replaces an earlier one.
func NewRegistry(routers ...Router) (*Registry, error) {
	reg := &Registry{routers: make(map[common.Address]*Router, len(routers))}
	for i := range routers {
		r := routers[i]
		switch {
		case r.Address == (common.Address{}):
			return nil, fmt.Errorf("router %d (%s): address is required", i, r.Name)
		case r.Factory == (common.Address{}):
			return nil, fmt.Errorf("router %s: factory is required", r.Address.Hex())
		case r.InitCodeHash == (common.Hash{}):
			return nil, fmt.Errorf("router %s: init code hash is required", r.Address.Hex())
		case r.WrappedNative == (common.Address{}):
			return nil, fmt.Errorf("router %s: wrapped native token is required", r.Address.Hex())
		case r.FeeBps >= 10000:
			return nil, fmt.Errorf("router %s: fee %d bps out of range", r.Address.Hex(), r.FeeBps)
		}
		if r.Name == "" {
			r.Name = r.Address.Hex()
		}
		r.pairs = NewPairCache()
		if _, exists := reg.routers[r.Address]; !exists {
			reg.order = append(reg.order, r.Address)
		}
		reg.routers[r.Address] = &r
	}
	return reg, nil
}

// DefaultRegistry builds a registry from DefaultRouters.
func DefaultRegistry() *Registry {
	reg, err := NewRegistry(DefaultRouters()...)
	if err != nil {
		panic(err)
	}
	return reg
}

// Lookup returns the router deployed at addr.
func (r *Registry) Lookup(addr common.Address) (*Router, bool) {
	if r == nil {
		return nil, false
	}
	router, ok := r.routers[addr]
	return router, ok
}

// Routers returns the registered routers in insertion order.
func (r *Registry) Routers() []*Router {
	out := make([]*Router, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.routers[addr])
	}
	return out
}

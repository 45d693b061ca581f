package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"traceScope/internal/model"
)

// ContractCaller performs eth_call. *chain.Client implements it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Enricher resolves the metadata addresses a decode pass requested.
type Enricher struct {
	caller ContractCaller
	cache  *TokenMetaCache
	logger *zap.Logger
}

func NewEnricher(caller ContractCaller, cache *TokenMetaCache, logger *zap.Logger) *Enricher {
	if cache == nil {
		cache = NewTokenMetaCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{caller: caller, cache: cache, logger: logger}
}

// Resolve returns metadata for each address, fetching the ones not cached.
// Fetch failures are logged and cached as address-only entries so they are
// not retried in the same run; they never fail the call unless ctx is done.
func (e *Enricher) Resolve(ctx context.Context, addrs []common.Address) ([]model.TokenMeta, error) {
	out := make([]model.TokenMeta, 0, len(addrs))
	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if meta, ok := e.cache.Get(addr); ok {
			out = append(out, meta)
			continue
		}
		meta, err := FetchTokenMeta(ctx, e.caller, addr, e.logger)
		if err != nil {
			e.logger.Warn("token metadata fetch failed", zap.String("token", addr.Hex()), zap.Error(err))
		}
		e.cache.Set(addr, meta)
		out = append(out, meta)
	}
	return out, nil
}

// FetchTokenMeta loads token metadata via ERC20 calls.
func FetchTokenMeta(ctx context.Context, caller ContractCaller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("contract caller is nil")
	}

	stringABI, err := erc20MetaString.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20MetaBytes32.get()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		msg := ethereum.CallMsg{To: &token, Data: data}
		resp, err := caller.CallContract(ctx, msg, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		values, err := parsed.Unpack(method, resp)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		return values, nil
	}

	values, err := call("decimals", stringABI)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	meta.Symbol = readText(call, "symbol", stringABI, bytes32ABI, token, logger)
	meta.Name = readText(call, "name", stringABI, bytes32ABI, token, logger)
	return meta, nil
}

// readText calls a string getter and falls back to the bytes32 variant some
// older tokens expose.
func readText(call func(string, abi.ABI) ([]interface{}, error), method string, stringABI, bytes32ABI abi.ABI, token common.Address, logger *zap.Logger) string {
	if values, err := call(method, stringABI); err == nil {
		if text, ok := values[0].(string); ok {
			return text
		}
	}
	values, err := call(method, bytes32ABI)
	if err == nil {
		if text, ok := bytes32ToString(values[0]); ok {
			return text
		}
	} else if logger != nil {
		logger.Debug(method+" call failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	return ""
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case uint16:
		return uint8(v), nil
	case uint32:
		return uint8(v), nil
	case uint64:
		return uint8(v), nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

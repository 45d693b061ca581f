package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"traceScope/internal/model"
)

// poolActivity is the share of one action that lands on one pool. Amounts
// are in pool token order and nil when the action did not resolve them.
type poolActivity struct {
	Pool    model.PoolMeta
	Router  string
	Kind    string
	Partial bool

	In0, In1   *big.Int
	Out0, Out1 *big.Int
	// Liq0 and Liq1 are the token amounts added or removed.
	Liq0, Liq1 *big.Int
}

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	ChainID      uint64
	PoolAddress  string
	PoolMeta     model.PoolMeta
	Router       string
	WindowStart  uint64
	WindowEnd    uint64
	SwapCount    uint64
	AddCount     uint64
	RemoveCount  uint64
	PartialCount uint64
	Volume0      *big.Int
	Volume1      *big.Int
	Fee0         *big.Int
	Fee1         *big.Int
	Added0       *big.Int
	Added1       *big.Int
	Removed0     *big.Int
	Removed1     *big.Int
	LastBlock    uint64
	LastTS       uint64
	FirstBlock   uint64
}

func NewAccumulator(record model.RawActionRecord, activity poolActivity, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:     record.ChainID,
		PoolAddress: activity.Pool.Address,
		PoolMeta:    activity.Pool,
		Router:      activity.Router,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Volume0:     big.NewInt(0),
		Volume1:     big.NewInt(0),
		Fee0:        big.NewInt(0),
		Fee1:        big.NewInt(0),
		Added0:      big.NewInt(0),
		Added1:      big.NewInt(0),
		Removed0:    big.NewInt(0),
		Removed1:    big.NewInt(0),
		LastBlock:   record.BlockNumber,
		LastTS:      record.Timestamp,
		FirstBlock:  record.BlockNumber,
	}
}

func (a *Accumulator) AddActivity(record model.RawActionRecord, activity poolActivity) {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}
	if activity.Partial {
		a.PartialCount++
	}

	switch activity.Kind {
	case model.KindSwap:
		a.SwapCount++
		absAdd(a.Volume0, activity.In0)
		absAdd(a.Volume0, activity.Out0)
		absAdd(a.Volume1, activity.In1)
		absAdd(a.Volume1, activity.Out1)
		feeBps := a.PoolMeta.FeeBps
		if feeBps == 0 {
			return
		}
		if activity.In0 != nil {
			a.Fee0.Add(a.Fee0, feeFromAmount(activity.In0, feeBps))
		}
		if activity.In1 != nil {
			a.Fee1.Add(a.Fee1, feeFromAmount(activity.In1, feeBps))
		}
	case model.KindAddLiquidity:
		a.AddCount++
		absAdd(a.Added0, activity.Liq0)
		absAdd(a.Added1, activity.Liq1)
	case model.KindRemoveLiquidity:
		a.RemoveCount++
		absAdd(a.Removed0, activity.Liq0)
		absAdd(a.Removed1, activity.Liq1)
	}
}

// splitAction maps an action record onto the pools it touched. A swap counts
// once on every hop pool; its input amount lands on the first hop and its
// output amount on the last.
func splitAction(record model.RawActionRecord) ([]poolActivity, error) {
	switch record.Kind {
	case model.KindSwap:
		var swap model.SwapData
		if err := json.Unmarshal(record.Decoded, &swap); err != nil {
			return nil, fmt.Errorf("decode swap: %w", err)
		}
		return splitSwap(record, swap)
	case model.KindAddLiquidity:
		var add model.AddLiquidityData
		if err := json.Unmarshal(record.Decoded, &add); err != nil {
			return nil, fmt.Errorf("decode add liquidity: %w", err)
		}
		return splitLiquidity(record, add.Pool, add.TokenA, add.AmountA, add.AmountB)
	case model.KindRemoveLiquidity:
		var remove model.RemoveLiquidityData
		if err := json.Unmarshal(record.Decoded, &remove); err != nil {
			return nil, fmt.Errorf("decode remove liquidity: %w", err)
		}
		return splitLiquidity(record, remove.Pool, remove.TokenA, remove.AmountA, remove.AmountB)
	default:
		return nil, nil
	}
}

func splitSwap(record model.RawActionRecord, swap model.SwapData) ([]poolActivity, error) {
	if len(swap.Hops) == 0 || len(swap.Path) != len(swap.Hops)+1 {
		return nil, fmt.Errorf("swap has %d hops for a %d token path", len(swap.Hops), len(swap.Path))
	}
	amountIn, err := parseAmount(swap.AmountIn)
	if err != nil {
		return nil, err
	}
	amountOut, err := parseAmount(swap.AmountOut)
	if err != nil {
		return nil, err
	}

	out := make([]poolActivity, 0, len(swap.Hops))
	for i, hop := range swap.Hops {
		activity := poolActivity{
			Pool:    hop,
			Router:  record.Router,
			Kind:    model.KindSwap,
			Partial: record.Partial,
		}
		if i == 0 {
			if sameAddress(swap.Path[0], hop.Token0) {
				activity.In0 = amountIn
			} else {
				activity.In1 = amountIn
			}
		}
		if i == len(swap.Hops)-1 {
			if sameAddress(swap.Path[len(swap.Path)-1], hop.Token0) {
				activity.Out0 = amountOut
			} else {
				activity.Out1 = amountOut
			}
		}
		out = append(out, activity)
	}
	return out, nil
}

func splitLiquidity(record model.RawActionRecord, pool model.PoolMeta, tokenA, amountA, amountB string) ([]poolActivity, error) {
	if pool.Address == "" {
		return nil, fmt.Errorf("missing pool")
	}
	a, err := parseAmount(amountA)
	if err != nil {
		return nil, err
	}
	b, err := parseAmount(amountB)
	if err != nil {
		return nil, err
	}
	activity := poolActivity{
		Pool:    pool,
		Router:  record.Router,
		Kind:    record.Kind,
		Partial: record.Partial,
	}
	// TokenB is the native side for ETH variants, so TokenA decides the order.
	if sameAddress(tokenA, pool.Token0) {
		activity.Liq0, activity.Liq1 = a, b
	} else {
		activity.Liq0, activity.Liq1 = b, a
	}
	return []poolActivity{activity}, nil
}

// parseAmount returns nil for an unknown (empty) amount.
func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

func absAdd(target *big.Int, value *big.Int) {
	if value == nil || target == nil {
		return
	}
	abs := new(big.Int).Abs(value)
	target.Add(target, abs)
}

func feeFromAmount(amountIn *big.Int, feeBps uint32) *big.Int {
	if amountIn == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Abs(amountIn)
	fee.Mul(fee, big.NewInt(int64(feeBps)))
	fee.Div(fee, big.NewInt(10_000))
	return fee
}

package aggregate

import (
	"math/big"
	"strings"
)

const (
	ratioScale    = 18
	secondsInYear = 365 * 24 * 60 * 60
)

// formatTokenAmount renders a raw token amount with decimals fractional
// digits.
func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	digits := new(big.Int).Abs(value).String()
	width := int(decimals) + 1
	if len(digits) < width {
		digits = strings.Repeat("0", width-len(digits)) + digits
	}
	split := len(digits) - int(decimals)
	text := digits[:split] + "." + digits[split:]
	if value.Sign() < 0 {
		return "-" + text
	}
	return text
}

// feeRate is the fee earned in one token as a fraction of the pool's
// reserve of that token. Empty when either side is unknown or zero.
func feeRate(fee, reserve *big.Int) *big.Rat {
	if fee == nil || fee.Sign() == 0 || reserve == nil || reserve.Sign() == 0 {
		return nil
	}
	return new(big.Rat).SetFrac(fee, reserve)
}

func ratString(r *big.Rat) *string {
	if r == nil {
		return nil
	}
	s := r.FloatString(ratioScale)
	return &s
}

// computeAPR annualizes the window's fee yield. Both reserves of a V2 pair
// hold equal value, so the yield on the whole pool is the mean of the two
// per-token rates. A side without fees contributes zero once its reserve is
// known.
func computeAPR(fee0, fee1, reserve0, reserve1 *big.Int, windowSeconds uint64) *string {
	if windowSeconds == 0 || reserve0 == nil || reserve1 == nil || reserve0.Sign() == 0 || reserve1.Sign() == 0 {
		return nil
	}
	yield := new(big.Rat)
	if r := feeRate(fee0, reserve0); r != nil {
		yield.Add(yield, r)
	}
	if r := feeRate(fee1, reserve1); r != nil {
		yield.Add(yield, r)
	}
	if yield.Sign() == 0 {
		return nil
	}
	yield.Quo(yield, big.NewRat(2, 1))
	yield.Mul(yield, big.NewRat(secondsInYear, int64(windowSeconds)))
	return ratString(yield)
}

package aggregate

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"traceScope/internal/abicodec"
	"traceScope/internal/dex"
)

var getReservesSig = abicodec.MustParseSignature("getReserves() returns (uint112 reserve0, uint112 reserve1, uint32 blockTimestampLast)")

// fetchReserves reads pair reserves at blockNumber, falling back to the
// latest state when the node has pruned that block.
func (a *Aggregator) fetchReserves(ctx context.Context, poolAddr string, blockNumber uint64) (*big.Int, *big.Int, string, error) {
	if !common.IsHexAddress(poolAddr) {
		return nil, nil, reserveMethodNone, fmt.Errorf("invalid pool address: %s", poolAddr)
	}
	pool := common.HexToAddress(poolAddr)

	r0, r1, err := getReserves(ctx, a.caller, pool, new(big.Int).SetUint64(blockNumber))
	if err == nil {
		return r0, r1, reserveMethodBlock, nil
	}
	a.logger.Debug("reserves at block failed", zap.String("pool", poolAddr), zap.Error(err))

	r0, r1, err = getReserves(ctx, a.caller, pool, nil)
	if err == nil {
		return r0, r1, reserveMethodLatest, nil
	}
	return nil, nil, reserveMethodNone, fmt.Errorf("getReserves failed: %w", err)
}

func getReserves(ctx context.Context, caller dex.ContractCaller, pool common.Address, blockNumber *big.Int) (*big.Int, *big.Int, error) {
	if caller == nil {
		return nil, nil, fmt.Errorf("contract caller is nil")
	}
	data, err := getReservesSig.EncodeCall()
	if err != nil {
		return nil, nil, fmt.Errorf("pack getReserves: %w", err)
	}

	msg := ethereum.CallMsg{To: &pool, Data: data}
	resp, err := caller.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("call getReserves: %w", err)
	}

	values, err := getReservesSig.DecodeOutput(resp)
	if err != nil {
		return nil, nil, err
	}
	r0, r1 := values.Big("reserve0"), values.Big("reserve1")
	if r0 == nil || r1 == nil {
		return nil, nil, fmt.Errorf("getReserves returned %d values", values.Len())
	}
	return r0, r1, nil
}

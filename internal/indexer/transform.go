package indexer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"traceScope/internal/abicodec"
	"traceScope/internal/dex"
	"traceScope/internal/model"
)

// TxContext is the block and transaction context of one trace.
type TxContext struct {
	ChainID     uint64
	BlockNumber uint64
	BlockHash   string
	TxHash      string
	TxIndex     uint64
	Timestamp   uint64
}

func txContextFromRecord(record model.TraceRecord) TxContext {
	return TxContext{
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		BlockHash:   record.BlockHash,
		TxHash:      record.TxHash,
		TxIndex:     record.TxIndex,
		Timestamp:   record.Timestamp,
	}
}

// BuildActionRecords converts the claims of one trace into storage records.
// Actions of an unknown type are skipped.
func BuildActionRecords(tx TxContext, claims []dex.Claim, routers *dex.Registry) []model.ActionRecord {
	records := make([]model.ActionRecord, 0, len(claims))
	for _, claim := range claims {
		record, ok := buildActionRecord(tx, claim, routers)
		if !ok {
			continue
		}
		records = append(records, record)
	}
	return records
}

// BuildDecodeErrors converts per-node decode failures into error records.
func BuildDecodeErrors(tx TxContext, failures []dex.Failure) []model.DecodeError {
	out := make([]model.DecodeError, 0, len(failures))
	for _, f := range failures {
		out = append(out, model.DecodeError{
			ChainID:     tx.ChainID,
			BlockNumber: tx.BlockNumber,
			TxHash:      tx.TxHash,
			Stage:       model.StageDecode,
			Path:        f.Path,
			Decoder:     f.Decoder,
			Error:       f.Err.Error(),
		})
	}
	return out
}

func buildActionRecord(tx TxContext, claim dex.Claim, routers *dex.Registry) (model.ActionRecord, bool) {
	base := claim.Action.Base()
	record := model.ActionRecord{
		ChainID:     tx.ChainID,
		BlockNumber: tx.BlockNumber,
		BlockHash:   tx.BlockHash,
		TxHash:      tx.TxHash,
		TxIndex:     tx.TxIndex,
		TracePath:   claim.Path,
		Timestamp:   tx.Timestamp,
		Kind:        string(claim.Action.Kind()),
		Decoder:     claim.Decoder,
		Function:    base.Function,
		Router:      base.Router.Hex(),
		Operator:    base.Operator.Hex(),
		Recipient:   base.Recipient.Hex(),
		Partial:     base.Partial,
		Reverted:    base.Reverted,
		Issues:      base.Issues,
	}
	router, _ := routers.Lookup(base.Router)

	switch action := claim.Action.(type) {
	case *dex.Swap:
		record.Decoded = swapData(action, router)
	case *dex.AddLiquidity:
		record.Decoded = model.AddLiquidityData{
			Pool:           poolMeta(action.Pool, action.TokenA, action.TokenB, router),
			TokenA:         action.TokenA.Hex(),
			TokenB:         action.TokenB.Hex(),
			AmountADesired: amountString(action.AmountADesired),
			AmountBDesired: amountString(action.AmountBDesired),
			AmountAMin:     amountString(action.AmountAMin),
			AmountBMin:     amountString(action.AmountBMin),
			AmountA:        amountString(action.AmountA),
			AmountB:        amountString(action.AmountB),
			Liquidity:      amountString(action.Liquidity),
			Refund:         amountString(action.Refund),
			Deadline:       amountString(action.Deadline),
			PairCreated:    action.PairCreated,
		}
	case *dex.RemoveLiquidity:
		record.Decoded = model.RemoveLiquidityData{
			Pool:          poolMeta(action.Pool, action.TokenA, action.TokenB, router),
			TokenA:        action.TokenA.Hex(),
			TokenB:        action.TokenB.Hex(),
			Liquidity:     amountString(action.Liquidity),
			AmountAMin:    amountString(action.AmountAMin),
			AmountBMin:    amountString(action.AmountBMin),
			AmountA:       amountString(action.AmountA),
			AmountB:       amountString(action.AmountB),
			Deadline:      amountString(action.Deadline),
			Permit:        action.Permit,
			FeeOnTransfer: action.FeeOnTransfer,
		}
	default:
		return model.ActionRecord{}, false
	}
	return record, true
}

func swapData(swap *dex.Swap, router *dex.Router) model.SwapData {
	data := model.SwapData{
		Path:          hexAddresses(swap.Path),
		Hops:          make([]model.PoolMeta, 0, len(swap.Pools)),
		TokenIn:       swap.TokenIn.Hex(),
		TokenOut:      swap.TokenOut.Hex(),
		AmountIn:      amountString(swap.AmountIn),
		AmountOut:     amountString(swap.AmountOut),
		AmountOutMin:  amountString(swap.AmountOutMin),
		AmountInMax:   amountString(swap.AmountInMax),
		Deadline:      amountString(swap.Deadline),
		InSource:      string(swap.AmountInSource),
		OutSource:     string(swap.AmountOutSource),
		ExactIn:       swap.ExactIn,
		NativeIn:      swap.NativeIn,
		NativeOut:     swap.NativeOut,
		FeeOnTransfer: swap.FeeOnTransfer,
	}
	for i, pool := range swap.Pools {
		if i+1 >= len(swap.Path) {
			break
		}
		data.Hops = append(data.Hops, poolMeta(pool, swap.Path[i], swap.Path[i+1], router))
	}
	return data
}

// poolMeta describes a pair by its sorted tokens. The native placeholder is
// replaced by the router's wrapped token, which is what the pair holds.
func poolMeta(pool, tokenA, tokenB common.Address, router *dex.Router) model.PoolMeta {
	var fee uint32
	if router != nil {
		fee = router.FeeBps
		if tokenA == dex.NativeCurrency {
			tokenA = router.WrappedNative
		}
		if tokenB == dex.NativeCurrency {
			tokenB = router.WrappedNative
		}
	}
	token0, token1 := abicodec.SortTokens(tokenA, tokenB)
	return model.PoolMeta{
		Address: pool.Hex(),
		Token0:  token0.Hex(),
		Token1:  token1.Hex(),
		FeeBps:  fee,
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func hexAddresses(addrs []common.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, addr.Hex())
	}
	return out
}

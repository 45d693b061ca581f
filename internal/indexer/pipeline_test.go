package indexer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"traceScope/internal/abicodec"
	"traceScope/internal/dex"
	"traceScope/internal/model"
)

func TestPipelineReportsParseAndDecodeFailures(t *testing.T) {
	selectorOnly := []byte(`{"type":"CALL","from":"0x1111111111111111111111111111111111111111","to":"` + uniswap.Address.Hex() + `","input":"0x38ed1739"}`)
	records := []model.TraceRecord{
		{ChainID: 1, BlockNumber: 5, TxHash: "0x01", Trace: []byte(`{"from":"0x1111111111111111111111111111111111111111"}`)},
		{ChainID: 1, BlockNumber: 5, TxHash: "0x02", Trace: selectorOnly},
		{ChainID: 1, BlockNumber: 5, TxHash: "0x03", Trace: swapFrame(t)},
	}

	out, err := newTestPipeline(t).DecodeRecords(context.Background(), records, 2)
	require.NoError(t, err)

	require.Len(t, out.Actions, 1)
	require.Equal(t, "0x03", out.Actions[0].TxHash)

	require.Len(t, out.Errors, 2)
	require.Equal(t, model.StageTrace, out.Errors[0].Stage)
	require.Equal(t, "0x01", out.Errors[0].TxHash)
	require.Equal(t, model.StageDecode, out.Errors[1].Stage)
	require.Equal(t, "0x02", out.Errors[1].TxHash)
	require.Equal(t, "", out.Errors[1].Path)
	require.Equal(t, "uniswap-v2-swap", out.Errors[1].Decoder)

	require.Equal(t, []common.Address{tokenA, tokenB}, out.Metadata)
}

func TestBuildActionRecordsNativeLegs(t *testing.T) {
	reg, err := dex.NewRegistry(dex.DefaultRouters()...)
	require.NoError(t, err)
	pool := uniswap.PairFor(uniswap.WrappedNative, tokenA)

	claims := []dex.Claim{{
		Path:    "0.1",
		Decoder: "uniswap-v2-swap",
		Action: &dex.Swap{
			ActionBase: dex.ActionBase{
				Decoder:   "uniswap-v2-swap",
				Function:  "swapExactETHForTokens(uint256,address[],address,uint256)",
				Path:      "0.1",
				Router:    uniswap.Address,
				Operator:  operator,
				Recipient: recipient,
				Partial:   true,
				Issues:    []string{"output amount unresolved"},
			},
			SwapFlags: dex.SwapFlags{ExactIn: true, NativeIn: true},
			Path:      []common.Address{uniswap.WrappedNative, tokenA},
			Pools:     []common.Address{pool},
			TokenIn:   dex.NativeCurrency,
			TokenOut:  tokenA,
			AmountIn:  big.NewInt(5),
		},
	}}
	tx := TxContext{ChainID: 1, BlockNumber: 9, TxHash: "0x09", Timestamp: 1700000000}

	records := BuildActionRecords(tx, claims, reg)
	require.Len(t, records, 1)
	record := records[0]
	require.Equal(t, "0.1", record.TracePath)
	require.True(t, record.Partial)
	require.Equal(t, []string{"output amount unresolved"}, record.Issues)

	data := record.Decoded.(model.SwapData)
	require.Equal(t, dex.NativeCurrency.Hex(), data.TokenIn)
	require.Equal(t, "5", data.AmountIn)
	require.Equal(t, "", data.AmountOut)
	require.True(t, data.NativeIn)

	token0, token1 := abicodec.SortTokens(uniswap.WrappedNative, tokenA)
	require.Equal(t, model.PoolMeta{Address: pool.Hex(), Token0: token0.Hex(), Token1: token1.Hex(), FeeBps: 30}, data.Hops[0])
}

func TestBuildActionRecordsCarriesReverted(t *testing.T) {
	reg, err := dex.NewRegistry(dex.DefaultRouters()...)
	require.NoError(t, err)

	claims := []dex.Claim{{
		Path:    "",
		Decoder: "uniswap-v2-remove-liquidity",
		Action: &dex.RemoveLiquidity{
			ActionBase: dex.ActionBase{
				Decoder:  "uniswap-v2-remove-liquidity",
				Router:   uniswap.Address,
				Operator: operator,
				Reverted: true,
				Issues:   []string{"call reverted: out of gas"},
			},
			Pool:      uniswap.PairFor(tokenA, tokenB),
			TokenA:    tokenA,
			TokenB:    tokenB,
			Liquidity: big.NewInt(10),
		},
	}}
	records := BuildActionRecords(TxContext{ChainID: 1, BlockNumber: 9, TxHash: "0x0a"}, claims, reg)
	require.Len(t, records, 1)
	require.True(t, records[0].Reverted)
	require.False(t, records[0].Partial)
	require.Equal(t, model.KindRemoveLiquidity, records[0].Kind)
	require.Equal(t, []string{"call reverted: out of gas"}, records[0].Issues)
}

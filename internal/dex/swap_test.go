package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"traceScope/internal/abicodec"
	"traceScope/internal/trace"
)

const (
	sigExactTokensForTokens = "swapExactTokensForTokens(uint256 amountIn, uint256 amountOutMin, address[] path, address to, uint256 deadline) returns (uint256[] amounts)"
	sigTokensForExactTokens = "swapTokensForExactTokens(uint256 amountOut, uint256 amountInMax, address[] path, address to, uint256 deadline) returns (uint256[] amounts)"
	sigExactETHForTokens    = "swapExactETHForTokens(uint256 amountOutMin, address[] path, address to, uint256 deadline) returns (uint256[] amounts)"
	sigETHForExactTokens    = "swapETHForExactTokens(uint256 amountOut, address[] path, address to, uint256 deadline) returns (uint256[] amounts)"
	sigExactTokensForFOT    = "swapExactTokensForTokensSupportingFeeOnTransferTokens(uint256,uint256,address[],address,uint256)"
	sigExactTokensForETHFOT = "swapExactTokensForETHSupportingFeeOnTransferTokens(uint256,uint256,address[],address,uint256)"
)

func singleSwap(t *testing.T, res Result) *Swap {
	t.Helper()
	require.Len(t, res.Claims, 1)
	swap, ok := res.Claims[0].Action.(*Swap)
	require.True(t, ok, "claim is %T", res.Claims[0].Action)
	return swap
}

// exactInTree is swapExactTokensForTokens(100, 1, [A,B]) to router with a
// pool Swap event reporting amount0Out=95.
func exactInTree(t *testing.T, router common.Address, pair common.Address) *trace.Node {
	v2 := mustV2ABI()
	input := encodeCall(t, routerSig(t, sigExactTokensForTokens), big.NewInt(100), big.NewInt(1), []common.Address{tokenA, tokenB}, recipient, deadline)
	return assemble(callNode(operator, router, input,
		callNode(router, tokenA, encodeCall(t, v2.TransferFrom, operator, pair, big.NewInt(100))),
		withLogs(
			callNode(router, pair, encodeCall(t, v2.PairSwap, big.NewInt(95), big.NewInt(0), recipient, []byte{}),
				callNode(pair, tokenB, encodeCall(t, v2.Transfer, recipient, big.NewInt(95))),
			),
			swapLog(t, pair, recipient, 0, 100, 95, 0),
		),
	))
}

func TestSwapAmountOutFromPoolLog(t *testing.T) {
	engine, reg := testEngine(t)
	router, ok := reg.Lookup(routerAddr)
	require.True(t, ok)
	pair := router.PairFor(tokenA, tokenB)

	res := engine.Decode(exactInTree(t, routerAddr, pair))
	swap := singleSwap(t, res)

	requireBig(t, 100, swap.AmountIn, "amountIn")
	requireBig(t, 95, swap.AmountOut, "amountOut")
	requireBig(t, 1, swap.AmountOutMin, "amountOutMin")
	require.Equal(t, tokenA, swap.TokenIn)
	require.Equal(t, tokenB, swap.TokenOut)
	require.Equal(t, SourceArgs, swap.AmountInSource)
	require.Equal(t, SourceLog, swap.AmountOutSource)
	require.Equal(t, []common.Address{pair}, swap.Pools)
	require.Equal(t, recipient, swap.Recipient)
	require.Equal(t, operator, swap.Operator)
	require.Equal(t, "swapExactTokensForTokens(uint256,uint256,address[],address,uint256)", swap.Function)
	require.False(t, swap.Partial)
	require.NoError(t, swap.Mismatch())

	require.Equal(t, res.Nodes, res.Consumed)
	require.Equal(t, []common.Address{tokenA, tokenB}, res.Metadata)
}

func TestSwapUnknownRouterIsNotClaimed(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, tokenB)
	unknown := common.HexToAddress("0x9999999999999999999999999999999999999999")

	tree := exactInTree(t, unknown, pair)
	res := engine.Decode(tree)
	require.Empty(t, res.Claims)
	require.Empty(t, res.Failures)
	require.Zero(t, res.Consumed)
	require.Empty(t, res.Metadata)

	decoder, err := NewSwapDecoder(reg)
	require.NoError(t, err)
	require.False(t, decoder.Recognizes(tree))
	action, err := decoder.DecodeCall(NewState(), tree)
	require.NoError(t, err)
	require.Nil(t, action)
}

func TestSwapFeeOnTransferBalanceDiff(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, tokenB)
	v2 := mustV2ABI()

	balanceOf := encodeCall(t, v2.BalanceOf, recipient)
	input := encodeCall(t, routerSig(t, sigExactTokensForFOT), big.NewInt(100), big.NewInt(1), []common.Address{tokenA, tokenB}, recipient, deadline)
	tree := assemble(callNode(operator, routerAddr, input,
		callNode(routerAddr, tokenA, encodeCall(t, v2.TransferFrom, operator, pair, big.NewInt(100))),
		staticNode(routerAddr, tokenB, balanceOf, uint256Word(t, 1000)),
		callNode(routerAddr, pair, encodeCall(t, v2.PairSwap, big.NewInt(90), big.NewInt(0), recipient, []byte{}),
			callNode(pair, tokenB, encodeCall(t, v2.Transfer, recipient, big.NewInt(90))),
		),
		staticNode(routerAddr, tokenB, balanceOf, uint256Word(t, 1080)),
	))

	swap := singleSwap(t, engine.Decode(tree))
	require.True(t, swap.FeeOnTransfer)
	requireBig(t, 100, swap.AmountIn, "amountIn")
	requireBig(t, 80, swap.AmountOut, "amountOut")
	require.Equal(t, SourceBalance, swap.AmountOutSource)
	require.False(t, swap.Partial)
}

func TestSwapFeeOnTransferNativeOut(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, wrappedNative)
	v2 := mustV2ABI()

	input := encodeCall(t, routerSig(t, sigExactTokensForETHFOT), big.NewInt(100), big.NewInt(1), []common.Address{tokenA, wrappedNative}, recipient, deadline)
	tree := assemble(callNode(operator, routerAddr, input,
		callNode(routerAddr, tokenA, encodeCall(t, v2.TransferFrom, operator, pair, big.NewInt(100))),
		callNode(routerAddr, pair, encodeCall(t, v2.PairSwap, big.NewInt(0), big.NewInt(500), routerAddr, []byte{}),
			callNode(pair, wrappedNative, encodeCall(t, v2.Transfer, routerAddr, big.NewInt(500))),
		),
		staticNode(routerAddr, wrappedNative, encodeCall(t, v2.BalanceOf, routerAddr), uint256Word(t, 500)),
		callNode(routerAddr, wrappedNative, encodeCall(t, v2.Withdraw, big.NewInt(500)),
			valueNode(wrappedNative, routerAddr, 500),
		),
		valueNode(routerAddr, recipient, 500),
	))

	res := engine.Decode(tree)
	swap := singleSwap(t, res)
	require.Equal(t, NativeCurrency, swap.TokenOut)
	requireBig(t, 500, swap.AmountOut, "amountOut")
	require.Equal(t, SourceNative, swap.AmountOutSource)
	require.Equal(t, res.Nodes, res.Consumed)
	require.Equal(t, []common.Address{tokenA, wrappedNative}, res.Metadata)
}

func TestSwapExactETHForTokensUsesValueAndReturnData(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(wrappedNative, tokenA)
	v2 := mustV2ABI()

	sig := routerSig(t, sigExactETHForTokens)
	input := encodeCall(t, sig, big.NewInt(1), []common.Address{wrappedNative, tokenA}, recipient, deadline)
	node := callNode(operator, routerAddr, input,
		withValue(callNode(routerAddr, wrappedNative, encodeCall(t, v2.Deposit)), big.NewInt(1000)),
		callNode(routerAddr, wrappedNative, encodeCall(t, v2.Transfer, pair, big.NewInt(1000))),
		callNode(routerAddr, pair, encodeCall(t, v2.PairSwap, big.NewInt(500), big.NewInt(0), recipient, []byte{})),
	)
	withValue(node, big.NewInt(1000))
	withReturn(node, encodeOutput(t, sig, []*big.Int{big.NewInt(1000), big.NewInt(500)}))

	res := engine.Decode(assemble(node))
	swap := singleSwap(t, res)
	require.Equal(t, NativeCurrency, swap.TokenIn)
	require.Equal(t, tokenA, swap.TokenOut)
	requireBig(t, 1000, swap.AmountIn, "amountIn")
	require.Equal(t, SourceValue, swap.AmountInSource)
	requireBig(t, 500, swap.AmountOut, "amountOut")
	require.Equal(t, SourceReturn, swap.AmountOutSource)
	require.Equal(t, res.Nodes, res.Consumed)
}

func TestSwapETHForExactTokensRefund(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(wrappedNative, tokenA)
	v2 := mustV2ABI()

	sig := routerSig(t, sigETHForExactTokens)
	node := callNode(operator, routerAddr, encodeCall(t, sig, big.NewInt(500), []common.Address{wrappedNative, tokenA}, recipient, deadline),
		withValue(callNode(routerAddr, wrappedNative, encodeCall(t, v2.Deposit)), big.NewInt(1000)),
		callNode(routerAddr, wrappedNative, encodeCall(t, v2.Transfer, pair, big.NewInt(1000))),
		callNode(routerAddr, pair, encodeCall(t, v2.PairSwap, big.NewInt(500), big.NewInt(0), recipient, []byte{})),
		valueNode(routerAddr, operator, 200),
	)
	withValue(node, big.NewInt(1200))
	withReturn(node, encodeOutput(t, sig, []*big.Int{big.NewInt(1000), big.NewInt(500)}))

	res := engine.Decode(assemble(node))
	swap := singleSwap(t, res)
	require.False(t, swap.ExactIn)
	requireBig(t, 500, swap.AmountOut, "amountOut")
	require.Equal(t, SourceArgs, swap.AmountOutSource)
	requireBig(t, 1200, swap.AmountInMax, "amountInMax")
	requireBig(t, 1000, swap.AmountIn, "amountIn")
	require.Equal(t, SourceReturn, swap.AmountInSource)
	require.Equal(t, res.Nodes, res.Consumed)
}

func TestSwapMultiHopUsesFirstAndLastPool(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	v2 := mustV2ABI()
	first := router.PairFor(tokenA, tokenC)
	last := router.PairFor(tokenC, tokenB)

	// exact-out so both legs come from logs
	input := encodeCall(t, routerSig(t, sigTokensForExactTokens), big.NewInt(40), big.NewInt(1000), []common.Address{tokenA, tokenC, tokenB}, recipient, deadline)
	tree := assemble(callNode(operator, routerAddr, input,
		callNode(routerAddr, tokenA, encodeCall(t, v2.TransferFrom, operator, first, big.NewInt(77))),
		// A < C, so token0 of the first pool is A
		withLogs(callNode(routerAddr, first, encodeCall(t, v2.PairSwap, big.NewInt(0), big.NewInt(60), last, []byte{})),
			swapLog(t, first, last, 77, 0, 0, 60)),
		// B < C, so token0 of the last pool is B
		withLogs(callNode(routerAddr, last, encodeCall(t, v2.PairSwap, big.NewInt(40), big.NewInt(0), recipient, []byte{})),
			swapLog(t, last, recipient, 0, 60, 40, 0)),
	))

	swap := singleSwap(t, engine.Decode(tree))
	require.Equal(t, []common.Address{first, last}, swap.Pools)
	requireBig(t, 77, swap.AmountIn, "amountIn")
	require.Equal(t, SourceLog, swap.AmountInSource)
	requireBig(t, 40, swap.AmountOut, "amountOut")
	require.Equal(t, SourceArgs, swap.AmountOutSource)
	requireBig(t, 1000, swap.AmountInMax, "amountInMax")
}

func TestSwapSelectorMatchingIsExact(t *testing.T) {
	engine, _ := testEngine(t)
	path := []common.Address{tokenA, tokenB}

	// Same argument layout, different function.
	exactOut := encodeCall(t, routerSig(t, sigTokensForExactTokens), big.NewInt(100), big.NewInt(1), path, recipient, deadline)
	swap := singleSwap(t, engine.Decode(assemble(callNode(operator, routerAddr, exactOut))))
	require.False(t, swap.ExactIn)
	requireBig(t, 100, swap.AmountOut, "amountOut")
	requireBig(t, 1, swap.AmountInMax, "amountInMax")
	require.Nil(t, swap.AmountIn)
	require.True(t, swap.Partial)

	// Same arguments under an unregistered name.
	unregistered := encodeCall(t, routerSig(t, "swapExactTokensForTokensV2(uint256,uint256,address[],address,uint256)"), big.NewInt(100), big.NewInt(1), path, recipient, deadline)
	res := engine.Decode(assemble(callNode(operator, routerAddr, unregistered)))
	require.Empty(t, res.Claims)
	require.Empty(t, res.Failures)
}

func TestSwapMalformedPayloadIsUnclaimed(t *testing.T) {
	engine, _ := testEngine(t)
	input := encodeCall(t, routerSig(t, sigExactTokensForTokens), big.NewInt(100), big.NewInt(1), []common.Address{tokenA, tokenB}, recipient, deadline)

	tree := assemble(callNode(operator, routerAddr, input[:4+64]))
	res := engine.Decode(tree)
	require.Empty(t, res.Claims)
	require.Len(t, res.Failures, 1)
	require.Equal(t, "uniswap-v2-swap", res.Failures[0].Decoder)
	require.True(t, abicodec.IsDecodeError(res.Failures[0].Err))
	require.Zero(t, res.Consumed)
}

func TestSwapNativePathMismatchIsPartial(t *testing.T) {
	engine, _ := testEngine(t)
	input := encodeCall(t, routerSig(t, sigExactETHForTokens), big.NewInt(1), []common.Address{tokenA, tokenB}, recipient, deadline)
	node := withValue(callNode(operator, routerAddr, input), big.NewInt(10))

	swap := singleSwap(t, engine.Decode(assemble(node)))
	require.True(t, swap.Partial)
	require.ErrorIs(t, swap.Mismatch(), ErrStructuralMismatch)
	requireBig(t, 10, swap.AmountIn, "amountIn")
	require.Nil(t, swap.AmountOut)
}

func TestSwapShortPathIsPartial(t *testing.T) {
	engine, _ := testEngine(t)
	input := encodeCall(t, routerSig(t, sigExactTokensForTokens), big.NewInt(100), big.NewInt(1), []common.Address{tokenA}, recipient, deadline)

	res := engine.Decode(assemble(callNode(operator, routerAddr, input)))
	swap := singleSwap(t, res)
	require.True(t, swap.Partial)
	require.Empty(t, swap.Pools)
	require.Equal(t, 1, res.Consumed)
	require.Equal(t, []common.Address{tokenA}, res.Metadata)
}

func TestSwapRevertedCallDecodesArgumentsOnly(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, tokenB)

	tree := exactInTree(t, routerAddr, pair)
	tree.Error = "execution reverted: UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT"

	res := engine.Decode(tree)
	swap := singleSwap(t, res)
	require.True(t, swap.Reverted)
	require.False(t, swap.Partial)
	require.NoError(t, swap.Mismatch())
	require.Contains(t, swap.Issues, "call reverted: execution reverted: UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT")
	requireBig(t, 100, swap.AmountIn, "amountIn")
	require.Equal(t, SourceArgs, swap.AmountInSource)
	require.Nil(t, swap.AmountOut, "rolled back Swap log must not be used")
	require.Equal(t, res.Nodes, res.Consumed)
	require.Equal(t, []common.Address{tokenA, tokenB}, res.Metadata)
}

func TestSwapFeeOnTransferPrefersPoolLogOverBalanceDiff(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, tokenB)
	v2 := mustV2ABI()

	balanceOf := encodeCall(t, v2.BalanceOf, recipient)
	input := encodeCall(t, routerSig(t, sigExactTokensForFOT), big.NewInt(100), big.NewInt(1), []common.Address{tokenA, tokenB}, recipient, deadline)
	tree := assemble(callNode(operator, routerAddr, input,
		callNode(routerAddr, tokenA, encodeCall(t, v2.TransferFrom, operator, pair, big.NewInt(100))),
		staticNode(routerAddr, tokenB, balanceOf, uint256Word(t, 1000)),
		withLogs(
			callNode(routerAddr, pair, encodeCall(t, v2.PairSwap, big.NewInt(90), big.NewInt(0), recipient, []byte{}),
				callNode(pair, tokenB, encodeCall(t, v2.Transfer, recipient, big.NewInt(90))),
			),
			swapLog(t, pair, recipient, 0, 97, 90, 0),
		),
		staticNode(routerAddr, tokenB, balanceOf, uint256Word(t, 1080)),
	))

	swap := singleSwap(t, engine.Decode(tree))
	require.True(t, swap.FeeOnTransfer)
	requireBig(t, 100, swap.AmountIn, "amountIn")
	require.Equal(t, SourceArgs, swap.AmountInSource)
	requireBig(t, 90, swap.AmountOut, "amountOut")
	require.Equal(t, SourceLog, swap.AmountOutSource)
	require.False(t, swap.Partial, "issues: %v", swap.Issues)
}

func TestSwapUndecodableLogIsPartial(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, tokenB)

	tree := exactInTree(t, routerAddr, pair)
	pairCall := tree.Children[1]
	pairCall.Logs[0].Data = pairCall.Logs[0].Data[:32]
	withReturn(tree, encodeOutput(t, routerSig(t, sigExactTokensForTokens), []*big.Int{big.NewInt(100), big.NewInt(95)}))

	swap := singleSwap(t, engine.Decode(tree))
	require.True(t, swap.Partial)
	require.ErrorIs(t, swap.Mismatch(), ErrStructuralMismatch)
	require.True(t, hasIssue(swap.Issues, "undecodable Swap log"), "issues: %v", swap.Issues)
	requireBig(t, 95, swap.AmountOut, "amountOut")
	require.Equal(t, SourceReturn, swap.AmountOutSource)
}

func TestSwapBalanceDiffNonPositiveIsPartial(t *testing.T) {
	reg := testRegistry(t)
	decoder, err := NewSwapDecoder(reg)
	require.NoError(t, err)
	v2 := mustV2ABI()

	balanceOf := encodeCall(t, v2.BalanceOf, recipient)
	node := assemble(callNode(operator, routerAddr, nil,
		staticNode(routerAddr, tokenB, balanceOf, uint256Word(t, 1000)),
		staticNode(routerAddr, tokenB, balanceOf, uint256Word(t, 1000)),
	))

	swap := &Swap{}
	amount, queries := decoder.balanceDiff(NewState(), swap, node, tokenB, recipient)
	require.Nil(t, amount)
	require.Len(t, queries, 2)
	require.True(t, swap.Partial)
	require.True(t, hasIssue(swap.Issues, "non-positive balance delta 0"), "issues: %v", swap.Issues)
}

package dex

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"traceScope/internal/trace"
)

const (
	sigAddLiquidity       = "addLiquidity(address tokenA, address tokenB, uint256 amountADesired, uint256 amountBDesired, uint256 amountAMin, uint256 amountBMin, address to, uint256 deadline) returns (uint256 amountA, uint256 amountB, uint256 liquidity)"
	sigAddLiquidityETH    = "addLiquidityETH(address token, uint256 amountTokenDesired, uint256 amountTokenMin, uint256 amountETHMin, address to, uint256 deadline) returns (uint256 amountToken, uint256 amountETH, uint256 liquidity)"
	sigRemoveWithPermit   = "removeLiquidityWithPermit(address tokenA, address tokenB, uint256 liquidity, uint256 amountAMin, uint256 amountBMin, address to, uint256 deadline, bool approveMax, uint8 v, bytes32 r, bytes32 s) returns (uint256 amountA, uint256 amountB)"
	sigRemoveLiquidityETH = "removeLiquidityETH(address token, uint256 liquidity, uint256 amountTokenMin, uint256 amountETHMin, address to, uint256 deadline) returns (uint256 amountToken, uint256 amountETH)"
	sigRemoveETHFOT       = "removeLiquidityETHSupportingFeeOnTransferTokens(address token, uint256 liquidity, uint256 amountTokenMin, uint256 amountETHMin, address to, uint256 deadline) returns (uint256 amountETH)"
)

func hasIssue(issues []string, substr string) bool {
	for _, issue := range issues {
		if strings.Contains(issue, substr) {
			return true
		}
	}
	return false
}

// removeETHChildren is the five-call body of removeLiquidityETH: the LP
// transfer, burn, token forward, withdraw and the native payout.
func removeETHChildren(t *testing.T, pair common.Address, tokenAmount, nativeAmount int64) []*trace.Node {
	v2 := mustV2ABI()
	return []*trace.Node{
		callNode(routerAddr, pair, encodeCall(t, v2.TransferFrom, operator, pair, big.NewInt(10))),
		callNode(routerAddr, pair, encodeCall(t, v2.PairBurn, routerAddr),
			callNode(pair, tokenA, encodeCall(t, v2.Transfer, routerAddr, big.NewInt(tokenAmount))),
			callNode(pair, wrappedNative, encodeCall(t, v2.Transfer, routerAddr, big.NewInt(nativeAmount))),
		),
		callNode(routerAddr, tokenA, encodeCall(t, v2.Transfer, recipient, big.NewInt(tokenAmount))),
		callNode(routerAddr, wrappedNative, encodeCall(t, v2.Withdraw, big.NewInt(nativeAmount)),
			valueNode(wrappedNative, routerAddr, uint64(nativeAmount)),
		),
		valueNode(routerAddr, recipient, uint64(nativeAmount)),
	}
}

func singleRemove(t *testing.T, res Result) *RemoveLiquidity {
	t.Helper()
	require.Len(t, res.Claims, 1)
	rm, ok := res.Claims[0].Action.(*RemoveLiquidity)
	require.True(t, ok, "claim is %T", res.Claims[0].Action)
	require.Equal(t, ActionRemoveLiquidity, rm.Kind())
	return rm
}

func singleAdd(t *testing.T, res Result) *AddLiquidity {
	t.Helper()
	require.Len(t, res.Claims, 1)
	add, ok := res.Claims[0].Action.(*AddLiquidity)
	require.True(t, ok, "claim is %T", res.Claims[0].Action)
	require.Equal(t, ActionAddLiquidity, add.Kind())
	return add
}

func TestRemoveLiquidityETHComplete(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, wrappedNative)

	sig := routerSig(t, sigRemoveLiquidityETH)
	node := callNode(operator, routerAddr,
		encodeCall(t, sig, tokenA, big.NewInt(10), big.NewInt(1), big.NewInt(1), recipient, deadline),
		removeETHChildren(t, pair, 300, 200)...)
	withReturn(node, encodeOutput(t, sig, big.NewInt(300), big.NewInt(200)))

	res := engine.Decode(assemble(node))
	rm := singleRemove(t, res)
	require.False(t, rm.Partial, "issues: %v", rm.Issues)
	require.Equal(t, "uniswap-v2-remove-liquidity", rm.Decoder)
	require.Equal(t, pair, rm.Pool)
	require.Equal(t, tokenA, rm.TokenA)
	require.Equal(t, NativeCurrency, rm.TokenB)
	requireBig(t, 10, rm.Liquidity, "liquidity")
	requireBig(t, 300, rm.AmountA, "amountA")
	requireBig(t, 200, rm.AmountB, "amountB")
	require.Equal(t, res.Nodes, res.Consumed)
	require.Equal(t, []common.Address{tokenA}, res.Metadata)
}

func TestRemoveLiquidityETHMissingNativePayout(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, wrappedNative)

	sig := routerSig(t, sigRemoveLiquidityETH)
	children := removeETHChildren(t, pair, 300, 200)
	node := callNode(operator, routerAddr,
		encodeCall(t, sig, tokenA, big.NewInt(10), big.NewInt(1), big.NewInt(1), recipient, deadline),
		children[:4]...)
	withReturn(node, encodeOutput(t, sig, big.NewInt(300), big.NewInt(200)))

	rm := singleRemove(t, engine.Decode(assemble(node)))
	require.True(t, rm.Partial)
	require.True(t, hasIssue(rm.Issues, "missing native transfer to recipient"), "issues: %v", rm.Issues)
	require.ErrorIs(t, rm.Mismatch(), ErrStructuralMismatch)
	requireBig(t, 300, rm.AmountA, "amountA")
	requireBig(t, 200, rm.AmountB, "amountB")
}

func TestRemoveLiquidityETHFeeOnTransferUsesBalance(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, wrappedNative)
	v2 := mustV2ABI()

	sig := routerSig(t, sigRemoveETHFOT)
	body := removeETHChildren(t, pair, 270, 200)
	children := []*trace.Node{
		body[0], body[1],
		staticNode(routerAddr, tokenA, encodeCall(t, v2.BalanceOf, routerAddr), uint256Word(t, 270)),
		body[2], body[3], body[4],
	}
	node := callNode(operator, routerAddr,
		encodeCall(t, sig, tokenA, big.NewInt(10), big.NewInt(1), big.NewInt(1), recipient, deadline),
		children...)
	withReturn(node, encodeOutput(t, sig, big.NewInt(200)))

	res := engine.Decode(assemble(node))
	rm := singleRemove(t, res)
	require.False(t, rm.Partial, "issues: %v", rm.Issues)
	require.True(t, rm.FeeOnTransfer)
	requireBig(t, 270, rm.AmountA, "amountA")
	requireBig(t, 200, rm.AmountB, "amountB")
	require.Equal(t, res.Nodes, res.Consumed)
}

func TestRemoveLiquidityWithPermit(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, tokenB)
	v2 := mustV2ABI()

	var r, s [32]byte
	r[0], s[0] = 1, 2
	sig := routerSig(t, sigRemoveWithPermit)
	node := callNode(operator, routerAddr,
		encodeCall(t, sig, tokenA, tokenB, big.NewInt(10), big.NewInt(1), big.NewInt(1), recipient, deadline, false, uint8(27), r, s),
		callNode(routerAddr, pair, encodeCall(t, v2.PairPermit, operator, routerAddr, big.NewInt(10), deadline, uint8(27), r, s)),
		callNode(routerAddr, pair, encodeCall(t, v2.TransferFrom, operator, pair, big.NewInt(10))),
		callNode(routerAddr, pair, encodeCall(t, v2.PairBurn, recipient),
			callNode(pair, tokenB, encodeCall(t, v2.Transfer, recipient, big.NewInt(40))),
			callNode(pair, tokenA, encodeCall(t, v2.Transfer, recipient, big.NewInt(30))),
		),
	)
	withReturn(node, encodeOutput(t, sig, big.NewInt(30), big.NewInt(40)))

	res := engine.Decode(assemble(node))
	rm := singleRemove(t, res)
	require.False(t, rm.Partial, "issues: %v", rm.Issues)
	require.True(t, rm.Permit)
	requireBig(t, 30, rm.AmountA, "amountA")
	requireBig(t, 40, rm.AmountB, "amountB")
	require.Equal(t, res.Nodes, res.Consumed)
	require.Equal(t, []common.Address{tokenA, tokenB}, res.Metadata)
}

func TestRemoveLiquidityWithPermitMissingPermitIsPartial(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, tokenB)
	v2 := mustV2ABI()

	var r, s [32]byte
	sig := routerSig(t, sigRemoveWithPermit)
	node := callNode(operator, routerAddr,
		encodeCall(t, sig, tokenA, tokenB, big.NewInt(10), big.NewInt(1), big.NewInt(1), recipient, deadline, true, uint8(28), r, s),
		callNode(routerAddr, pair, encodeCall(t, v2.TransferFrom, operator, pair, big.NewInt(10))),
		callNode(routerAddr, pair, encodeCall(t, v2.PairBurn, recipient)),
	)

	rm := singleRemove(t, engine.Decode(assemble(node)))
	require.True(t, rm.Partial)
	require.Equal(t, []string{"missing pool permit"}, rm.Issues)
	require.Nil(t, rm.AmountA)
}

func TestAddLiquidityConsumesHelperQueries(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, tokenB)
	v2 := mustV2ABI()

	sig := routerSig(t, sigAddLiquidity)
	node := callNode(operator, routerAddr,
		encodeCall(t, sig, tokenA, tokenB, big.NewInt(100), big.NewInt(200), big.NewInt(90), big.NewInt(180), recipient, deadline),
		staticNode(routerAddr, router.Factory, encodeCall(t, v2.GetPair, tokenA, tokenB), uint256Word(t, 0)),
		staticNode(routerAddr, pair, encodeCall(t, v2.GetReserves), nil),
		callNode(routerAddr, tokenA, encodeCall(t, v2.TransferFrom, operator, pair, big.NewInt(100))),
		callNode(routerAddr, tokenB, encodeCall(t, v2.TransferFrom, operator, pair, big.NewInt(200))),
		callNode(routerAddr, pair, encodeCall(t, v2.PairMint, recipient)),
	)
	withReturn(node, encodeOutput(t, sig, big.NewInt(100), big.NewInt(200), big.NewInt(141)))

	res := engine.Decode(assemble(node))
	add := singleAdd(t, res)
	require.False(t, add.Partial, "issues: %v", add.Issues)
	require.False(t, add.PairCreated)
	require.Equal(t, pair, add.Pool)
	requireBig(t, 100, add.AmountADesired, "amountADesired")
	requireBig(t, 180, add.AmountBMin, "amountBMin")
	requireBig(t, 100, add.AmountA, "amountA")
	requireBig(t, 200, add.AmountB, "amountB")
	requireBig(t, 141, add.Liquidity, "liquidity")
	require.Nil(t, add.Refund)
	require.Equal(t, res.Nodes, res.Consumed)
}

func TestAddLiquidityMissingTransferIsPartial(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, tokenB)
	v2 := mustV2ABI()

	sig := routerSig(t, sigAddLiquidity)
	node := callNode(operator, routerAddr,
		encodeCall(t, sig, tokenA, tokenB, big.NewInt(100), big.NewInt(200), big.NewInt(90), big.NewInt(180), recipient, deadline),
		callNode(routerAddr, tokenA, encodeCall(t, v2.TransferFrom, operator, pair, big.NewInt(100))),
		callNode(routerAddr, pair, encodeCall(t, v2.PairMint, recipient)),
	)

	add := singleAdd(t, engine.Decode(assemble(node)))
	require.True(t, add.Partial)
	require.Equal(t, []string{"missing transferFrom of token B"}, add.Issues)
}

func TestAddLiquidityETHWithPairCreationAndRefund(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, wrappedNative)
	v2 := mustV2ABI()

	create := callNode(routerAddr, router.Factory, encodeCall(t, v2.CreatePair, tokenA, wrappedNative))
	create.Children = []*trace.Node{{Kind: trace.KindCreate, From: router.Factory}}

	sig := routerSig(t, sigAddLiquidityETH)
	node := callNode(operator, routerAddr,
		encodeCall(t, sig, tokenA, big.NewInt(500), big.NewInt(1), big.NewInt(1), recipient, deadline),
		create,
		callNode(routerAddr, tokenA, encodeCall(t, v2.TransferFrom, operator, pair, big.NewInt(500))),
		withValue(callNode(routerAddr, wrappedNative, encodeCall(t, v2.Deposit)), big.NewInt(800)),
		callNode(routerAddr, wrappedNative, encodeCall(t, v2.Transfer, pair, big.NewInt(800))),
		callNode(routerAddr, pair, encodeCall(t, v2.PairMint, recipient)),
		valueNode(routerAddr, operator, 200),
	)
	withValue(node, big.NewInt(1000))
	withReturn(node, encodeOutput(t, sig, big.NewInt(500), big.NewInt(800), big.NewInt(600)))

	res := engine.Decode(assemble(node))
	add := singleAdd(t, res)
	require.False(t, add.Partial, "issues: %v", add.Issues)
	require.True(t, add.PairCreated)
	require.Equal(t, NativeCurrency, add.TokenB)
	requireBig(t, 1000, add.AmountBDesired, "amountBDesired")
	requireBig(t, 500, add.AmountA, "amountA")
	requireBig(t, 800, add.AmountB, "amountB")
	requireBig(t, 600, add.Liquidity, "liquidity")
	requireBig(t, 200, add.Refund, "refund")
	require.Equal(t, recipient, add.Recipient)
	require.Equal(t, res.Nodes, res.Consumed)
	require.Equal(t, []common.Address{tokenA}, res.Metadata)
}

func TestLiquidityDecodersIgnoreSwapSelectors(t *testing.T) {
	reg := testRegistry(t)
	add, err := NewAddLiquidityDecoder(reg)
	require.NoError(t, err)
	remove, err := NewRemoveLiquidityDecoder(reg)
	require.NoError(t, err)
	require.Len(t, add.Signatures(), 2)
	require.Len(t, remove.Signatures(), 6)

	input := encodeCall(t, routerSig(t, sigExactTokensForTokens), big.NewInt(1), big.NewInt(1), []common.Address{tokenA, tokenB}, recipient, deadline)
	node := assemble(callNode(operator, routerAddr, input))
	require.False(t, add.Recognizes(node))
	require.False(t, remove.Recognizes(node))
}

func TestRemoveLiquidityETHRevertedDecodesArgumentsOnly(t *testing.T) {
	engine, reg := testEngine(t)
	router, _ := reg.Lookup(routerAddr)
	pair := router.PairFor(tokenA, wrappedNative)

	sig := routerSig(t, sigRemoveLiquidityETH)
	node := callNode(operator, routerAddr,
		encodeCall(t, sig, tokenA, big.NewInt(10), big.NewInt(1), big.NewInt(1), recipient, deadline),
		removeETHChildren(t, pair, 300, 200)[:2]...)
	node.Error = "execution reverted: UniswapV2Router: INSUFFICIENT_A_AMOUNT"

	res := engine.Decode(assemble(node))
	rm := singleRemove(t, res)
	require.True(t, rm.Reverted)
	require.False(t, rm.Partial)
	require.Equal(t, []string{"call reverted: execution reverted: UniswapV2Router: INSUFFICIENT_A_AMOUNT"}, rm.Issues)
	require.Equal(t, pair, rm.Pool)
	requireBig(t, 10, rm.Liquidity, "liquidity")
	require.Nil(t, rm.AmountA)
	require.Nil(t, rm.AmountB)
	require.Equal(t, res.Nodes, res.Consumed)
	require.Equal(t, []common.Address{tokenA}, res.Metadata)
}

func TestAddLiquidityETHRevertedKeepsAttachedValue(t *testing.T) {
	engine, _ := testEngine(t)
	sig := routerSig(t, sigAddLiquidityETH)
	node := callNode(operator, routerAddr,
		encodeCall(t, sig, tokenA, big.NewInt(500), big.NewInt(1), big.NewInt(1), recipient, deadline))
	withValue(node, big.NewInt(1000))
	node.Error = "out of gas"

	add := singleAdd(t, engine.Decode(assemble(node)))
	require.True(t, add.Reverted)
	require.False(t, add.Partial)
	require.True(t, hasIssue(add.Issues, "call reverted: out of gas"), "issues: %v", add.Issues)
	requireBig(t, 1000, add.AmountBDesired, "amountBDesired")
	require.Nil(t, add.AmountA)
	require.Nil(t, add.Liquidity)
	require.Nil(t, add.Refund)
	require.False(t, add.PairCreated)
}

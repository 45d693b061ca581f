package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"traceScope/internal/abicodec"
	"traceScope/internal/trace"
)

var (
	operator  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
	// tokenB sorts below tokenA, so tokenB is token0 of their pair.
	tokenA = common.HexToAddress("0xa0000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x0b000000000000000000000000000000000000bb")
	tokenC = common.HexToAddress("0xc0000000000000000000000000000000000000cc")

	uniswap       = DefaultRouters()[0]
	routerAddr    = uniswap.Address
	wrappedNative = uniswap.WrappedNative
	deadline      = big.NewInt(1700000000)
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(DefaultRouters()...)
	require.NoError(t, err)
	return reg
}

func testEngine(t *testing.T) (*Engine, *Registry) {
	t.Helper()
	reg := testRegistry(t)
	decoders, err := DefaultDecoders(reg)
	require.NoError(t, err)
	return NewEngine(decoders), reg
}

func routerSig(t *testing.T, signature string) abicodec.Signature {
	t.Helper()
	sig, err := abicodec.ParseSignature(signature)
	require.NoError(t, err)
	return sig
}

func encodeCall(t *testing.T, sig abicodec.Signature, args ...interface{}) []byte {
	t.Helper()
	data, err := sig.EncodeCall(args...)
	require.NoError(t, err)
	return data
}

func encodeOutput(t *testing.T, sig abicodec.Signature, values ...interface{}) []byte {
	t.Helper()
	data, err := sig.EncodeOutput(values...)
	require.NoError(t, err)
	return data
}

func callNode(from, to common.Address, input []byte, children ...*trace.Node) *trace.Node {
	dest := to
	return &trace.Node{
		Kind:     trace.KindCall,
		From:     from,
		To:       &dest,
		Value:    new(uint256.Int),
		CallData: input,
		Children: children,
	}
}

func staticNode(from, to common.Address, input, output []byte) *trace.Node {
	n := callNode(from, to, input)
	n.Kind = trace.KindStaticCall
	n.ReturnData = output
	return n
}

func valueNode(from, to common.Address, wei uint64) *trace.Node {
	n := callNode(from, to, nil)
	n.Value = uint256.NewInt(wei)
	return n
}

func withValue(n *trace.Node, wei *big.Int) *trace.Node {
	v, overflow := uint256.FromBig(wei)
	if overflow {
		panic("value overflow")
	}
	n.Value = v
	return n
}

func withReturn(n *trace.Node, data []byte) *trace.Node {
	n.ReturnData = data
	return n
}

func withLogs(n *trace.Node, logs ...trace.Log) *trace.Node {
	n.Logs = append(n.Logs, logs...)
	return n
}

func assemble(n *trace.Node) *trace.Node {
	trace.AssignPaths(n)
	return n
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// swapLog builds a pair Swap event.
func swapLog(t *testing.T, pool, to common.Address, amount0In, amount1In, amount0Out, amount1Out int64) trace.Log {
	t.Helper()
	v2 := mustV2ABI()
	data, err := v2.SwapEvent.EncodeEventData(big.NewInt(amount0In), big.NewInt(amount1In), big.NewInt(amount0Out), big.NewInt(amount1Out))
	require.NoError(t, err)
	return trace.Log{
		Address: pool,
		Topics:  []common.Hash{v2.SwapEvent.Topic(), addressTopic(routerAddr), addressTopic(to)},
		Data:    data,
	}
}

func uint256Word(t *testing.T, v int64) []byte {
	t.Helper()
	data, err := abicodec.Encode(abicodec.MustParseTypes("uint256"), big.NewInt(v))
	require.NoError(t, err)
	return data
}

func requireBig(t *testing.T, want int64, got *big.Int, msg string) {
	t.Helper()
	require.NotNil(t, got, msg)
	require.Equal(t, 0, big.NewInt(want).Cmp(got), "%s: got %s", msg, got)
}

package dex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"traceScope/internal/abicodec"
	"traceScope/internal/trace"
)

// SwapFlags annotates a router swap function.
type SwapFlags struct {
	ExactIn       bool
	NativeIn      bool
	NativeOut     bool
	FeeOnTransfer bool
}

// AmountSource records where a swap amount was recovered from.
type AmountSource string

const (
	SourceNone    AmountSource = ""
	SourceArgs    AmountSource = "args"
	SourceValue   AmountSource = "call_value"
	SourceLog     AmountSource = "swap_log"
	SourceReturn  AmountSource = "return_data"
	SourceBalance AmountSource = "balance_diff"
	SourceNative  AmountSource = "native_transfer"
)

var swapFunctions = []FunctionDef[SwapFlags]{
	{
		Signature: "swapExactTokensForTokens(uint256 amountIn, uint256 amountOutMin, address[] path, address to, uint256 deadline) returns (uint256[] amounts)",
		Meta:      SwapFlags{ExactIn: true},
	},
	{
		Signature: "swapTokensForExactTokens(uint256 amountOut, uint256 amountInMax, address[] path, address to, uint256 deadline) returns (uint256[] amounts)",
		Meta:      SwapFlags{},
	},
	{
		Signature: "swapExactETHForTokens(uint256 amountOutMin, address[] path, address to, uint256 deadline) returns (uint256[] amounts)",
		Meta:      SwapFlags{ExactIn: true, NativeIn: true},
	},
	{
		Signature: "swapTokensForExactETH(uint256 amountOut, uint256 amountInMax, address[] path, address to, uint256 deadline) returns (uint256[] amounts)",
		Meta:      SwapFlags{NativeOut: true},
	},
	{
		Signature: "swapExactTokensForETH(uint256 amountIn, uint256 amountOutMin, address[] path, address to, uint256 deadline) returns (uint256[] amounts)",
		Meta:      SwapFlags{ExactIn: true, NativeOut: true},
	},
	{
		Signature: "swapETHForExactTokens(uint256 amountOut, address[] path, address to, uint256 deadline) returns (uint256[] amounts)",
		Meta:      SwapFlags{NativeIn: true},
	},
	{
		Signature: "swapExactTokensForTokensSupportingFeeOnTransferTokens(uint256 amountIn, uint256 amountOutMin, address[] path, address to, uint256 deadline)",
		Meta:      SwapFlags{ExactIn: true, FeeOnTransfer: true},
	},
	{
		Signature: "swapExactETHForTokensSupportingFeeOnTransferTokens(uint256 amountOutMin, address[] path, address to, uint256 deadline)",
		Meta:      SwapFlags{ExactIn: true, NativeIn: true, FeeOnTransfer: true},
	},
	{
		Signature: "swapExactTokensForETHSupportingFeeOnTransferTokens(uint256 amountIn, uint256 amountOutMin, address[] path, address to, uint256 deadline)",
		Meta:      SwapFlags{ExactIn: true, NativeOut: true, FeeOnTransfer: true},
	},
}

// Swap is a decoded router swap. Amount fields are nil when no source could
// provide them.
type Swap struct {
	ActionBase
	SwapFlags

	Path  []common.Address
	Pools []common.Address
	// TokenIn and TokenOut are NativeCurrency for native legs; Path keeps the
	// wrapped token.
	TokenIn  common.Address
	TokenOut common.Address

	AmountIn     *big.Int
	AmountOut    *big.Int
	AmountOutMin *big.Int
	AmountInMax  *big.Int
	Deadline     *big.Int

	AmountInSource  AmountSource
	AmountOutSource AmountSource
}

func (s *Swap) Kind() ActionKind { return ActionSwap }

// SwapDecoder decodes the nine Uniswap-V2 router swap functions.
type SwapDecoder struct {
	routers *Registry
	table   *FunctionTable[SwapFlags]
	abi     *v2ABI
}

// NewSwapDecoder builds a swap decoder over a router registry.
func NewSwapDecoder(routers *Registry) (*SwapDecoder, error) {
	table, err := NewFunctionTable(swapFunctions)
	if err != nil {
		return nil, err
	}
	parsed, err := loadV2ABI()
	if err != nil {
		return nil, err
	}
	return &SwapDecoder{routers: routers, table: table, abi: parsed}, nil
}

func (d *SwapDecoder) Name() string { return "uniswap-v2-swap" }

func (d *SwapDecoder) Signatures() []abicodec.Signature { return d.table.Signatures() }

func (d *SwapDecoder) Recognizes(node *trace.Node) bool {
	_, ok := matchRouterCall(nil, node, d.routers, d.table)
	return ok
}

func (d *SwapDecoder) DecodeCall(state *State, node *trace.Node) (Action, error) {
	call, ok := matchRouterCall(state, node, d.routers, d.table)
	if !ok {
		return nil, nil
	}
	sig, flags := call.entry.Signature, call.entry.Meta

	args, err := sig.DecodeInput(node.CallData)
	if err != nil {
		return nil, err
	}
	reverted := !node.Succeeded()
	var amounts []*big.Int
	if !reverted && len(node.ReturnData) > 0 && len(sig.Outputs) > 0 {
		outputs, err := sig.DecodeOutput(node.ReturnData)
		if err != nil {
			return nil, err
		}
		amounts = outputs.Bigs("amounts")
	}

	swap := &Swap{
		ActionBase: newActionBase(d.Name(), node, call.router, sig),
		SwapFlags:  flags,
		Path:       args.Addresses("path"),
		Deadline:   args.Big("deadline"),
	}
	swap.Recipient, _ = args.Address("to")

	state.RequestMetadata(swap.Path...)
	if len(swap.Path) < 2 {
		swap.mismatch("path has %d tokens", len(swap.Path))
		if reverted {
			swap.markReverted(node.Error)
			state.ConsumeTree(node)
			return swap, nil
		}
		state.Consume(node)
		return swap, nil
	}

	router := call.router
	first, last := swap.Path[0], swap.Path[len(swap.Path)-1]
	swap.Pools = router.HopPools(swap.Path)
	swap.TokenIn, swap.TokenOut = first, last
	if flags.NativeIn {
		swap.TokenIn = NativeCurrency
		if first != router.WrappedNative {
			swap.mismatch("native input but path starts with %s", first.Hex())
		}
	}
	if flags.NativeOut {
		swap.TokenOut = NativeCurrency
		if last != router.WrappedNative {
			swap.mismatch("native output but path ends with %s", last.Hex())
		}
	}

	// (a) call arguments and attached value
	if flags.ExactIn {
		if flags.NativeIn {
			swap.setAmountIn(node.ValueBig(), SourceValue)
		} else {
			swap.setAmountIn(args.Big("amountIn"), SourceArgs)
		}
		swap.AmountOutMin = args.Big("amountOutMin")
	} else {
		swap.setAmountOut(args.Big("amountOut"), SourceArgs)
		if flags.NativeIn {
			swap.AmountInMax = node.ValueBig()
		} else {
			swap.AmountInMax = args.Big("amountInMax")
		}
	}

	// A failed frame rolled back everything below it.
	if reverted {
		swap.markReverted(node.Error)
		state.ConsumeTree(node)
		return swap, nil
	}

	// (b) Swap logs of the first and last hop pools
	if swap.AmountIn == nil {
		if amount, ok := d.swapLogLeg(state, swap, node, swap.Pools[0], first, swap.Path[1], true); ok {
			swap.setAmountIn(amount, SourceLog)
		}
	}
	if swap.AmountOut == nil {
		n := len(swap.Path)
		if amount, ok := d.swapLogLeg(state, swap, node, swap.Pools[len(swap.Pools)-1], swap.Path[n-2], last, false); ok {
			swap.setAmountOut(amount, SourceLog)
		}
	}

	// (c) returned amounts
	if !flags.FeeOnTransfer && len(amounts) > 0 {
		if swap.AmountOut == nil {
			swap.setAmountOut(amounts[len(amounts)-1], SourceReturn)
		}
		if swap.AmountIn == nil {
			swap.setAmountIn(amounts[0], SourceReturn)
		}
	}

	// (d) nested balance queries or the final native transfer
	var balanceQueries []*trace.Node
	if flags.FeeOnTransfer && swap.AmountOut == nil {
		if flags.NativeOut {
			if amount, ok := lastNativeTransfer(state, node, swap.Recipient, router.WrappedNative); ok {
				swap.setAmountOut(amount, SourceNative)
			}
		} else {
			var amount *big.Int
			amount, balanceQueries = d.balanceDiff(state, swap, node, last, swap.Recipient)
			if amount != nil {
				swap.setAmountOut(amount, SourceBalance)
			}
		}
	}

	if swap.AmountIn == nil {
		swap.mismatch("input amount unresolved")
	}
	if swap.AmountOut == nil {
		swap.mismatch("output amount unresolved")
	}

	d.consume(state, swap, node, router, balanceQueries)
	return swap, nil
}

func (s *Swap) setAmountIn(amount *big.Int, source AmountSource) {
	if amount == nil {
		return
	}
	s.AmountIn = amount
	s.AmountInSource = source
}

func (s *Swap) setAmountOut(amount *big.Int, source AmountSource) {
	if amount == nil {
		return
	}
	s.AmountOut = amount
	s.AmountOutSource = source
}

// swapLogLeg reads the input (first hop) or output (last hop) leg of a pool
// Swap event emitted by a direct child of the router call. The pool reports
// amount0/amount1 for its sorted tokens, so the side is picked by comparing
// the hop token with token0. The first matching event is used for the input
// leg and the last one for the output leg.
func (d *SwapDecoder) swapLogLeg(state *State, swap *Swap, node *trace.Node, pool, hopIn, hopOut common.Address, input bool) (*big.Int, bool) {
	topic := d.abi.SwapEvent.Topic()
	token0, _ := abicodec.SortTokens(hopIn, hopOut)

	var found *big.Int
	for _, child := range node.Children {
		if state.IsConsumed(child.Path) || !child.Succeeded() {
			continue
		}
		for _, l := range child.Logs {
			if l.Address != pool {
				continue
			}
			if t0, ok := l.Topic0(); !ok || t0 != topic {
				continue
			}
			values, err := d.abi.SwapEvent.DecodeEventData(l.Data)
			if err != nil {
				swap.mismatch("undecodable Swap log at %s", pool.Hex())
				continue
			}
			var field string
			switch {
			case input && hopIn == token0:
				field = "amount0In"
			case input:
				field = "amount1In"
			case hopOut == token0:
				field = "amount0Out"
			default:
				field = "amount1Out"
			}
			amount := values.Big(field)
			if amount == nil || amount.Sign() == 0 {
				continue
			}
			found = amount
			if input {
				return found, true
			}
		}
	}
	return found, found != nil
}

// balanceDiff differences the first and last balanceOf(owner) queries the
// router made on token.
func (d *SwapDecoder) balanceDiff(state *State, swap *Swap, node *trace.Node, token, owner common.Address) (*big.Int, []*trace.Node) {
	var queries []*trace.Node
	var balances []*big.Int
	for _, child := range node.Children {
		if state.IsConsumed(child.Path) || child.Kind == trace.KindCreate || child.Kind == trace.KindOther {
			continue
		}
		if to, ok := child.Callee(); !ok || to != token || !d.abi.BalanceOf.Matches(child.CallData) {
			continue
		}
		in, err := d.abi.BalanceOf.DecodeInput(child.CallData)
		if err != nil {
			continue
		}
		if who, ok := in.Address("owner"); !ok || who != owner {
			continue
		}
		out, err := d.abi.BalanceOf.DecodeOutput(child.ReturnData)
		if err != nil {
			continue
		}
		balance, err := abicodec.AsBigInt(out.At(0))
		if err != nil {
			continue
		}
		queries = append(queries, child)
		balances = append(balances, balance)
	}
	if len(balances) < 2 {
		swap.mismatch("expected two balanceOf queries on %s, found %d", token.Hex(), len(balances))
		return nil, queries
	}
	diff := new(big.Int).Sub(balances[len(balances)-1], balances[0])
	if diff.Sign() <= 0 {
		swap.mismatch("non-positive balance delta %s", diff.String())
		return nil, queries
	}
	return diff, queries
}

// lastNativeTransfer returns the value of the last value-carrying call the
// router made, preferring transfers to the recipient.
func lastNativeTransfer(state *State, node *trace.Node, recipient, wrapped common.Address) (*big.Int, bool) {
	var toRecipient, fallback *trace.Node
	for _, child := range node.Children {
		if state.IsConsumed(child.Path) || child.Kind != trace.KindCall || !child.HasValue() {
			continue
		}
		if child.CallsTo(wrapped) {
			continue
		}
		fallback = child
		if child.CallsTo(recipient) {
			toRecipient = child
		}
	}
	switch {
	case toRecipient != nil:
		return toRecipient.ValueBig(), true
	case fallback != nil:
		return fallback.ValueBig(), true
	default:
		return nil, false
	}
}

// consume marks the router call and the sub-calls that implement it: calls
// into path tokens, the wrapped native token and hop pools, native transfers
// to the recipient or operator, the token calls made by each pool, and the
// native refund the wrapped token makes to the router on withdraw.
func (d *SwapDecoder) consume(state *State, swap *Swap, node *trace.Node, router *Router, extra []*trace.Node) {
	state.Consume(node)
	state.Consume(extra...)

	tokens := make(map[common.Address]struct{}, len(swap.Path)+1)
	for _, token := range swap.Path {
		tokens[token] = struct{}{}
	}
	tokens[router.WrappedNative] = struct{}{}
	pools := make(map[common.Address]struct{}, len(swap.Pools))
	for _, pool := range swap.Pools {
		pools[pool] = struct{}{}
	}

	for _, child := range node.Children {
		if state.IsConsumed(child.Path) {
			continue
		}
		to, ok := child.Callee()
		if !ok {
			continue
		}
		if _, isPool := pools[to]; isPool {
			state.Consume(child)
			for _, grand := range child.Children {
				if callee, ok := grand.Callee(); ok {
					if _, isToken := tokens[callee]; isToken {
						state.Consume(grand)
					}
				}
			}
			continue
		}
		if _, isToken := tokens[to]; isToken {
			state.Consume(child)
			if to == router.WrappedNative {
				consumeNativeRefunds(state, child, router.Address)
			}
			continue
		}
		if child.Kind == trace.KindCall && child.HasValue() && (to == swap.Recipient || to == swap.Operator) {
			state.Consume(child)
		}
	}
}

// consumeNativeRefunds marks the value transfers a wrapped-native withdraw
// sends back to the router.
func consumeNativeRefunds(state *State, wrappedCall *trace.Node, router common.Address) {
	for _, grand := range wrappedCall.Children {
		if grand.CallsTo(router) && grand.HasValue() {
			state.Consume(grand)
		}
	}
}

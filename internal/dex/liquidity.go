package dex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"traceScope/internal/abicodec"
	"traceScope/internal/trace"
)

// AddLiquidity is a decoded router addLiquidity / addLiquidityETH call. For
// the ETH variant TokenB is NativeCurrency.
type AddLiquidity struct {
	ActionBase

	Pool   common.Address
	TokenA common.Address
	TokenB common.Address

	AmountADesired *big.Int
	AmountBDesired *big.Int
	AmountAMin     *big.Int
	AmountBMin     *big.Int
	Deadline       *big.Int

	AmountA   *big.Int
	AmountB   *big.Int
	Liquidity *big.Int

	PairCreated bool
	// Refund is the native currency returned to the operator, if any.
	Refund *big.Int
}

func (a *AddLiquidity) Kind() ActionKind { return ActionAddLiquidity }

// RemoveLiquidity is a decoded router removeLiquidity* call. For the ETH
// variants TokenB is NativeCurrency.
type RemoveLiquidity struct {
	ActionBase

	Pool   common.Address
	TokenA common.Address
	TokenB common.Address

	Liquidity  *big.Int
	AmountAMin *big.Int
	AmountBMin *big.Int
	Deadline   *big.Int

	AmountA *big.Int
	AmountB *big.Int

	Permit        bool
	FeeOnTransfer bool
}

func (r *RemoveLiquidity) Kind() ActionKind { return ActionRemoveLiquidity }

// liquidityCall is the input of a per-signature decode routine.
type liquidityCall struct {
	state   *State
	node    *trace.Node
	router  *Router
	base    ActionBase
	args    abicodec.Values
	outputs abicodec.Values
	abi     *v2ABI
	cursor  *callCursor
}

type liquidityRoutine func(c *liquidityCall) Action

var addLiquidityFunctions = []FunctionDef[liquidityRoutine]{
	{
		Signature: "addLiquidity(address tokenA, address tokenB, uint256 amountADesired, uint256 amountBDesired, uint256 amountAMin, uint256 amountBMin, address to, uint256 deadline) returns (uint256 amountA, uint256 amountB, uint256 liquidity)",
		Meta:      decodeAddLiquidity,
	},
	{
		Signature: "addLiquidityETH(address token, uint256 amountTokenDesired, uint256 amountTokenMin, uint256 amountETHMin, address to, uint256 deadline) returns (uint256 amountToken, uint256 amountETH, uint256 liquidity)",
		Meta:      decodeAddLiquidityETH,
	},
}

var removeLiquidityFunctions = []FunctionDef[liquidityRoutine]{
	{
		Signature: "removeLiquidity(address tokenA, address tokenB, uint256 liquidity, uint256 amountAMin, uint256 amountBMin, address to, uint256 deadline) returns (uint256 amountA, uint256 amountB)",
		Meta:      removeTokensRoutine(false),
	},
	{
		Signature: "removeLiquidityETH(address token, uint256 liquidity, uint256 amountTokenMin, uint256 amountETHMin, address to, uint256 deadline) returns (uint256 amountToken, uint256 amountETH)",
		Meta:      removeNativeRoutine(false, false),
	},
	{
		Signature: "removeLiquidityWithPermit(address tokenA, address tokenB, uint256 liquidity, uint256 amountAMin, uint256 amountBMin, address to, uint256 deadline, bool approveMax, uint8 v, bytes32 r, bytes32 s) returns (uint256 amountA, uint256 amountB)",
		Meta:      removeTokensRoutine(true),
	},
	{
		Signature: "removeLiquidityETHWithPermit(address token, uint256 liquidity, uint256 amountTokenMin, uint256 amountETHMin, address to, uint256 deadline, bool approveMax, uint8 v, bytes32 r, bytes32 s) returns (uint256 amountToken, uint256 amountETH)",
		Meta:      removeNativeRoutine(true, false),
	},
	{
		Signature: "removeLiquidityETHSupportingFeeOnTransferTokens(address token, uint256 liquidity, uint256 amountTokenMin, uint256 amountETHMin, address to, uint256 deadline) returns (uint256 amountETH)",
		Meta:      removeNativeRoutine(false, true),
	},
	{
		Signature: "removeLiquidityETHWithPermitSupportingFeeOnTransferTokens(address token, uint256 liquidity, uint256 amountTokenMin, uint256 amountETHMin, address to, uint256 deadline, bool approveMax, uint8 v, bytes32 r, bytes32 s) returns (uint256 amountETH)",
		Meta:      removeNativeRoutine(true, true),
	},
}

// LiquidityDecoder decodes router liquidity functions by dispatching each
// matched signature to its own routine.
type LiquidityDecoder struct {
	name    string
	routers *Registry
	table   *FunctionTable[liquidityRoutine]
	abi     *v2ABI
}

// NewAddLiquidityDecoder builds the addLiquidity / addLiquidityETH decoder.
func NewAddLiquidityDecoder(routers *Registry) (*LiquidityDecoder, error) {
	return newLiquidityDecoder("uniswap-v2-add-liquidity", routers, addLiquidityFunctions)
}

// NewRemoveLiquidityDecoder builds the decoder for the six removeLiquidity
// variants.
func NewRemoveLiquidityDecoder(routers *Registry) (*LiquidityDecoder, error) {
	return newLiquidityDecoder("uniswap-v2-remove-liquidity", routers, removeLiquidityFunctions)
}

func newLiquidityDecoder(name string, routers *Registry, defs []FunctionDef[liquidityRoutine]) (*LiquidityDecoder, error) {
	table, err := NewFunctionTable(defs)
	if err != nil {
		return nil, err
	}
	parsed, err := loadV2ABI()
	if err != nil {
		return nil, err
	}
	return &LiquidityDecoder{name: name, routers: routers, table: table, abi: parsed}, nil
}

func (d *LiquidityDecoder) Name() string { return d.name }

func (d *LiquidityDecoder) Signatures() []abicodec.Signature { return d.table.Signatures() }

func (d *LiquidityDecoder) Recognizes(node *trace.Node) bool {
	_, ok := matchRouterCall(nil, node, d.routers, d.table)
	return ok
}

func (d *LiquidityDecoder) DecodeCall(state *State, node *trace.Node) (Action, error) {
	call, ok := matchRouterCall(state, node, d.routers, d.table)
	if !ok {
		return nil, nil
	}
	sig := call.entry.Signature
	args, err := sig.DecodeInput(node.CallData)
	if err != nil {
		return nil, err
	}
	reverted := !node.Succeeded()
	var outputs abicodec.Values
	if !reverted && len(node.ReturnData) > 0 {
		outputs, err = sig.DecodeOutput(node.ReturnData)
		if err != nil {
			return nil, err
		}
	}

	c := &liquidityCall{
		state:   state,
		node:    node,
		router:  call.router,
		base:    newActionBase(d.name, node, call.router, sig),
		args:    args,
		outputs: outputs,
		abi:     d.abi,
		cursor:  newCallCursor(state, node),
	}
	c.base.Recipient, _ = args.Address("to")
	if reverted {
		// Decode from the arguments alone; the sub-calls were rolled back.
		bare := *node
		bare.Children = nil
		c.node = &bare
		c.cursor = &callCursor{}
	}
	action := call.entry.Meta(c)
	if reverted {
		base := action.Base()
		base.Partial, base.Issues = false, nil
		base.markReverted(node.Error)
		state.ConsumeTree(node)
		return action, nil
	}
	state.Consume(node)
	state.Consume(c.cursor.matched...)
	return action, nil
}

func decodeAddLiquidity(c *liquidityCall) Action {
	tokenA, _ := c.args.Address("tokenA")
	tokenB, _ := c.args.Address("tokenB")
	pool := c.router.PairFor(tokenA, tokenB)
	add := &AddLiquidity{
		ActionBase:     c.base,
		Pool:           pool,
		TokenA:         tokenA,
		TokenB:         tokenB,
		AmountADesired: c.args.Big("amountADesired"),
		AmountBDesired: c.args.Big("amountBDesired"),
		AmountAMin:     c.args.Big("amountAMin"),
		AmountBMin:     c.args.Big("amountBMin"),
		Deadline:       c.args.Big("deadline"),
		AmountA:        c.outputs.Big("amountA"),
		AmountB:        c.outputs.Big("amountB"),
		Liquidity:      c.outputs.Big("liquidity"),
	}
	c.state.RequestMetadata(tokenA, tokenB)

	add.PairCreated = c.createPair()
	c.expect(&add.ActionBase, c.isCall(c.abi.TransferFrom, tokenA), "transferFrom of token A")
	c.expect(&add.ActionBase, c.isCall(c.abi.TransferFrom, tokenB), "transferFrom of token B")
	if mint := c.expect(&add.ActionBase, c.isCall(c.abi.PairMint, pool), "pool mint"); mint != nil {
		consumeChildrenCalling(c.state, mint, tokenA, tokenB, c.router.Factory)
	}
	c.consumeHelperQueries(pool)
	return add
}

func decodeAddLiquidityETH(c *liquidityCall) Action {
	token, _ := c.args.Address("token")
	wrapped := c.router.WrappedNative
	pool := c.router.PairFor(token, wrapped)
	add := &AddLiquidity{
		ActionBase:     c.base,
		Pool:           pool,
		TokenA:         token,
		TokenB:         NativeCurrency,
		AmountADesired: c.args.Big("amountTokenDesired"),
		AmountBDesired: c.node.ValueBig(),
		AmountAMin:     c.args.Big("amountTokenMin"),
		AmountBMin:     c.args.Big("amountETHMin"),
		Deadline:       c.args.Big("deadline"),
		AmountA:        c.outputs.Big("amountToken"),
		AmountB:        c.outputs.Big("amountETH"),
		Liquidity:      c.outputs.Big("liquidity"),
	}
	c.state.RequestMetadata(token)

	add.PairCreated = c.createPair()
	c.expect(&add.ActionBase, c.isCall(c.abi.TransferFrom, token), "transferFrom of token")
	c.expect(&add.ActionBase, c.isCall(c.abi.Deposit, wrapped), "wrapped native deposit")
	c.expect(&add.ActionBase, c.isCall(c.abi.Transfer, wrapped), "wrapped native transfer to pool")
	if mint := c.expect(&add.ActionBase, c.isCall(c.abi.PairMint, pool), "pool mint"); mint != nil {
		consumeChildrenCalling(c.state, mint, token, wrapped, c.router.Factory)
	}
	if refund := c.cursor.next(nativeTransferTo(add.Operator)); refund != nil {
		add.Refund = refund.ValueBig()
	}
	c.consumeHelperQueries(pool)
	return add
}

func removeTokensRoutine(permit bool) liquidityRoutine {
	return func(c *liquidityCall) Action {
		tokenA, _ := c.args.Address("tokenA")
		tokenB, _ := c.args.Address("tokenB")
		pool := c.router.PairFor(tokenA, tokenB)
		rm := &RemoveLiquidity{
			ActionBase: c.base,
			Pool:       pool,
			TokenA:     tokenA,
			TokenB:     tokenB,
			Liquidity:  c.args.Big("liquidity"),
			AmountAMin: c.args.Big("amountAMin"),
			AmountBMin: c.args.Big("amountBMin"),
			Deadline:   c.args.Big("deadline"),
			AmountA:    c.outputs.Big("amountA"),
			AmountB:    c.outputs.Big("amountB"),
			Permit:     permit,
		}
		c.state.RequestMetadata(tokenA, tokenB)

		c.burnSequence(&rm.ActionBase, pool, permit, tokenA, tokenB)
		return rm
	}
}

func removeNativeRoutine(permit, feeOnTransfer bool) liquidityRoutine {
	return func(c *liquidityCall) Action {
		token, _ := c.args.Address("token")
		wrapped := c.router.WrappedNative
		pool := c.router.PairFor(token, wrapped)
		rm := &RemoveLiquidity{
			ActionBase:    c.base,
			Pool:          pool,
			TokenA:        token,
			TokenB:        NativeCurrency,
			Liquidity:     c.args.Big("liquidity"),
			AmountAMin:    c.args.Big("amountTokenMin"),
			AmountBMin:    c.args.Big("amountETHMin"),
			Deadline:      c.args.Big("deadline"),
			AmountB:       c.outputs.Big("amountETH"),
			Permit:        permit,
			FeeOnTransfer: feeOnTransfer,
		}
		if !feeOnTransfer {
			rm.AmountA = c.outputs.Big("amountToken")
		}
		c.state.RequestMetadata(token)

		c.burnSequence(&rm.ActionBase, pool, permit, token, wrapped)

		var balanceQuery *trace.Node
		if feeOnTransfer {
			balanceQuery = c.balanceQuery(token, c.router.Address)
		}
		transfer := c.expect(&rm.ActionBase, c.isCall(c.abi.Transfer, token), "token transfer to recipient")
		if withdraw := c.expect(&rm.ActionBase, c.isCall(c.abi.Withdraw, wrapped), "wrapped native withdraw"); withdraw != nil {
			consumeNativeRefunds(c.state, withdraw, c.router.Address)
			if feeOnTransfer && rm.AmountB == nil {
				if in, err := c.abi.Withdraw.DecodeInput(withdraw.CallData); err == nil {
					rm.AmountB = in.Big("wad")
				}
			}
		}
		c.expect(&rm.ActionBase, nativeTransferTo(rm.Recipient), "native transfer to recipient")

		if feeOnTransfer {
			rm.AmountA = c.observedTokenAmount(balanceQuery, transfer)
			if rm.AmountA == nil {
				rm.mismatch("token amount unresolved")
			}
		}
		return rm
	}
}

// burnSequence matches [permit] -> pair.transferFrom -> pair.burn.
func (c *liquidityCall) burnSequence(base *ActionBase, pool common.Address, permit bool, tokens ...common.Address) {
	if permit {
		c.expect(base, c.isCall(c.abi.PairPermit, pool), "pool permit")
	}
	c.expect(base, c.isCall(c.abi.TransferFrom, pool), "liquidity transfer to pool")
	if burn := c.expect(base, c.isCall(c.abi.PairBurn, pool), "pool burn"); burn != nil {
		consumeChildrenCalling(c.state, burn, append(tokens, c.router.Factory)...)
	}
}

// observedTokenAmount prefers the router's balanceOf result and falls back to
// the amount passed to the forwarding transfer.
func (c *liquidityCall) observedTokenAmount(balanceQuery, transfer *trace.Node) *big.Int {
	if balanceQuery != nil {
		if out, err := c.abi.BalanceOf.DecodeOutput(balanceQuery.ReturnData); err == nil {
			if amount, err := abicodec.AsBigInt(out.At(0)); err == nil {
				return amount
			}
		}
	}
	if transfer != nil {
		if in, err := c.abi.Transfer.DecodeInput(transfer.CallData); err == nil {
			return in.Big("value")
		}
	}
	return nil
}

// balanceQuery finds and consumes the router's balanceOf(owner) query on token.
func (c *liquidityCall) balanceQuery(token, owner common.Address) *trace.Node {
	for _, child := range c.node.Children {
		if to, ok := child.Callee(); !ok || to != token || c.state.IsConsumed(child.Path) {
			continue
		}
		if !c.abi.BalanceOf.Matches(child.CallData) || len(child.ReturnData) == 0 {
			continue
		}
		in, err := c.abi.BalanceOf.DecodeInput(child.CallData)
		if err != nil {
			continue
		}
		if who, ok := in.Address("owner"); ok && who == owner {
			c.state.Consume(child)
			return child
		}
	}
	return nil
}

// createPair matches the optional factory createPair call and consumes its
// whole subtree.
func (c *liquidityCall) createPair() bool {
	created := c.cursor.next(c.isCall(c.abi.CreatePair, c.router.Factory))
	if created == nil {
		return false
	}
	c.state.ConsumeTree(created)
	return true
}

// consumeHelperQueries consumes the router's getPair / getReserves lookups.
func (c *liquidityCall) consumeHelperQueries(pool common.Address) {
	for _, child := range c.node.Children {
		if child.Kind != trace.KindStaticCall {
			continue
		}
		to, ok := child.Callee()
		switch {
		case !ok:
		case to == c.router.Factory && c.abi.GetPair.Matches(child.CallData):
			c.state.Consume(child)
		case to == pool && c.abi.GetReserves.Matches(child.CallData):
			c.state.Consume(child)
		}
	}
}

func (c *liquidityCall) expect(base *ActionBase, match func(*trace.Node) bool, what string) *trace.Node {
	n := c.cursor.next(match)
	if n == nil {
		base.mismatch("missing %s", what)
	}
	return n
}

func (c *liquidityCall) isCall(sig abicodec.Signature, to common.Address) func(*trace.Node) bool {
	return func(n *trace.Node) bool {
		return n.CallsTo(to) && sig.Matches(n.CallData)
	}
}

func nativeTransferTo(to common.Address) func(*trace.Node) bool {
	return func(n *trace.Node) bool {
		return n.CallsTo(to) && n.HasValue()
	}
}

// callCursor walks the unconsumed direct CALL children of a node in order.
// Each match advances past the matched call; a failed match leaves the
// position unchanged so later expectations can still be met.
type callCursor struct {
	calls   []*trace.Node
	pos     int
	matched []*trace.Node
}

func newCallCursor(state *State, node *trace.Node) *callCursor {
	cur := &callCursor{}
	for _, child := range node.CallChildren() {
		if !state.IsConsumed(child.Path) {
			cur.calls = append(cur.calls, child)
		}
	}
	return cur
}

func (c *callCursor) next(match func(*trace.Node) bool) *trace.Node {
	for i := c.pos; i < len(c.calls); i++ {
		if match(c.calls[i]) {
			c.pos = i + 1
			c.matched = append(c.matched, c.calls[i])
			return c.calls[i]
		}
	}
	return nil
}

// consumeChildrenCalling consumes the direct children of node whose callee is
// one of addrs.
func consumeChildrenCalling(state *State, node *trace.Node, addrs ...common.Address) {
	for _, child := range node.Children {
		to, ok := child.Callee()
		if !ok {
			continue
		}
		for _, addr := range addrs {
			if to == addr {
				state.Consume(child)
				break
			}
		}
	}
}

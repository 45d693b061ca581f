package model

// Amounts are decimal strings in raw token units. An empty string means the
// amount could not be recovered from the trace.

// SwapData is the payload of a swap action.
type SwapData struct {
	Path          []string   `json:"path"`
	Hops          []PoolMeta `json:"hops"`
	TokenIn       string     `json:"token_in"`
	TokenOut      string     `json:"token_out"`
	AmountIn      string     `json:"amount_in"`
	AmountOut     string     `json:"amount_out"`
	AmountOutMin  string     `json:"amount_out_min,omitempty"`
	AmountInMax   string     `json:"amount_in_max,omitempty"`
	Deadline      string     `json:"deadline"`
	InSource      string     `json:"amount_in_source,omitempty"`
	OutSource     string     `json:"amount_out_source,omitempty"`
	ExactIn       bool       `json:"exact_in"`
	NativeIn      bool       `json:"native_in"`
	NativeOut     bool       `json:"native_out"`
	FeeOnTransfer bool       `json:"fee_on_transfer"`
}

// AddLiquidityData is the payload of an add-liquidity action.
type AddLiquidityData struct {
	Pool           PoolMeta `json:"pool"`
	TokenA         string   `json:"token_a"`
	TokenB         string   `json:"token_b"`
	AmountADesired string   `json:"amount_a_desired"`
	AmountBDesired string   `json:"amount_b_desired"`
	AmountAMin     string   `json:"amount_a_min"`
	AmountBMin     string   `json:"amount_b_min"`
	AmountA        string   `json:"amount_a"`
	AmountB        string   `json:"amount_b"`
	Liquidity      string   `json:"liquidity"`
	Refund         string   `json:"refund,omitempty"`
	Deadline       string   `json:"deadline"`
	PairCreated    bool     `json:"pair_created"`
}

// RemoveLiquidityData is the payload of a remove-liquidity action.
type RemoveLiquidityData struct {
	Pool          PoolMeta `json:"pool"`
	TokenA        string   `json:"token_a"`
	TokenB        string   `json:"token_b"`
	Liquidity     string   `json:"liquidity"`
	AmountAMin    string   `json:"amount_a_min"`
	AmountBMin    string   `json:"amount_b_min"`
	AmountA       string   `json:"amount_a"`
	AmountB       string   `json:"amount_b"`
	Deadline      string   `json:"deadline"`
	Permit        bool     `json:"permit"`
	FeeOnTransfer bool     `json:"fee_on_transfer"`
}

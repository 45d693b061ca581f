package model

// PoolMeta identifies a constant-product pair and its sorted tokens. Token
// addresses are the wrapped token for native legs.
type PoolMeta struct {
	Address string `json:"address"`
	Token0  string `json:"token0"`
	Token1  string `json:"token1"`
	// FeeBps is the router's swap fee in basis points, 0 when unknown.
	FeeBps uint32 `json:"fee_bps,omitempty"`
}

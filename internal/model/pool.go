package model

// Pool represents a pair metadata record for storage.
type Pool struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"address"`
	Router         string `json:"router"`
	Token0         string `json:"token0"`
	Token1         string `json:"token1"`
	FeeBps         uint32 `json:"fee_bps"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}

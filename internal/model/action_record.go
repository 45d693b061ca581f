package model

import "encoding/json"

// Action kinds as written to ActionRecord.Kind.
const (
	KindSwap            = "swap"
	KindAddLiquidity    = "add_liquidity"
	KindRemoveLiquidity = "remove_liquidity"
)

// ActionRecord is a decoded router action enriched with transaction context.
type ActionRecord struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash,omitempty"`
	TxHash      string      `json:"tx_hash"`
	TxIndex     uint64      `json:"tx_index"`
	TracePath   string      `json:"trace_path"`
	Timestamp   uint64      `json:"timestamp"`
	Kind        string      `json:"kind"`
	Decoder     string      `json:"decoder"`
	Function    string      `json:"function"`
	Router      string      `json:"router"`
	Operator    string      `json:"operator"`
	Recipient   string      `json:"recipient"`
	Partial     bool        `json:"partial"`
	Reverted    bool        `json:"reverted,omitempty"`
	Issues      []string    `json:"issues,omitempty"`
	Decoded     interface{} `json:"decoded"`
}

// RawActionRecord is the JSON representation read back for aggregation. The
// payload type depends on Kind.
type RawActionRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash,omitempty"`
	TxHash      string          `json:"tx_hash"`
	TxIndex     uint64          `json:"tx_index"`
	TracePath   string          `json:"trace_path"`
	Timestamp   uint64          `json:"timestamp"`
	Kind        string          `json:"kind"`
	Decoder     string          `json:"decoder"`
	Function    string          `json:"function"`
	Router      string          `json:"router"`
	Operator    string          `json:"operator"`
	Recipient   string          `json:"recipient"`
	Partial     bool            `json:"partial"`
	Reverted    bool            `json:"reverted,omitempty"`
	Issues      []string        `json:"issues,omitempty"`
	Decoded     json.RawMessage `json:"decoded"`
}

// ID identifies an action within its chain.
func (r RawActionRecord) ID() string {
	return r.TxHash + ":" + r.TracePath
}

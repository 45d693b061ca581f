package model

// Stages a DecodeError can come from.
const (
	StageParse  = "parse"
	StageTrace  = "trace"
	StageDecode = "decode"
)

// DecodeError records a failure for one input line, trace or trace node.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	Stage       string `json:"stage"`
	Path        string `json:"path,omitempty"`
	Decoder     string `json:"decoder,omitempty"`
	Error       string `json:"error"`
}

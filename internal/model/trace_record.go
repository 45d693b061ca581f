package model

import (
	"encoding/json"
	"fmt"
)

// TraceRecord is one transaction call trace with its block context. Trace
// holds a geth callTracer frame recorded with logs enabled.
type TraceRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash,omitempty"`
	TxHash      string          `json:"tx_hash"`
	TxIndex     uint64          `json:"tx_index"`
	Timestamp   uint64          `json:"timestamp"`
	Trace       json.RawMessage `json:"trace"`
}

// UnmarshalJSON decodes a TraceRecord and rejects lines without a trace.
func (tr *TraceRecord) UnmarshalJSON(data []byte) error {
	type Alias TraceRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if len(a.Trace) == 0 || string(a.Trace) == "null" {
		return fmt.Errorf("trace record %s: missing trace", a.TxHash)
	}
	*tr = TraceRecord(a)
	return nil
}

package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestTraceRecordJSONRoundTrip(t *testing.T) {
	original := TraceRecord{
		ChainID:     56,
		BlockNumber: 36000000,
		BlockHash:   "0xabc123",
		TxHash:      "0xdef456",
		TxIndex:     7,
		Timestamp:   1700000000,
		Trace:       json.RawMessage(`{"type":"CALL","from":"0x1111111111111111111111111111111111111111"}`),
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded TraceRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestTraceRecordRequiresTrace(t *testing.T) {
	var record TraceRecord
	if err := json.Unmarshal([]byte(`{"tx_hash":"0x01"}`), &record); err == nil {
		t.Fatalf("expected error for missing trace")
	}
	if err := json.Unmarshal([]byte(`{"tx_hash":"0x01","trace":null}`), &record); err == nil {
		t.Fatalf("expected error for null trace")
	}
}

func TestActionRecordAmountsAreStrings(t *testing.T) {
	record := ActionRecord{
		TxHash:    "0xdef456",
		TracePath: "0.1",
		Kind:      KindSwap,
		Decoded: SwapData{
			Path:      []string{"0x1111111111111111111111111111111111111111", "0x2222222222222222222222222222222222222222"},
			AmountIn:  "12345678901234567890123",
			AmountOut: "42",
		},
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw RawActionRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if raw.ID() != "0xdef456:0.1" {
		t.Fatalf("unexpected id %q", raw.ID())
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw.Decoded, &decoded); err != nil {
		t.Fatalf("unmarshal payload failed: %v", err)
	}
	if _, ok := decoded["amount_in"].(string); !ok {
		t.Fatalf("amount_in should be string")
	}
	if _, ok := decoded["amount_out"].(string); !ok {
		t.Fatalf("amount_out should be string")
	}
	if _, ok := decoded["amount_out_min"]; ok {
		t.Fatalf("empty amount_out_min should be omitted")
	}
}

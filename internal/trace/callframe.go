package trace

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// CallFrame is the JSON shape produced by geth's callTracer with
// {"withLog": true}.
type CallFrame struct {
	Type         string          `json:"type"`
	From         common.Address  `json:"from"`
	To           *common.Address `json:"to,omitempty"`
	Value        *hexutil.Big    `json:"value,omitempty"`
	Input        hexutil.Bytes   `json:"input"`
	Output       hexutil.Bytes   `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	RevertReason string          `json:"revertReason,omitempty"`
	Calls        []CallFrame     `json:"calls,omitempty"`
	Logs         []CallLog       `json:"logs,omitempty"`
}

// CallLog is a log attached to a call frame.
type CallLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// ParseCallFrame decodes callTracer JSON into a node tree.
func ParseCallFrame(data []byte) (*Node, error) {
	var frame CallFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("parse call frame: %w", err)
	}
	return FromCallFrame(frame)
}

// FromCallFrame converts a call frame tree into nodes with dotted paths.
func FromCallFrame(frame CallFrame) (*Node, error) {
	return fromFrame(frame, "")
}

func fromFrame(frame CallFrame, path string) (*Node, error) {
	if frame.Type == "" {
		return nil, fmt.Errorf("frame %q: missing type", path)
	}
	node := &Node{
		Kind:     ParseKind(frame.Type),
		From:     frame.From,
		Value:    new(uint256.Int),
		CallData: append([]byte(nil), frame.Input...),
		Error:    frame.Error,
		Path:     path,
	}
	if node.Kind != KindCreate && frame.To != nil {
		to := *frame.To
		node.To = &to
	}
	if frame.Value != nil {
		value, overflow := uint256.FromBig(frame.Value.ToInt())
		if overflow {
			return nil, fmt.Errorf("frame %q: value exceeds 256 bits", path)
		}
		node.Value = value
	}
	if frame.Error == "" && frame.Output != nil {
		node.ReturnData = append([]byte(nil), frame.Output...)
	}

	if len(frame.Logs) > 0 {
		node.Logs = make([]Log, 0, len(frame.Logs))
		for _, l := range frame.Logs {
			node.Logs = append(node.Logs, Log{
				Address: l.Address,
				Topics:  append([]common.Hash(nil), l.Topics...),
				Data:    append([]byte(nil), l.Data...),
			})
		}
	}

	if len(frame.Calls) > 0 {
		node.Children = make([]*Node, 0, len(frame.Calls))
		for i, call := range frame.Calls {
			child, err := fromFrame(call, ChildPath(path, i))
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	}
	return node, nil
}

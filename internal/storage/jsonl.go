package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"traceScope/internal/model"
)

// JsonlStorage appends action records, and optionally decode errors and
// token metadata, to JSONL files.
type JsonlStorage struct {
	path       string
	errorsPath string
	tokensPath string
	mu         sync.Mutex
}

// NewJsonlStorage writes actions to path. Errors and token metadata are
// dropped when their path is empty.
func NewJsonlStorage(path, errorsPath, tokensPath string) *JsonlStorage {
	return &JsonlStorage{path: path, errorsPath: errorsPath, tokensPath: tokensPath}
}

// PutActionBatch appends a batch of action records as JSON lines.
func (s *JsonlStorage) PutActionBatch(_ context.Context, actions []model.ActionRecord) error {
	if len(actions) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(actions))
	for _, action := range actions {
		values = append(values, action)
	}
	return s.appendLines(s.path, values)
}

// PutDecodeErrors appends decode errors as JSON lines.
func (s *JsonlStorage) PutDecodeErrors(_ context.Context, errs []model.DecodeError) error {
	if len(errs) == 0 || s.errorsPath == "" {
		return nil
	}
	values := make([]interface{}, 0, len(errs))
	for _, e := range errs {
		values = append(values, e)
	}
	return s.appendLines(s.errorsPath, values)
}

// PutTokens appends token metadata as JSON lines.
func (s *JsonlStorage) PutTokens(_ context.Context, tokens []model.TokenMeta) error {
	if len(tokens) == 0 || s.tokensPath == "" {
		return nil
	}
	values := make([]interface{}, 0, len(tokens))
	for _, token := range tokens {
		values = append(values, token)
	}
	return s.appendLines(s.tokensPath, values)
}

func (s *JsonlStorage) appendLines(path string, values []interface{}) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, value := range values {
		line, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}

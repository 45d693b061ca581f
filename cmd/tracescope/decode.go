package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"traceScope/internal/chain"
	"traceScope/internal/config"
	"traceScope/internal/dex"
	"traceScope/internal/indexer"
	"traceScope/internal/model"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, reg, observer, err := newEngine(cfg.Routers, logger)
	if err != nil {
		return err
	}
	serveMetrics(ctx, observer, cfg.MetricsAddr, logger)
	pipeline := indexer.NewPipeline(engine, reg, logger)

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := newJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := newJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Int("workers", cfg.Workers),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Bool("enrich", cfg.RPCURL != ""),
	)

	stats, err := decodeStream(ctx, pipeline, inputFile, outWriter, errWriter, cfg.BatchSize, cfg.Workers)
	if err != nil {
		return err
	}

	if cfg.RPCURL != "" && len(stats.Metadata) > 0 {
		if err := writeTokenMeta(ctx, cfg.RPCURL, cfg.Tokens, stats.Metadata, logger); err != nil {
			return err
		}
	}

	logger.Info("decode complete",
		zap.Int("total", stats.Total),
		zap.Int("actions", stats.Actions),
		zap.Int("failed", stats.Failed),
		zap.Int("tokens", len(stats.Metadata)),
	)

	return nil
}

type decodeStats struct {
	Total    int
	Actions  int
	Failed   int
	Metadata []common.Address
}

// decodeStream reads trace records line by line and decodes them in batches
// of batchSize. Unreadable lines are reported as parse-stage errors.
func decodeStream(ctx context.Context, pipeline *indexer.Pipeline, input io.Reader, outWriter, errWriter *jsonlWriter, batchSize, workers int) (decodeStats, error) {
	var stats decodeStats
	seen := make(map[common.Address]struct{})

	flush := func(batch []model.TraceRecord) error {
		if len(batch) == 0 {
			return nil
		}
		out, err := pipeline.DecodeRecords(ctx, batch, workers)
		if err != nil {
			return err
		}
		for _, action := range out.Actions {
			if err := outWriter.Write(action); err != nil {
				return err
			}
		}
		for _, decodeErr := range out.Errors {
			writeDecodeError(errWriter, decodeErr)
		}
		for _, addr := range out.Metadata {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			stats.Metadata = append(stats.Metadata, addr)
		}
		stats.Actions += len(out.Actions)
		stats.Failed += len(out.Errors)
		return nil
	}

	scanner := bufio.NewScanner(input)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 64*1024*1024)

	batch := make([]model.TraceRecord, 0, batchSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var record model.TraceRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Failed++
			writeDecodeError(errWriter, decodeErrorFromLine(line, lineNo, err))
			continue
		}

		batch = append(batch, record)
		if len(batch) >= batchSize {
			if err := flush(batch); err != nil {
				return stats, err
			}
			batch = batch[:0]
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	if err := flush(batch); err != nil {
		return stats, err
	}
	return stats, nil
}

func writeTokenMeta(ctx context.Context, rpcURL, path string, tokens []common.Address, logger *zap.Logger) error {
	chainClient, err := chain.NewClient(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	metas, err := dex.NewEnricher(chainClient, dex.NewTokenMetaCache(), logger).Resolve(ctx, tokens)
	if err != nil {
		return err
	}

	writer, err := newJSONLWriter(path, false)
	if err != nil {
		return err
	}
	for _, meta := range metas {
		if err := writer.Write(meta); err != nil {
			writer.Close()
			return err
		}
	}
	return writer.Close()
}

type jsonlWriter struct {
	file   *os.File
	writer *bufio.Writer
}

func newJSONLWriter(path string, appendMode bool) (*jsonlWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &jsonlWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *jsonlWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// decodeErrorFromLine keeps whatever block context the line still carries.
func decodeErrorFromLine(line []byte, lineNo int, err error) model.DecodeError {
	var head struct {
		ChainID     uint64 `json:"chain_id"`
		BlockNumber uint64 `json:"block_number"`
		TxHash      string `json:"tx_hash"`
	}
	_ = json.Unmarshal(line, &head)

	return model.DecodeError{
		ChainID:     head.ChainID,
		BlockNumber: head.BlockNumber,
		TxHash:      head.TxHash,
		Stage:       model.StageParse,
		Error:       fmt.Sprintf("line %d: %v", lineNo, err),
	}
}

func writeDecodeError(writer *jsonlWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"traceScope/internal/abicodec"
	"traceScope/internal/dex"
	"traceScope/internal/indexer"
	"traceScope/internal/model"
	"traceScope/internal/trace"
)

func swapRecord(t *testing.T, txHash string) string {
	t.Helper()
	sig := abicodec.MustParseSignature("swapExactTokensForTokens(uint256 amountIn, uint256 amountOutMin, address[] path, address to, uint256 deadline) returns (uint256[] amounts)")
	tokenA := common.HexToAddress("0xa0000000000000000000000000000000000000aa")
	tokenB := common.HexToAddress("0x0b000000000000000000000000000000000000bb")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	input, err := sig.EncodeCall(big.NewInt(1000), big.NewInt(900), []common.Address{tokenA, tokenB}, to, big.NewInt(1700000000))
	require.NoError(t, err)
	output, err := sig.EncodeOutput([]*big.Int{big.NewInt(1000), big.NewInt(950)})
	require.NoError(t, err)

	router := dex.DefaultRouters()[0].Address
	frame, err := json.Marshal(trace.CallFrame{
		Type:   "CALL",
		From:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		To:     &router,
		Value:  (*hexutil.Big)(big.NewInt(0)),
		Input:  input,
		Output: output,
	})
	require.NoError(t, err)

	line, err := json.Marshal(model.TraceRecord{ChainID: 1, BlockNumber: 7, TxHash: txHash, Timestamp: 1700000070, Trace: frame})
	require.NoError(t, err)
	return string(line)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestDecodeStream(t *testing.T) {
	dir := t.TempDir()
	input := strings.Join([]string{
		swapRecord(t, "0x01"),
		"",
		`{"chain_id":1,"block_number":8,"tx_hash":"0x02"}`,
		`not json`,
		swapRecord(t, "0x03"),
	}, "\n")

	outWriter, err := newJSONLWriter(filepath.Join(dir, "out", "actions.jsonl"), false)
	require.NoError(t, err)
	errWriter, err := newJSONLWriter(filepath.Join(dir, "errors.jsonl"), false)
	require.NoError(t, err)

	engine, reg, _, err := newEngine(dex.DefaultRouters(), nil)
	require.NoError(t, err)
	pipeline := indexer.NewPipeline(engine, reg, nil)

	stats, err := decodeStream(context.Background(), pipeline, strings.NewReader(input), outWriter, errWriter, 1, 2)
	require.NoError(t, err)
	require.NoError(t, outWriter.Close())
	require.NoError(t, errWriter.Close())

	require.Equal(t, 4, stats.Total)
	require.Equal(t, 2, stats.Actions)
	require.Equal(t, 2, stats.Failed)
	require.Len(t, stats.Metadata, 2)

	actions := readLines(t, filepath.Join(dir, "out", "actions.jsonl"))
	require.Len(t, actions, 2)
	var first model.RawActionRecord
	require.NoError(t, json.Unmarshal([]byte(actions[0]), &first))
	require.Equal(t, "0x01", first.TxHash)
	require.Equal(t, model.KindSwap, first.Kind)

	errs := readLines(t, filepath.Join(dir, "errors.jsonl"))
	require.Len(t, errs, 2)
	var missing model.DecodeError
	require.NoError(t, json.Unmarshal([]byte(errs[0]), &missing))
	require.Equal(t, model.StageParse, missing.Stage)
	require.Equal(t, "0x02", missing.TxHash)
	require.Equal(t, uint64(8), missing.BlockNumber)
	require.Contains(t, missing.Error, "line 3")
}

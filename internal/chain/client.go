package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// callTracerConfig asks for nested call frames with the logs each frame
// emitted.
var callTracerConfig = map[string]interface{}{
	"tracer":       "callTracer",
	"tracerConfig": map[string]interface{}{"withLog": true},
}

// TxTrace is one entry of a debug_traceBlock* response.
type TxTrace struct {
	TxHash common.Hash     `json:"txHash"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// BlockByNumber returns the block by number.
func (c *Client) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	return c.ethClient.BlockByNumber(ctx, number)
}

// HeaderByNumber returns the block header by number.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.ethClient.HeaderByNumber(ctx, number)
}

// TransactionReceipt returns the receipt of a mined transaction.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.ethClient.TransactionReceipt(ctx, txHash)
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// TraceTransaction returns the callTracer frame of one transaction.
func (c *Client) TraceTransaction(ctx context.Context, txHash common.Hash) (json.RawMessage, error) {
	var result json.RawMessage
	if err := c.rpcClient.CallContext(ctx, &result, "debug_traceTransaction", txHash, callTracerConfig); err != nil {
		return nil, fmt.Errorf("debug_traceTransaction %s: %w", txHash.Hex(), err)
	}
	return result, nil
}

// TraceBlockByNumber returns the callTracer frames of every transaction in a
// block, in transaction index order.
func (c *Client) TraceBlockByNumber(ctx context.Context, number uint64) ([]TxTrace, error) {
	var result []TxTrace
	if err := c.rpcClient.CallContext(ctx, &result, "debug_traceBlockByNumber", hexutil.EncodeUint64(number), callTracerConfig); err != nil {
		return nil, fmt.Errorf("debug_traceBlockByNumber %d: %w", number, err)
	}
	return result, nil
}

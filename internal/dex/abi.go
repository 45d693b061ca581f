package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"traceScope/internal/abicodec"
)

const v2PairABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount0In", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount1In", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount0Out", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount1Out", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"}
    ],
    "name": "Swap",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount0", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount1", "type": "uint256"}
    ],
    "name": "Mint",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount0", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount1", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"}
    ],
    "name": "Burn",
    "type": "event"
  },
  {
    "inputs": [
      {"internalType": "uint256", "name": "amount0Out", "type": "uint256"},
      {"internalType": "uint256", "name": "amount1Out", "type": "uint256"},
      {"internalType": "address", "name": "to", "type": "address"},
      {"internalType": "bytes", "name": "data", "type": "bytes"}
    ],
    "name": "swap",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "to", "type": "address"}],
    "name": "mint",
    "outputs": [{"internalType": "uint256", "name": "liquidity", "type": "uint256"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "to", "type": "address"}],
    "name": "burn",
    "outputs": [
      {"internalType": "uint256", "name": "amount0", "type": "uint256"},
      {"internalType": "uint256", "name": "amount1", "type": "uint256"}
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "owner", "type": "address"},
      {"internalType": "address", "name": "spender", "type": "address"},
      {"internalType": "uint256", "name": "value", "type": "uint256"},
      {"internalType": "uint256", "name": "deadline", "type": "uint256"},
      {"internalType": "uint8", "name": "v", "type": "uint8"},
      {"internalType": "bytes32", "name": "r", "type": "bytes32"},
      {"internalType": "bytes32", "name": "s", "type": "bytes32"}
    ],
    "name": "permit",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getReserves",
    "outputs": [
      {"internalType": "uint112", "name": "reserve0", "type": "uint112"},
      {"internalType": "uint112", "name": "reserve1", "type": "uint112"},
      {"internalType": "uint32", "name": "blockTimestampLast", "type": "uint32"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const erc20TransferABIJSON = `[
  {
    "inputs": [
      {"internalType": "address", "name": "to", "type": "address"},
      {"internalType": "uint256", "name": "value", "type": "uint256"}
    ],
    "name": "transfer",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "from", "type": "address"},
      {"internalType": "address", "name": "to", "type": "address"},
      {"internalType": "uint256", "name": "value", "type": "uint256"}
    ],
    "name": "transferFrom",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "owner", "type": "address"}],
    "name": "balanceOf",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "deposit",
    "outputs": [],
    "stateMutability": "payable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "wad", "type": "uint256"}],
    "name": "withdraw",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

const v2FactoryABIJSON = `[
  {
    "inputs": [
      {"internalType": "address", "name": "tokenA", "type": "address"},
      {"internalType": "address", "name": "tokenB", "type": "address"}
    ],
    "name": "createPair",
    "outputs": [{"internalType": "address", "name": "pair", "type": "address"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "", "type": "address"},
      {"internalType": "address", "name": "", "type": "address"}
    ],
    "name": "getPair",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

// v2ABI holds the pair, token and factory signatures the router decoders
// match nested calls and logs against.
type v2ABI struct {
	PairSwap    abicodec.Signature
	PairMint    abicodec.Signature
	PairBurn    abicodec.Signature
	PairPermit  abicodec.Signature
	GetReserves abicodec.Signature

	SwapEvent abicodec.Signature
	MintEvent abicodec.Signature
	BurnEvent abicodec.Signature

	Transfer     abicodec.Signature
	TransferFrom abicodec.Signature
	BalanceOf    abicodec.Signature
	Deposit      abicodec.Signature
	Withdraw     abicodec.Signature

	CreatePair abicodec.Signature
	GetPair    abicodec.Signature
}

var (
	v2ABIInstance *v2ABI
	v2ABIOnce     sync.Once
	v2ABIErr      error
)

// loadV2ABI returns the parsed Uniswap-V2 pair / ERC-20 / WETH / factory ABI.
func loadV2ABI() (*v2ABI, error) {
	v2ABIOnce.Do(func() {
		v2ABIInstance, v2ABIErr = parseV2ABI()
	})
	return v2ABIInstance, v2ABIErr
}

func parseV2ABI() (*v2ABI, error) {
	pair, err := abi.JSON(strings.NewReader(v2PairABIJSON))
	if err != nil {
		return nil, err
	}
	token, err := abi.JSON(strings.NewReader(erc20TransferABIJSON))
	if err != nil {
		return nil, err
	}
	factory, err := abi.JSON(strings.NewReader(v2FactoryABIJSON))
	if err != nil {
		return nil, err
	}
	return &v2ABI{
		PairSwap:     abicodec.FromMethod(pair.Methods["swap"]),
		PairMint:     abicodec.FromMethod(pair.Methods["mint"]),
		PairBurn:     abicodec.FromMethod(pair.Methods["burn"]),
		PairPermit:   abicodec.FromMethod(pair.Methods["permit"]),
		GetReserves:  abicodec.FromMethod(pair.Methods["getReserves"]),
		SwapEvent:    abicodec.FromEvent(pair.Events["Swap"]),
		MintEvent:    abicodec.FromEvent(pair.Events["Mint"]),
		BurnEvent:    abicodec.FromEvent(pair.Events["Burn"]),
		Transfer:     abicodec.FromMethod(token.Methods["transfer"]),
		TransferFrom: abicodec.FromMethod(token.Methods["transferFrom"]),
		BalanceOf:    abicodec.FromMethod(token.Methods["balanceOf"]),
		Deposit:      abicodec.FromMethod(token.Methods["deposit"]),
		Withdraw:     abicodec.FromMethod(token.Methods["withdraw"]),
		CreatePair:   abicodec.FromMethod(factory.Methods["createPair"]),
		GetPair:      abicodec.FromMethod(factory.Methods["getPair"]),
	}, nil
}

func mustV2ABI() *v2ABI {
	parsed, err := loadV2ABI()
	if err != nil {
		panic(err)
	}
	return parsed
}

package abicodec

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SortTokens orders two token addresses by unsigned numeric value.
func SortTokens(tokenA, tokenB common.Address) (token0, token1 common.Address) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) <= 0 {
		return tokenA, tokenB
	}
	return tokenB, tokenA
}

// PairAddress derives the CREATE2 address of a constant-product pair:
//
//	salt = keccak256(token0 ++ token1)
//	addr = keccak256(0xff ++ factory ++ salt ++ initCodeHash)[12:]
//
// The result does not depend on argument order of the tokens.
func PairAddress(factory common.Address, initCodeHash common.Hash, tokenA, tokenB common.Address) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

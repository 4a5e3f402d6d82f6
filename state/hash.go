package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func codeHash(code []byte) common.Hash {
	return crypto.Keccak256Hash(code)
}

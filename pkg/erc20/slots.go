package erc20

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/limitfill/pkg/codec"
)

// MappingKey is the storage key of mapping[account] for a mapping declared at
// slot: keccak256(pad32(account) || pad32(slot))
func MappingKey(account common.Address, slot uint64) common.Hash {
	return hashKey(codec.AddressWord(account), common.BigToHash(new(big.Int).SetUint64(slot)))
}

// NestedMappingKey is the storage key of mapping[owner][spender]
func NestedMappingKey(owner, spender common.Address, slot uint64) common.Hash {
	inner := MappingKey(owner, slot)
	return hashKey(codec.AddressWord(spender), inner)
}

func hashKey(key [32]byte, slot common.Hash) common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(key[:])
	hasher.Write(slot[:])
	return common.BytesToHash(hasher.Sum(nil))
}

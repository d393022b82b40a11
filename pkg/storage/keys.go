package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//	slot:<chainID>:<asset> -> 8-byte big-endian slot index
const prefixSlot = "slot:"

// slotKey returns the key for an asset's balance slot
// Format: "slot:{chainID}:{asset}"
func slotKey(chainID uint64, asset common.Address) []byte {
	return []byte(fmt.Sprintf("%s%d:%s", prefixSlot, chainID, asset.Hex()))
}

// slotPrefix returns the prefix for every hint of a chain
func slotPrefix(chainID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d:", prefixSlot, chainID))
}

// assetFromKey recovers the asset address from a slot key
func assetFromKey(key []byte, chainID uint64) (common.Address, bool) {
	prefix := slotPrefix(chainID)
	if len(key) <= len(prefix) {
		return common.Address{}, false
	}
	hex := string(key[len(prefix):])
	if !common.IsHexAddress(hex) {
		return common.Address{}, false
	}
	return common.HexToAddress(hex), true
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

func encodeSlot(slot uint64) []byte {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], slot)
	return v[:]
}

func decodeSlot(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("slot value must be 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

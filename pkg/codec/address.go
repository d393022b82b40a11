// Package codec converts between 20-byte addresses, 256-bit words and the
// decimal/hex strings order records carry.
package codec

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrInvalidAddress is returned when a packed word has any of its high 96 bits set
var ErrInvalidAddress = errors.New("invalid address")

// PackAddress left-pads a 20-byte address into a 256-bit word
func PackAddress(addr common.Address) *uint256.Int {
	return new(uint256.Int).SetBytes(addr.Bytes())
}

// UnpackAddress returns the low 160 bits of a packed word as an address.
// Unpacking is strict: a word with non-zero high bits is rejected instead of
// being silently truncated.
func UnpackAddress(v *uint256.Int) (common.Address, error) {
	if v == nil {
		return common.Address{}, fmt.Errorf("%w: nil word", ErrInvalidAddress)
	}
	if v.BitLen() > common.AddressLength*8 {
		return common.Address{}, fmt.Errorf("%w: high bits set in 0x%x", ErrInvalidAddress, v.Bytes32())
	}
	return common.Address(v.Bytes20()), nil
}

// Word returns the 32-byte big-endian encoding of v
func Word(v *uint256.Int) [32]byte {
	return v.Bytes32()
}

// AddressWord returns the address left-padded to a 32-byte word, the layout
// used for mapping keys and ABI arguments
func AddressWord(addr common.Address) [32]byte {
	var out [32]byte
	copy(out[12:], addr.Bytes())
	return out
}

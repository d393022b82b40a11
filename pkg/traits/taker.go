// Package traits packs and unpacks the taker traits bit-field of the limit
// order protocol.
//
// Layout (bit 255 is the most significant):
//
//	255      maker amount flag
//	254      unwrap native flag
//	253      use permit2 flag
//	251      args has target
//	224..247 args extension length (24 bits)
//	200..223 args interaction length (24 bits)
//	0..184   threshold
package traits

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

const (
	makerAmountBit  = 255
	unwrapNativeBit = 254
	usePermit2Bit   = 253
	hasTargetBit    = 251

	extensionLengthOffset   = 224
	interactionLengthOffset = 200

	lengthBits    = 24
	thresholdBits = 185

	// MaxLength is the largest extension or interaction length the field can hold
	MaxLength = 1<<lengthBits - 1
)

// ErrLengthOverflow is returned for args segments too long for a 24-bit length field
var ErrLengthOverflow = errors.New("args length overflows 24 bits")

var (
	lengthMask    = uint256.NewInt(MaxLength)
	thresholdMask = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), thresholdBits), uint256.NewInt(1))
)

// TakerOptions are the fields of the taker traits word
type TakerOptions struct {
	MakerAmount       bool
	UnwrapNative      bool
	UsePermit2        bool
	HasTarget         bool
	ExtensionLength   uint32
	InteractionLength uint32
	Threshold         *uint256.Int
}

// EncodeTaker assembles the taker traits word. Lengths are masked to 24 bits
// and the threshold to 185 bits; use CheckLength before encoding values that
// may not fit.
func EncodeTaker(opts TakerOptions) *uint256.Int {
	traits := new(uint256.Int)

	setBit(traits, makerAmountBit, opts.MakerAmount)
	setBit(traits, unwrapNativeBit, opts.UnwrapNative)
	setBit(traits, usePermit2Bit, opts.UsePermit2)
	setBit(traits, hasTargetBit, opts.HasTarget)

	ext := new(uint256.Int).And(uint256.NewInt(uint64(opts.ExtensionLength)), lengthMask)
	traits.Or(traits, ext.Lsh(ext, extensionLengthOffset))

	inter := new(uint256.Int).And(uint256.NewInt(uint64(opts.InteractionLength)), lengthMask)
	traits.Or(traits, inter.Lsh(inter, interactionLengthOffset))

	if opts.Threshold != nil {
		threshold := new(uint256.Int).And(opts.Threshold, thresholdMask)
		traits.Or(traits, threshold)
	}
	return traits
}

// DecodeTaker extracts each field from a taker traits word
func DecodeTaker(traits *uint256.Int) TakerOptions {
	ext := new(uint256.Int).Rsh(traits, extensionLengthOffset)
	ext.And(ext, lengthMask)
	inter := new(uint256.Int).Rsh(traits, interactionLengthOffset)
	inter.And(inter, lengthMask)

	return TakerOptions{
		MakerAmount:       bitSet(traits, makerAmountBit),
		UnwrapNative:      bitSet(traits, unwrapNativeBit),
		UsePermit2:        bitSet(traits, usePermit2Bit),
		HasTarget:         bitSet(traits, hasTargetBit),
		ExtensionLength:   uint32(ext.Uint64()),
		InteractionLength: uint32(inter.Uint64()),
		Threshold:         new(uint256.Int).And(traits, thresholdMask),
	}
}

// CheckLength reports whether an args segment length fits the 24-bit field
func CheckLength(name string, n int) error {
	if n < 0 || n > MaxLength {
		return fmt.Errorf("%w: %s length %d", ErrLengthOverflow, name, n)
	}
	return nil
}

func setBit(z *uint256.Int, bit uint, on bool) {
	if on {
		z.Or(z, new(uint256.Int).Lsh(uint256.NewInt(1), bit))
	}
}

func bitSet(z *uint256.Int, bit uint) bool {
	return new(uint256.Int).Rsh(z, bit).Uint64()&1 == 1
}

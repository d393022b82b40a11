package codec

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrMalformedNumeric is returned for strings that are not a valid unsigned 256-bit integer
var ErrMalformedNumeric = errors.New("malformed numeric")

// ParseUint256 parses a decimal string, or a hex string with a 0x prefix,
// into a 256-bit unsigned integer
func ParseUint256(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty string", ErrMalformedNumeric)
	}

	digits, base := s, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits, base = s[2:], 16
		if digits == "" {
			return nil, fmt.Errorf("%w: %q has no hex digits", ErrMalformedNumeric, s)
		}
	}
	for _, c := range digits {
		if !isDigit(c, base) {
			return nil, fmt.Errorf("%w: %q contains %q", ErrMalformedNumeric, s, c)
		}
	}

	b, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformedNumeric, s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %q overflows 256 bits", ErrMalformedNumeric, s)
	}
	return v, nil
}

// ParseBig is ParseUint256 returning a *big.Int for ABI packing
func ParseBig(s string) (*big.Int, error) {
	v, err := ParseUint256(s)
	if err != nil {
		return nil, err
	}
	return v.ToBig(), nil
}

// ParseAddressWord accepts either a packed integer (decimal or hex) or a
// 0x-prefixed 20-byte address and returns the packed word. A packed value with
// high bits set fails with ErrInvalidAddress.
func ParseAddressWord(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) && strings.HasPrefix(strings.ToLower(s), "0x") {
		return PackAddress(common.HexToAddress(s)), nil
	}
	v, err := ParseUint256(s)
	if err != nil {
		return nil, err
	}
	if _, err := UnpackAddress(v); err != nil {
		return nil, err
	}
	return v, nil
}

// ParseAddress parses the same forms as ParseAddressWord and returns the address
func ParseAddress(s string) (common.Address, error) {
	v, err := ParseAddressWord(s)
	if err != nil {
		return common.Address{}, err
	}
	return UnpackAddress(v)
}

func isDigit(c rune, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case base == 16 && c >= 'a' && c <= 'f':
		return true
	case base == 16 && c >= 'A' && c <= 'F':
		return true
	}
	return false
}

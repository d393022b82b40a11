package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/limitfill/pkg/codec"
)

// SignatureLength is the size of an [R || S || V] signature
const SignatureLength = 65

var (
	// ErrInvalidSignatureLength is returned when a signature does not decode to 65 bytes
	ErrInvalidSignatureLength = errors.New("invalid signature length")
	// ErrInvalidRecoveryID is returned when V does not normalize to 0 or 1
	ErrInvalidRecoveryID = errors.New("invalid recovery id")
)

// CompactSignature is the 64-byte r/vs form the matching contract takes.
// The recovery bit lives in the top bit of VS; canonical secp256k1 S values
// never use that bit.
type CompactSignature struct {
	R  [32]byte
	VS [32]byte
}

// SplitSignature decodes a hex signature (optional 0x or 0X prefix) and folds
// V into S. Non-hex characters are ErrMalformedNumeric; an odd digit count can
// never decode to 65 bytes and is ErrInvalidSignatureLength.
func SplitSignature(sig string) (CompactSignature, error) {
	sig = strings.TrimSpace(sig)
	if len(sig) >= 2 && sig[0] == '0' && (sig[1] == 'x' || sig[1] == 'X') {
		sig = sig[2:]
	}

	raw, err := hex.DecodeString(sig)
	switch {
	case errors.Is(err, hex.ErrLength):
		return CompactSignature{}, fmt.Errorf("%w: odd number of hex digits (%d)", ErrInvalidSignatureLength, len(sig))
	case err != nil:
		return CompactSignature{}, fmt.Errorf("%w: invalid hex signature: %v", codec.ErrMalformedNumeric, err)
	}
	return SplitSignatureBytes(raw)
}

// SplitSignatureBytes folds a raw 65-byte [R || S || V] signature into r/vs
func SplitSignatureBytes(sig []byte) (CompactSignature, error) {
	if len(sig) != SignatureLength {
		return CompactSignature{}, fmt.Errorf("%w: signature must be %d bytes, got %d", ErrInvalidSignatureLength, SignatureLength, len(sig))
	}

	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return CompactSignature{}, fmt.Errorf("%w: v=%d", ErrInvalidRecoveryID, sig[64])
	}

	var out CompactSignature
	copy(out.R[:], sig[:32])
	copy(out.VS[:], sig[32:64])
	if v == 1 {
		out.VS[0] |= 0x80
	}
	return out, nil
}

// RecoveryID returns the normalized recovery id (0 or 1) stored in VS
func (c CompactSignature) RecoveryID() byte {
	return c.VS[0] >> 7
}

// V returns the Ethereum-style V (27 or 28)
func (c CompactSignature) V() byte {
	return 27 + c.RecoveryID()
}

// S returns VS with the recovery bit cleared
func (c CompactSignature) S() [32]byte {
	s := c.VS
	s[0] &= 0x7f
	return s
}

// Expand returns the 65-byte [R || S || V] form with V in {27, 28}
func (c CompactSignature) Expand() []byte {
	out := make([]byte, SignatureLength)
	copy(out[:32], c.R[:])
	s := c.S()
	copy(out[32:64], s[:])
	out[64] = c.V()
	return out
}

// RHash and VSHash are the bytes32 arguments for the fill entry points
func (c CompactSignature) RHash() common.Hash  { return common.Hash(c.R) }
func (c CompactSignature) VSHash() common.Hash { return common.Hash(c.VS) }

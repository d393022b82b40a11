package fill

import (
	"context"
	"errors"

	"github.com/uhyunpark/limitfill/pkg/codec"
	"github.com/uhyunpark/limitfill/pkg/crypto"
	"github.com/uhyunpark/limitfill/pkg/funding"
	"github.com/uhyunpark/limitfill/pkg/traits"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrApprovalFailed     = errors.New("approval failed")
	ErrFillReverted       = errors.New("fill reverted")
	ErrArgsLengthMismatch = errors.New("args length mismatch")
)

// Kind names a failure class in results and logs
type Kind string

const (
	KindMalformedNumeric       Kind = "MalformedNumeric"
	KindInvalidAddress         Kind = "InvalidAddress"
	KindInvalidSignatureLength Kind = "InvalidSignatureLength"
	KindInvalidRecoveryID      Kind = "InvalidRecoveryId"
	KindProvisioningExhausted  Kind = "ProvisioningExhausted"
	KindInsufficientFunds      Kind = "InsufficientFunds"
	KindApprovalFailed         Kind = "ApprovalFailed"
	KindFillReverted           Kind = "FillReverted"
	KindArgsLengthMismatch     Kind = "ArgsLengthMismatch"
	KindCanceled               Kind = "Canceled"
	KindUnknown                Kind = "Unknown"
)

// kinds is checked in order; outer stage errors wrap inner causes
var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrArgsLengthMismatch, KindArgsLengthMismatch},
	{traits.ErrLengthOverflow, KindArgsLengthMismatch},
	{ErrFillReverted, KindFillReverted},
	{ErrApprovalFailed, KindApprovalFailed},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{funding.ErrProvisioningExhausted, KindProvisioningExhausted},
	{crypto.ErrInvalidSignatureLength, KindInvalidSignatureLength},
	{crypto.ErrInvalidRecoveryID, KindInvalidRecoveryID},
	{codec.ErrInvalidAddress, KindInvalidAddress},
	{codec.ErrMalformedNumeric, KindMalformedNumeric},
	{context.Canceled, KindCanceled},
	{context.DeadlineExceeded, KindCanceled},
}

// KindOf classifies err
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Failure is the user-facing form of a failed fill
type Failure struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
}

func newFailure(err error) *Failure {
	return &Failure{Kind: KindOf(err), Reason: err.Error()}
}

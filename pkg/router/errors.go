package router

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// customErrors are the router's parameterless custom errors, by name
var customErrors = []string{
	"BadSignature",
	"InvalidatedOrder",
	"InvalidExtensionHash",
	"MakingAmountTooLow",
	"MissingOrderExtension",
	"OrderExpired",
	"PartialFillNotAllowed",
	"PredicateIsNotTrue",
	"PrivateOrder",
	"ReentrancyDetected",
	"SafeTransferFromFailed",
	"SwapWithZeroAmount",
	"TakingAmountExceeded",
	"TakingAmountTooHigh",
	"TransferFromMakerToTakerFailed",
	"TransferFromTakerToMakerFailed",
	"UnexpectedOrderExtension",
	"WrongSeriesNonce",
}

// argsErrors are raised when the extension or args disagree with the order
var argsErrors = map[string]bool{
	"InvalidExtensionHash":     true,
	"MissingOrderExtension":    true,
	"UnexpectedOrderExtension": true,
}

var errorsBySelector = func() map[[4]byte]string {
	m := make(map[[4]byte]string, len(customErrors))
	for _, name := range customErrors {
		m[ErrorSelector(name+"()")] = name
	}
	return m
}()

// ErrorSelector is the 4-byte selector of an error signature such as "BadSignature()"
func ErrorSelector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// Revert is a decoded revert payload
type Revert struct {
	// Name is the custom error name, empty for Error(string) and Panic(uint256)
	Name   string
	Reason string
	Data   []byte
}

// ArgsMismatch reports whether the revert comes from extension or args validation
func (r Revert) ArgsMismatch() bool {
	return argsErrors[r.Name]
}

func (r Revert) String() string {
	if r.Name != "" {
		return r.Name + "()"
	}
	return r.Reason
}

// DecodeRevert decodes Error(string), Panic(uint256) and the known custom errors.
// Unknown payloads are rendered as hex.
func DecodeRevert(data []byte) Revert {
	if len(data) == 0 {
		return Revert{Reason: "execution reverted"}
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return Revert{Reason: reason, Data: data}
	}
	if len(data) >= 4 {
		var sel [4]byte
		copy(sel[:], data[:4])
		if name, ok := errorsBySelector[sel]; ok {
			return Revert{Name: name, Reason: name, Data: data}
		}
	}
	return Revert{Reason: fmt.Sprintf("unknown revert %s", hexutil.Encode(data)), Data: data}
}

// IsCustomError reports whether data is the named parameterless error
func IsCustomError(data []byte, name string) bool {
	sel := ErrorSelector(name + "()")
	return len(data) >= 4 && bytes.Equal(data[:4], sel[:])
}

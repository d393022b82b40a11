// Package ledger is the privileged RPC surface of a forked chain: plain reads
// and transactions plus the anvil cheat methods used for funding.
package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// ErrTransactionFailed is returned by Send when the receipt status is not successful
var ErrTransactionFailed = errors.New("transaction failed")

// Caller executes read-only contract calls
type Caller interface {
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Ledger is a forked chain the filler can read, write and cheat on
type Ledger interface {
	Caller

	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	SetNativeBalance(ctx context.Context, account common.Address, amount *big.Int) error

	StorageAt(ctx context.Context, contract common.Address, key common.Hash) (common.Hash, error)
	SetStorageAt(ctx context.Context, contract common.Address, key, value common.Hash) error

	CodeAt(ctx context.Context, contract common.Address) ([]byte, error)
	SetCode(ctx context.Context, contract common.Address, code []byte) error

	Impersonate(ctx context.Context, account common.Address) error
	StopImpersonating(ctx context.Context, account common.Address) error

	// Send submits msg as a transaction from msg.From and waits for its receipt.
	// A mined but reverted transaction returns the receipt and ErrTransactionFailed.
	Send(ctx context.Context, msg ethereum.CallMsg) (*types.Receipt, error)
}

// RevertData extracts the revert payload carried by a failed call, if any
func RevertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}

	switch data := dataErr.ErrorData().(type) {
	case string:
		b, decErr := hexutil.Decode(data)
		if decErr != nil {
			return nil, false
		}
		return b, true
	case []byte:
		return data, true
	}
	return nil, false
}

// CallError is a failed call that carries revert data, the shape JSON-RPC
// nodes return for reverted eth_call
type CallError struct {
	Message string
	Data    []byte
}

func (e *CallError) Error() string { return e.Message }

// ErrorData implements rpc.DataError
func (e *CallError) ErrorData() interface{} { return hexutil.Encode(e.Data) }

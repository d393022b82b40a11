package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/uhyunpark/limitfill/pkg/crypto"
	"github.com/uhyunpark/limitfill/pkg/util"
)

const receiptPollInterval = 200 * time.Millisecond

// Anvil talks to an anvil fork over JSON-RPC
type Anvil struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	chainID *big.Int
	signers map[common.Address]*crypto.Signer
	clock   util.Clock
	logger  *zap.Logger
}

// Option configures an Anvil ledger
type Option func(*Anvil)

// WithSigner signs transactions from the signer's address locally instead of
// relying on the node's unlocked accounts
func WithSigner(s *crypto.Signer) Option {
	return func(a *Anvil) { a.signers[s.Address()] = s }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Anvil) { a.logger = l }
}

// WithClock replaces the clock used for receipt polling
func WithClock(c util.Clock) Option {
	return func(a *Anvil) { a.clock = c }
}

// Dial connects to the node at url and reads its chain id
func Dial(ctx context.Context, url string, opts ...Option) (*Anvil, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	a := NewAnvil(client, opts...)
	chainID, err := a.eth.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	a.chainID = chainID
	return a, nil
}

// NewAnvil wraps an existing RPC client. The chain id is read lazily on first send.
func NewAnvil(client *rpc.Client, opts ...Option) *Anvil {
	a := &Anvil{
		rpc:     client,
		eth:     ethclient.NewClient(client),
		signers: make(map[common.Address]*crypto.Signer),
		clock:   util.RealClock{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Close releases the RPC connection
func (a *Anvil) Close() {
	a.rpc.Close()
}

func (a *Anvil) ChainID(ctx context.Context) (*big.Int, error) {
	if a.chainID != nil {
		return a.chainID, nil
	}
	chainID, err := a.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	a.chainID = chainID
	return chainID, nil
}

func (a *Anvil) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return a.eth.BalanceAt(ctx, account, nil)
}

func (a *Anvil) SetNativeBalance(ctx context.Context, account common.Address, amount *big.Int) error {
	return a.rpc.CallContext(ctx, nil, "anvil_setBalance", account, (*hexutil.Big)(amount))
}

func (a *Anvil) StorageAt(ctx context.Context, contract common.Address, key common.Hash) (common.Hash, error) {
	value, err := a.eth.StorageAt(ctx, contract, key, nil)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(value), nil
}

func (a *Anvil) SetStorageAt(ctx context.Context, contract common.Address, key, value common.Hash) error {
	return a.rpc.CallContext(ctx, nil, "anvil_setStorageAt", contract, key, value)
}

func (a *Anvil) CodeAt(ctx context.Context, contract common.Address) ([]byte, error) {
	return a.eth.CodeAt(ctx, contract, nil)
}

func (a *Anvil) SetCode(ctx context.Context, contract common.Address, code []byte) error {
	return a.rpc.CallContext(ctx, nil, "anvil_setCode", contract, hexutil.Bytes(code))
}

func (a *Anvil) Impersonate(ctx context.Context, account common.Address) error {
	return a.rpc.CallContext(ctx, nil, "anvil_impersonateAccount", account)
}

func (a *Anvil) StopImpersonating(ctx context.Context, account common.Address) error {
	return a.rpc.CallContext(ctx, nil, "anvil_stopImpersonatingAccount", account)
}

func (a *Anvil) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return a.eth.CallContract(ctx, msg, nil)
}

func (a *Anvil) Send(ctx context.Context, msg ethereum.CallMsg) (*types.Receipt, error) {
	var (
		hash common.Hash
		err  error
	)
	if signer, ok := a.signers[msg.From]; ok {
		hash, err = a.sendSigned(ctx, signer, msg)
	} else {
		hash, err = a.sendUnlocked(ctx, msg)
	}
	if err != nil {
		return nil, err
	}

	a.logger.Debug("transaction sent",
		zap.String("hash", hash.Hex()),
		zap.String("from", msg.From.Hex()),
	)

	receipt, err := a.waitReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrTransactionFailed, hash.Hex())
	}
	return receipt, nil
}

func (a *Anvil) sendSigned(ctx context.Context, signer *crypto.Signer, msg ethereum.CallMsg) (common.Hash, error) {
	chainID, err := a.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := a.eth.PendingNonceAt(ctx, msg.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read nonce: %w", err)
	}
	gasPrice, err := a.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read gas price: %w", err)
	}
	gas := msg.Gas
	if gas == 0 {
		if gas, err = a.eth.EstimateGas(ctx, msg); err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
	}
	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       msg.To,
		Value:    value,
		Data:     msg.Data,
	})
	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	if err := a.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return signed.Hash(), nil
}

// sendUnlocked relies on the node holding or impersonating msg.From
func (a *Anvil) sendUnlocked(ctx context.Context, msg ethereum.CallMsg) (common.Hash, error) {
	args := map[string]interface{}{
		"from": msg.From,
		"data": hexutil.Bytes(msg.Data),
	}
	if msg.To != nil {
		args["to"] = *msg.To
	}
	if msg.Value != nil {
		args["value"] = (*hexutil.Big)(msg.Value)
	}
	if msg.Gas > 0 {
		args["gas"] = hexutil.Uint64(msg.Gas)
	}

	var hash common.Hash
	if err := a.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return hash, nil
}

// waitReceipt polls until the receipt is available or ctx is done
func (a *Anvil) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	for {
		receipt, err := a.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to read receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-a.clock.After(receiptPollInterval):
		}
	}
}

var _ Ledger = (*Anvil)(nil)

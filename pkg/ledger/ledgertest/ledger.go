// Package ledgertest provides an in-memory Ledger for tests. It has no EVM:
// registered tokens are emulated over their storage slots, the asset mock
// code is recognised by content, and anything else is served by handlers.
package ledgertest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/limitfill/pkg/erc20"
	"github.com/uhyunpark/limitfill/pkg/ledger"
)

// Token describes where an emulated ERC-20 keeps its mappings
type Token struct {
	BalanceSlot   uint64
	AllowanceSlot uint64
	// Wrapped makes deposit() mint one token per wei sent
	Wrapped bool
}

// Handler serves calls to a contract address. commit is false for eth_call.
type Handler func(l *Ledger, msg ethereum.CallMsg, commit bool) ([]byte, error)

// Ledger is an in-memory ledger.Ledger
type Ledger struct {
	mu           sync.Mutex
	native       map[common.Address]*big.Int
	storage      map[common.Address]map[common.Hash]common.Hash
	code         map[common.Address][]byte
	unlocked     map[common.Address]bool
	impersonated map[common.Address]bool
	tokens       map[common.Address]Token
	handlers     map[common.Address]Handler
	failures     map[string]error
	nonce        uint64

	// Ops records privileged operations in order, e.g. "impersonate 0x..."
	Ops []string
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		native:       make(map[common.Address]*big.Int),
		storage:      make(map[common.Address]map[common.Hash]common.Hash),
		code:         make(map[common.Address][]byte),
		unlocked:     make(map[common.Address]bool),
		impersonated: make(map[common.Address]bool),
		tokens:       make(map[common.Address]Token),
		handlers:     make(map[common.Address]Handler),
		failures:     make(map[string]error),
	}
}

// AddToken registers an emulated token at addr
func (l *Ledger) AddToken(addr common.Address, t Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[addr] = t
	l.code[addr] = []byte{0xfe}
}

// Handle routes calls for addr to h
func (l *Ledger) Handle(addr common.Address, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[addr] = h
	l.code[addr] = []byte{0xfe}
}

// Unlock lets account send without impersonation, like anvil's dev accounts
func (l *Ledger) Unlock(account common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked[account] = true
}

// FailOn makes every call of the named Ledger method return err
func (l *Ledger) FailOn(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[method] = err
}

// SetTokenBalance writes a balance straight into an emulated token's storage
func (l *Ledger) SetTokenBalance(token, account common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeBalance(token, account, amount)
}

// TokenBalance reads an emulated token balance
func (l *Ledger) TokenBalance(token, account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readBalance(token, account)
}

// Impersonating reports whether account is currently impersonated
func (l *Ledger) Impersonating(account common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.impersonated[account]
}

func (l *Ledger) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failures["NativeBalance"]; err != nil {
		return nil, err
	}
	return new(big.Int).Set(l.nativeOf(account)), nil
}

func (l *Ledger) SetNativeBalance(ctx context.Context, account common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failures["SetNativeBalance"]; err != nil {
		return err
	}
	l.native[account] = new(big.Int).Set(amount)
	l.Ops = append(l.Ops, "setBalance "+account.Hex())
	return nil
}

func (l *Ledger) StorageAt(ctx context.Context, contract common.Address, key common.Hash) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failures["StorageAt"]; err != nil {
		return common.Hash{}, err
	}
	return l.storage[contract][key], nil
}

func (l *Ledger) SetStorageAt(ctx context.Context, contract common.Address, key, value common.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failures["SetStorageAt"]; err != nil {
		return err
	}
	l.store(contract, key, value)
	l.Ops = append(l.Ops, "setStorageAt "+contract.Hex())
	return nil
}

func (l *Ledger) CodeAt(ctx context.Context, contract common.Address) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failures["CodeAt"]; err != nil {
		return nil, err
	}
	return common.CopyBytes(l.code[contract]), nil
}

func (l *Ledger) SetCode(ctx context.Context, contract common.Address, code []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failures["SetCode"]; err != nil {
		return err
	}
	l.code[contract] = common.CopyBytes(code)
	l.Ops = append(l.Ops, "setCode "+contract.Hex())
	return nil
}

func (l *Ledger) Impersonate(ctx context.Context, account common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failures["Impersonate"]; err != nil {
		return err
	}
	l.impersonated[account] = true
	l.Ops = append(l.Ops, "impersonate "+account.Hex())
	return nil
}

func (l *Ledger) StopImpersonating(ctx context.Context, account common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failures["StopImpersonating"]; err != nil {
		return err
	}
	delete(l.impersonated, account)
	l.Ops = append(l.Ops, "stopImpersonating "+account.Hex())
	return nil
}

func (l *Ledger) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	l.mu.Lock()
	if err := l.failures["Call"]; err != nil {
		l.mu.Unlock()
		return nil, err
	}
	h := l.handlerFor(msg.To)
	if h != nil {
		l.mu.Unlock()
		return h(l, msg, false)
	}
	defer l.mu.Unlock()
	return l.execute(msg, false)
}

func (l *Ledger) Send(ctx context.Context, msg ethereum.CallMsg) (*types.Receipt, error) {
	l.mu.Lock()
	if err := l.failures["Send"]; err != nil {
		l.mu.Unlock()
		return nil, err
	}
	if !l.unlocked[msg.From] && !l.impersonated[msg.From] {
		l.mu.Unlock()
		return nil, fmt.Errorf("no signer for %s", msg.From.Hex())
	}

	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}
	if l.nativeOf(msg.From).Cmp(value) < 0 {
		l.mu.Unlock()
		return nil, errors.New("insufficient funds for transfer")
	}

	l.nonce++
	receipt := &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		TxHash: common.BigToHash(new(big.Int).SetUint64(l.nonce)),
	}

	var err error
	if h := l.handlerFor(msg.To); h != nil {
		l.mu.Unlock()
		_, err = h(l, msg, true)
		l.mu.Lock()
	} else {
		_, err = l.execute(msg, true)
	}
	defer l.mu.Unlock()

	if err != nil {
		receipt.Status = types.ReceiptStatusFailed
		return receipt, fmt.Errorf("%w: %v", ledger.ErrTransactionFailed, err)
	}
	if msg.To != nil && value.Sign() > 0 {
		l.native[msg.From] = new(big.Int).Sub(l.nativeOf(msg.From), value)
		l.native[*msg.To] = new(big.Int).Add(l.nativeOf(*msg.To), value)
	}
	return receipt, nil
}

func (l *Ledger) handlerFor(to *common.Address) Handler {
	if to == nil {
		return nil
	}
	if bytes.Equal(l.code[*to], erc20.MockCode) {
		return nil
	}
	return l.handlers[*to]
}

// execute runs a call against the mock code or an emulated token; l.mu is held
func (l *Ledger) execute(msg ethereum.CallMsg, commit bool) ([]byte, error) {
	if msg.To == nil || len(msg.Data) == 0 {
		return nil, nil
	}
	to := *msg.To

	if bytes.Equal(l.code[to], erc20.MockCode) {
		return mockResult(msg.Data), nil
	}

	token, ok := l.tokens[to]
	if !ok {
		return nil, nil
	}
	if len(msg.Data) < 4 {
		return nil, Revert("function selector not found")
	}
	method, err := erc20.ABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, Revert("function selector not found")
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, Revert("invalid calldata")
	}

	switch method.Name {
	case "balanceOf":
		return method.Outputs.Pack(l.readBalance(to, args[0].(common.Address)))

	case "allowance":
		key := erc20.NestedMappingKey(args[0].(common.Address), args[1].(common.Address), token.AllowanceSlot)
		return method.Outputs.Pack(l.storage[to][key].Big())

	case "approve":
		if commit {
			key := erc20.NestedMappingKey(msg.From, args[0].(common.Address), token.AllowanceSlot)
			l.store(to, key, common.BigToHash(args[1].(*big.Int)))
		}
		return method.Outputs.Pack(true)

	case "transfer":
		recipient, amount := args[0].(common.Address), args[1].(*big.Int)
		balance := l.readBalance(to, msg.From)
		if balance.Cmp(amount) < 0 {
			return nil, Revert("ERC20: transfer amount exceeds balance")
		}
		if commit {
			l.writeBalance(to, msg.From, new(big.Int).Sub(balance, amount))
			l.writeBalance(to, recipient, new(big.Int).Add(l.readBalance(to, recipient), amount))
		}
		return method.Outputs.Pack(true)

	case "deposit":
		if !token.Wrapped {
			return nil, Revert("function selector not found")
		}
		if commit && msg.Value != nil {
			l.writeBalance(to, msg.From, new(big.Int).Add(l.readBalance(to, msg.From), msg.Value))
		}
		return nil, nil

	case "decimals":
		return method.Outputs.Pack(uint8(18))
	}
	return nil, Revert("function selector not found")
}

func (l *Ledger) nativeOf(account common.Address) *big.Int {
	if b, ok := l.native[account]; ok {
		return b
	}
	return new(big.Int)
}

func (l *Ledger) store(contract common.Address, key, value common.Hash) {
	slots, ok := l.storage[contract]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		l.storage[contract] = slots
	}
	slots[key] = value
}

func (l *Ledger) readBalance(token, account common.Address) *big.Int {
	return l.storage[token][erc20.MappingKey(account, l.tokens[token].BalanceSlot)].Big()
}

func (l *Ledger) writeBalance(token, account common.Address, amount *big.Int) {
	l.store(token, erc20.MappingKey(account, l.tokens[token].BalanceSlot), common.BigToHash(amount))
}

func mockResult(data []byte) []byte {
	if len(data) >= 4 {
		selector := data[:4]
		if bytes.Equal(selector, erc20.BalanceOfSelector) || bytes.Equal(selector, erc20.AllowanceSelector) {
			return math.U256Bytes(new(big.Int).Set(math.MaxBig256))
		}
	}
	return math.U256Bytes(big.NewInt(1))
}

var errorSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

// Revert builds a call error carrying Error(string) revert data
func Revert(reason string) error {
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	return &ledger.CallError{
		Message: "execution reverted: " + reason,
		Data:    append(common.CopyBytes(errorSelector), packed...),
	}
}

// RevertData builds a call error carrying raw revert data, e.g. a custom error
func RevertData(data []byte) error {
	return &ledger.CallError{Message: "execution reverted", Data: data}
}

var _ ledger.Ledger = (*Ledger)(nil)

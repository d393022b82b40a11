package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// anvilService answers the anvil_* namespace
type anvilService struct {
	mu           sync.Mutex
	balances     map[common.Address]*big.Int
	storage      map[common.Hash]common.Hash
	code         map[common.Address][]byte
	impersonated map[common.Address]bool
}

func (s *anvilService) SetBalance(addr common.Address, amount hexutil.Big) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[addr] = amount.ToInt()
	return nil
}

func (s *anvilService) SetStorageAt(addr common.Address, key, value common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage[key] = value
	return nil
}

func (s *anvilService) SetCode(addr common.Address, code hexutil.Bytes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code[addr] = code
	return nil
}

func (s *anvilService) ImpersonateAccount(addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.impersonated[addr] = true
	return nil
}

func (s *anvilService) StopImpersonatingAccount(addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.impersonated, addr)
	return nil
}

// ethService answers the handful of eth_* methods the ledger uses
type ethService struct {
	anvil        *anvilService
	pendingPolls int
	status       uint64
	sent         []map[string]interface{}
}

func (s *ethService) ChainId() hexutil.Big {
	return hexutil.Big(*big.NewInt(56))
}

func (s *ethService) GetBalance(addr common.Address, block string) *hexutil.Big {
	s.anvil.mu.Lock()
	defer s.anvil.mu.Unlock()
	if b, ok := s.anvil.balances[addr]; ok {
		return (*hexutil.Big)(b)
	}
	return (*hexutil.Big)(new(big.Int))
}

func (s *ethService) GetStorageAt(addr common.Address, key common.Hash, block string) hexutil.Bytes {
	s.anvil.mu.Lock()
	defer s.anvil.mu.Unlock()
	v := s.anvil.storage[key]
	return v.Bytes()
}

func (s *ethService) Call(args map[string]interface{}, block string) (hexutil.Bytes, error) {
	return nil, &CallError{Message: "execution reverted", Data: []byte{0xde, 0xad, 0xbe, 0xef}}
}

func (s *ethService) SendTransaction(args map[string]interface{}) (common.Hash, error) {
	from := common.HexToAddress(fmt.Sprint(args["from"]))
	s.anvil.mu.Lock()
	ok := s.anvil.impersonated[from]
	s.anvil.mu.Unlock()
	if !ok {
		return common.Hash{}, errors.New("no signer available")
	}
	s.sent = append(s.sent, args)
	return common.HexToHash("0x1234"), nil
}

func (s *ethService) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	if s.pendingPolls > 0 {
		s.pendingPolls--
		return nil, nil
	}
	return &types.Receipt{
		Status:            s.status,
		CumulativeGasUsed: 21000,
		GasUsed:           21000,
		TxHash:            hash,
		Logs:              []*types.Log{},
	}, nil
}

type instantClock struct{ waits int }

func (c *instantClock) After(time.Duration) <-chan time.Time {
	c.waits++
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func (c *instantClock) Now() time.Time { return time.Time{} }

func newTestAnvil(t *testing.T) (*Anvil, *anvilService, *ethService, *instantClock) {
	t.Helper()

	anvilSvc := &anvilService{
		balances:     make(map[common.Address]*big.Int),
		storage:      make(map[common.Hash]common.Hash),
		code:         make(map[common.Address][]byte),
		impersonated: make(map[common.Address]bool),
	}
	ethSvc := &ethService{anvil: anvilSvc, status: types.ReceiptStatusSuccessful}

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("anvil", anvilSvc))
	require.NoError(t, server.RegisterName("eth", ethSvc))
	t.Cleanup(server.Stop)

	clock := &instantClock{}
	a := NewAnvil(rpc.DialInProc(server), WithClock(clock))
	t.Cleanup(a.Close)
	return a, anvilSvc, ethSvc, clock
}

func TestAnvilCheatMethods(t *testing.T) {
	ctx := context.Background()
	a, anvilSvc, _, _ := newTestAnvil(t)
	account := common.HexToAddress("0xaa")
	token := common.HexToAddress("0xbb")

	require.NoError(t, a.SetNativeBalance(ctx, account, big.NewInt(1e18)))
	bal, err := a.NativeBalance(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1e18), bal)

	key := common.HexToHash("0x01")
	value := common.HexToHash("0xff")
	require.NoError(t, a.SetStorageAt(ctx, token, key, value))
	got, err := a.StorageAt(ctx, token, key)
	require.NoError(t, err)
	assert.Equal(t, value, got)

	require.NoError(t, a.SetCode(ctx, token, []byte{0x60, 0x00}))
	assert.Equal(t, []byte{0x60, 0x00}, anvilSvc.code[token])

	require.NoError(t, a.Impersonate(ctx, account))
	assert.True(t, anvilSvc.impersonated[account])
	require.NoError(t, a.StopImpersonating(ctx, account))
	assert.False(t, anvilSvc.impersonated[account])

	chainID, err := a.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(56), chainID.Int64())
}

func TestAnvilSendUnlockedWaitsForReceipt(t *testing.T) {
	ctx := context.Background()
	a, _, ethSvc, clock := newTestAnvil(t)
	holder := common.HexToAddress("0xcc")
	to := common.HexToAddress("0xdd")
	ethSvc.pendingPolls = 2

	_, err := a.Send(ctx, ethereum.CallMsg{From: holder, To: &to})
	require.Error(t, err, "holder is not impersonated")

	require.NoError(t, a.Impersonate(ctx, holder))
	receipt, err := a.Send(ctx, ethereum.CallMsg{From: holder, To: &to, Data: []byte{0x01}, Value: big.NewInt(5)})
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x1234"), receipt.TxHash)
	assert.Equal(t, 2, clock.waits)
	require.Len(t, ethSvc.sent, 1)
	assert.Equal(t, "0x01", ethSvc.sent[0]["data"])
	assert.Equal(t, "0x5", ethSvc.sent[0]["value"])
}

func TestAnvilSendReportsFailedReceipt(t *testing.T) {
	ctx := context.Background()
	a, _, ethSvc, _ := newTestAnvil(t)
	holder := common.HexToAddress("0xcc")
	ethSvc.status = types.ReceiptStatusFailed

	require.NoError(t, a.Impersonate(ctx, holder))
	receipt, err := a.Send(ctx, ethereum.CallMsg{From: holder})
	assert.ErrorIs(t, err, ErrTransactionFailed)
	require.NotNil(t, receipt)
}

func TestAnvilWaitReceiptHonorsContext(t *testing.T) {
	a, _, ethSvc, _ := newTestAnvil(t)
	holder := common.HexToAddress("0xcc")
	ethSvc.pendingPolls = 1 << 30

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Impersonate(ctx, holder))
	a.clock = blockingClock{}
	go cancel()

	_, err := a.Send(ctx, ethereum.CallMsg{From: holder})
	assert.ErrorIs(t, err, context.Canceled)
}

type blockingClock struct{}

func (blockingClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }
func (blockingClock) Now() time.Time                       { return time.Time{} }

func TestRevertDataFromCall(t *testing.T) {
	a, _, _, _ := newTestAnvil(t)
	to := common.HexToAddress("0xdd")

	_, err := a.Call(context.Background(), ethereum.CallMsg{To: &to})
	require.Error(t, err)

	data, ok := RevertData(err)
	require.True(t, ok)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, data)

	_, ok = RevertData(errors.New("plain"))
	assert.False(t, ok)
}

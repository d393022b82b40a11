package erc20_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/limitfill/pkg/erc20"
	"github.com/uhyunpark/limitfill/pkg/ledger"
	"github.com/uhyunpark/limitfill/pkg/ledger/ledgertest"
)

var (
	token  = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	wbnb   = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	router = common.HexToAddress("0x111111125421ca6dc452d289314280a0f8842a65")
)

func TestMappingKeyKnownValue(t *testing.T) {
	// keccak256(pad32(0) || pad32(0))
	want := common.HexToHash("0xad3228b676f7d3cd4284a5443f17f1962b36e491b30a40b2405849e597ba5fb5")
	assert.Equal(t, want, erc20.MappingKey(common.Address{}, 0))
	assert.NotEqual(t, erc20.MappingKey(alice, 0), erc20.MappingKey(alice, 1))
	assert.NotEqual(t, erc20.NestedMappingKey(alice, bob, 1), erc20.NestedMappingKey(bob, alice, 1))
}

func TestTokenCalls(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New()
	l.AddToken(token, ledgertest.Token{BalanceSlot: 1, AllowanceSlot: 2})
	l.Unlock(alice)
	l.SetTokenBalance(token, alice, big.NewInt(100))

	bal, err := erc20.BalanceOf(ctx, l, token, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.Int64())

	require.NoError(t, erc20.Transfer(ctx, l, token, alice, bob, big.NewInt(40)))
	bal, err = erc20.BalanceOf(ctx, l, token, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal.Int64())

	err = erc20.Transfer(ctx, l, token, alice, bob, big.NewInt(1000))
	assert.ErrorIs(t, err, ledger.ErrTransactionFailed)

	require.NoError(t, erc20.Approve(ctx, l, token, alice, router, big.NewInt(500)))
	allowance, err := erc20.Allowance(ctx, l, token, alice, router)
	require.NoError(t, err)
	assert.Equal(t, int64(500), allowance.Int64())
}

func TestNativeBalanceAndDeposit(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New()
	l.AddToken(wbnb, ledgertest.Token{BalanceSlot: 3, AllowanceSlot: 4, Wrapped: true})
	l.Unlock(alice)
	require.NoError(t, l.SetNativeBalance(ctx, alice, big.NewInt(1e18)))

	bal, err := erc20.BalanceOf(ctx, l, erc20.NativeAsset, alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1e18), bal)
	assert.True(t, erc20.IsNative(erc20.NativeAsset))
	assert.False(t, erc20.IsNative(wbnb))

	require.NoError(t, erc20.Deposit(ctx, l, wbnb, alice, big.NewInt(4e17)))
	wrapped, err := erc20.BalanceOf(ctx, l, wbnb, alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(4e17), wrapped)

	native, err := l.NativeBalance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(6e17), native)
}

func TestMockCodeAnswers(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New()
	l.AddToken(token, ledgertest.Token{})
	require.NoError(t, l.SetCode(ctx, token, erc20.MockCode))

	bal, err := erc20.BalanceOf(ctx, l, token, alice)
	require.NoError(t, err)
	assert.Equal(t, math.MaxBig256, bal)

	allowance, err := erc20.Allowance(ctx, l, token, alice, router)
	require.NoError(t, err)
	assert.Equal(t, math.MaxBig256, allowance)

	data, err := erc20.PackTransfer(bob, big.NewInt(1))
	require.NoError(t, err)
	out, err := l.Call(ctx, ethereum.CallMsg{To: &token, Data: data})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), new(big.Int).SetBytes(out))
}

func TestMockCodeLayout(t *testing.T) {
	code := erc20.MockCode
	require.Len(t, code, 48)
	// both jumps land on the JUMPDEST at 0x24
	assert.Equal(t, byte(0x5b), code[0x24])
	assert.Equal(t, erc20.BalanceOfSelector, code[8:12])
	assert.Equal(t, erc20.AllowanceSelector, code[18:22])
}

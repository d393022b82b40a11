// Package erc20 packs and reads the asset calls a fill needs.
package erc20

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/limitfill/pkg/ledger"
)

const abiJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"deposit","stateMutability":"payable",
   "inputs":[],"outputs":[]},
  {"type":"function","name":"decimals","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

// ABI is the subset of ERC-20 (plus WETH deposit) the filler uses
var ABI = mustParseABI(abiJSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("erc20: invalid abi: %v", err))
	}
	return parsed
}

// NativeAsset is the placeholder address orders use for the chain's gas asset
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// IsNative reports whether asset is the gas asset placeholder
func IsNative(asset common.Address) bool {
	return asset == NativeAsset
}

func PackBalanceOf(account common.Address) ([]byte, error) {
	return ABI.Pack("balanceOf", account)
}

func PackAllowance(owner, spender common.Address) ([]byte, error) {
	return ABI.Pack("allowance", owner, spender)
}

func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ABI.Pack("approve", spender, amount)
}

func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return ABI.Pack("transfer", to, amount)
}

func PackDeposit() ([]byte, error) {
	return ABI.Pack("deposit")
}

// BalanceOf returns the asset balance of account. The native placeholder reads
// the account's gas balance.
func BalanceOf(ctx context.Context, l ledger.Ledger, asset, account common.Address) (*big.Int, error) {
	if IsNative(asset) {
		return l.NativeBalance(ctx, account)
	}

	data, err := PackBalanceOf(account)
	if err != nil {
		return nil, err
	}
	out, err := l.Call(ctx, ethereum.CallMsg{To: &asset, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf on %s: %w", asset.Hex(), err)
	}
	return unpackUint(out, "balanceOf")
}

// Allowance returns how much spender may move from owner
func Allowance(ctx context.Context, c ledger.Caller, asset, owner, spender common.Address) (*big.Int, error) {
	data, err := PackAllowance(owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := c.Call(ctx, ethereum.CallMsg{To: &asset, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to call allowance on %s: %w", asset.Hex(), err)
	}
	return unpackUint(out, "allowance")
}

// Approve sends approve(spender, amount) from owner
func Approve(ctx context.Context, l ledger.Ledger, asset, owner, spender common.Address, amount *big.Int) error {
	data, err := PackApprove(spender, amount)
	if err != nil {
		return err
	}
	if _, err := l.Send(ctx, ethereum.CallMsg{From: owner, To: &asset, Data: data}); err != nil {
		return fmt.Errorf("failed to approve %s on %s: %w", spender.Hex(), asset.Hex(), err)
	}
	return nil
}

// Transfer sends transfer(to, amount) from holder
func Transfer(ctx context.Context, l ledger.Ledger, asset, holder, to common.Address, amount *big.Int) error {
	data, err := PackTransfer(to, amount)
	if err != nil {
		return err
	}
	if _, err := l.Send(ctx, ethereum.CallMsg{From: holder, To: &asset, Data: data}); err != nil {
		return fmt.Errorf("failed to transfer %s from %s: %w", asset.Hex(), holder.Hex(), err)
	}
	return nil
}

// Deposit wraps amount of the gas asset held by account
func Deposit(ctx context.Context, l ledger.Ledger, wrapped, account common.Address, amount *big.Int) error {
	data, err := PackDeposit()
	if err != nil {
		return err
	}
	if _, err := l.Send(ctx, ethereum.CallMsg{From: account, To: &wrapped, Data: data, Value: amount}); err != nil {
		return fmt.Errorf("failed to deposit into %s: %w", wrapped.Hex(), err)
	}
	return nil
}

func unpackUint(out []byte, method string) (*big.Int, error) {
	values, err := ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return abi.ConvertType(values[0], new(big.Int)).(*big.Int), nil
}

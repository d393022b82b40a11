package funding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/uhyunpark/limitfill/pkg/erc20"
	"github.com/uhyunpark/limitfill/pkg/ledger"
	"github.com/uhyunpark/limitfill/pkg/router"
	"github.com/uhyunpark/limitfill/pkg/storage"
	"github.com/uhyunpark/limitfill/pkg/util"
)

var (
	// ErrNativeAsset is returned by token-only strategies asked for the gas asset
	ErrNativeAsset = errors.New("strategy does not apply to the native asset")
	// ErrGasOnly is returned when only gas was prepared for a later strategy
	ErrGasOnly = errors.New("prepared gas only")
	// ErrNoCode is returned when the asset address holds no contract
	ErrNoCode = errors.New("asset has no code")
)

const swapDeadline = 10 * time.Minute

// StorageSlot writes the balance straight into the asset's balance mapping,
// guessing which slot the mapping was declared at
type StorageSlot struct {
	ledger     ledger.Ledger
	hints      storage.SlotHints
	chainID    uint64
	candidates uint64
	logger     *zap.Logger
}

func NewStorageSlot(l ledger.Ledger, hints storage.SlotHints, chainID, candidates uint64, logger *zap.Logger) *StorageSlot {
	if hints == nil {
		hints = storage.NewInMemorySlotHints()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageSlot{ledger: l, hints: hints, chainID: chainID, candidates: candidates, logger: logger}
}

func (s *StorageSlot) Name() string { return "storage_slot" }

// slotOrder puts the hinted slot, if any, ahead of 0..candidates-1
func (s *StorageSlot) slotOrder(asset common.Address) ([]uint64, bool) {
	slots := lo.Range(int(s.candidates))
	order := lo.Map(slots, func(i int, _ int) uint64 { return uint64(i) })

	hint, ok, err := s.hints.GetSlot(s.chainID, asset)
	if err != nil {
		s.logger.Warn("slot_hint_read_failed", zap.String("asset", asset.Hex()), zap.Error(err))
		return order, false
	}
	if !ok {
		return order, false
	}
	return append([]uint64{hint}, lo.Without(order, hint)...), true
}

func (s *StorageSlot) Attempt(ctx context.Context, req Request) error {
	if erc20.IsNative(req.Asset) {
		return ErrNativeAsset
	}

	slots, hinted := s.slotOrder(req.Asset)
	value := common.BigToHash(req.Amount)

	for i, slot := range slots {
		key := erc20.MappingKey(req.Account, slot)

		previous, err := s.ledger.StorageAt(ctx, req.Asset, key)
		if err != nil {
			return fmt.Errorf("failed to read slot %d: %w", slot, err)
		}
		if err := s.ledger.SetStorageAt(ctx, req.Asset, key, value); err != nil {
			return fmt.Errorf("failed to write slot %d: %w", slot, err)
		}

		balance, err := erc20.BalanceOf(ctx, s.ledger, req.Asset, req.Account)
		if err == nil && balance.Cmp(req.Amount) >= 0 {
			if err := s.hints.SaveSlot(s.chainID, req.Asset, slot); err != nil {
				s.logger.Warn("slot_hint_save_failed", zap.String("asset", req.Asset.Hex()), zap.Error(err))
			}
			s.logger.Debug("balance_slot_found",
				zap.String("asset", req.Asset.Hex()),
				zap.Uint64("slot", slot),
			)
			return nil
		}

		// wrong guess, put the slot back the way it was
		if err := s.ledger.SetStorageAt(ctx, req.Asset, key, previous); err != nil {
			return fmt.Errorf("failed to restore slot %d: %w", slot, err)
		}
		if i == 0 && hinted {
			if err := s.hints.DeleteSlot(s.chainID, req.Asset); err != nil {
				s.logger.Warn("slot_hint_delete_failed", zap.String("asset", req.Asset.Hex()), zap.Error(err))
			}
		}
	}
	return fmt.Errorf("no balance slot among %d candidates", len(slots))
}

// CodeSubstitution swaps the asset's runtime code for a mock that reports an
// unlimited balance and allowance. It destroys the real asset logic on the fork.
type CodeSubstitution struct {
	ledger ledger.Ledger
}

func NewCodeSubstitution(l ledger.Ledger) *CodeSubstitution {
	return &CodeSubstitution{ledger: l}
}

func (s *CodeSubstitution) Name() string { return "code_substitution" }

func (s *CodeSubstitution) Attempt(ctx context.Context, req Request) error {
	if erc20.IsNative(req.Asset) {
		return ErrNativeAsset
	}
	code, err := s.ledger.CodeAt(ctx, req.Asset)
	if err != nil {
		return fmt.Errorf("failed to read code: %w", err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w: %s", ErrNoCode, req.Asset.Hex())
	}
	if bytes.Equal(code, erc20.MockCode) {
		return nil
	}
	if err := s.ledger.SetCode(ctx, req.Asset, erc20.MockCode); err != nil {
		return fmt.Errorf("failed to replace code: %w", err)
	}
	return nil
}

// Impersonation transfers the asset from a large holder, sending as that holder
type Impersonation struct {
	ledger   ledger.Ledger
	holders  []common.Address
	gasTopUp *big.Int
	logger   *zap.Logger
}

func NewImpersonation(l ledger.Ledger, holders []common.Address, gasTopUp *big.Int, logger *zap.Logger) *Impersonation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Impersonation{ledger: l, holders: lo.Uniq(holders), gasTopUp: gasTopUp, logger: logger}
}

func (s *Impersonation) Name() string { return "impersonation" }

func (s *Impersonation) Attempt(ctx context.Context, req Request) error {
	if erc20.IsNative(req.Asset) {
		return ErrNativeAsset
	}

	holders := lo.Without(s.holders, req.Account)
	if len(holders) == 0 {
		return errors.New("no holders configured")
	}

	var errs []error
	for _, holder := range holders {
		balance, err := erc20.BalanceOf(ctx, s.ledger, req.Asset, holder)
		if err != nil {
			errs = append(errs, fmt.Errorf("holder %s: %w", holder.Hex(), err))
			continue
		}
		if balance.Cmp(req.Amount) < 0 {
			errs = append(errs, fmt.Errorf("holder %s: balance %s below %s", holder.Hex(), balance, req.Amount))
			continue
		}

		if err := s.transferFrom(ctx, holder, req); err != nil {
			errs = append(errs, fmt.Errorf("holder %s: %w", holder.Hex(), err))
			continue
		}
		s.logger.Debug("holder_transfer_sent",
			zap.String("asset", req.Asset.Hex()),
			zap.String("holder", holder.Hex()),
		)
		return nil
	}
	return errors.Join(errs...)
}

func (s *Impersonation) transferFrom(ctx context.Context, holder common.Address, req Request) (err error) {
	if err := s.ledger.Impersonate(ctx, holder); err != nil {
		return fmt.Errorf("failed to impersonate: %w", err)
	}
	defer func() {
		if stopErr := s.ledger.StopImpersonating(ctx, holder); stopErr != nil {
			s.logger.Warn("stop_impersonating_failed", zap.String("holder", holder.Hex()), zap.Error(stopErr))
		}
	}()

	if err := topUpGas(ctx, s.ledger, holder, s.gasTopUp); err != nil {
		return err
	}
	return erc20.Transfer(ctx, s.ledger, req.Asset, holder, req.Account, req.Amount)
}

// NativeBalance sets the account's gas balance. That satisfies requests for
// the native asset; for the wrapped native asset the amount is then
// deposited. Any other asset only gets gas for the strategies after it.
type NativeBalance struct {
	ledger   ledger.Ledger
	wrapped  common.Address
	gasTopUp *big.Int
}

func NewNativeBalance(l ledger.Ledger, wrapped common.Address, gasTopUp *big.Int) *NativeBalance {
	return &NativeBalance{ledger: l, wrapped: wrapped, gasTopUp: gasTopUp}
}

func (s *NativeBalance) Name() string { return "native_balance" }

func (s *NativeBalance) Attempt(ctx context.Context, req Request) error {
	switch req.Asset {
	case erc20.NativeAsset:
		target := new(big.Int).Add(req.Amount, s.gasTopUp)
		if err := s.ledger.SetNativeBalance(ctx, req.Account, target); err != nil {
			return fmt.Errorf("failed to set balance: %w", err)
		}
		return nil

	case s.wrapped:
		native, err := s.ledger.NativeBalance(ctx, req.Account)
		if err != nil {
			return fmt.Errorf("failed to read native balance: %w", err)
		}
		target := new(big.Int).Add(native, req.Amount)
		target.Add(target, s.gasTopUp)
		if err := s.ledger.SetNativeBalance(ctx, req.Account, target); err != nil {
			return fmt.Errorf("failed to set balance: %w", err)
		}
		return erc20.Deposit(ctx, s.ledger, s.wrapped, req.Account, req.Amount)
	}

	if err := topUpGas(ctx, s.ledger, req.Account, s.gasTopUp); err != nil {
		return err
	}
	return ErrGasOnly
}

// MarketAcquisition buys the asset with the gas asset on a constant-product router
type MarketAcquisition struct {
	ledger   ledger.Ledger
	router   common.Address
	wrapped  common.Address
	spend    *big.Int
	gasTopUp *big.Int
	clock    util.Clock
}

func NewMarketAcquisition(l ledger.Ledger, swapRouter, wrapped common.Address, spend, gasTopUp *big.Int, clock util.Clock) *MarketAcquisition {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &MarketAcquisition{
		ledger:   l,
		router:   swapRouter,
		wrapped:  wrapped,
		spend:    spend,
		gasTopUp: gasTopUp,
		clock:    clock,
	}
}

func (s *MarketAcquisition) Name() string { return "market_acquisition" }

func (s *MarketAcquisition) Attempt(ctx context.Context, req Request) error {
	if erc20.IsNative(req.Asset) {
		return ErrNativeAsset
	}
	if req.Asset == s.wrapped {
		return errors.New("wrapped native asset is not swapped for itself")
	}

	before, err := erc20.BalanceOf(ctx, s.ledger, req.Asset, req.Account)
	if err != nil {
		return err
	}

	native, err := s.ledger.NativeBalance(ctx, req.Account)
	if err != nil {
		return fmt.Errorf("failed to read native balance: %w", err)
	}
	target := new(big.Int).Add(native, s.spend)
	target.Add(target, s.gasTopUp)
	if err := s.ledger.SetNativeBalance(ctx, req.Account, target); err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}

	deadline := big.NewInt(s.clock.Now().Add(swapDeadline).Unix())
	data, err := router.PackSwapExactETHForTokens(new(big.Int), []common.Address{s.wrapped, req.Asset}, req.Account, deadline)
	if err != nil {
		return err
	}
	if _, err := s.ledger.Send(ctx, ethereum.CallMsg{
		From:  req.Account,
		To:    &s.router,
		Value: s.spend,
		Data:  data,
	}); err != nil {
		return fmt.Errorf("swap failed: %w", err)
	}

	after, err := erc20.BalanceOf(ctx, s.ledger, req.Asset, req.Account)
	if err != nil {
		return err
	}
	if after.Cmp(before) <= 0 {
		return errors.New("swap yielded no balance")
	}
	return nil
}

// topUpGas raises the native balance of account to at least amount
func topUpGas(ctx context.Context, l ledger.Ledger, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	current, err := l.NativeBalance(ctx, account)
	if err != nil {
		return fmt.Errorf("failed to read native balance: %w", err)
	}
	if current.Cmp(amount) >= 0 {
		return nil
	}
	if err := l.SetNativeBalance(ctx, account, amount); err != nil {
		return fmt.Errorf("failed to top up gas: %w", err)
	}
	return nil
}

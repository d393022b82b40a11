package fill

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/limitfill/pkg/crypto"
	"github.com/uhyunpark/limitfill/pkg/erc20"
	"github.com/uhyunpark/limitfill/pkg/funding"
	"github.com/uhyunpark/limitfill/pkg/ledger"
	"github.com/uhyunpark/limitfill/pkg/order"
	"github.com/uhyunpark/limitfill/pkg/router"
)

// Config controls a fill run
type Config struct {
	Router common.Address
	Taker  common.Address
	// FundingMultiplier scales the amount requested from the provisioner
	FundingMultiplier int64
	// ApprovalMultiplier scales the allowance granted to the router
	ApprovalMultiplier int64
	TolerancePct       decimal.Decimal
	// Commit sends the fill as a transaction after a successful simulation
	Commit bool
}

// Result is the outcome of one fill
type Result struct {
	Index        int                `json:"index"`
	RecordedHash common.Hash        `json:"recorded_hash"`
	LocalHash    common.Hash        `json:"local_hash"`
	Method       router.Method      `json:"method,omitempty"`
	State        State              `json:"state"`
	Amount       *big.Int           `json:"amount,omitempty"`
	Fill         *router.FillResult `json:"fill,omitempty"`
	Comparison   *Comparison        `json:"comparison,omitempty"`
	// HashMatches is set when the router's order hash equals the local one
	HashMatches bool            `json:"hash_matches"`
	TxHash      *common.Hash    `json:"tx_hash,omitempty"`
	Funding     *funding.Report `json:"-"`
	Failure     *Failure        `json:"failure,omitempty"`
	Notes       []string        `json:"notes,omitempty"`
}

// OK reports whether the fill was confirmed
func (r *Result) OK() bool {
	return r.Failure == nil && r.State == StateConfirmed
}

// Orchestrator drives one record through Init to Confirmed or Rejected
type Orchestrator struct {
	ledger      ledger.Ledger
	provisioner *funding.Provisioner
	hasher      *crypto.OrderHasher
	cfg         Config
	logger      *zap.Logger
}

func NewOrchestrator(l ledger.Ledger, p *funding.Provisioner, hasher *crypto.OrderHasher, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FundingMultiplier <= 0 {
		cfg.FundingMultiplier = 2
	}
	if cfg.ApprovalMultiplier <= 0 {
		cfg.ApprovalMultiplier = 10
	}
	if cfg.TolerancePct.IsZero() {
		cfg.TolerancePct = DefaultTolerancePct
	}
	return &Orchestrator{ledger: l, provisioner: p, hasher: hasher, cfg: cfg, logger: logger}
}

// Fill runs rec. Failures are reported in the result, never returned.
func (o *Orchestrator) Fill(ctx context.Context, index int, rec *order.Record, defaultTraits *uint256.Int) *Result {
	res := &Result{Index: index, State: StateInit}
	log := o.logger.With(zap.Int("index", index), zap.String("order_hash", rec.Order.OrderHash))

	prepared, err := Prepare(rec, defaultTraits, o.hasher)
	if err != nil {
		return o.fail(log, res, err)
	}
	res.State = StateCanonicalized
	res.Method = prepared.Call.Method
	res.Amount = prepared.Amount.ToBig()
	res.LocalHash = prepared.LocalHash
	res.RecordedHash = prepared.RecordedHash
	if prepared.RecordedHash != (common.Hash{}) && prepared.LocalHash != (common.Hash{}) && prepared.RecordedHash != prepared.LocalHash {
		res.Notes = append(res.Notes, "local order hash differs from recorded hash")
	}

	asset := prepared.TakerAsset()
	amount := prepared.Amount.ToBig()

	if err := o.fund(ctx, res, asset, amount); err != nil {
		return o.fail(log, res, err)
	}
	res.State = StateFunded

	if err := o.approve(ctx, asset, amount); err != nil {
		return o.fail(log, res, err)
	}
	res.State = StateApproved

	fill, txHash, err := o.submit(ctx, prepared, asset, amount)
	res.State = StateSubmitted
	if err != nil {
		res.State = StateRejected
		return o.fail(log, res, err)
	}
	res.Fill = fill
	res.TxHash = txHash
	res.State = StateConfirmed

	cmp := Compare(fill.TakingAmount, prepared.ExpectedOut.ToBig(), o.cfg.TolerancePct)
	res.Comparison = &cmp
	if !cmp.Within {
		res.Notes = append(res.Notes, fmt.Sprintf("taking amount differs from expected by %s%%", cmp.DiffPct.StringFixed(2)))
	}
	res.HashMatches = prepared.LocalHash != (common.Hash{}) && fill.OrderHash == prepared.LocalHash
	if prepared.LocalHash != (common.Hash{}) && !res.HashMatches {
		res.Notes = append(res.Notes, "router order hash differs from local hash")
	}

	log.Info("fill_confirmed",
		zap.String("method", string(res.Method)),
		zap.String("making_amount", fill.MakingAmount.String()),
		zap.String("taking_amount", fill.TakingAmount.String()),
		zap.String("expected_taking_amount", cmp.Expected.String()),
		zap.String("diff_pct", cmp.DiffPct.String()),
		zap.Bool("within_tolerance", cmp.Within),
		zap.Bool("hash_matches", res.HashMatches),
	)
	return res
}

func (o *Orchestrator) fail(log *zap.Logger, res *Result, err error) *Result {
	res.Failure = newFailure(err)
	log.Warn("fill_failed",
		zap.String("state", string(res.State)),
		zap.String("kind", string(res.Failure.Kind)),
		zap.Error(err),
	)
	return res
}

// fund tops the taker up to amount, asking the provisioner for amount × FundingMultiplier
func (o *Orchestrator) fund(ctx context.Context, res *Result, asset common.Address, amount *big.Int) error {
	balance, err := erc20.BalanceOf(ctx, o.ledger, asset, o.cfg.Taker)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}
	if balance.Cmp(amount) >= 0 {
		return nil
	}

	req := funding.Request{
		Asset:   asset,
		Account: o.cfg.Taker,
		Amount:  new(big.Int).Mul(amount, big.NewInt(o.cfg.FundingMultiplier)),
	}
	report, err := o.provisioner.Ensure(ctx, req)
	res.Funding = report
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}
	return nil
}

// approve grants the router amount × ApprovalMultiplier when the allowance is short
func (o *Orchestrator) approve(ctx context.Context, asset common.Address, amount *big.Int) error {
	if erc20.IsNative(asset) {
		return nil
	}

	allowance, err := erc20.Allowance(ctx, o.ledger, asset, o.cfg.Taker, o.cfg.Router)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrApprovalFailed, err)
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	grant := new(big.Int).Mul(amount, big.NewInt(o.cfg.ApprovalMultiplier))
	if err := erc20.Approve(ctx, o.ledger, asset, o.cfg.Taker, o.cfg.Router, grant); err != nil {
		return fmt.Errorf("%w: %w", ErrApprovalFailed, err)
	}

	allowance, err = erc20.Allowance(ctx, o.ledger, asset, o.cfg.Taker, o.cfg.Router)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrApprovalFailed, err)
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: allowance %s still below %s", ErrApprovalFailed, allowance, amount)
	}
	return nil
}

// submit simulates the fill and, with Commit, sends it
func (o *Orchestrator) submit(ctx context.Context, p *Prepared, asset common.Address, amount *big.Int) (*router.FillResult, *common.Hash, error) {
	data, err := router.PackFill(p.Call)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to pack %s: %w", ErrFillReverted, p.Call.Method, err)
	}

	msg := ethereum.CallMsg{From: o.cfg.Taker, To: &o.cfg.Router, Data: data}
	if erc20.IsNative(asset) {
		msg.Value = amount
	}

	out, err := o.ledger.Call(ctx, msg)
	if err != nil {
		return nil, nil, revertError(err)
	}
	fill, err := router.UnpackFill(p.Call.Method, out)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrFillReverted, err)
	}
	if !o.cfg.Commit {
		return fill, nil, nil
	}

	receipt, err := o.ledger.Send(ctx, msg)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrFillReverted, err)
	}
	return fill, &receipt.TxHash, nil
}

func revertError(err error) error {
	data, ok := ledger.RevertData(err)
	if !ok {
		return fmt.Errorf("%w: %w", ErrFillReverted, err)
	}
	revert := router.DecodeRevert(data)
	if revert.ArgsMismatch() {
		return fmt.Errorf("%w: %w: %s", ErrFillReverted, ErrArgsLengthMismatch, revert)
	}
	return fmt.Errorf("%w: %s", ErrFillReverted, revert)
}

// Package funding makes sure an account holds enough of an asset before a
// fill, trying an ordered chain of strategies until the balance is there.
package funding

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/limitfill/pkg/erc20"
	"github.com/uhyunpark/limitfill/pkg/ledger"
	"github.com/uhyunpark/limitfill/pkg/util"
)

// ErrProvisioningExhausted is returned when every strategy ran and the balance is still short
var ErrProvisioningExhausted = errors.New("provisioning exhausted")

// Request asks for Account to hold at least Amount of Asset
type Request struct {
	Asset   common.Address
	Account common.Address
	Amount  *big.Int
}

// Strategy is one way of putting an asset into an account. An attempt may
// report success without actually moving the balance; the provisioner
// re-reads the balance either way.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) error
}

type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
)

// Attempt records one strategy run
type Attempt struct {
	ID        uuid.UUID
	Strategy  string
	Asset     common.Address
	Account   common.Address
	Requested *big.Int
	Outcome   Outcome
	Reason    string
	// Observed is the balance read after the attempt, nil if the read failed
	Observed *big.Int
	Duration time.Duration
}

// Report is the outcome of one Ensure call
type Report struct {
	Request   Request
	Initial   *big.Int
	Attempts  []Attempt
	Satisfied bool
}

// Winner returns the strategy that satisfied the request, empty if the
// balance was already sufficient or nothing worked
func (r *Report) Winner() string {
	for _, a := range r.Attempts {
		if a.Outcome == Success {
			return a.Strategy
		}
	}
	return ""
}

// Provisioner runs strategies in order, each at most once per request
type Provisioner struct {
	ledger     ledger.Ledger
	strategies []Strategy
	clock      util.Clock
	logger     *zap.Logger
}

func NewProvisioner(l ledger.Ledger, strategies []Strategy, clock util.Clock, logger *zap.Logger) *Provisioner {
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{ledger: l, strategies: strategies, clock: clock, logger: logger}
}

// Strategies returns the names of the chain in order
func (p *Provisioner) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}

// Ensure returns once balance(asset, account) >= amount. The report is
// returned with ErrProvisioningExhausted when no strategy got there.
func (p *Provisioner) Ensure(ctx context.Context, req Request) (*Report, error) {
	report := &Report{Request: req}

	initial, err := erc20.BalanceOf(ctx, p.ledger, req.Asset, req.Account)
	if err != nil {
		return report, fmt.Errorf("failed to read initial balance: %w", err)
	}
	report.Initial = initial
	if initial.Cmp(req.Amount) >= 0 {
		report.Satisfied = true
		return report, nil
	}

	for _, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("provisioning interrupted: %w", err)
		}

		attempt := p.run(ctx, s, req)
		report.Attempts = append(report.Attempts, attempt)
		if attempt.Outcome == Success {
			report.Satisfied = true
			return report, nil
		}
	}

	return report, fmt.Errorf("%w: %s of %s for %s after %d strategies",
		ErrProvisioningExhausted, req.Amount, req.Asset.Hex(), req.Account.Hex(), len(report.Attempts))
}

func (p *Provisioner) run(ctx context.Context, s Strategy, req Request) Attempt {
	attempt := Attempt{
		ID:        uuid.New(),
		Strategy:  s.Name(),
		Asset:     req.Asset,
		Account:   req.Account,
		Requested: req.Amount,
		Outcome:   Failure,
	}
	start := p.clock.Now()

	strategyErr := s.Attempt(ctx, req)
	observed, readErr := erc20.BalanceOf(ctx, p.ledger, req.Asset, req.Account)
	attempt.Duration = p.clock.Now().Sub(start)

	switch {
	case readErr != nil:
		attempt.Reason = fmt.Sprintf("balance read failed: %v", readErr)
		if strategyErr != nil {
			attempt.Reason = fmt.Sprintf("%v; %s", strategyErr, attempt.Reason)
		}
	case observed.Cmp(req.Amount) >= 0:
		attempt.Observed = observed
		attempt.Outcome = Success
		if strategyErr != nil {
			// balance is what counts
			p.logger.Warn("funding_strategy_error_ignored",
				zap.String("strategy", s.Name()),
				zap.Error(strategyErr),
			)
		}
	case strategyErr != nil:
		attempt.Observed = observed
		attempt.Reason = strategyErr.Error()
	default:
		attempt.Observed = observed
		attempt.Reason = fmt.Sprintf("balance %s still below %s", observed, req.Amount)
	}

	fields := []zap.Field{
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("strategy", attempt.Strategy),
		zap.String("asset", req.Asset.Hex()),
		zap.String("account", req.Account.Hex()),
		zap.String("requested", req.Amount.String()),
		zap.Duration("took", attempt.Duration),
	}
	if attempt.Observed != nil {
		fields = append(fields, zap.String("observed", attempt.Observed.String()))
	}
	if attempt.Outcome == Success {
		p.logger.Info("funding_attempt_succeeded", fields...)
	} else {
		p.logger.Warn("funding_attempt_failed", append(fields, zap.String("reason", attempt.Reason))...)
	}
	return attempt
}

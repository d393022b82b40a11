package fill

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultTolerancePct is the accepted relative difference, in percent
var DefaultTolerancePct = decimal.NewFromInt(1)

// Comparison is actual vs expected taking amount
type Comparison struct {
	Expected *big.Int        `json:"expected"`
	Actual   *big.Int        `json:"actual"`
	DiffPct  decimal.Decimal `json:"diff_pct"`
	Within   bool            `json:"within_tolerance"`
}

// Compare computes |actual-expected|/expected in percent and checks it is
// strictly below tolerancePct. A zero expectation is treated as a match.
func Compare(actual, expected *big.Int, tolerancePct decimal.Decimal) Comparison {
	c := Comparison{Expected: expected, Actual: actual, DiffPct: decimal.Zero}
	if expected.Sign() == 0 {
		c.Within = true
		return c
	}

	// diff*100 < tolerance*expected, unrounded; DiffPct is for display
	diff := decimal.NewFromBigInt(new(big.Int).Sub(actual, expected), 0).Abs()
	exp := decimal.NewFromBigInt(expected, 0).Abs()
	scaled := diff.Mul(decimal.NewFromInt(100))
	c.DiffPct = scaled.DivRound(exp, 6)
	c.Within = scaled.LessThan(tolerancePct.Mul(exp))
	return c
}

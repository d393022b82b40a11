package fill

import (
	"context"
	"fmt"

	"github.com/uhyunpark/limitfill/pkg/codec"
	"github.com/uhyunpark/limitfill/pkg/order"
)

// Summary collects the results of a batch
type Summary struct {
	Results    []*Result `json:"results"`
	Confirmed  int       `json:"confirmed"`
	Failed     int       `json:"failed"`
	Mismatched int       `json:"mismatched"`
}

// Run fills every order of b in sequence. A failed order never stops the
// batch; only a malformed batch-wide taker traits value or a cancelled
// context does.
func (o *Orchestrator) Run(ctx context.Context, b *order.Batch) (*Summary, error) {
	traitsWord := b.TakerTraits
	if traitsWord == "" {
		traitsWord = "0"
	}
	defaultTraits, err := codec.ParseUint256(traitsWord)
	if err != nil {
		return nil, fmt.Errorf("taker_traits: %w", err)
	}

	summary := &Summary{}
	for i := range b.Orders {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res := o.Fill(ctx, i, &b.Orders[i], defaultTraits)
		summary.Results = append(summary.Results, res)
		switch {
		case !res.OK():
			summary.Failed++
		case res.Comparison != nil && !res.Comparison.Within:
			summary.Confirmed++
			summary.Mismatched++
		default:
			summary.Confirmed++
		}
	}
	return summary, nil
}

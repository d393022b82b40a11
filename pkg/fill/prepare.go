// Package fill runs a limit order fill on the fork: encode the order, fund and
// approve the taker, call the router and compare the outcome with what was
// observed on mainnet.
package fill

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/limitfill/pkg/codec"
	"github.com/uhyunpark/limitfill/pkg/crypto"
	"github.com/uhyunpark/limitfill/pkg/order"
	"github.com/uhyunpark/limitfill/pkg/router"
	"github.com/uhyunpark/limitfill/pkg/traits"
)

// Prepared is a record encoded and ready to submit
type Prepared struct {
	Order       order.Order
	Signature   crypto.CompactSignature
	Amount      *uint256.Int
	ExpectedOut *uint256.Int
	Traits      traits.TakerOptions
	Call        router.FillCall
	// LocalHash is the EIP-712 order hash computed off-chain
	LocalHash common.Hash
	// RecordedHash is the hash the capture tooling stored, zero if absent
	RecordedHash common.Hash
}

// TakerAsset is the asset the taker spends
func (p *Prepared) TakerAsset() common.Address {
	return common.Address(p.Order.TakerAsset.Bytes20())
}

// Prepare canonicalizes rec and builds the router call. Orders with an
// extension, a target or an interaction go through fillOrderArgs with traits
// derived from the args; the rest use fillOrder with defaultTraits unless the
// record carries its own taker options.
func Prepare(rec *order.Record, defaultTraits *uint256.Int, hasher *crypto.OrderHasher) (*Prepared, error) {
	o, err := order.Canonicalize(rec.Fields())
	if err != nil {
		return nil, err
	}
	sig, err := crypto.SplitSignature(rec.Order.Signature)
	if err != nil {
		return nil, err
	}
	amount, err := rec.Amount()
	if err != nil {
		return nil, err
	}
	expected, err := rec.ExpectedOut()
	if err != nil {
		return nil, err
	}

	extension, err := rec.Extension()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", codec.ErrMalformedNumeric, err)
	}
	target, err := rec.Taker.TargetAddress()
	if err != nil {
		return nil, err
	}
	interaction, err := rec.Taker.InteractionBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", codec.ErrMalformedNumeric, err)
	}
	threshold, err := rec.Taker.ThresholdValue()
	if err != nil {
		return nil, err
	}

	p := &Prepared{
		Order:       o,
		Signature:   sig,
		Amount:      amount,
		ExpectedOut: expected,
		Call: router.FillCall{
			Order:  o.Tuple(),
			R:      sig.R,
			VS:     sig.VS,
			Amount: amount.ToBig(),
		},
	}
	if h := rec.Order.OrderHash; h != "" {
		p.RecordedHash = common.HexToHash(h)
	}

	switch {
	case len(extension) > 0 || target != nil || len(interaction) > 0:
		if err := traits.CheckLength("extension", len(extension)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArgsLengthMismatch, err)
		}
		if err := traits.CheckLength("interaction", len(interaction)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArgsLengthMismatch, err)
		}
		p.Traits = takerOptions(rec.Taker, threshold)
		p.Traits.HasTarget = target != nil
		p.Traits.ExtensionLength = uint32(len(extension))
		p.Traits.InteractionLength = uint32(len(interaction))
		p.Call.Method = router.FillOrderArgs
		p.Call.Args = order.BuildArgs(extension, target, interaction)

	case rec.Taker != nil:
		p.Traits = takerOptions(rec.Taker, threshold)
		p.Call.Method = router.FillOrder

	default:
		if defaultTraits == nil {
			defaultTraits = new(uint256.Int)
		}
		p.Traits = traits.DecodeTaker(defaultTraits)
		p.Call.Method = router.FillOrder
		p.Call.TakerTraits = defaultTraits.ToBig()
	}
	if p.Call.TakerTraits == nil {
		p.Call.TakerTraits = traits.EncodeTaker(p.Traits).ToBig()
	}

	if hasher != nil {
		typed, err := o.EIP712()
		if err != nil {
			return nil, err
		}
		if p.LocalHash, err = hasher.HashOrder(typed); err != nil {
			return nil, fmt.Errorf("failed to hash order: %w", err)
		}
	}
	return p, nil
}

func takerOptions(t *order.TakerOptions, threshold *uint256.Int) traits.TakerOptions {
	opts := traits.TakerOptions{Threshold: threshold}
	if t != nil {
		opts.MakerAmount = t.MakerAmount
		opts.UnwrapNative = t.UnwrapNative
		opts.UsePermit2 = t.UsePermit2
	}
	return opts
}

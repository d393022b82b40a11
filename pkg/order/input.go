package order

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/limitfill/pkg/codec"
)

// Batch is a block's worth of orders captured for replay
type Batch struct {
	Address     string   `json:"address,omitempty"`
	Protocol    string   `json:"protocol,omitempty"`
	Token0      string   `json:"token0,omitempty"`
	Token1      string   `json:"token1,omitempty"`
	Direct      string   `json:"direct,omitempty"`
	BlockNumber uint64   `json:"block_number"`
	TakerTraits string   `json:"taker_traits"`
	Orders      []Record `json:"one_inch_orders"`
}

// Record is one order to fill plus the amounts observed on mainnet
type Record struct {
	AmountIn  string        `json:"amount_in"`
	AmountOut string        `json:"amount_out"`
	Order     RecordOrder   `json:"order"`
	Taker     *TakerOptions `json:"taker,omitempty"`
}

// RecordOrder is the signed order as the capture tooling emits it
type RecordOrder struct {
	OrderHash             string `json:"order_hash"`
	Salt                  string `json:"salt"`
	Maker                 string `json:"maker"`
	Receiver              string `json:"receiver"`
	MakerAsset            string `json:"maker_asset"`
	TakerAsset            string `json:"taker_asset"`
	MakingAmount          string `json:"making_amount"`
	RemainingMakingAmount string `json:"remaining_making_amount"`
	TakingAmount          string `json:"taking_amount"`
	MakerTraits           string `json:"maker_traits"`
	Extension             string `json:"extension"`
	Signature             string `json:"signature"`
}

// TakerOptions overrides the taker side of a fill
type TakerOptions struct {
	MakerAmount  bool   `json:"maker_amount"`
	UnwrapNative bool   `json:"unwrap_native"`
	UsePermit2   bool   `json:"use_permit2"`
	Threshold    string `json:"threshold,omitempty"`
	Target       string `json:"target,omitempty"`
	Interaction  string `json:"interaction,omitempty"`
}

// LoadBatch reads a batch from a JSON file
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}

	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse batch: %w", err)
	}
	return &batch, nil
}

// ForkBlock is the block before the captured one, where the orders are still open
func (b *Batch) ForkBlock() uint64 {
	if b.BlockNumber > 0 {
		return b.BlockNumber - 1
	}
	return 0
}

// Fields returns the canonicalizer input for the record's order
func (r *Record) Fields() Fields {
	return Fields{
		Salt:         r.Order.Salt,
		Maker:        r.Order.Maker,
		Receiver:     r.Order.Receiver,
		MakerAsset:   r.Order.MakerAsset,
		TakerAsset:   r.Order.TakerAsset,
		MakingAmount: r.Order.MakingAmount,
		TakingAmount: r.Order.TakingAmount,
		MakerTraits:  r.Order.MakerTraits,
	}
}

// Amount is the fill amount
func (r *Record) Amount() (*uint256.Int, error) {
	v, err := codec.ParseUint256(r.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("amount_in: %w", err)
	}
	return v, nil
}

// ExpectedOut is the taking amount the captured fill produced
func (r *Record) ExpectedOut() (*uint256.Int, error) {
	v, err := codec.ParseUint256(r.AmountOut)
	if err != nil {
		return nil, fmt.Errorf("amount_out: %w", err)
	}
	return v, nil
}

// Extension decodes the order extension; empty means none
func (r *Record) Extension() ([]byte, error) {
	ext, err := DecodeHex(r.Order.Extension)
	if err != nil {
		return nil, fmt.Errorf("extension: %w", err)
	}
	return ext, nil
}

// TargetAddress returns the taker target, or nil when unset
func (t *TakerOptions) TargetAddress() (*common.Address, error) {
	if t == nil || strings.TrimSpace(t.Target) == "" {
		return nil, nil
	}
	addr, err := codec.ParseAddress(t.Target)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	return &addr, nil
}

// InteractionBytes decodes the taker interaction; empty means none
func (t *TakerOptions) InteractionBytes() ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	b, err := DecodeHex(t.Interaction)
	if err != nil {
		return nil, fmt.Errorf("interaction: %w", err)
	}
	return b, nil
}

// ThresholdValue parses the threshold, zero when unset
func (t *TakerOptions) ThresholdValue() (*uint256.Int, error) {
	if t == nil || strings.TrimSpace(t.Threshold) == "" {
		return new(uint256.Int), nil
	}
	v, err := codec.ParseUint256(t.Threshold)
	if err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}
	return v, nil
}

// DecodeHex decodes a hex byte string with or without 0x. "", "0x" and "0x0"
// all decode to no bytes.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" || s == "0x0" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, err
	}
	return b, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/limitfill/params"
	"github.com/uhyunpark/limitfill/pkg/codec"
	"github.com/uhyunpark/limitfill/pkg/crypto"
	"github.com/uhyunpark/limitfill/pkg/fill"
	"github.com/uhyunpark/limitfill/pkg/order"
	"github.com/uhyunpark/limitfill/pkg/router"
)

// encoded is the offline view of one prepared fill
type encoded struct {
	Index        int           `json:"index"`
	Method       router.Method `json:"method,omitempty"`
	Calldata     hexutil.Bytes `json:"calldata,omitempty"`
	TakerTraits  string        `json:"taker_traits,omitempty"`
	Traits       *traitsView   `json:"traits,omitempty"`
	Args         hexutil.Bytes `json:"args,omitempty"`
	LocalHash    *common.Hash  `json:"local_hash,omitempty"`
	RecordedHash *common.Hash  `json:"recorded_hash,omitempty"`
	HashMatches  bool          `json:"hash_matches"`
	Error        string        `json:"error,omitempty"`
	Kind         fill.Kind     `json:"kind,omitempty"`
}

type traitsView struct {
	MakerAmount       bool   `json:"maker_amount"`
	UnwrapNative      bool   `json:"unwrap_native"`
	UsePermit2        bool   `json:"use_permit2"`
	HasTarget         bool   `json:"has_target"`
	ExtensionLength   uint32 `json:"extension_length"`
	InteractionLength uint32 `json:"interaction_length"`
	Threshold         string `json:"threshold"`
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		envPath string
		index   int
	)

	cmd := &cobra.Command{
		Use:   "encode-order <batch.json>",
		Short: "Encode router calldata for captured limit orders without touching a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := params.LoadFromEnv(envPath)
			if err != nil {
				return err
			}
			batch, err := order.LoadBatch(args[0])
			if err != nil {
				return err
			}

			indexes := lo.Range(len(batch.Orders))
			if index >= 0 {
				if index >= len(batch.Orders) {
					return fmt.Errorf("index %d out of range, batch has %d orders", index, len(batch.Orders))
				}
				indexes = []int{index}
			}

			out, err := encodeBatch(batch, indexes, crypto.NewOrderHasher(cfg.Domain()))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&envPath, "env", "", "path to a .env file (default: ./.env)")
	cmd.Flags().IntVarP(&index, "index", "i", -1, "encode a single order of the batch")
	return cmd
}

func encodeBatch(batch *order.Batch, indexes []int, hasher *crypto.OrderHasher) ([]encoded, error) {
	traitsWord := batch.TakerTraits
	if traitsWord == "" {
		traitsWord = "0"
	}
	defaultTraits, err := codec.ParseUint256(traitsWord)
	if err != nil {
		return nil, fmt.Errorf("taker_traits: %w", err)
	}

	return lo.Map(indexes, func(i int, _ int) encoded {
		return encodeOne(i, &batch.Orders[i], defaultTraits, hasher)
	}), nil
}

func encodeOne(i int, rec *order.Record, defaultTraits *uint256.Int, hasher *crypto.OrderHasher) encoded {
	out := encoded{Index: i}
	p, err := fill.Prepare(rec, defaultTraits, hasher)
	if err != nil {
		out.Error = err.Error()
		out.Kind = fill.KindOf(err)
		return out
	}

	calldata, err := router.PackFill(p.Call)
	if err != nil {
		out.Error = err.Error()
		out.Kind = fill.KindOf(err)
		return out
	}

	out.Method = p.Call.Method
	out.Calldata = calldata
	out.TakerTraits = hexutil.EncodeBig(p.Call.TakerTraits)
	out.Args = p.Call.Args
	out.Traits = &traitsView{
		MakerAmount:       p.Traits.MakerAmount,
		UnwrapNative:      p.Traits.UnwrapNative,
		UsePermit2:        p.Traits.UsePermit2,
		HasTarget:         p.Traits.HasTarget,
		ExtensionLength:   p.Traits.ExtensionLength,
		InteractionLength: p.Traits.InteractionLength,
		Threshold:         "0",
	}
	if p.Traits.Threshold != nil {
		out.Traits.Threshold = p.Traits.Threshold.Dec()
	}
	out.LocalHash = &p.LocalHash
	if p.RecordedHash != (common.Hash{}) {
		out.RecordedHash = &p.RecordedHash
		out.HashMatches = p.RecordedHash == p.LocalHash
	}
	return out
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uhyunpark/limitfill/params"
	"github.com/uhyunpark/limitfill/pkg/crypto"
	"github.com/uhyunpark/limitfill/pkg/fill"
	"github.com/uhyunpark/limitfill/pkg/funding"
	"github.com/uhyunpark/limitfill/pkg/ledger"
	"github.com/uhyunpark/limitfill/pkg/order"
	"github.com/uhyunpark/limitfill/pkg/storage"
	"github.com/uhyunpark/limitfill/pkg/util"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envPath, outPath string

	cmd := &cobra.Command{
		Use:   "fill-orders <batch.json>",
		Short: "Replay captured limit order fills against a forked node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := params.LoadFromEnv(envPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := run(ctx, cfg, args[0])
			if err != nil {
				return err
			}
			return writeJSON(outPath, summary)
		},
	}
	cmd.PersistentFlags().StringVar(&envPath, "env", "", "path to a .env file (default: ./.env)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the summary to a file instead of stdout")
	cmd.AddCommand(hintsCmd(&envPath))
	return cmd
}

func run(ctx context.Context, cfg params.Config, batchPath string) (*fill.Summary, error) {
	logger, err := util.NewCommandLogger(cfg.Storage.LogFile)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	batch, err := order.LoadBatch(batchPath)
	if err != nil {
		return nil, err
	}

	hints, err := openHints(cfg)
	if err != nil {
		return nil, err
	}
	defer hints.Close()

	opts := []ledger.Option{ledger.WithLogger(logger)}
	if cfg.Taker.PrivateKey != "" {
		signer, err := crypto.FromPrivateKeyHex(cfg.Taker.PrivateKey)
		if err != nil {
			return nil, err
		}
		if signer.Address() != cfg.Taker.Address {
			return nil, fmt.Errorf("TAKER_PRIVATE_KEY belongs to %s, not TAKER_ADDRESS %s", signer.Address().Hex(), cfg.Taker.Address.Hex())
		}
		opts = append(opts, ledger.WithSigner(signer))
	}

	node, err := ledger.Dial(ctx, cfg.Chain.RPCURL, opts...)
	if err != nil {
		return nil, err
	}
	defer node.Close()

	chainID, err := node.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if !chainID.IsUint64() || chainID.Uint64() != cfg.Chain.ChainID {
		return nil, fmt.Errorf("node reports chain id %s, configured %d", chainID, cfg.Chain.ChainID)
	}

	strategies := funding.NewChain(cfg.FundingConfig(), node, hints, util.RealClock{}, logger)
	provisioner := funding.NewProvisioner(node, strategies, util.RealClock{}, logger)
	hasher := crypto.NewOrderHasher(cfg.Domain())
	orchestrator := fill.NewOrchestrator(node, provisioner, hasher, cfg.FillConfig(), logger)

	sugar.Infow("batch_loaded",
		"path", batchPath,
		"orders", len(batch.Orders),
		"fork_block", batch.ForkBlock(),
		"rpc", cfg.Chain.RPCURL,
		"taker", cfg.Taker.Address.Hex(),
		"strategies", provisioner.Strategies(),
		"commit", cfg.Fill.Commit,
	)

	summary, err := orchestrator.Run(ctx, batch)
	if summary != nil {
		sugar.Infow("batch_finished",
			"confirmed", summary.Confirmed,
			"failed", summary.Failed,
			"mismatched", summary.Mismatched,
		)
	}
	if err != nil {
		logger.Error("batch_aborted", zap.Error(err))
		return summary, err
	}
	return summary, nil
}

func openHints(cfg params.Config) (storage.SlotHints, error) {
	if cfg.Storage.SlotCacheDir == "" {
		return storage.NewInMemorySlotHints(), nil
	}
	store, err := storage.NewPebbleStore(cfg.Storage.SlotCacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open slot cache: %w", err)
	}
	return store, nil
}

func hintsCmd(envPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "hints",
		Short: "List the balance storage slots learned for the configured chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := params.LoadFromEnv(*envPath)
			if err != nil {
				return err
			}
			hints, err := openHints(cfg)
			if err != nil {
				return err
			}
			defer hints.Close()

			slots, err := hints.Slots(cfg.Chain.ChainID)
			if err != nil {
				return err
			}
			out := make(map[string]uint64, len(slots))
			for asset, slot := range slots {
				out[asset.Hex()] = slot
			}
			return writeJSON("", out)
		},
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

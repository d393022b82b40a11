package funding

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/limitfill/pkg/ledger"
	"github.com/uhyunpark/limitfill/pkg/storage"
	"github.com/uhyunpark/limitfill/pkg/util"
)

// Config selects and parameterises the default strategy chain
type Config struct {
	ChainID        uint64
	SlotCandidates uint64
	Holders        []common.Address
	// AllowCodeSubstitution enables the destructive code replacement strategy
	AllowCodeSubstitution bool
	WrappedNative         common.Address
	SwapRouter            common.Address
	MarketSpend           *big.Int
	GasTopUp              *big.Int
}

// NewChain builds the default order: storage slot, code substitution (opt-in),
// impersonation, native balance, market acquisition
func NewChain(cfg Config, l ledger.Ledger, hints storage.SlotHints, clock util.Clock, logger *zap.Logger) []Strategy {
	gasTopUp := cfg.GasTopUp
	if gasTopUp == nil {
		gasTopUp = new(big.Int)
	}

	chain := []Strategy{NewStorageSlot(l, hints, cfg.ChainID, cfg.SlotCandidates, logger)}
	if cfg.AllowCodeSubstitution {
		chain = append(chain, NewCodeSubstitution(l))
	}
	chain = append(chain,
		NewImpersonation(l, cfg.Holders, gasTopUp, logger),
		NewNativeBalance(l, cfg.WrappedNative, gasTopUp),
	)
	if cfg.SwapRouter != (common.Address{}) && cfg.MarketSpend != nil && cfg.MarketSpend.Sign() > 0 {
		chain = append(chain, NewMarketAcquisition(l, cfg.SwapRouter, cfg.WrappedNative, cfg.MarketSpend, gasTopUp, clock))
	}
	return chain
}

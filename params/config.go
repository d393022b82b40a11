package params

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/limitfill/pkg/codec"
	"github.com/uhyunpark/limitfill/pkg/crypto"
	"github.com/uhyunpark/limitfill/pkg/fill"
	"github.com/uhyunpark/limitfill/pkg/funding"
)

type Chain struct {
	RPCURL  string
	ChainID uint64
}

// Router identifies the aggregation router and its EIP-712 domain
type Router struct {
	Address       common.Address
	DomainName    string
	DomainVersion string
}

type Taker struct {
	Address common.Address
	// PrivateKey is optional; without it the node must hold the account unlocked
	PrivateKey string
}

type Funding struct {
	SlotCandidates        uint64
	Holders               []common.Address
	AllowCodeSubstitution bool
	SwapRouter            common.Address
	WrappedNative         common.Address
	MarketSpend           *big.Int
	GasTopUp              *big.Int
	// Multiplier scales the amount requested when the taker is short
	Multiplier int64
}

type Fill struct {
	ApprovalMultiplier int64
	TolerancePct       decimal.Decimal
	Commit             bool
}

type Storage struct {
	// SlotCacheDir holds the pebble slot-hint store; empty keeps hints in memory
	SlotCacheDir string
	LogFile      string
}

type Config struct {
	Chain   Chain
	Router  Router
	Taker   Taker
	Funding Funding
	Fill    Fill
	Storage Storage
}

// rawConfig is the environment as strings and scalars, before validation
type rawConfig struct {
	RPCURL        string `env:"RPC_URL" envDefault:"http://127.0.0.1:8545"`
	ChainID       uint64 `env:"CHAIN_ID" envDefault:"56"`
	RouterAddress string `env:"ROUTER_ADDRESS" envDefault:"0x111111125421ca6dc452d289314280a0f8842a65"`
	DomainName    string `env:"ROUTER_DOMAIN_NAME" envDefault:"1inch Aggregation Router"`
	DomainVersion string `env:"ROUTER_DOMAIN_VERSION" envDefault:"6"`
	V2Router      string `env:"V2_ROUTER_ADDRESS" envDefault:"0x10ED43C718714eb63d5aA57B78B54704E256024E"`
	WrappedNative string `env:"WRAPPED_NATIVE_ADDRESS" envDefault:"0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"`

	TakerAddress    string `env:"TAKER_ADDRESS" envDefault:"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"`
	TakerPrivateKey string `env:"TAKER_PRIVATE_KEY"`

	SlotCandidates        uint64   `env:"FUNDING_SLOT_CANDIDATES" envDefault:"10"`
	Holders               []string `env:"FUNDING_HOLDERS" envSeparator:"," envDefault:"0xF977814e90dA44bFA03b6295A0616a897441aceC,0x8894E0a0c962CB723c1976a4421c95949bE2D4E3"`
	AllowCodeSubstitution bool     `env:"FUNDING_ALLOW_CODE_SUBSTITUTION" envDefault:"false"`
	MarketSpendWei        string   `env:"FUNDING_MARKET_SPEND_WEI" envDefault:"10000000000000000000"`
	GasTopUpWei           string   `env:"FUNDING_GAS_TOPUP_WEI" envDefault:"1000000000000000000"`
	FundingMultiplier     int64    `env:"FUNDING_MULTIPLIER" envDefault:"2"`

	ApprovalMultiplier int64  `env:"APPROVAL_MULTIPLIER" envDefault:"10"`
	TolerancePct       string `env:"FILL_TOLERANCE_PCT" envDefault:"1"`
	Commit             bool   `env:"FILL_COMMIT" envDefault:"false"`

	SlotCacheDir string `env:"SLOT_CACHE_DIR"`
	LogFile      string `env:"LOG_FILE"`
}

// Default returns the BSC mainnet-fork configuration
func Default() Config {
	cfg, err := parse(env.Options{Environment: map[string]string{}})
	if err != nil {
		panic(fmt.Errorf("invalid default config: %w", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}
	return parse(env.Options{})
}

func parse(opts env.Options) (Config, error) {
	var raw rawConfig
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return raw.build()
}

func (r rawConfig) build() (Config, error) {
	var errs []error
	addr := func(name, value string) common.Address {
		if !common.IsHexAddress(value) {
			errs = append(errs, fmt.Errorf("%s: invalid address %q", name, value))
			return common.Address{}
		}
		return common.HexToAddress(value)
	}
	amount := func(name, value string) *big.Int {
		v, err := codec.ParseBig(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return new(big.Int)
		}
		return v
	}

	cfg := Config{
		Chain: Chain{RPCURL: r.RPCURL, ChainID: r.ChainID},
		Router: Router{
			Address:       addr("ROUTER_ADDRESS", r.RouterAddress),
			DomainName:    r.DomainName,
			DomainVersion: r.DomainVersion,
		},
		Taker: Taker{
			Address:    addr("TAKER_ADDRESS", r.TakerAddress),
			PrivateKey: strings.TrimSpace(r.TakerPrivateKey),
		},
		Funding: Funding{
			SlotCandidates:        r.SlotCandidates,
			AllowCodeSubstitution: r.AllowCodeSubstitution,
			SwapRouter:            addr("V2_ROUTER_ADDRESS", r.V2Router),
			WrappedNative:         addr("WRAPPED_NATIVE_ADDRESS", r.WrappedNative),
			MarketSpend:           amount("FUNDING_MARKET_SPEND_WEI", r.MarketSpendWei),
			GasTopUp:              amount("FUNDING_GAS_TOPUP_WEI", r.GasTopUpWei),
			Multiplier:            r.FundingMultiplier,
		},
		Fill: Fill{
			ApprovalMultiplier: r.ApprovalMultiplier,
			Commit:             r.Commit,
		},
		Storage: Storage{SlotCacheDir: r.SlotCacheDir, LogFile: r.LogFile},
	}

	for _, h := range r.Holders {
		if h = strings.TrimSpace(h); h != "" {
			cfg.Funding.Holders = append(cfg.Funding.Holders, addr("FUNDING_HOLDERS", h))
		}
	}

	tolerance, err := decimal.NewFromString(r.TolerancePct)
	if err != nil {
		errs = append(errs, fmt.Errorf("FILL_TOLERANCE_PCT: %w", err))
	} else if !tolerance.IsPositive() {
		errs = append(errs, fmt.Errorf("FILL_TOLERANCE_PCT: must be positive, got %s", tolerance))
	}
	cfg.Fill.TolerancePct = tolerance

	if r.FundingMultiplier < 1 {
		errs = append(errs, fmt.Errorf("FUNDING_MULTIPLIER: must be at least 1, got %d", r.FundingMultiplier))
	}
	if r.ApprovalMultiplier < 1 {
		errs = append(errs, fmt.Errorf("APPROVAL_MULTIPLIER: must be at least 1, got %d", r.ApprovalMultiplier))
	}
	if r.SlotCandidates == 0 {
		errs = append(errs, errors.New("FUNDING_SLOT_CANDIDATES: must be at least 1"))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Domain is the EIP-712 domain of the configured router
func (c Config) Domain() crypto.EIP712Domain {
	return crypto.EIP712Domain{
		Name:              c.Router.DomainName,
		Version:           c.Router.DomainVersion,
		ChainID:           new(big.Int).SetUint64(c.Chain.ChainID),
		VerifyingContract: c.Router.Address,
	}
}

func (c Config) FundingConfig() funding.Config {
	return funding.Config{
		ChainID:               c.Chain.ChainID,
		SlotCandidates:        c.Funding.SlotCandidates,
		Holders:               c.Funding.Holders,
		AllowCodeSubstitution: c.Funding.AllowCodeSubstitution,
		WrappedNative:         c.Funding.WrappedNative,
		SwapRouter:            c.Funding.SwapRouter,
		MarketSpend:           c.Funding.MarketSpend,
		GasTopUp:              c.Funding.GasTopUp,
	}
}

func (c Config) FillConfig() fill.Config {
	return fill.Config{
		Router:             c.Router.Address,
		Taker:              c.Taker.Address,
		FundingMultiplier:  c.Funding.Multiplier,
		ApprovalMultiplier: c.Fill.ApprovalMultiplier,
		TolerancePct:       c.Fill.TolerancePct,
		Commit:             c.Fill.Commit,
	}
}

package fill

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/limitfill/pkg/codec"
	"github.com/uhyunpark/limitfill/pkg/crypto"
	"github.com/uhyunpark/limitfill/pkg/erc20"
	"github.com/uhyunpark/limitfill/pkg/funding"
	"github.com/uhyunpark/limitfill/pkg/ledger/ledgertest"
	"github.com/uhyunpark/limitfill/pkg/order"
	"github.com/uhyunpark/limitfill/pkg/router"
	"github.com/uhyunpark/limitfill/pkg/storage"
	"github.com/uhyunpark/limitfill/pkg/traits"
)

const makerKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

var (
	routerAddr = common.HexToAddress("0x111111125421ca6dc452d289314280a0f8842a65")
	wbnb       = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	usdt       = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	taker      = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	whale      = common.HexToAddress("0xF977814e90dA44bFA03b6295A0616a897441aceC")

	oneUnit = big.NewInt(1e18)
)

func testHasher() *crypto.OrderHasher {
	return crypto.NewOrderHasher(crypto.EIP712Domain{
		Name:              "1inch Aggregation Router",
		Version:           "6",
		ChainID:           big.NewInt(56),
		VerifyingContract: routerAddr,
	})
}

// signedRecord builds a maker order selling 1 WBNB for 0.99 USDT-equivalent,
// filled for amount and expected to return expectedOut
func signedRecord(t *testing.T, amount, expectedOut *big.Int) order.Record {
	t.Helper()
	maker, err := crypto.FromPrivateKeyHex(makerKey)
	require.NoError(t, err)

	o := order.FromAddresses(uint256.NewInt(7), maker.Address(), common.Address{}, wbnb, usdt,
		uint256.MustFromBig(oneUnit), uint256.NewInt(99e16), new(uint256.Int))
	typed, err := o.EIP712()
	require.NoError(t, err)

	hasher := testHasher()
	hash, err := hasher.HashOrder(typed)
	require.NoError(t, err)
	sig, err := hasher.SignOrder(maker, typed)
	require.NoError(t, err)

	return order.Record{
		AmountIn:  hexutil.EncodeBig(amount),
		AmountOut: expectedOut.String(),
		Order: order.RecordOrder{
			OrderHash:    hash.Hex(),
			Salt:         "7",
			Maker:        maker.Address().Hex(),
			Receiver:     "0x0000000000000000000000000000000000000000",
			MakerAsset:   wbnb.Hex(),
			TakerAsset:   usdt.Hex(),
			MakingAmount: oneUnit.String(),
			TakingAmount: "990000000000000000",
			MakerTraits:  "0",
			Extension:    "0x",
			Signature:    hexutil.Encode(sig),
		},
	}
}

type fakeRouter struct {
	takingAmount *big.Int
	revert       error
	hash         common.Hash
	calls        []*router.FillCall
	commits      int
}

func (f *fakeRouter) handle(l *ledgertest.Ledger, msg ethereum.CallMsg, commit bool) ([]byte, error) {
	if f.revert != nil {
		return nil, f.revert
	}
	call, err := router.UnpackFillCall(msg.Data)
	if err != nil {
		return nil, ledgertest.Revert("bad calldata")
	}
	f.calls = append(f.calls, call)

	asset := common.BigToAddress(call.Order.TakerAsset)
	if l.TokenBalance(asset, msg.From).Cmp(call.Amount) < 0 {
		return nil, ledgertest.Revert("SafeERC20: low-level call failed")
	}
	allowance, err := erc20.Allowance(context.Background(), l, asset, msg.From, routerAddr)
	if err != nil || allowance.Cmp(call.Amount) < 0 {
		return nil, ledgertest.Revert("SafeERC20: low-level call failed")
	}
	if commit {
		f.commits++
	}
	return router.PackFillResult(call.Method, router.FillResult{
		MakingAmount: call.Order.MakingAmount,
		TakingAmount: f.takingAmount,
		OrderHash:    f.hash,
	})
}

type harness struct {
	ledger *ledgertest.Ledger
	router *fakeRouter
	orch   *Orchestrator
}

func newHarness(t *testing.T, cfg Config, holders ...common.Address) *harness {
	t.Helper()
	l := ledgertest.New()
	l.AddToken(usdt, ledgertest.Token{BalanceSlot: 1, AllowanceSlot: 2})
	l.AddToken(wbnb, ledgertest.Token{BalanceSlot: 3, AllowanceSlot: 4, Wrapped: true})
	l.Unlock(taker)

	fr := &fakeRouter{takingAmount: big.NewInt(995e15)}
	l.Handle(routerAddr, fr.handle)

	chain := []funding.Strategy{
		funding.NewStorageSlot(l, storage.NewInMemorySlotHints(), 56, 10, nil),
		funding.NewImpersonation(l, holders, big.NewInt(1e17), nil),
	}
	cfg.Router = routerAddr
	cfg.Taker = taker
	orch := NewOrchestrator(l, funding.NewProvisioner(l, chain, nil, nil), testHasher(), cfg, nil)
	return &harness{ledger: l, router: fr, orch: orch}
}

func TestFillWithinTolerance(t *testing.T) {
	h := newHarness(t, Config{})
	rec := signedRecord(t, oneUnit, big.NewInt(990e15))
	h.router.hash = common.HexToHash(rec.Order.OrderHash)

	res := h.orch.Fill(context.Background(), 0, &rec, nil)
	require.Nil(t, res.Failure)
	assert.Equal(t, StateConfirmed, res.State)
	assert.True(t, res.OK())
	assert.Equal(t, router.FillOrder, res.Method)
	require.NotNil(t, res.Comparison)
	assert.True(t, res.Comparison.Within)
	assert.Equal(t, "0.505051", res.Comparison.DiffPct.String())
	assert.True(t, res.HashMatches)
	assert.Empty(t, res.Notes)

	// funded with 2x, approved with 10x
	assert.Equal(t, new(big.Int).Mul(oneUnit, big.NewInt(2)), h.ledger.TokenBalance(usdt, taker))
	allowance, err := erc20.Allowance(context.Background(), h.ledger, usdt, taker, routerAddr)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Mul(oneUnit, big.NewInt(10)), allowance)
	require.NotNil(t, res.Funding)
	assert.Equal(t, "storage_slot", res.Funding.Winner())
}

func TestFillOutsideToleranceIsAnnotation(t *testing.T) {
	h := newHarness(t, Config{})
	h.router.takingAmount = big.NewInt(900e15)
	rec := signedRecord(t, oneUnit, big.NewInt(990e15))
	h.router.hash = common.HexToHash(rec.Order.OrderHash)

	res := h.orch.Fill(context.Background(), 0, &rec, nil)
	require.Nil(t, res.Failure)
	assert.Equal(t, StateConfirmed, res.State)
	assert.False(t, res.Comparison.Within)
	assert.True(t, res.Comparison.DiffPct.GreaterThan(decimal.NewFromInt(9)))
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "9.09%")
}

func TestFillProvisioningExhausted(t *testing.T) {
	h := newHarness(t, Config{})
	// balances beyond every candidate slot and nobody to take them from
	h.ledger.AddToken(usdt, ledgertest.Token{BalanceSlot: 30, AllowanceSlot: 31})
	rec := signedRecord(t, oneUnit, big.NewInt(990e15))

	res := h.orch.Fill(context.Background(), 0, &rec, nil)
	require.NotNil(t, res.Failure)
	assert.Equal(t, KindInsufficientFunds, res.Failure.Kind)
	assert.Equal(t, StateCanonicalized, res.State)
	require.NotNil(t, res.Funding)
	assert.Len(t, res.Funding.Attempts, 2)
	assert.Empty(t, h.router.calls)
}

func TestFillUsesHolderWhenSlotsFail(t *testing.T) {
	h := newHarness(t, Config{}, whale)
	h.ledger.AddToken(usdt, ledgertest.Token{BalanceSlot: 30, AllowanceSlot: 31})
	h.ledger.SetTokenBalance(usdt, whale, big.NewInt(5e18))
	rec := signedRecord(t, oneUnit, big.NewInt(990e15))

	res := h.orch.Fill(context.Background(), 0, &rec, nil)
	require.Nil(t, res.Failure, "%+v", res.Failure)
	assert.Equal(t, "impersonation", res.Funding.Winner())
	assert.Equal(t, int64(3e18), h.ledger.TokenBalance(usdt, whale).Int64())
}

func TestFillSkipsFundingWhenBalanceSuffices(t *testing.T) {
	h := newHarness(t, Config{})
	h.ledger.SetTokenBalance(usdt, taker, oneUnit)
	rec := signedRecord(t, oneUnit, big.NewInt(990e15))

	res := h.orch.Fill(context.Background(), 0, &rec, nil)
	require.Nil(t, res.Failure)
	assert.Nil(t, res.Funding)
	assert.Equal(t, oneUnit, h.ledger.TokenBalance(usdt, taker))
}

func TestFillApprovalFailed(t *testing.T) {
	h := newHarness(t, Config{})
	h.ledger.SetTokenBalance(usdt, taker, oneUnit)
	h.ledger.FailOn("Send", errors.New("account locked"))
	rec := signedRecord(t, oneUnit, big.NewInt(990e15))

	res := h.orch.Fill(context.Background(), 0, &rec, nil)
	require.NotNil(t, res.Failure)
	assert.Equal(t, KindApprovalFailed, res.Failure.Kind)
	assert.Equal(t, StateFunded, res.State)
}

func TestFillReverted(t *testing.T) {
	badSig := router.ErrorSelector("BadSignature()")
	missingExt := router.ErrorSelector("MissingOrderExtension()")

	tests := []struct {
		name   string
		revert error
		kind   Kind
		reason string
	}{
		{"custom error", ledgertest.RevertData(badSig[:]), KindFillReverted, "BadSignature()"},
		{"error string", ledgertest.Revert("SafeERC20: low-level call failed"), KindFillReverted, "SafeERC20"},
		{"extension error", ledgertest.RevertData(missingExt[:]), KindArgsLengthMismatch, "MissingOrderExtension()"},
		{"rpc failure", errors.New("connection reset"), KindFillReverted, "connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.router.revert = tt.revert
			rec := signedRecord(t, oneUnit, big.NewInt(990e15))

			res := h.orch.Fill(context.Background(), 0, &rec, nil)
			require.NotNil(t, res.Failure)
			assert.Equal(t, tt.kind, res.Failure.Kind)
			assert.Contains(t, res.Failure.Reason, tt.reason)
			assert.Equal(t, StateRejected, res.State)

			err := revertError(tt.revert)
			assert.ErrorIs(t, err, ErrFillReverted)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestFillCommit(t *testing.T) {
	h := newHarness(t, Config{Commit: true})
	rec := signedRecord(t, oneUnit, big.NewInt(990e15))

	res := h.orch.Fill(context.Background(), 0, &rec, nil)
	require.Nil(t, res.Failure)
	require.NotNil(t, res.TxHash)
	assert.Equal(t, 1, h.router.commits)
	// the router returned a zero hash
	assert.False(t, res.HashMatches)
	assert.Contains(t, res.Notes, "router order hash differs from local hash")
}

func TestFillWithExtensionUsesArgs(t *testing.T) {
	h := newHarness(t, Config{})
	rec := signedRecord(t, oneUnit, big.NewInt(990e15))
	rec.Order.Extension = "0x" + "ab" + "cd" + "ef"
	rec.Taker = &order.TakerOptions{Target: whale.Hex()}

	res := h.orch.Fill(context.Background(), 0, &rec, nil)
	require.Nil(t, res.Failure)
	assert.Equal(t, router.FillOrderArgs, res.Method)

	require.Len(t, h.router.calls, 1)
	call := h.router.calls[0]
	assert.Equal(t, append(whale.Bytes(), 0xab, 0xcd, 0xef), call.Args)

	decoded := traits.DecodeTaker(uint256.MustFromBig(call.TakerTraits))
	assert.True(t, decoded.HasTarget)
	assert.Equal(t, uint32(3), decoded.ExtensionLength)
	assert.Equal(t, uint32(0), decoded.InteractionLength)
}

func TestFillMalformedInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*order.Record)
		kind   Kind
	}{
		{"short signature", func(r *order.Record) { r.Order.Signature = r.Order.Signature[:130] }, KindInvalidSignatureLength},
		{"bad recovery id", func(r *order.Record) { r.Order.Signature = r.Order.Signature[:130] + "05" }, KindInvalidRecoveryID},
		{"bad amount", func(r *order.Record) { r.AmountIn = "1e18" }, KindMalformedNumeric},
		{"bad maker", func(r *order.Record) { r.Order.Maker = "0x" + "ff" + r.Order.Maker[2:] + "00" }, KindInvalidAddress},
		{"odd extension", func(r *order.Record) { r.Order.Extension = "0xabc" }, KindMalformedNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			rec := signedRecord(t, oneUnit, big.NewInt(990e15))
			tt.mutate(&rec)

			res := h.orch.Fill(context.Background(), 0, &rec, nil)
			require.NotNil(t, res.Failure)
			assert.Equal(t, tt.kind, res.Failure.Kind)
			assert.Equal(t, StateInit, res.State)
		})
	}
}

func TestRunContinuesPastFailures(t *testing.T) {
	h := newHarness(t, Config{})
	good := signedRecord(t, oneUnit, big.NewInt(990e15))
	h.router.hash = common.HexToHash(good.Order.OrderHash)
	bad := good
	bad.Order.Signature = "0x1234"
	off := good
	off.AmountOut = "1100000000000000000"

	batch := &order.Batch{TakerTraits: "0x0", Orders: []order.Record{good, bad, off}}
	summary, err := h.orch.Run(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, 2, summary.Confirmed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Mismatched)
	assert.Equal(t, KindInvalidSignatureLength, summary.Results[1].Failure.Kind)
	assert.Equal(t, 2, summary.Results[2].Index)
}

func TestRunRejectsMalformedBatchTraits(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.orch.Run(context.Background(), &order.Batch{TakerTraits: "zz"})
	assert.ErrorIs(t, err, codec.ErrMalformedNumeric)
}

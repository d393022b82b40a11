// Package router binds the limit order entry points of the aggregation router
// and the constant-product swap router used for market funding.
package router

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/limitfill/pkg/order"
)

const orderTuple = `{"name":"order","type":"tuple","internalType":"struct IOrderMixin.Order","components":[
    {"name":"salt","type":"uint256"},
    {"name":"maker","type":"uint256"},
    {"name":"receiver","type":"uint256"},
    {"name":"makerAsset","type":"uint256"},
    {"name":"takerAsset","type":"uint256"},
    {"name":"makingAmount","type":"uint256"},
    {"name":"takingAmount","type":"uint256"},
    {"name":"makerTraits","type":"uint256"}]}`

const fillOutputs = `[
    {"name":"makingAmount","type":"uint256"},
    {"name":"takingAmount","type":"uint256"},
    {"name":"orderHash","type":"bytes32"}]`

const aggregationABI = `[
  {"type":"function","name":"fillOrder","stateMutability":"payable",
   "inputs":[` + orderTuple + `,
     {"name":"r","type":"bytes32"},
     {"name":"vs","type":"bytes32"},
     {"name":"amount","type":"uint256"},
     {"name":"takerTraits","type":"uint256"}],
   "outputs":` + fillOutputs + `},
  {"type":"function","name":"fillOrderArgs","stateMutability":"payable",
   "inputs":[` + orderTuple + `,
     {"name":"r","type":"bytes32"},
     {"name":"vs","type":"bytes32"},
     {"name":"amount","type":"uint256"},
     {"name":"takerTraits","type":"uint256"},
     {"name":"args","type":"bytes"}],
   "outputs":` + fillOutputs + `}
]`

// ABI is the limit order surface of the aggregation router
var ABI = mustParseABI(aggregationABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("router: invalid abi: %v", err))
	}
	return parsed
}

// Method is a fill entry point
type Method string

const (
	FillOrder     Method = "fillOrder"
	FillOrderArgs Method = "fillOrderArgs"
)

// FillCall is everything a fill call carries
type FillCall struct {
	Method      Method
	Order       order.Tuple
	R           [32]byte
	VS          [32]byte
	Amount      *big.Int
	TakerTraits *big.Int
	// Args is only sent with FillOrderArgs
	Args []byte
}

// FillResult is what both fill entry points return
type FillResult struct {
	MakingAmount *big.Int
	TakingAmount *big.Int
	OrderHash    common.Hash
}

// PackFill encodes calldata for c.Method
func PackFill(c FillCall) ([]byte, error) {
	switch c.Method {
	case FillOrder:
		return ABI.Pack(string(FillOrder), c.Order, c.R, c.VS, c.Amount, c.TakerTraits)
	case FillOrderArgs:
		args := c.Args
		if args == nil {
			args = []byte{}
		}
		return ABI.Pack(string(FillOrderArgs), c.Order, c.R, c.VS, c.Amount, c.TakerTraits, args)
	}
	return nil, fmt.Errorf("unknown fill method %q", c.Method)
}

// UnpackFill decodes the return data of either fill method
func UnpackFill(method Method, out []byte) (*FillResult, error) {
	values, err := ABI.Unpack(string(method), out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("%s returned %d values", method, len(values))
	}
	return &FillResult{
		MakingAmount: abi.ConvertType(values[0], new(big.Int)).(*big.Int),
		TakingAmount: abi.ConvertType(values[1], new(big.Int)).(*big.Int),
		OrderHash:    common.Hash(values[2].([32]byte)),
	}, nil
}

// PackFillResult encodes a fill result, the inverse of UnpackFill
func PackFillResult(method Method, r FillResult) ([]byte, error) {
	return ABI.Methods[string(method)].Outputs.Pack(r.MakingAmount, r.TakingAmount, [32]byte(r.OrderHash))
}

// UnpackFillCall decodes fill calldata back into a FillCall
func UnpackFillCall(data []byte) (*FillCall, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	method, err := ABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s calldata: %w", method.Name, err)
	}

	call := &FillCall{
		Method:      Method(method.Name),
		Order:       *abi.ConvertType(values[0], new(order.Tuple)).(*order.Tuple),
		R:           values[1].([32]byte),
		VS:          values[2].([32]byte),
		Amount:      values[3].(*big.Int),
		TakerTraits: values[4].(*big.Int),
	}
	if call.Method == FillOrderArgs {
		call.Args = values[5].([]byte)
	}
	return call, nil
}

package router

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const swapABI = `[
  {"type":"function","name":"swapExactETHForTokens","stateMutability":"payable",
   "inputs":[
     {"name":"amountOutMin","type":"uint256"},
     {"name":"path","type":"address[]"},
     {"name":"to","type":"address"},
     {"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

// SwapABI is the constant-product router entry point used to buy an asset with
// the gas asset
var SwapABI = mustParseABI(swapABI)

// PackSwapExactETHForTokens encodes a swap of msg.value along path
func PackSwapExactETHForTokens(amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return SwapABI.Pack("swapExactETHForTokens", amountOutMin, path, to, deadline)
}

// UnpackSwapExactETHForTokens decodes swap calldata
func UnpackSwapExactETHForTokens(data []byte) (amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int, err error) {
	method := SwapABI.Methods["swapExactETHForTokens"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, nil, common.Address{}, nil, errors.New("not a swapExactETHForTokens call")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, common.Address{}, nil, err
	}
	return values[0].(*big.Int), values[1].([]common.Address), values[2].(common.Address), values[3].(*big.Int), nil
}

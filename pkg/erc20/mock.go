package erc20

import "github.com/ethereum/go-ethereum/common"

// MockCode is runtime bytecode for a stand-in asset: balanceOf and allowance
// return MaxUint256, every other selector returns 1 (true).
//
//	PUSH1 0 CALLDATALOAD PUSH1 0xe0 SHR
//	DUP1 PUSH4 balanceOf EQ PUSH1 max JUMPI
//	DUP1 PUSH4 allowance EQ PUSH1 max JUMPI
//	PUSH1 1 PUSH1 0 MSTORE PUSH1 32 PUSH1 0 RETURN
//	max: JUMPDEST PUSH1 0 NOT PUSH1 0 MSTORE PUSH1 32 PUSH1 0 RETURN
var MockCode = common.FromHex("0x60003560e01c806370a08231146024578063dd62ed3e14602457" +
	"600160005260206000f3" +
	"5b60001960005260206000f3")

// Selectors the mock special-cases
var (
	BalanceOfSelector = ABI.Methods["balanceOf"].ID
	AllowanceSelector = ABI.Methods["allowance"].ID
)

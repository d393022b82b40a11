package order

import "github.com/ethereum/go-ethereum/common"

// BuildArgs concatenates target, extension and interaction in that order.
// Absent segments contribute nothing. The caller keeps the taker traits
// lengths consistent with what goes in here.
func BuildArgs(extension []byte, target *common.Address, interaction []byte) []byte {
	size := len(extension) + len(interaction)
	if target != nil {
		size += common.AddressLength
	}

	args := make([]byte, 0, size)
	if target != nil {
		args = append(args, target.Bytes()...)
	}
	args = append(args, extension...)
	args = append(args, interaction...)
	return args
}

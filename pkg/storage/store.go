// Package storage remembers which storage slot holds each asset's balance
// mapping, so repeated runs against the same fork skip the slot search.
package storage

import "github.com/ethereum/go-ethereum/common"

// SlotHints maps (chain, asset) to the balance mapping slot that worked last time
type SlotHints interface {
	GetSlot(chainID uint64, asset common.Address) (uint64, bool, error)
	SaveSlot(chainID uint64, asset common.Address, slot uint64) error
	DeleteSlot(chainID uint64, asset common.Address) error
	// Slots lists every hint recorded for a chain
	Slots(chainID uint64) (map[common.Address]uint64, error)
	Close() error
}

package storage

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type hintKey struct {
	chainID uint64
	asset   common.Address
}

// InMemorySlotHints keeps hints for the life of the process
type InMemorySlotHints struct {
	mu    sync.Mutex
	slots map[hintKey]uint64
}

func NewInMemorySlotHints() *InMemorySlotHints {
	return &InMemorySlotHints{slots: make(map[hintKey]uint64)}
}

func (s *InMemorySlotHints) GetSlot(chainID uint64, asset common.Address) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[hintKey{chainID, asset}]
	return slot, ok, nil
}

func (s *InMemorySlotHints) SaveSlot(chainID uint64, asset common.Address, slot uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[hintKey{chainID, asset}] = slot
	return nil
}

func (s *InMemorySlotHints) DeleteSlot(chainID uint64, asset common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, hintKey{chainID, asset})
	return nil
}

func (s *InMemorySlotHints) Slots(chainID uint64) (map[common.Address]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[common.Address]uint64)
	for k, slot := range s.slots {
		if k.chainID == chainID {
			out[k.asset] = slot
		}
	}
	return out, nil
}

func (s *InMemorySlotHints) Close() error { return nil }

var _ SlotHints = (*InMemorySlotHints)(nil)

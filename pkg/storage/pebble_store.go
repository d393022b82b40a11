package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}
func (s *PebbleStore) Close() error { return s.db.Close() }

// GetSlot returns the recorded slot for asset, false if none
func (s *PebbleStore) GetSlot(chainID uint64, asset common.Address) (uint64, bool, error) {
	val, closer, err := s.db.Get(slotKey(chainID, asset))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get slot hint: %w", err)
	}
	defer closer.Close()

	slot, err := decodeSlot(val)
	if err != nil {
		return 0, false, err
	}
	return slot, true, nil
}

// SaveSlot records the slot that held asset's balances
func (s *PebbleStore) SaveSlot(chainID uint64, asset common.Address, slot uint64) error {
	if err := s.db.Set(slotKey(chainID, asset), encodeSlot(slot), pebble.Sync); err != nil {
		return fmt.Errorf("failed to save slot hint: %w", err)
	}
	return nil
}

// DeleteSlot drops a hint that stopped working
func (s *PebbleStore) DeleteSlot(chainID uint64, asset common.Address) error {
	if err := s.db.Delete(slotKey(chainID, asset), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete slot hint: %w", err)
	}
	return nil
}

// Slots loads all hints for a chain
func (s *PebbleStore) Slots(chainID uint64) (map[common.Address]uint64, error) {
	prefix := slotPrefix(chainID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	slots := make(map[common.Address]uint64)
	for iter.First(); iter.Valid(); iter.Next() {
		asset, ok := assetFromKey(iter.Key(), chainID)
		if !ok {
			continue // Skip foreign keys
		}
		slot, err := decodeSlot(iter.Value())
		if err != nil {
			continue
		}
		slots[asset] = slot
	}
	return slots, nil
}

var _ SlotHints = (*PebbleStore)(nil)

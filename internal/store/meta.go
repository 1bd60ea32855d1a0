package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const prefixMeta = "meta/"

// BadgerMetaStore persists small engine bookkeeping records, such as the
// per-taxonomy lists of examined and excluded nodes.
type BadgerMetaStore struct{ db *badger.DB }

// NewBadgerMetaStore wraps an open database.
func NewBadgerMetaStore(db *badger.DB) *BadgerMetaStore {
	return &BadgerMetaStore{db: db}
}

// Get unmarshals the record at key into v. Returns ErrNotFound when the
// record does not exist.
func (s *BadgerMetaStore) Get(_ context.Context, key string, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixMeta + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("get meta %s: %w", key, err)
	}
	return err
}

// Set writes the record at key.
func (s *BadgerMetaStore) Set(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal meta %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixMeta+key), data)
	})
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

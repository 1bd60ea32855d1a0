package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ahrav/go-taxa/internal/domain"
)

// Key prefixes partition the shared database by record type.
const (
	prefixTaxonomy = "tax/"
	prefixNode     = "node/"
	prefixItem     = "item/"
)

func taxonomyKey(id string) []byte { return []byte(prefixTaxonomy + id) }

func nodeKey(taxonomyID, nodeID string) []byte {
	return []byte(prefixNode + taxonomyID + "/" + nodeID)
}

func nodePrefix(taxonomyID string) []byte { return []byte(prefixNode + taxonomyID + "/") }

func itemKey(id string) []byte { return []byte(prefixItem + id) }

// BadgerTaxonomyStore persists taxonomies in the shared database.
type BadgerTaxonomyStore struct{ db *badger.DB }

// NewBadgerTaxonomyStore wraps an open database.
func NewBadgerTaxonomyStore(db *badger.DB) *BadgerTaxonomyStore {
	return &BadgerTaxonomyStore{db: db}
}

func (s *BadgerTaxonomyStore) Get(_ context.Context, id string) (*domain.Taxonomy, error) {
	var tax domain.Taxonomy
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, taxonomyKey(id), &tax)
	})
	if err != nil {
		return nil, fmt.Errorf("get taxonomy %s: %w", id, err)
	}
	return &tax, nil
}

func (s *BadgerTaxonomyStore) Put(_ context.Context, tax domain.Taxonomy) error {
	if err := tax.Validate(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, taxonomyKey(tax.ID), tax)
	})
	if err != nil {
		return fmt.Errorf("put taxonomy %s: %w", tax.ID, err)
	}
	return nil
}

// BadgerNodeStore persists the node collections of taxonomies.
type BadgerNodeStore struct{ db *badger.DB }

// NewBadgerNodeStore wraps an open database.
func NewBadgerNodeStore(db *badger.DB) *BadgerNodeStore {
	return &BadgerNodeStore{db: db}
}

func (s *BadgerNodeStore) ListAll(_ context.Context, taxonomyID string) ([]domain.Node, error) {
	var nodes []domain.Node
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = nodePrefix(taxonomyID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var node domain.Node
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &node)
			}); err != nil {
				return err
			}
			nodes = append(nodes, node)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list nodes for taxonomy %s: %w", taxonomyID, err)
	}
	return nodes, nil
}

func (s *BadgerNodeStore) ReplaceAll(ctx context.Context, taxonomyID string, nodes []domain.Node) error {
	existing, err := s.ListAll(ctx, taxonomyID)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, node := range existing {
			if err := txn.Delete(nodeKey(taxonomyID, node.ID)); err != nil {
				return err
			}
		}
		for _, node := range nodes {
			if err := setJSON(txn, nodeKey(taxonomyID, node.ID), node); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace nodes for taxonomy %s: %w", taxonomyID, err)
	}
	return nil
}

func (s *BadgerNodeStore) Upsert(_ context.Context, taxonomyID string, nodes ...domain.Node) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, node := range nodes {
			if err := setJSON(txn, nodeKey(taxonomyID, node.ID), node); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert nodes for taxonomy %s: %w", taxonomyID, err)
	}
	return nil
}

// BadgerItemStore persists items and their classifications.
type BadgerItemStore struct{ db *badger.DB }

// NewBadgerItemStore wraps an open database.
func NewBadgerItemStore(db *badger.DB) *BadgerItemStore {
	return &BadgerItemStore{db: db}
}

func (s *BadgerItemStore) Get(_ context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, itemKey(id), &item)
	})
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &item, nil
}

func (s *BadgerItemStore) List(_ context.Context, filter ItemFilter) ([]domain.Item, error) {
	var items []domain.Item
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixItem)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if filter.Limit > 0 && len(items) >= filter.Limit {
				return nil
			}
			var item domain.Item
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}
			if filter.Unclassified && len(item.ClassifiedAs) > 0 {
				continue
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (s *BadgerItemStore) ListByIDs(_ context.Context, ids []string) ([]domain.Item, error) {
	var items []domain.Item
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var item domain.Item
			err := getJSON(txn, itemKey(id), &item)
			if errors.Is(err, ErrNotFound) {
				// Referenced example items may have been deleted.
				continue
			}
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list items by ids: %w", err)
	}
	return items, nil
}

func (s *BadgerItemStore) Put(_ context.Context, items ...domain.Item) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, item := range items {
			if err := setJSON(txn, itemKey(item.ID), item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put items: %w", err)
	}
	return nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

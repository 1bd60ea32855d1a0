package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahrav/go-taxa/internal/domain"
)

// MemoryTaxonomyStore is an in-memory TaxonomyStore for tests.
type MemoryTaxonomyStore struct {
	mu         sync.RWMutex
	taxonomies map[string]domain.Taxonomy
}

func NewMemoryTaxonomyStore() *MemoryTaxonomyStore {
	return &MemoryTaxonomyStore{taxonomies: make(map[string]domain.Taxonomy)}
}

func (s *MemoryTaxonomyStore) Get(_ context.Context, id string) (*domain.Taxonomy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tax, ok := s.taxonomies[id]
	if !ok {
		return nil, fmt.Errorf("get taxonomy %s: %w", id, ErrNotFound)
	}
	return &tax, nil
}

func (s *MemoryTaxonomyStore) Put(_ context.Context, tax domain.Taxonomy) error {
	if err := tax.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taxonomies[tax.ID] = tax
	return nil
}

// MemoryNodeStore is an in-memory NodeStore for tests.
type MemoryNodeStore struct {
	mu    sync.RWMutex
	nodes map[string][]domain.Node // keyed by taxonomy id
}

func NewMemoryNodeStore() *MemoryNodeStore {
	return &MemoryNodeStore{nodes: make(map[string][]domain.Node)}
}

func (s *MemoryNodeStore) ListAll(_ context.Context, taxonomyID string) ([]domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Node, len(s.nodes[taxonomyID]))
	copy(out, s.nodes[taxonomyID])
	return out, nil
}

func (s *MemoryNodeStore) ReplaceAll(_ context.Context, taxonomyID string, nodes []domain.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	replacement := make([]domain.Node, len(nodes))
	copy(replacement, nodes)
	s.nodes[taxonomyID] = replacement
	return nil
}

func (s *MemoryNodeStore) Upsert(_ context.Context, taxonomyID string, nodes ...domain.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.nodes[taxonomyID]
	for _, node := range nodes {
		replaced := false
		for i := range existing {
			if existing[i].ID == node.ID {
				existing[i] = node
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, node)
		}
	}
	s.nodes[taxonomyID] = existing
	return nil
}

// MemoryItemStore is an in-memory ItemStore for tests. Listing order
// follows insertion order.
type MemoryItemStore struct {
	mu    sync.RWMutex
	items []domain.Item
	index map[string]int
}

func NewMemoryItemStore() *MemoryItemStore {
	return &MemoryItemStore{index: make(map[string]int)}
}

func (s *MemoryItemStore) Get(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("get item %s: %w", id, ErrNotFound)
	}
	item := s.items[i]
	return &item, nil
}

func (s *MemoryItemStore) List(_ context.Context, filter ItemFilter) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Item
	for _, item := range s.items {
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
		if filter.Unclassified && len(item.ClassifiedAs) > 0 {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *MemoryItemStore) ListByIDs(_ context.Context, ids []string) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Item
	for _, id := range ids {
		if i, ok := s.index[id]; ok {
			out = append(out, s.items[i])
		}
	}
	return out, nil
}

func (s *MemoryItemStore) Put(_ context.Context, items ...domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if i, ok := s.index[item.ID]; ok {
			s.items[i] = item
			continue
		}
		s.index[item.ID] = len(s.items)
		s.items = append(s.items, item)
	}
	return nil
}

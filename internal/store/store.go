// Package store persists taxonomies, nodes, and items. The production
// implementation is an embedded BadgerDB keyed by record type; a memory
// implementation backs tests.
package store

import (
	"context"
	"errors"

	"github.com/ahrav/go-taxa/internal/domain"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ItemFilter narrows an item listing.
type ItemFilter struct {
	// Unclassified selects only items with no classifications yet.
	Unclassified bool
	// Limit caps the result size; zero means no cap.
	Limit int
}

// TaxonomyStore persists taxonomy definitions.
type TaxonomyStore interface {
	Get(ctx context.Context, id string) (*domain.Taxonomy, error)
	Put(ctx context.Context, tax domain.Taxonomy) error
}

// NodeStore persists the node collection of a taxonomy.
type NodeStore interface {
	// ListAll returns every node of the taxonomy, root included.
	ListAll(ctx context.Context, taxonomyID string) ([]domain.Node, error)
	// ReplaceAll atomically swaps the taxonomy's node collection.
	ReplaceAll(ctx context.Context, taxonomyID string, nodes []domain.Node) error
	// Upsert writes or overwrites individual nodes.
	Upsert(ctx context.Context, taxonomyID string, nodes ...domain.Node) error
}

// ItemStore persists items and their classifications.
type ItemStore interface {
	Get(ctx context.Context, id string) (*domain.Item, error)
	List(ctx context.Context, filter ItemFilter) ([]domain.Item, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.Item, error)
	Put(ctx context.Context, items ...domain.Item) error
}

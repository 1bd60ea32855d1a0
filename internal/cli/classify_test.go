package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/store"
)

func TestBatchSource_SkipsAttemptedItems(t *testing.T) {
	ctx := context.Background()
	items := store.NewMemoryItemStore()
	require.NoError(t, items.Put(ctx,
		domain.Item{ID: "i1", Content: "a"},
		domain.Item{ID: "i2", Content: "b"},
		domain.Item{ID: "i3", Content: "c"},
	))

	src := newBatchSource(items, 2)

	first, err := src.Next(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := src.Next(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "i3", second[0].ID)

	// Nothing got classified, so the store still lists all three as
	// unclassified; the source must not hand them out again.
	remaining, err := items.List(ctx, store.ItemFilter{Unclassified: true})
	require.NoError(t, err)
	assert.Len(t, remaining, 3)

	third, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, third, "abstained items are not re-pulled within a run")
}

func TestBatchSource_SkipsNewlyClassifiedItems(t *testing.T) {
	ctx := context.Background()
	items := store.NewMemoryItemStore()
	require.NoError(t, items.Put(ctx, domain.Item{ID: "i1", Content: "a"}))

	src := newBatchSource(items, 10)

	first, err := src.Next(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	require.NoError(t, items.Put(ctx, domain.Item{
		ID:           "i1",
		Content:      "a",
		ClassifiedAs: []domain.Classification{{NodeID: "n", Confidence: 1}},
	}))

	next, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, next)
}

package checkpoint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-taxa/internal/checkpoint"
	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/store"
)

func newTestStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	db, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return checkpoint.NewStore(db)
}

func sampleCheckpoint() domain.Checkpoint {
	return domain.Checkpoint{
		SessionID:  "session-1",
		TaxonomyID: "tax-1",
		Phase:      domain.PhaseAwaitingBatch,
		Items: []domain.Item{
			{ID: "i1", Content: "a laptop", ClassifiedAs: []domain.Classification{
				{NodeID: "electronics", Confidence: 0.75},
			}},
		},
		Nodes: []domain.Node{
			domain.RootNode(),
			{ID: "electronics", ParentID: domain.RootNodeID, Label: "Electronics"},
		},
		PendingCases: []domain.PendingCase{
			{ParentNodeID: "electronics", Item: domain.Item{ID: "i1", Content: "a laptop"}},
		},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp := sampleCheckpoint()
	require.NoError(t, s.Save(ctx, cp))

	loaded, err := s.Load(ctx, cp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, cp, *loaded)
}

func TestStore_SaveOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp := sampleCheckpoint()
	require.NoError(t, s.Save(ctx, cp))

	cp.Phase = domain.PhaseDone
	cp.PendingCases = nil
	require.NoError(t, s.Save(ctx, cp))

	loaded, err := s.Load(ctx, cp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDone, loaded.Phase)
	assert.Empty(t, loaded.PendingCases)
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp := sampleCheckpoint()
	require.NoError(t, s.Save(ctx, cp))
	require.NoError(t, s.Delete(ctx, cp.SessionID))

	_, err := s.Load(ctx, cp.SessionID)
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Delete(context.Background(), "never-existed"))
}

func TestStore_EmptySessionIDRejected(t *testing.T) {
	s := newTestStore(t)
	err := s.Save(context.Background(), domain.Checkpoint{})
	assert.Error(t, err)
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := sampleCheckpoint()
	second := sampleCheckpoint()
	second.SessionID = "session-2"
	second.Phase = domain.PhaseAwaitingHuman

	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	loaded, err := s.Load(ctx, "session-2")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAwaitingHuman, loaded.Phase)

	loaded, err = s.Load(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAwaitingBatch, loaded.Phase)
}

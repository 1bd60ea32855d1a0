package orchestrator_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-taxa/internal/checkpoint"
	"github.com/ahrav/go-taxa/internal/classify"
	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/orchestrator"
	"github.com/ahrav/go-taxa/internal/store"
)

// fakeClassifier returns scripted results keyed by (parent, item).
type fakeClassifier struct {
	mu      sync.Mutex
	results map[string]*classify.CaseResult
	calls   []string
}

func caseKey(parentID, itemID string) string { return parentID + "/" + itemID }

func (f *fakeClassifier) ClassifyCase(
	_ context.Context,
	_ string,
	_ domain.Taxonomy,
	_ []domain.Node,
	parentID string,
	item domain.Item,
) (*classify.CaseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, caseKey(parentID, item.ID))
	if r, ok := f.results[caseKey(parentID, item.ID)]; ok {
		return r, nil
	}
	// Unscripted cases abstain.
	return &classify.CaseResult{Delta: item}, nil
}

func match(item domain.Item, nodeID string, conf float64, expand bool) *classify.CaseResult {
	sel := []domain.Classification{{NodeID: nodeID, Confidence: conf}}
	r := &classify.CaseResult{
		Delta: domain.Item{
			ID:           item.ID,
			Content:      item.Content,
			ClassifiedAs: sel,
		},
		Selected: sel,
	}
	if expand {
		r.Pending = []domain.PendingCase{{ParentNodeID: nodeID, Item: item}}
	}
	return r
}

type fixture struct {
	engine      *orchestrator.Engine
	taxonomies  *store.MemoryTaxonomyStore
	nodes       *store.MemoryNodeStore
	items       *store.MemoryItemStore
	checkpoints *checkpoint.Store
	classifier  *fakeClassifier
}

func newFixture(t *testing.T, cfg orchestrator.Config) *fixture {
	t.Helper()
	db, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		taxonomies:  store.NewMemoryTaxonomyStore(),
		nodes:       store.NewMemoryNodeStore(),
		items:       store.NewMemoryItemStore(),
		checkpoints: checkpoint.NewStore(db),
		classifier:  &fakeClassifier{results: map[string]*classify.CaseResult{}},
	}
	f.engine = orchestrator.New(f.taxonomies, f.nodes, f.items, f.checkpoints, f.classifier, nil, cfg)

	ctx := context.Background()
	require.NoError(t, f.taxonomies.Put(ctx, domain.Taxonomy{ID: "tax-1", Aspect: "product category"}))
	require.NoError(t, f.nodes.ReplaceAll(ctx, "tax-1", []domain.Node{
		domain.RootNode(),
		{ID: "electronics", ParentID: domain.RootNodeID, Label: "Electronics"},
		{ID: "clothing", ParentID: domain.RootNodeID, Label: "Clothing"},
		{ID: "phones", ParentID: "electronics", Label: "Phones"},
	}))
	return f
}

func TestClassifyBatch_SingleBatchFinishes(t *testing.T) {
	f := newFixture(t, orchestrator.Config{SingleBatch: true})
	ctx := context.Background()

	shirt := domain.Item{ID: "i1", Content: "a cotton shirt"}
	f.classifier.results[caseKey(domain.RootNodeID, "i1")] = match(shirt, "clothing", 0.75, false)

	result, err := f.engine.ClassifyBatch(ctx, "s1", "tax-1", []domain.Item{shirt})
	require.NoError(t, err)

	assert.Nil(t, result.Interrupt)
	assert.Equal(t, 1, result.Rounds)
	require.Len(t, result.Items, 1)
	require.Len(t, result.Items[0].ClassifiedAs, 1)
	assert.Equal(t, "clothing", result.Items[0].ClassifiedAs[0].NodeID)

	// Items and node membership are committed to the stores.
	stored, err := f.items.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, result.Items[0].ClassifiedAs, stored.ClassifiedAs)

	nodes, err := f.nodes.ListAll(ctx, "tax-1")
	require.NoError(t, err)
	clothing, ok := domain.FindNode(nodes, "clothing")
	require.True(t, ok)
	require.Len(t, clothing.Members, 1)
	assert.Equal(t, "i1", clothing.Members[0].ItemID)
	assert.Equal(t, 0.75, clothing.Members[0].Confidence)

	// A finished single-batch session leaves no checkpoint behind.
	_, err = f.checkpoints.Load(ctx, "s1")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestClassifyBatch_RecursesIntoMatchedBranch(t *testing.T) {
	f := newFixture(t, orchestrator.Config{SingleBatch: true, MaxConcurrentCases: 2})
	ctx := context.Background()

	phone := domain.Item{ID: "i1", Content: "the new iphone"}
	f.classifier.results[caseKey(domain.RootNodeID, "i1")] = match(phone, "electronics", 1.0, true)
	f.classifier.results[caseKey("electronics", "i1")] = match(phone, "phones", 1.0, false)

	result, err := f.engine.ClassifyBatch(ctx, "s1", "tax-1", []domain.Item{phone})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Rounds)
	require.Len(t, result.Items, 1)

	ids := make([]string, 0, 2)
	for _, c := range result.Items[0].ClassifiedAs {
		ids = append(ids, c.NodeID)
	}
	assert.ElementsMatch(t, []string{"electronics", "phones"}, ids)

	assert.Equal(t, []string{
		caseKey(domain.RootNodeID, "i1"),
		caseKey("electronics", "i1"),
	}, f.classifier.calls)
}

func TestClassifyBatch_MultiBatchSuspendsAndResumes(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	ctx := context.Background()

	first := domain.Item{ID: "i1", Content: "a cotton shirt"}
	second := domain.Item{ID: "i2", Content: "a laptop"}
	f.classifier.results[caseKey(domain.RootNodeID, "i1")] = match(first, "clothing", 1.0, false)
	f.classifier.results[caseKey(domain.RootNodeID, "i2")] = match(second, "electronics", 1.0, false)

	result, err := f.engine.ClassifyBatch(ctx, "s1", "tax-1", []domain.Item{first})
	require.NoError(t, err)
	require.NotNil(t, result.Interrupt)
	assert.Equal(t, domain.AwaitNextBatch, result.Interrupt.Awaiting)

	// The suspended session survives with its node state.
	cp, err := f.checkpoints.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseAwaitingBatch, cp.Phase)
	assert.Equal(t, "tax-1", cp.TaxonomyID)

	result, err = f.engine.Resume(ctx, "s1", []domain.Item{second})
	require.NoError(t, err)
	require.NotNil(t, result.Interrupt)

	// The new batch replaced the working set; i1 was already committed.
	require.Len(t, result.Items, 1)
	assert.Equal(t, "i2", result.Items[0].ID)

	for _, id := range []string{"i1", "i2"} {
		stored, err := f.items.Get(ctx, id)
		require.NoError(t, err)
		assert.NotEmpty(t, stored.ClassifiedAs, id)
	}
}

func TestClassifyBatch_EmptyTaxonomyRejected(t *testing.T) {
	f := newFixture(t, orchestrator.Config{SingleBatch: true})
	ctx := context.Background()

	require.NoError(t, f.nodes.ReplaceAll(ctx, "tax-1", []domain.Node{domain.RootNode()}))

	_, err := f.engine.ClassifyBatch(ctx, "s1", "tax-1", []domain.Item{{ID: "i1"}})
	assert.ErrorIs(t, err, orchestrator.ErrEmptyTaxonomy)
}

func TestClassifyBatch_UnknownTaxonomyRejected(t *testing.T) {
	f := newFixture(t, orchestrator.Config{SingleBatch: true})

	_, err := f.engine.ClassifyBatch(context.Background(), "s1", "nope", []domain.Item{{ID: "i1"}})
	assert.Error(t, err)
}

func TestResume_UnknownSessionRejected(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})

	_, err := f.engine.Resume(context.Background(), "ghost", []domain.Item{{ID: "i1"}})
	assert.ErrorIs(t, err, orchestrator.ErrSessionNotFound)
}

func TestResume_WrongPhaseRejected(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	ctx := context.Background()

	require.NoError(t, f.checkpoints.Save(ctx, domain.Checkpoint{
		SessionID:  "s1",
		TaxonomyID: "tax-1",
		Phase:      domain.PhaseClassify,
	}))

	_, err := f.engine.Resume(ctx, "s1", []domain.Item{{ID: "i1"}})
	assert.ErrorIs(t, err, orchestrator.ErrWrongPhase)
}

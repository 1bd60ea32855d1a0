package classify_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-taxa/internal/classify"
	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/llm"
	"github.com/ahrav/go-taxa/internal/llm/transport"
	"github.com/ahrav/go-taxa/pkg/events"
)

// fixedHandler answers every call with the same content, recording the
// requests it saw.
type fixedHandler struct {
	mu       sync.Mutex
	content  string
	requests []*transport.Request
}

func (h *fixedHandler) Handle(_ context.Context, req *transport.Request) (*transport.Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req.Clone())
	return &transport.Response{Model: req.Model, Content: h.content, TokensUsed: 5}, nil
}

func testTaxonomy() domain.Taxonomy {
	return domain.Taxonomy{ID: "tax-1", Aspect: "product category"}
}

func testNodes() []domain.Node {
	return []domain.Node{
		domain.RootNode(),
		{ID: "electronics", ParentID: domain.RootNodeID, Label: "Electronics", Description: "Electronic devices"},
		{ID: "clothing", ParentID: domain.RootNodeID, Label: "Clothing", Description: "Apparel"},
		{ID: "phones", ParentID: "electronics", Label: "Phones", Description: "Mobile phones"},
		{ID: "laptops", ParentID: "electronics", Label: "Laptops", Description: "Portable computers"},
	}
}

func testConfig() classify.Config {
	cfg := classify.DefaultConfig()
	cfg.Models = []string{"m1"}
	cfg.TotalInvocations = 2
	return cfg
}

func newClassifier(t *testing.T, h transport.Handler, sink events.Sink) *classify.Classifier {
	t.Helper()
	c, err := classify.New(llm.NewInvokerWithHandler(h), testConfig(), nil, sink)
	require.NoError(t, err)
	return c
}

func TestClassifyCase_UnanimousVoteExpandsBranch(t *testing.T) {
	// The judgments carry junk ids on purpose; label repair must resolve
	// them to the Electronics sibling before restore and vote.
	h := &fixedHandler{content: `{"rationale": "it is a device", "node_labels": ["Electronics"], "node_ids": ["zz"]}`}
	sink := &events.MemorySink{}
	c := newClassifier(t, h, sink)

	item := domain.Item{ID: "i1", Content: "the new iphone"}
	result, err := c.ClassifyCase(context.Background(), "s1", testTaxonomy(), testNodes(), domain.RootNodeID, item)
	require.NoError(t, err)

	require.Len(t, result.Selected, 1)
	assert.Equal(t, "electronics", result.Selected[0].NodeID)
	assert.Equal(t, 1.0, result.Selected[0].Confidence)

	assert.Equal(t, result.Selected, result.Delta.ClassifiedAs)
	assert.Equal(t, "i1", result.Delta.ID)

	// Electronics has children, so the item needs further classification.
	require.Len(t, result.Pending, 1)
	assert.Equal(t, "electronics", result.Pending[0].ParentNodeID)
	assert.Equal(t, item, result.Pending[0].Item)

	assert.Len(t, h.requests, 2, "one request per ensemble invocation")

	types := make([]string, 0, len(sink.Events()))
	for _, e := range sink.Events() {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, events.TypeItemClassified)
	assert.Contains(t, types, events.TypeBranchExpanded)
}

func TestClassifyCase_LeafMatchHasNoPending(t *testing.T) {
	h := &fixedHandler{content: `{"rationale": "a phone", "node_labels": ["Phones"], "node_ids": ["zz"]}`}
	c := newClassifier(t, h, nil)

	item := domain.Item{ID: "i1", Content: "the new iphone"}
	result, err := c.ClassifyCase(context.Background(), "s1", testTaxonomy(), testNodes(), "electronics", item)
	require.NoError(t, err)

	require.Len(t, result.Selected, 1)
	assert.Equal(t, "phones", result.Selected[0].NodeID)
	assert.Empty(t, result.Pending, "leaf nodes expand nothing")
}

func TestClassifyCase_AllEmptyVotesClassifiesNothing(t *testing.T) {
	h := &fixedHandler{content: `{"rationale": "fits nowhere", "node_labels": [], "node_ids": []}`}
	sink := &events.MemorySink{}
	c := newClassifier(t, h, sink)

	item := domain.Item{ID: "i1", Content: "a rock"}
	result, err := c.ClassifyCase(context.Background(), "s1", testTaxonomy(), testNodes(), domain.RootNodeID, item)
	require.NoError(t, err)

	assert.Empty(t, result.Selected)
	assert.Empty(t, result.Pending)
	assert.Empty(t, result.Delta.ClassifiedAs)
}

func TestClassifyCase_DegradedResponsesCountAsEmpty(t *testing.T) {
	h := &fixedHandler{content: `total garbage`}
	c := newClassifier(t, h, nil)

	item := domain.Item{ID: "i1", Content: "something"}
	result, err := c.ClassifyCase(context.Background(), "s1", testTaxonomy(), testNodes(), domain.RootNodeID, item)
	require.NoError(t, err)

	assert.Empty(t, result.Selected, "unusable output abstains instead of failing the case")
}

func TestClassifyCase_LeafParentRejected(t *testing.T) {
	h := &fixedHandler{content: `{}`}
	c := newClassifier(t, h, nil)

	_, err := c.ClassifyCase(context.Background(), "s1", testTaxonomy(), testNodes(), "phones", domain.Item{ID: "i1"})
	assert.ErrorIs(t, err, classify.ErrNoChildren)
}

func TestClassifyCase_UnknownParentRejected(t *testing.T) {
	h := &fixedHandler{content: `{}`}
	c := newClassifier(t, h, nil)

	_, err := c.ClassifyCase(context.Background(), "s1", testTaxonomy(), testNodes(), "nope", domain.Item{ID: "i1"})
	assert.Error(t, err)
}

func TestClassifyCase_PromptCarriesBranchAndItem(t *testing.T) {
	h := &fixedHandler{content: `{"rationale": "r", "node_labels": [], "node_ids": []}`}
	c := newClassifier(t, h, nil)

	item := domain.Item{ID: "i1", Content: "a wool sweater"}
	_, err := c.ClassifyCase(context.Background(), "s1", testTaxonomy(), testNodes(), domain.RootNodeID, item)
	require.NoError(t, err)

	require.NotEmpty(t, h.requests)
	system := h.requests[0].Messages[0]
	user := h.requests[0].Messages[1]

	assert.Equal(t, transport.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "product category")
	assert.Contains(t, system.Content, "Electronics")
	assert.Contains(t, system.Content, "Clothing")
	assert.NotContains(t, system.Content, "Phones", "grandchildren stay out of the branch prompt")
	assert.NotContains(t, system.Content, "electronics", "database ids never reach the prompt")

	assert.Contains(t, user.Content, "a wool sweater")
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	cfg.Models = nil
	_, err := classify.New(llm.NewInvokerWithHandler(&fixedHandler{}), cfg, nil, nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.TotalInvocations = 0
	_, err = classify.New(llm.NewInvokerWithHandler(&fixedHandler{}), cfg, nil, nil)
	assert.Error(t, err)
}

package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-taxa/internal/domain"
)

func TestNodeValidate(t *testing.T) {
	tests := []struct {
		name    string
		node    domain.Node
		wantErr error
	}{
		{
			name: "valid node",
			node: domain.Node{ID: "a", ParentID: domain.RootNodeID, Label: "A"},
		},
		{
			name:    "empty id",
			node:    domain.Node{ParentID: domain.RootNodeID, Label: "A"},
			wantErr: domain.ErrNodeIDEmpty,
		},
		{
			name:    "reserved reset id",
			node:    domain.Node{ID: domain.SentinelReset, Label: "A"},
			wantErr: domain.ErrNodeIDReserved,
		},
		{
			name:    "reserved replace-all id",
			node:    domain.Node{ID: domain.SentinelReplaceAll, Label: "A"},
			wantErr: domain.ErrNodeIDReserved,
		},
		{
			name:    "self parent",
			node:    domain.Node{ID: "a", ParentID: "a", Label: "A"},
			wantErr: domain.ErrNodeSelfParent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateTree(t *testing.T) {
	valid := []domain.Node{
		domain.RootNode(),
		{ID: "a", ParentID: domain.RootNodeID, Label: "A"},
		{ID: "b", ParentID: "a", Label: "B"},
	}
	require.NoError(t, domain.ValidateTree(valid))

	tests := []struct {
		name    string
		nodes   []domain.Node
		wantErr error
	}{
		{
			name:    "missing root",
			nodes:   []domain.Node{{ID: "a", ParentID: domain.RootNodeID, Label: "A"}},
			wantErr: domain.ErrRootMissing,
		},
		{
			name: "duplicate id",
			nodes: []domain.Node{
				domain.RootNode(),
				{ID: "a", ParentID: domain.RootNodeID, Label: "A"},
				{ID: "a", ParentID: domain.RootNodeID, Label: "A again"},
			},
			wantErr: domain.ErrDuplicateNodeID,
		},
		{
			name: "dangling parent",
			nodes: []domain.Node{
				domain.RootNode(),
				{ID: "a", ParentID: "ghost", Label: "A"},
			},
			wantErr: domain.ErrNodeParentMissing,
		},
		{
			name: "cycle",
			nodes: []domain.Node{
				domain.RootNode(),
				{ID: "a", ParentID: "b", Label: "A"},
				{ID: "b", ParentID: "a", Label: "B"},
			},
			wantErr: domain.ErrNodeCycle,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, domain.ValidateTree(tt.nodes), tt.wantErr)
		})
	}
}

func TestChildrenOf(t *testing.T) {
	nodes := []domain.Node{
		domain.RootNode(),
		{ID: "a", ParentID: domain.RootNodeID, Label: "A"},
		{ID: "b", ParentID: domain.RootNodeID, Label: "B"},
		{ID: "c", ParentID: "a", Label: "C"},
	}

	children := domain.ChildrenOf(nodes, domain.RootNodeID)
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].ID)
	assert.Equal(t, "b", children[1].ID)

	assert.True(t, domain.HasChildren(nodes, "a"))
	assert.False(t, domain.HasChildren(nodes, "c"))
}

func TestFindNode(t *testing.T) {
	nodes := []domain.Node{domain.RootNode(), {ID: "a", ParentID: domain.RootNodeID, Label: "A"}}

	n, ok := domain.FindNode(nodes, "a")
	require.True(t, ok)
	assert.Equal(t, "A", n.Label)

	_, ok = domain.FindNode(nodes, "nope")
	assert.False(t, ok)
}

func TestTaxonomyValidate(t *testing.T) {
	assert.NoError(t, domain.Taxonomy{ID: "t", Aspect: "topic"}.Validate())
	assert.ErrorIs(t, domain.Taxonomy{ID: "t"}.Validate(), domain.ErrAspectEmpty)
}

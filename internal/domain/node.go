package domain

import (
	"errors"
	"fmt"
)

// RootNodeID is the fixed id of the sentinel root node. Every taxonomy has
// exactly one root; all other nodes must (transitively) descend from it.
const RootNodeID = "root"

// Reserved ids that trigger special reducer semantics instead of being
// treated as data. They must never be allocated to real nodes or items.
const (
	// SentinelReset clears a collection back to its zero state
	// (the bare root for nodes, empty for accumulators).
	SentinelReset = "RESET"

	// SentinelReplaceAll discards the prior collection and substitutes the
	// remainder of the delta wholesale.
	SentinelReplaceAll = "REPLACE_ALL"
)

// Node validation errors.
var (
	ErrNodeIDEmpty       = errors.New("node id is empty")
	ErrNodeIDReserved    = errors.New("node id is a reserved sentinel")
	ErrNodeSelfParent    = errors.New("node references itself as parent")
	ErrNodeParentMissing = errors.New("node parent does not resolve to an existing node")
	ErrNodeCycle         = errors.New("node parent chain contains a cycle")
	ErrRootMissing       = errors.New("taxonomy has no root node")
	ErrDuplicateNodeID   = errors.New("duplicate node id")
)

// Member records one item classified under a node.
type Member struct {
	ItemID        string  `json:"item_id"`
	Confidence    float64 `json:"confidence"`
	Verified      bool    `json:"verified"`
	UsedAsExample bool    `json:"used_as_example"`
}

// Node is a labeled category in the taxonomy tree. A node may have child
// nodes (other nodes whose ParentID equals its ID) and member items.
// Nodes are created by bootstrap or examination, never during classification.
type Node struct {
	ID          string   `json:"id"`
	ParentID    string   `json:"parent_id"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Members     []Member `json:"members,omitempty"`
}

// RootNode returns a fresh sentinel root node.
func RootNode() Node {
	return Node{
		ID:          RootNodeID,
		ParentID:    "",
		Label:       "Root",
		Description: "The root node of the taxonomy.",
	}
}

// IsSentinel reports whether the node carries a reserved reducer id.
func (n Node) IsSentinel() bool {
	return n.ID == SentinelReset || n.ID == SentinelReplaceAll
}

// Validate checks the node in isolation. Tree-level invariants (parent
// resolution, cycles) are checked by ValidateTree.
func (n Node) Validate() error {
	if n.ID == "" {
		return ErrNodeIDEmpty
	}
	if n.IsSentinel() {
		return fmt.Errorf("%w: %s", ErrNodeIDReserved, n.ID)
	}
	if n.ID == n.ParentID {
		return fmt.Errorf("%w: %s", ErrNodeSelfParent, n.ID)
	}
	return nil
}

// ValidateTree checks the structural invariants of a node collection:
// the root is present, ids are unique, every non-root parent resolves, and
// no parent chain cycles. Configuration errors here are fatal; they signal
// an id-allocation defect upstream rather than a recoverable condition.
func ValidateTree(nodes []Node) error {
	byID := make(map[string]Node, len(nodes))
	rootSeen := false
	for _, n := range nodes {
		if n.ID == RootNodeID {
			rootSeen = true
			if _, dup := byID[n.ID]; dup {
				return fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
			}
			byID[n.ID] = n
			continue
		}
		if err := n.Validate(); err != nil {
			return err
		}
		if _, dup := byID[n.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
		}
		byID[n.ID] = n
	}
	if !rootSeen {
		return ErrRootMissing
	}

	for _, n := range nodes {
		if n.ID == RootNodeID {
			continue
		}
		if _, ok := byID[n.ParentID]; !ok {
			return fmt.Errorf("%w: node %s parent %s", ErrNodeParentMissing, n.ID, n.ParentID)
		}
		// Walk the parent chain; a walk longer than the node count means a cycle.
		cur := n
		for steps := 0; cur.ID != RootNodeID; steps++ {
			if steps > len(nodes) {
				return fmt.Errorf("%w: starting at %s", ErrNodeCycle, n.ID)
			}
			parent, ok := byID[cur.ParentID]
			if !ok {
				return fmt.Errorf("%w: node %s parent %s", ErrNodeParentMissing, cur.ID, cur.ParentID)
			}
			cur = parent
		}
	}
	return nil
}

// ChildrenOf returns the nodes whose parent is parentID, in input order.
func ChildrenOf(nodes []Node, parentID string) []Node {
	var children []Node
	for _, n := range nodes {
		if n.ParentID == parentID {
			children = append(children, n)
		}
	}
	return children
}

// HasChildren reports whether any node lists parentID as its parent.
func HasChildren(nodes []Node, parentID string) bool {
	for _, n := range nodes {
		if n.ParentID == parentID {
			return true
		}
	}
	return false
}

// FindNode returns the node with the given id, if present.
func FindNode(nodes []Node, id string) (Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

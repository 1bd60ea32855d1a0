// Package reduce holds the pure merge reducers that reconcile concurrent
// classification deltas into the canonical node and item collections. The
// reducers are the only legal mutation path for shared state: the
// orchestrator invokes them strictly after a fan-out group's join barrier,
// so no locking is involved.
//
// Reserved sentinel ids (domain.SentinelReset, domain.SentinelReplaceAll)
// inside a delta switch a reducer into its destructive mode instead of being
// merged as data. All reducers are deterministic, order-stable functions of
// (state, delta) and never mutate their inputs.
package reduce

import (
	"github.com/ahrav/go-taxa/internal/domain"
)

// Nodes merges a node delta into the working node collection.
//
// Sentinel handling: a delta containing SentinelReplaceAll yields
// [root] + (delta minus sentinels), discarding the prior collection; a delta
// containing SentinelReset yields [root] alone. Otherwise each delta node
// with a matching existing id overwrites in place and unmatched ids are
// appended. The root node is always guaranteed present.
func Nodes(state []domain.Node, delta []domain.Node) []domain.Node {
	if len(delta) == 0 {
		return cloneNodes(state)
	}

	if containsNodeID(delta, domain.SentinelReplaceAll) {
		out := []domain.Node{domain.RootNode()}
		for _, n := range delta {
			if n.IsSentinel() || n.ID == domain.RootNodeID {
				continue
			}
			out = append(out, n)
		}
		return out
	}

	if containsNodeID(delta, domain.SentinelReset) {
		return []domain.Node{domain.RootNode()}
	}

	out := cloneNodes(state)
	if len(out) == 0 {
		out = []domain.Node{domain.RootNode()}
	}

	for _, n := range delta {
		if n.IsSentinel() {
			continue
		}
		replaced := false
		for i := range out {
			if out[i].ID == n.ID {
				out[i] = n
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, n)
		}
	}
	return out
}

// Items merges an item delta into the working item collection.
//
// A delta containing SentinelReplaceAll replaces the whole collection with
// the delta minus the sentinel; this is how a fresh unclassified batch is
// swapped in. Otherwise, for an item already present, each classification
// entry merges per node id: a new node id appends, an existing node id is
// replaced in place (last write wins, never duplicated or averaged).
// Unknown items append fresh.
func Items(state []domain.Item, delta []domain.Item) []domain.Item {
	if len(delta) == 0 {
		return cloneItems(state)
	}

	if containsItemID(delta, domain.SentinelReplaceAll) {
		var out []domain.Item
		for _, it := range delta {
			if it.IsSentinel() {
				continue
			}
			out = append(out, cloneItem(it))
		}
		return out
	}

	out := cloneItems(state)
	for _, in := range delta {
		if in.IsSentinel() {
			continue
		}
		idx := -1
		for i := range out {
			if out[i].ID == in.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			out = append(out, cloneItem(in))
			continue
		}
		for _, c := range in.ClassifiedAs {
			merged := false
			for i := range out[idx].ClassifiedAs {
				if out[idx].ClassifiedAs[i].NodeID == c.NodeID {
					out[idx].ClassifiedAs[i] = c
					merged = true
					break
				}
			}
			if !merged {
				out[idx].ClassifiedAs = append(out[idx].ClassifiedAs, c)
			}
		}
	}
	return out
}

// Pending merges a pending-case delta into the accumulator. A delta entry
// whose parent id is SentinelReset clears the accumulator entirely;
// otherwise entries append in order.
func Pending(state []domain.PendingCase, delta []domain.PendingCase) []domain.PendingCase {
	for _, d := range delta {
		if d.ParentNodeID == domain.SentinelReset {
			return nil
		}
	}
	out := make([]domain.PendingCase, 0, len(state)+len(delta))
	out = append(out, state...)
	out = append(out, delta...)
	if len(out) == 0 {
		return nil
	}
	return out
}

func containsNodeID(nodes []domain.Node, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func containsItemID(items []domain.Item, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}

func cloneNodes(nodes []domain.Node) []domain.Node {
	if nodes == nil {
		return nil
	}
	out := make([]domain.Node, len(nodes))
	copy(out, nodes)
	return out
}

func cloneItems(items []domain.Item) []domain.Item {
	if items == nil {
		return nil
	}
	out := make([]domain.Item, len(items))
	for i, it := range items {
		out[i] = cloneItem(it)
	}
	return out
}

func cloneItem(it domain.Item) domain.Item {
	if it.ClassifiedAs == nil {
		return it
	}
	c := make([]domain.Classification, len(it.ClassifiedAs))
	copy(c, it.ClassifiedAs)
	it.ClassifiedAs = c
	return it
}

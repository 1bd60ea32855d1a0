package domain

// Classification is one node assignment on an item, produced by an ensemble
// vote. An item carries at most one Classification per node id; the item
// reducer enforces replace-on-conflict.
type Classification struct {
	NodeID        string  `json:"node_id"`
	Confidence    float64 `json:"confidence"`
	Verified      bool    `json:"verified"`
	UsedAsExample bool    `json:"used_as_example"`
}

// Item is a unit of content to classify. ClassifiedAs accumulates one entry
// per matched node across all recursion levels the item has reached.
type Item struct {
	ID           string           `json:"id"`
	Content      string           `json:"content"`
	ClassifiedAs []Classification `json:"classified_as,omitempty"`
}

// IsSentinel reports whether the item carries a reserved reducer id.
func (it Item) IsSentinel() bool {
	return it.ID == SentinelReset || it.ID == SentinelReplaceAll
}

// ClassifiedInto reports whether the item already has an entry for nodeID.
func (it Item) ClassifiedInto(nodeID string) bool {
	for _, c := range it.ClassifiedAs {
		if c.NodeID == nodeID {
			return true
		}
	}
	return false
}

package domain

// FinalJudgment is the structured verdict of a single ensemble call: the
// model's rationale plus the child nodes it placed the item under. Empty
// NodeIDs means the model judged the item to belong to none of the siblings.
// Judgments are ephemeral; they exist only until the vote consumes them.
type FinalJudgment struct {
	Rationale  string   `json:"rationale"`
	NodeIDs    []string `json:"node_ids"`
	NodeLabels []string `json:"node_labels"`
}

// Empty reports whether the call produced no node assignment.
func (j FinalJudgment) Empty() bool { return len(j.NodeIDs) == 0 }

// PendingCase is a unit of further-classification work: an item that matched
// a node with children and must now be judged against that node's children.
// Produced by branch expansion, consumed by the next orchestrator iteration.
type PendingCase struct {
	ParentNodeID string `json:"parent_node_id"`
	Item         Item   `json:"item"`
}

package domain

import "fmt"

// Phase names the batch orchestrator's state machine positions. Only
// suspension phases are ever observed in a persisted checkpoint; the
// in-flight phases exist transiently while a batch runs.
type Phase string

const (
	PhaseInit         Phase = "init"
	PhaseSpawnBatch   Phase = "spawn_batch"
	PhaseClassify     Phase = "classify"
	PhaseMerge        Phase = "merge"
	PhaseCheckPending Phase = "check_pending"
	// PhaseAwaitingBatch marks a session suspended at a batch boundary,
	// waiting for the caller to supply the next batch.
	PhaseAwaitingBatch Phase = "awaiting_batch"
	// PhaseAwaitingHuman marks a session suspended for free-text guidance.
	PhaseAwaitingHuman Phase = "awaiting_human"
	PhaseDone          Phase = "done"
)

// Checkpoint is the durable snapshot of a classification session. It holds
// everything needed to resume after a process restart: the working item set,
// the accumulated node tree, unconsumed pending cases, and the phase the
// session suspended in. The orchestrator exclusively owns this state; other
// components receive immutable slices and return deltas.
type Checkpoint struct {
	SessionID    string        `json:"session_id"`
	TaxonomyID   string        `json:"taxonomy_id"`
	Phase        Phase         `json:"phase"`
	Items        []Item        `json:"items,omitempty"`
	Nodes        []Node        `json:"nodes,omitempty"`
	PendingCases []PendingCase `json:"pending_cases,omitempty"`
}

// AwaitKind names what a suspended session is waiting for.
type AwaitKind string

const (
	// AwaitNextBatch asks the caller for a fresh batch of items.
	AwaitNextBatch AwaitKind = "next_batch"
	// AwaitHumanMessage asks the caller for free-text human guidance.
	AwaitHumanMessage AwaitKind = "human_message"
)

// Interrupt is the typed suspension signal surfaced to callers. It
// implements error so orchestration entry points can return it through
// ordinary error plumbing; callers resolve it by supplying a resume value.
type Interrupt struct {
	Awaiting AwaitKind `json:"awaiting"`
	// Prompt carries the human-readable request for AwaitHumanMessage.
	Prompt string `json:"prompt_text,omitempty"`
}

func (i *Interrupt) Error() string {
	if i.Prompt != "" {
		return fmt.Sprintf("suspended: awaiting %s: %s", i.Awaiting, i.Prompt)
	}
	return fmt.Sprintf("suspended: awaiting %s", i.Awaiting)
}

// Package events provides the progress event infrastructure. Components
// push structured, fire-and-forget events describing classification
// progress; sinks forward them to whatever transport the host application
// wires in (websocket push, logs, test capture).
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	// TypeItemClassified reports an item's vote result for one branch.
	TypeItemClassified = "classification.item_classified"
	// TypeBranchExpanded reports recursion into matched child branches.
	TypeBranchExpanded = "classification.branch_expanded"
	// TypeStatus carries free-text progress for operators.
	TypeStatus = "session.status"
)

// Envelope wraps a progress event with routing metadata.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Sink receives progress events. Push is best-effort: implementations
// should return quickly and callers must never fail their primary operation
// because a sink errored.
type Sink interface {
	Push(ctx context.Context, e Envelope) error
}

// NodeConfidence is one (node, confidence) pair in a classification event.
type NodeConfidence struct {
	NodeID     string  `json:"node_id"`
	Confidence float64 `json:"confidence"`
}

// ItemClassified is the payload for TypeItemClassified.
type ItemClassified struct {
	ItemID       string           `json:"item_id"`
	ClassifiedAs []NodeConfidence `json:"classified_as"`
}

// BranchExpanded is the payload for TypeBranchExpanded.
type BranchExpanded struct {
	ItemID       string   `json:"item_id"`
	NewParentIDs []string `json:"new_parent_ids"`
}

// Status is the payload for TypeStatus.
type Status struct {
	Message string `json:"message"`
}

// New builds an envelope around a payload. Marshal failures are impossible
// for the fixed payload types above, so they reduce to an empty payload.
func New(eventType, source, sessionID string, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	return Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}
}

// Emit pushes best-effort, logging instead of propagating sink failures.
func Emit(ctx context.Context, sink Sink, e Envelope) {
	if sink == nil {
		return
	}
	if err := sink.Push(ctx, e); err != nil {
		slog.Default().Warn("failed to push progress event",
			"event_type", e.Type,
			"error", err)
	}
}

// SlogSink writes events to a structured logger. The default sink for the
// CLI.
type SlogSink struct {
	Logger *slog.Logger
}

// Push implements Sink.
func (s *SlogSink) Push(_ context.Context, e Envelope) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("progress",
		"event_type", e.Type,
		"session_id", e.SessionID,
		"payload", string(e.Payload))
	return nil
}

// MemorySink captures events for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Envelope
}

// Push implements Sink.
func (s *MemorySink) Push(_ context.Context, e Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// Events returns a copy of everything captured so far.
func (s *MemorySink) Events() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Envelope, len(s.events))
	copy(out, s.events)
	return out
}

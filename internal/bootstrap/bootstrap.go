// Package bootstrap generates a taxonomy's initial node tree from sample
// items. Each proposal round fully supersedes the previous one; an
// optional rule validator gates acceptance, looping with feedback or
// suspending for human guidance.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/ensemble"
	"github.com/ahrav/go-taxa/internal/llm"
	"github.com/ahrav/go-taxa/internal/llm/transport"
	"github.com/ahrav/go-taxa/internal/reduce"
	"github.com/ahrav/go-taxa/pkg/events"
)

// Config holds generation parameters.
type Config struct {
	// Model proposes and validates the tree.
	Model     string
	Fallbacks []string
	// MaxRetries bounds schema repair per invocation.
	MaxRetries int
	// MaxRounds bounds the auto-validation loop; when exhausted the last
	// proposal is accepted with a warning.
	MaxRounds int
	// UseHumanInTheLoop suspends on validator failure instead of
	// auto-looping.
	UseHumanInTheLoop bool
}

// DefaultConfig returns a bounded auto-looping configuration.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, MaxRounds: 5}
}

// Session is the serializable state of one bootstrap run. A suspended
// session carries the conversation history so a resume continues where
// the human left off.
type Session struct {
	Taxonomy domain.Taxonomy     `json:"taxonomy"`
	Items    []domain.Item       `json:"items"`
	Nodes    []domain.Node       `json:"nodes"`
	History  []transport.Message `json:"history"`
	Round    int                 `json:"round"`
	Done     bool                `json:"done"`
	// Interrupt is non-nil while the session waits for human guidance.
	Interrupt *domain.Interrupt `json:"interrupt,omitempty"`
}

// Bootstrapper runs taxonomy generation sessions.
type Bootstrapper struct {
	invoker *llm.Invoker
	cfg     Config
	sink    events.Sink
	logger  *slog.Logger
}

// New creates a bootstrapper. sink may be nil.
func New(invoker *llm.Invoker, cfg Config, sink events.Sink) *Bootstrapper {
	return &Bootstrapper{
		invoker: invoker,
		cfg:     cfg,
		sink:    sink,
		logger:  slog.Default().With("component", "bootstrap"),
	}
}

// nodeProposal is the model's wire form for one proposed node.
type nodeProposal struct {
	ID           string `json:"id"`
	ParentNodeID string `json:"parent_node_id"`
	Label        string `json:"label"`
	Description  string `json:"description"`
}

type proposalSchema struct {
	Nodes []nodeProposal `json:"nodes"`
}

func (s *proposalSchema) Validate() error {
	if len(s.Nodes) == 0 {
		return fmt.Errorf("proposal must contain at least one node")
	}
	for i, n := range s.Nodes {
		if n.ID == "" || n.Label == "" {
			return fmt.Errorf("node at index %d is missing id or label", i)
		}
	}
	return nil
}

const proposalSchemaHint = `{
  "nodes": [
    {
      "id": "a random 4 character and number string identifying the node",
      "parent_node_id": "id of the parent node",
      "label": "string",
      "description": "string"
    }
  ]
}`

type validationSchema struct {
	ThinkOutLoud string `json:"think_out_loud"`
	IsValid      bool   `json:"is_valid"`
}

const validationSchemaHint = `{
  "think_out_loud": "think out loud and explain your reasoning",
  "is_valid": true
}`

// Run starts a fresh session and drives it until the tree is accepted or
// the session suspends for human guidance. A suspended session carries a
// non-nil Interrupt; resolve it with Resume.
func (b *Bootstrapper) Run(ctx context.Context, tax domain.Taxonomy, items []domain.Item) (*Session, error) {
	if err := tax.Validate(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("bootstrap requires sample items")
	}

	s := &Session{
		Taxonomy: tax,
		Items:    items,
		Nodes:    []domain.Node{domain.RootNode()},
	}
	history, err := initialHistory(tax, s.Nodes, items)
	if err != nil {
		return nil, err
	}
	s.History = history

	return b.drive(ctx, s)
}

// Resume resolves a suspended session with the human's free-text reply.
// The literal "pass" accepts the current tree as-is; anything else is
// appended to the conversation and another proposal round runs.
func (b *Bootstrapper) Resume(ctx context.Context, s *Session, humanMessage string) (*Session, error) {
	if s.Done {
		return s, nil
	}
	if s.Interrupt == nil || s.Interrupt.Awaiting != domain.AwaitHumanMessage {
		return nil, fmt.Errorf("session is not awaiting human guidance")
	}
	s.Interrupt = nil

	if strings.EqualFold(strings.TrimSpace(humanMessage), "pass") {
		s.Done = true
		b.emit(ctx, s.Taxonomy.ID, "taxonomy accepted by human override")
		return s, nil
	}

	s.History = append(s.History, transport.Message{
		Role:    transport.RoleUser,
		Content: humanMessage,
	})
	return b.drive(ctx, s)
}

// drive loops propose-then-validate until acceptance, suspension, or the
// round budget runs out.
func (b *Bootstrapper) drive(ctx context.Context, s *Session) (*Session, error) {
	for {
		if err := b.propose(ctx, s); err != nil {
			return nil, err
		}
		s.Round++

		valid, feedback, err := b.validate(ctx, s)
		if err != nil {
			return nil, err
		}
		if valid {
			s.Done = true
			b.emit(ctx, s.Taxonomy.ID, "taxonomy validated")
			return s, nil
		}

		if b.cfg.UseHumanInTheLoop {
			s.Interrupt = &domain.Interrupt{
				Awaiting: domain.AwaitHumanMessage,
				Prompt:   "The validator said the taxonomy is invalid. You can add message if you need to.",
			}
			return s, nil
		}

		if s.Round >= b.cfg.MaxRounds {
			b.logger.Warn("validation round budget exhausted, accepting last proposal",
				"taxonomy_id", s.Taxonomy.ID,
				"rounds", s.Round)
			s.Done = true
			return s, nil
		}

		b.emit(ctx, s.Taxonomy.ID, "validation failed, revising taxonomy")
		s.History = append(s.History, transport.Message{
			Role: transport.RoleUser,
			Content: fmt.Sprintf("The taxonomy is invalid. Here is the reasoning:\n%s\n\nPlease address the issues and return a valid nodes.",
				feedback),
		})
	}
}

// propose asks for a full node-set proposal and supersedes the working
// tree with it.
func (b *Bootstrapper) propose(ctx context.Context, s *Session) (err error) {
	res, err := llm.InvokeJSON[proposalSchema](ctx, b.invoker, llm.Request{
		Model:      b.cfg.Model,
		Fallbacks:  b.cfg.Fallbacks,
		Messages:   s.History,
		MaxRetries: b.cfg.MaxRetries,
		SchemaHint: proposalSchemaHint,
	})
	if err != nil {
		return fmt.Errorf("propose taxonomy: %w", err)
	}
	if res.Degraded {
		return fmt.Errorf("propose taxonomy: model %s returned unusable output", res.Model)
	}

	_, idMap, err := ensemble.AbbreviateNodes(s.Nodes)
	if err != nil {
		return err
	}
	proposed := make([]domain.Node, 0, len(res.Parsed.Nodes))
	for _, p := range res.Parsed.Nodes {
		proposed = append(proposed, domain.Node{
			ID:          p.ID,
			ParentID:    p.ParentNodeID,
			Label:       p.Label,
			Description: p.Description,
		})
	}
	restored, err := ensemble.RestoreNodes(proposed, idMap)
	if err != nil {
		return err
	}

	// Each round fully replaces the prior proposal.
	delta := append(restored, domain.Node{ID: domain.SentinelReplaceAll})
	nodes := reduce.Nodes(s.Nodes, delta)
	if err := domain.ValidateTree(nodes); err != nil {
		return fmt.Errorf("proposed tree is invalid: %w", err)
	}
	s.Nodes = nodes

	// Record the proposal so validator feedback has it in context.
	rendered := make([]string, 0, len(res.Parsed.Nodes))
	for _, p := range res.Parsed.Nodes {
		line, err := json.Marshal(p)
		if err != nil {
			return err
		}
		rendered = append(rendered, string(line))
	}
	s.History = append(s.History, transport.Message{
		Role:    transport.RoleAssistant,
		Content: strings.Join(rendered, "\n"),
	})

	b.emit(ctx, s.Taxonomy.ID, fmt.Sprintf("proposed %d nodes in round %d", len(restored), s.Round+1))
	return nil
}

// validate checks the proposal against the taxonomy's rules. No rules
// means automatic acceptance.
func (b *Bootstrapper) validate(ctx context.Context, s *Session) (bool, string, error) {
	if len(s.Taxonomy.Rules) == 0 {
		return true, "", nil
	}

	messages := append(append([]transport.Message{}, s.History...), transport.Message{
		Role: transport.RoleUser,
		Content: fmt.Sprintf("Check if the taxonomy follows the checklist below.\n\n- %s",
			strings.Join(s.Taxonomy.Rules, "\n- ")),
	})

	res, err := llm.InvokeJSON[validationSchema](ctx, b.invoker, llm.Request{
		Model:      b.cfg.Model,
		Fallbacks:  b.cfg.Fallbacks,
		Messages:   messages,
		MaxRetries: b.cfg.MaxRetries,
		SchemaHint: validationSchemaHint,
	})
	if err != nil {
		return false, "", fmt.Errorf("validate taxonomy: %w", err)
	}
	if res.Degraded {
		return false, "", fmt.Errorf("validate taxonomy: model %s returned unusable output", res.Model)
	}
	return res.Parsed.IsValid, res.Parsed.ThinkOutLoud, nil
}

func (b *Bootstrapper) emit(ctx context.Context, taxonomyID, msg string) {
	if b.sink == nil {
		return
	}
	events.Emit(ctx, b.sink, events.New(events.TypeStatus, "bootstrap", taxonomyID,
		events.Status{Message: msg}))
}

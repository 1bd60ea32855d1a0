// Package examine splits overloaded taxonomy nodes. Nodes whose members
// accumulated with low confidence get new child proposals from a model,
// and the existing members are re-voted against only the new children.
package examine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ahrav/go-taxa/internal/classify"
	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/llm"
	"github.com/ahrav/go-taxa/internal/llm/transport"
	"github.com/ahrav/go-taxa/internal/store"
	"github.com/ahrav/go-taxa/pkg/events"
)

// ErrIDCollision indicates a freshly minted child id matched an existing
// node id. That cannot happen with a healthy allocator, so it is fatal
// rather than retried.
var ErrIDCollision = errors.New("proposed child id collides with an existing node")

// Config holds selection thresholds and model parameters.
type Config struct {
	// MinItems is the member count at which a node becomes eligible.
	MinItems int
	// Threshold is the maximum average member confidence for
	// eligibility; well-understood nodes are left alone.
	Threshold float64
	// MaxSampleItems bounds how many member contents are shown to the
	// model when proposing children.
	MaxSampleItems int

	Model      string
	Fallbacks  []string
	MaxRetries int
}

// DefaultConfig mirrors the engine defaults.
func DefaultConfig() Config {
	return Config{
		MinItems:       10,
		Threshold:      0.6,
		MaxSampleItems: 20,
		MaxRetries:     3,
	}
}

// Result carries the deltas of one examination run. The caller merges
// Nodes and Items through the reducers and appends ExaminedIDs to the
// session bookkeeping.
type Result struct {
	// Nodes holds the newly created children.
	Nodes []domain.Node
	// Items holds per-item classification deltas from the re-vote.
	Items []domain.Item
	// ExaminedIDs lists the nodes that were processed this run.
	ExaminedIDs []string
}

// Examiner runs node examinations.
type Examiner struct {
	invoker    *llm.Invoker
	classifier *classify.Classifier
	items      store.ItemStore
	cfg        Config
	sink       events.Sink
	logger     *slog.Logger
}

// New creates an examiner. sink may be nil.
func New(invoker *llm.Invoker, classifier *classify.Classifier, items store.ItemStore, cfg Config, sink events.Sink) *Examiner {
	return &Examiner{
		invoker:    invoker,
		classifier: classifier,
		items:      items,
		cfg:        cfg,
		sink:       sink,
		logger:     slog.Default().With("component", "examine"),
	}
}

// SelectNodes returns the nodes eligible for examination: member count at
// or above MinItems, average member confidence at or below Threshold, and
// not already examined or excluded. A non-empty force list bypasses the
// thresholds entirely but still honors the exclusion list.
func (e *Examiner) SelectNodes(nodes []domain.Node, examined, excluded, force []string) []domain.Node {
	skip := make(map[string]struct{}, len(examined)+len(excluded))
	for _, id := range examined {
		skip[id] = struct{}{}
	}
	for _, id := range excluded {
		skip[id] = struct{}{}
	}

	if len(force) > 0 {
		forced := make(map[string]struct{}, len(force))
		for _, id := range force {
			forced[id] = struct{}{}
		}
		var out []domain.Node
		for _, n := range nodes {
			if _, ok := forced[n.ID]; !ok {
				continue
			}
			if _, ok := skip[n.ID]; ok {
				continue
			}
			out = append(out, n)
		}
		return out
	}

	var out []domain.Node
	for _, n := range nodes {
		if n.ID == domain.RootNodeID {
			continue
		}
		if _, ok := skip[n.ID]; ok {
			continue
		}
		if len(n.Members) < e.cfg.MinItems {
			continue
		}
		if averageConfidence(n.Members) > e.cfg.Threshold {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Run examines each selected node in turn: propose children, insert
// them, and re-vote the node's members against only the new children.
func (e *Examiner) Run(
	ctx context.Context,
	sessionID string,
	tax domain.Taxonomy,
	nodes []domain.Node,
	examined, excluded, force []string,
) (*Result, error) {
	selected := e.SelectNodes(nodes, examined, excluded, force)
	if len(selected) == 0 {
		return &Result{}, nil
	}

	result := &Result{}
	for _, node := range selected {
		children, itemDeltas, err := e.examineNode(ctx, sessionID, tax, nodes, node)
		if err != nil {
			return nil, fmt.Errorf("examine node %s: %w", node.ID, err)
		}
		result.Nodes = append(result.Nodes, children...)
		result.Items = append(result.Items, itemDeltas...)
		result.ExaminedIDs = append(result.ExaminedIDs, node.ID)
	}
	return result, nil
}

func (e *Examiner) examineNode(
	ctx context.Context,
	sessionID string,
	tax domain.Taxonomy,
	nodes []domain.Node,
	node domain.Node,
) ([]domain.Node, []domain.Item, error) {
	memberIDs := make([]string, 0, len(node.Members))
	for _, m := range node.Members {
		memberIDs = append(memberIDs, m.ItemID)
	}
	members, err := e.items.ListByIDs(ctx, memberIDs)
	if err != nil {
		return nil, nil, err
	}

	proposals, err := e.proposeChildren(ctx, tax, node, members)
	if err != nil {
		return nil, nil, err
	}

	existing := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		existing[n.ID] = struct{}{}
	}
	children := make([]domain.Node, 0, len(proposals))
	for _, p := range proposals {
		id := uuid.NewString()
		if _, taken := existing[id]; taken {
			return nil, nil, fmt.Errorf("%w: %s", ErrIDCollision, id)
		}
		children = append(children, domain.Node{
			ID:          id,
			ParentID:    node.ID,
			Label:       p.Label,
			Description: p.Description,
		})
	}

	e.emit(ctx, sessionID, fmt.Sprintf("node %s split into %d children", node.ID, len(children)))

	// Members re-vote against the new children only; the branch view
	// passed to the classifier contains nothing else.
	branch := append([]domain.Node{node}, children...)
	var itemDeltas []domain.Item
	for _, item := range members {
		res, err := e.classifier.ClassifyCase(ctx, sessionID, tax, branch, node.ID, item)
		if err != nil {
			return nil, nil, fmt.Errorf("re-vote item %s: %w", item.ID, err)
		}
		itemDeltas = append(itemDeltas, res.Delta)
	}

	// The re-vote outcome becomes the children's membership immediately;
	// the next selection pass must see the split nodes populated.
	for i := range children {
		for _, item := range itemDeltas {
			for _, c := range item.ClassifiedAs {
				if c.NodeID == children[i].ID {
					children[i].Members = append(children[i].Members, domain.Member{
						ItemID:     item.ID,
						Confidence: c.Confidence,
					})
				}
			}
		}
	}
	return children, itemDeltas, nil
}

func averageConfidence(members []domain.Member) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, m := range members {
		sum += m.Confidence
	}
	return sum / float64(len(members))
}

func (e *Examiner) emit(ctx context.Context, sessionID, msg string) {
	if e.sink == nil {
		return
	}
	events.Emit(ctx, e.sink, events.New(events.TypeStatus, "examine", sessionID,
		events.Status{Message: msg}))
}

// childProposal is the model's wire form for one proposed child.
type childProposal struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

type proposalSchema struct {
	Rationale string          `json:"rationale"`
	Children  []childProposal `json:"children"`
}

func (s *proposalSchema) Validate() error {
	if len(s.Children) == 0 {
		return fmt.Errorf("proposal must contain at least one child")
	}
	for i, c := range s.Children {
		if c.Label == "" {
			return fmt.Errorf("child at index %d is missing a label", i)
		}
	}
	return nil
}

const proposalSchemaHint = `{
  "rationale": "think about what distinct themes the items cover",
  "children": [
    {"label": "string", "description": "string"}
  ]
}`

const examineSystemTemplate = `You are a classification agent refining a taxonomy. One of its nodes has accumulated many items with low classification confidence, which suggests the node is too broad. Propose child nodes that split it into more precise categories.

This taxonomy is created for the following aspect:
%s

Here is the node to split:
Label: %s
Description: %s`

const examineUserTemplate = `Here are items currently classified into this node:
%s

Propose child nodes that capture the distinct themes among these items. Each child should be meaningfully narrower than the parent.`

func (e *Examiner) proposeChildren(
	ctx context.Context,
	tax domain.Taxonomy,
	node domain.Node,
	members []domain.Item,
) ([]childProposal, error) {
	if len(members) > e.cfg.MaxSampleItems {
		members = members[:e.cfg.MaxSampleItems]
	}
	lines := make([]string, 0, len(members))
	for _, item := range members {
		lines = append(lines, fmt.Sprintf("<Item>%s</Item>", item.Content))
	}

	res, err := llm.InvokeJSON[proposalSchema](ctx, e.invoker, llm.Request{
		Model:      e.cfg.Model,
		Fallbacks:  e.cfg.Fallbacks,
		MaxRetries: e.cfg.MaxRetries,
		SchemaHint: proposalSchemaHint,
		Messages: []transport.Message{
			{
				Role:    transport.RoleSystem,
				Content: fmt.Sprintf(examineSystemTemplate, tax.Aspect, node.Label, node.Description),
			},
			{
				Role:    transport.RoleUser,
				Content: fmt.Sprintf(examineUserTemplate, strings.Join(lines, "\n")),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("propose children: %w", err)
	}
	if res.Degraded {
		return nil, fmt.Errorf("propose children: model %s returned unusable output", res.Model)
	}
	return res.Parsed.Children, nil
}

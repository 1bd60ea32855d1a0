// Package classify drives the classification of one item against one parent
// branch: it fans an ensemble of model calls out over the branch's children,
// repairs and tallies the judgments, and expands matched nodes that have
// children into pending further-classification cases.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/ensemble"
	"github.com/ahrav/go-taxa/internal/llm"
	"github.com/ahrav/go-taxa/pkg/events"
)

// ErrNoChildren indicates a case was dispatched for a leaf parent; the
// branch expansion controller never emits those, so this is a caller bug.
var ErrNoChildren = errors.New("parent node has no children to classify into")

// ExampleSource resolves the content of member items flagged as few-shot
// examples. Usually backed by the ItemStore.
type ExampleSource interface {
	ListByIDs(ctx context.Context, ids []string) ([]domain.Item, error)
}

// Config holds the ensemble parameters for a classification run.
type Config struct {
	// Models is the ordered pool votes are distributed across.
	Models []string
	// Fallbacks are tried in order when a model fails.
	Fallbacks []string
	// TotalInvocations is the ensemble size per (item, branch) pair.
	TotalInvocations int
	// MajorityThreshold is the minimum vote share, beyond the forced top
	// node, required for inclusion.
	MajorityThreshold float64
	// Temperature for ensemble calls; non-zero keeps voters independent.
	Temperature float32
	// MaxRetries bounds schema repair per invocation.
	MaxRetries int
	// Timeout bounds one invocation.
	Timeout time.Duration
	// NumExamples and MaxExampleLength shape few-shot rendering.
	NumExamples      int
	MaxExampleLength int
}

// DefaultConfig mirrors the engine defaults: eight votes at a 0.5 majority.
func DefaultConfig() Config {
	return Config{
		TotalInvocations:  8,
		MajorityThreshold: 0.5,
		Temperature:       0.7,
		MaxRetries:        3,
		NumExamples:       4,
		MaxExampleLength:  1000,
	}
}

// Validate rejects configurations that would divide by zero or spin.
func (c Config) Validate() error {
	if len(c.Models) == 0 {
		return ensemble.ErrNoModels
	}
	if c.TotalInvocations <= 0 {
		return fmt.Errorf("%w, got %d", ensemble.ErrNoInvocations, c.TotalInvocations)
	}
	return nil
}

// CaseResult is the outcome of classifying one item against one branch.
type CaseResult struct {
	// Delta carries only the item's new classifications; the merge step
	// reconciles it into the working set.
	Delta domain.Item
	// Pending holds the further-classification cases for matched nodes
	// that have children.
	Pending []domain.PendingCase
	// Selected is the raw vote outcome.
	Selected []domain.Classification
}

// Classifier runs ensemble classification cases.
type Classifier struct {
	invoker  *llm.Invoker
	cfg      Config
	examples ExampleSource
	sink     events.Sink
	logger   *slog.Logger
}

// New creates a classifier. examples and sink may be nil.
func New(invoker *llm.Invoker, cfg Config, examples ExampleSource, sink events.Sink) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		invoker:  invoker,
		cfg:      cfg,
		examples: examples,
		sink:     sink,
		logger:   slog.Default().With("component", "classifier"),
	}, nil
}

// finalJudgeSchema is the structured output of one ensemble call.
type finalJudgeSchema struct {
	Rationale  string   `json:"rationale"`
	NodeLabels []string `json:"node_labels"`
	NodeIDs    []string `json:"node_ids"`
}

// Validate implements llm.Validator; a length mismatch between ids and
// labels is a schema violation the repair loop should correct.
func (s *finalJudgeSchema) Validate() error {
	if len(s.NodeIDs) != len(s.NodeLabels) {
		return fmt.Errorf("node_ids (%d) and node_labels (%d) must have equal length",
			len(s.NodeIDs), len(s.NodeLabels))
	}
	return nil
}

const finalJudgeSchemaHint = `{
  "rationale": "string — careful holistic reasoning over the child nodes",
  "node_labels": ["labels of matched child nodes, [] if none"],
  "node_ids": ["ids of matched child nodes, [] if none; same order as node_labels"]
}`

// ClassifyCase classifies item against the children of parentID. nodes is
// the full immutable node collection; the sibling set is derived from it.
// Every ensemble call runs concurrently; the function returns only after
// the whole fan-out group has joined, and any fatal model error fails the
// case as a unit.
func (c *Classifier) ClassifyCase(
	ctx context.Context,
	sessionID string,
	tax domain.Taxonomy,
	nodes []domain.Node,
	parentID string,
	item domain.Item,
) (*CaseResult, error) {
	assignments, err := ensemble.Distribute(c.cfg.Models, c.cfg.TotalInvocations)
	if err != nil {
		return nil, err
	}

	abbreviated, idMap, err := ensemble.AbbreviateNodes(nodes)
	if err != nil {
		return nil, err
	}
	shortParent, ok := idMap.Short(parentID)
	if !ok {
		return nil, fmt.Errorf("parent node %s not found in node collection", parentID)
	}
	siblings := domain.ChildrenOf(abbreviated, shortParent)
	if len(siblings) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoChildren, parentID)
	}

	messages, err := buildBranchPrompt(ctx, c.examples, c.cfg, tax, abbreviated, shortParent, item)
	if err != nil {
		return nil, err
	}

	judgments := make([]domain.FinalJudgment, c.cfg.TotalInvocations)
	g, gctx := errgroup.WithContext(ctx)

	slot := 0
	for _, a := range assignments {
		for i := 0; i < a.Count; i++ {
			model, idx := a.Model, slot
			slot++
			g.Go(func() error {
				res, err := llm.InvokeJSON[finalJudgeSchema](gctx, c.invoker, llm.Request{
					Model:       model,
					Fallbacks:   c.cfg.Fallbacks,
					Messages:    messages,
					Temperature: c.cfg.Temperature,
					MaxRetries:  c.cfg.MaxRetries,
					SchemaHint:  finalJudgeSchemaHint,
					Timeout:     c.cfg.Timeout,
				})
				if err != nil {
					return err
				}
				if res.Degraded {
					// Counted as an abstention; flagged for data quality.
					c.logger.Warn("degraded ensemble response treated as empty vote",
						"model", model,
						"item_id", item.ID)
					return nil
				}

				repaired, dropped := ensemble.Repair(domain.FinalJudgment{
					Rationale:  res.Parsed.Rationale,
					NodeIDs:    res.Parsed.NodeIDs,
					NodeLabels: res.Parsed.NodeLabels,
				}, siblings)
				for _, pair := range dropped {
					c.logger.Warn("dropped unresolvable id/label pair",
						"pair", pair,
						"model", model,
						"item_id", item.ID)
				}

				longIDs, unknown := idMap.RestoreIDs(repaired.NodeIDs)
				if len(unknown) > 0 {
					// Repair guarantees sibling ids; unknowns here mean the
					// sibling set itself was inconsistent.
					return fmt.Errorf("repaired judgment contains unknown short ids: %v", unknown)
				}
				repaired.NodeIDs = longIDs
				judgments[idx] = repaired
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	selected, err := ensemble.Vote(judgments, c.cfg.TotalInvocations, c.cfg.MajorityThreshold)
	if err != nil {
		return nil, err
	}

	result := &CaseResult{
		Delta: domain.Item{
			ID:           item.ID,
			Content:      item.Content,
			ClassifiedAs: selected,
		},
		Selected: selected,
	}

	var newParentIDs []string
	for _, s := range selected {
		if domain.HasChildren(nodes, s.NodeID) {
			newParentIDs = append(newParentIDs, s.NodeID)
			result.Pending = append(result.Pending, domain.PendingCase{
				ParentNodeID: s.NodeID,
				Item:         item,
			})
		}
	}

	c.emitProgress(ctx, sessionID, item.ID, selected, newParentIDs)
	return result, nil
}

func (c *Classifier) emitProgress(
	ctx context.Context,
	sessionID, itemID string,
	selected []domain.Classification,
	newParentIDs []string,
) {
	if c.sink == nil {
		return
	}
	classified := make([]events.NodeConfidence, 0, len(selected))
	for _, s := range selected {
		classified = append(classified, events.NodeConfidence{
			NodeID:     s.NodeID,
			Confidence: s.Confidence,
		})
	}
	events.Emit(ctx, c.sink, events.New(events.TypeItemClassified, "classifier", sessionID,
		events.ItemClassified{ItemID: itemID, ClassifiedAs: classified}))
	if len(newParentIDs) > 0 {
		events.Emit(ctx, c.sink, events.New(events.TypeBranchExpanded, "classifier", sessionID,
			events.BranchExpanded{ItemID: itemID, NewParentIDs: newParentIDs}))
	}
}

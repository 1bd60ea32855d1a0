// Package orchestrator drives batch classification sessions: it fans each
// batch item out through the classifier starting at the root branch,
// merges results at join barriers, recurses into pending cases until the
// frontier drains, and suspends durably between batches.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-taxa/internal/checkpoint"
	"github.com/ahrav/go-taxa/internal/classify"
	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/reduce"
	"github.com/ahrav/go-taxa/internal/store"
	"github.com/ahrav/go-taxa/pkg/events"
)

var (
	// ErrSessionNotFound indicates no suspended session exists to resume.
	ErrSessionNotFound = errors.New("session not found")
	// ErrWrongPhase indicates a resume that does not match what the
	// session is waiting for.
	ErrWrongPhase = errors.New("session is not awaiting a batch")
	// ErrEmptyTaxonomy indicates classification was started before the
	// taxonomy has any branches under the root.
	ErrEmptyTaxonomy = errors.New("taxonomy has no nodes under the root")
)

// Classifier runs one (item, branch) ensemble case.
type Classifier interface {
	ClassifyCase(
		ctx context.Context,
		sessionID string,
		tax domain.Taxonomy,
		nodes []domain.Node,
		parentID string,
		item domain.Item,
	) (*classify.CaseResult, error)
}

// Config holds orchestration parameters.
type Config struct {
	// MaxConcurrentCases bounds the classification fan-out per round.
	// Zero means unbounded.
	MaxConcurrentCases int
	// SingleBatch, when set, finishes the session after one batch
	// instead of suspending for the next.
	SingleBatch bool
}

// BatchResult is the outcome of running one batch to quiescence.
type BatchResult struct {
	SessionID string
	// Items is the batch's items with their accumulated classifications.
	Items []domain.Item
	// Rounds is the number of recursion levels the batch descended.
	Rounds int
	// Interrupt is non-nil when the session suspended instead of
	// finishing; the caller resolves it via Resume.
	Interrupt *domain.Interrupt
}

// Engine owns session state. All mutation of the working item and node
// collections happens through the reducers, strictly after each round's
// join barrier.
type Engine struct {
	taxonomies  store.TaxonomyStore
	nodes       store.NodeStore
	items       store.ItemStore
	checkpoints *checkpoint.Store
	classifier  Classifier
	sink        events.Sink
	cfg         Config
	logger      *slog.Logger
}

// New creates an engine. sink may be nil.
func New(
	taxonomies store.TaxonomyStore,
	nodes store.NodeStore,
	items store.ItemStore,
	checkpoints *checkpoint.Store,
	classifier Classifier,
	sink events.Sink,
	cfg Config,
) *Engine {
	return &Engine{
		taxonomies:  taxonomies,
		nodes:       nodes,
		items:       items,
		checkpoints: checkpoints,
		classifier:  classifier,
		sink:        sink,
		cfg:         cfg,
		logger:      slog.Default().With("component", "orchestrator"),
	}
}

// ClassifyBatch starts or restarts a session and runs one batch of items
// to quiescence. The batch replaces the session's working item set; prior
// batches have already been committed to the stores. On a multi-batch
// session the returned result carries an AwaitNextBatch interrupt and the
// session state is durably checkpointed.
func (e *Engine) ClassifyBatch(
	ctx context.Context,
	sessionID, taxonomyID string,
	batch []domain.Item,
) (*BatchResult, error) {
	cp, err := e.loadOrInit(ctx, sessionID, taxonomyID)
	if err != nil {
		return nil, err
	}
	return e.runBatch(ctx, cp, batch)
}

// Resume resolves a suspended session's AwaitNextBatch interrupt with the
// next batch of items.
func (e *Engine) Resume(ctx context.Context, sessionID string, batch []domain.Item) (*BatchResult, error) {
	cp, err := e.checkpoints.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, err
	}
	if cp.Phase != domain.PhaseAwaitingBatch {
		return nil, fmt.Errorf("%w: session %s is in phase %s", ErrWrongPhase, sessionID, cp.Phase)
	}
	return e.runBatch(ctx, cp, batch)
}

func (e *Engine) loadOrInit(ctx context.Context, sessionID, taxonomyID string) (*domain.Checkpoint, error) {
	cp, err := e.checkpoints.Load(ctx, sessionID)
	if err == nil {
		if cp.Phase != domain.PhaseAwaitingBatch {
			return nil, fmt.Errorf("%w: session %s is in phase %s", ErrWrongPhase, sessionID, cp.Phase)
		}
		return cp, nil
	}
	if !errors.Is(err, checkpoint.ErrNotFound) {
		return nil, err
	}

	if _, err := e.taxonomies.Get(ctx, taxonomyID); err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}
	nodes, err := e.nodes.ListAll(ctx, taxonomyID)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	nodes = reduce.Nodes(nodes, nil)
	if !domain.HasChildren(nodes, domain.RootNodeID) {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTaxonomy, taxonomyID)
	}

	return &domain.Checkpoint{
		SessionID:  sessionID,
		TaxonomyID: taxonomyID,
		Phase:      domain.PhaseInit,
		Nodes:      nodes,
	}, nil
}

func (e *Engine) runBatch(ctx context.Context, cp *domain.Checkpoint, batch []domain.Item) (*BatchResult, error) {
	tax, err := e.taxonomies.Get(ctx, cp.TaxonomyID)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	// A fresh batch swaps the working item set wholesale; prior batches
	// are already committed to the stores.
	delta := append([]domain.Item{{ID: domain.SentinelReplaceAll}}, batch...)
	cp.Items = reduce.Items(cp.Items, delta)
	cp.PendingCases = nil

	cases := make([]domain.PendingCase, 0, len(batch))
	for _, item := range batch {
		cases = append(cases, domain.PendingCase{
			ParentNodeID: domain.RootNodeID,
			Item:         item,
		})
	}

	rounds := 0
	for len(cases) > 0 {
		cp.Phase = domain.PhaseClassify
		e.emitStatus(ctx, cp.SessionID, fmt.Sprintf("classifying %d cases at depth %d", len(cases), rounds))

		results, err := e.classifyRound(ctx, cp, *tax, cases)
		if err != nil {
			return nil, err
		}

		cp.Phase = domain.PhaseMerge
		var itemDeltas []domain.Item
		var pendDelta []domain.PendingCase
		for _, r := range results {
			itemDeltas = append(itemDeltas, r.Delta)
			pendDelta = append(pendDelta, r.Pending...)
		}
		cp.Items = reduce.Items(cp.Items, itemDeltas)
		cp.PendingCases = reduce.Pending(cp.PendingCases, pendDelta)

		cp.Phase = domain.PhaseCheckPending
		cases = cp.PendingCases
		cp.PendingCases = reduce.Pending(cp.PendingCases, []domain.PendingCase{{ParentNodeID: domain.SentinelReset}})
		rounds++
	}

	if err := e.commit(ctx, cp); err != nil {
		return nil, err
	}

	result := &BatchResult{
		SessionID: cp.SessionID,
		Items:     cp.Items,
		Rounds:    rounds,
	}

	if e.cfg.SingleBatch {
		cp.Phase = domain.PhaseDone
		if err := e.checkpoints.Delete(ctx, cp.SessionID); err != nil {
			return nil, err
		}
		e.emitStatus(ctx, cp.SessionID, "session finished")
		return result, nil
	}

	cp.Phase = domain.PhaseAwaitingBatch
	if err := e.checkpoints.Save(ctx, *cp); err != nil {
		return nil, err
	}
	result.Interrupt = &domain.Interrupt{
		Awaiting: domain.AwaitNextBatch,
		Prompt:   "Items are all classified. Please provide next batch.",
	}
	e.emitStatus(ctx, cp.SessionID, "suspended awaiting next batch")
	return result, nil
}

// classifyRound runs every case of one recursion level concurrently and
// joins before returning; results merge only after the barrier.
func (e *Engine) classifyRound(
	ctx context.Context,
	cp *domain.Checkpoint,
	tax domain.Taxonomy,
	cases []domain.PendingCase,
) ([]*classify.CaseResult, error) {
	results := make([]*classify.CaseResult, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.MaxConcurrentCases > 0 {
		g.SetLimit(e.cfg.MaxConcurrentCases)
	}
	for i, c := range cases {
		g.Go(func() error {
			r, err := e.classifier.ClassifyCase(gctx, cp.SessionID, tax, cp.Nodes, c.ParentNodeID, c.Item)
			if err != nil {
				return fmt.Errorf("classify item %s under %s: %w", c.Item.ID, c.ParentNodeID, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// commit persists the batch outcome: item classifications and the node
// membership they imply. Store writes happen only here, after the whole
// batch reached quiescence.
func (e *Engine) commit(ctx context.Context, cp *domain.Checkpoint) error {
	if len(cp.Items) == 0 {
		return nil
	}
	if err := e.items.Put(ctx, cp.Items...); err != nil {
		return fmt.Errorf("commit items: %w", err)
	}

	var nodeDeltas []domain.Node
	for _, node := range cp.Nodes {
		updated := node
		changed := false
		for _, item := range cp.Items {
			for _, c := range item.ClassifiedAs {
				if c.NodeID != node.ID {
					continue
				}
				if hasMember(updated.Members, item.ID) {
					continue
				}
				members := make([]domain.Member, len(updated.Members), len(updated.Members)+1)
				copy(members, updated.Members)
				updated.Members = append(members, domain.Member{
					ItemID:     item.ID,
					Confidence: c.Confidence,
				})
				changed = true
			}
		}
		if changed {
			nodeDeltas = append(nodeDeltas, updated)
		}
	}
	if len(nodeDeltas) == 0 {
		return nil
	}

	cp.Nodes = reduce.Nodes(cp.Nodes, nodeDeltas)
	if err := e.nodes.Upsert(ctx, cp.TaxonomyID, nodeDeltas...); err != nil {
		return fmt.Errorf("commit node members: %w", err)
	}
	return nil
}

func hasMember(members []domain.Member, itemID string) bool {
	for _, m := range members {
		if m.ItemID == itemID {
			return true
		}
	}
	return false
}

func (e *Engine) emitStatus(ctx context.Context, sessionID, msg string) {
	if e.sink == nil {
		return
	}
	events.Emit(ctx, e.sink, events.New(events.TypeStatus, "orchestrator", sessionID,
		events.Status{Message: msg}))
}

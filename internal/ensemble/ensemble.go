// Package ensemble implements the majority-vote consensus over parallel
// model judgments: distributing invocations across the model pool, repairing
// inconsistent id/label pairs, and selecting winners by vote frequency.
package ensemble

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ahrav/go-taxa/internal/domain"
)

// Configuration guards. Both are fatal: proceeding would divide by zero or
// loop forever.
var (
	ErrNoModels      = errors.New("model pool is empty")
	ErrNoInvocations = errors.New("total invocations must be greater than zero")
)

// emptyBucket collects votes from calls that returned no node. It competes
// for nothing; it only dilutes confidence denominators.
const emptyBucket = "empty"

// Assignment pairs a model with the number of ensemble calls it owes.
type Assignment struct {
	Model string
	Count int
}

// Distribute splits totalInvocations across the pool as evenly as possible,
// assigning the remainder to the first models in list order.
func Distribute(models []string, totalInvocations int) ([]Assignment, error) {
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	if totalInvocations <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrNoInvocations, totalInvocations)
	}

	per := totalInvocations / len(models)
	remainder := totalInvocations % len(models)

	assignments := make([]Assignment, 0, len(models))
	for i, m := range models {
		count := per
		if i < remainder {
			count++
		}
		assignments = append(assignments, Assignment{Model: m, Count: count})
	}
	return assignments, nil
}

// Vote aggregates ensemble judgments into the selected classifications.
//
// Every judgment's node ids increment their frequency buckets; a judgment
// with no ids increments the separate empty bucket instead. Ids are ranked
// by descending frequency (ties broken by first appearance across the
// judgments, which keeps the result deterministic). The top-ranked non-empty
// id is always included regardless of its share, guaranteeing at least one
// assignment whenever any call produced a result. Subsequent ids are
// included while count >= round(totalInvocations * majorityThreshold);
// frequencies are non-increasing, so selection stops at the first failure.
// Confidence of each included id is count / totalInvocations.
func Vote(judgments []domain.FinalJudgment, totalInvocations int, majorityThreshold float64) ([]domain.Classification, error) {
	if totalInvocations <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrNoInvocations, totalInvocations)
	}

	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, j := range judgments {
		if j.Empty() {
			counts[emptyBucket]++
			continue
		}
		for _, id := range j.NodeIDs {
			if _, seen := firstSeen[id]; !seen {
				firstSeen[id] = order
				order++
			}
			counts[id]++
		}
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		if id == emptyBucket {
			continue
		}
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(a, b int) bool {
		if counts[ids[a]] != counts[ids[b]] {
			return counts[ids[a]] > counts[ids[b]]
		}
		return firstSeen[ids[a]] < firstSeen[ids[b]]
	})

	minCount := int(float64(totalInvocations)*majorityThreshold + 0.5)

	var selected []domain.Classification
	for i, id := range ids {
		if i > 0 && counts[id] < minCount {
			break
		}
		selected = append(selected, domain.Classification{
			NodeID:     id,
			Confidence: float64(counts[id]) / float64(totalInvocations),
		})
	}
	return selected, nil
}

// Repair reconciles a judgment's id/label pairs against the sibling set.
// Models sometimes return a stale or invented id for a correct label: when
// the id does not name a sibling carrying that label, the sibling owning the
// label is substituted; a pair resolving to neither is dropped. The returned
// judgment keeps the original rationale.
func Repair(j domain.FinalJudgment, siblings []domain.Node) (domain.FinalJudgment, []string) {
	labelByID := make(map[string]string, len(siblings))
	idByLabel := make(map[string]string, len(siblings))
	for _, n := range siblings {
		labelByID[n.ID] = n.Label
		idByLabel[n.Label] = n.ID
	}

	out := domain.FinalJudgment{Rationale: j.Rationale}
	var dropped []string

	for i, id := range j.NodeIDs {
		var label string
		if i < len(j.NodeLabels) {
			label = j.NodeLabels[i]
		}

		if known, ok := labelByID[id]; ok && known == label {
			out.NodeIDs = append(out.NodeIDs, id)
			out.NodeLabels = append(out.NodeLabels, label)
			continue
		}
		if substitute, ok := idByLabel[label]; ok {
			out.NodeIDs = append(out.NodeIDs, substitute)
			out.NodeLabels = append(out.NodeLabels, label)
			continue
		}
		dropped = append(dropped, fmt.Sprintf("%s/%s", id, label))
	}
	return out, dropped
}

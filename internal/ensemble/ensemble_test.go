package ensemble_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-taxa/internal/domain"
	"github.com/ahrav/go-taxa/internal/ensemble"
)

func judgment(ids ...string) domain.FinalJudgment {
	labels := make([]string, len(ids))
	copy(labels, ids)
	return domain.FinalJudgment{NodeIDs: ids, NodeLabels: labels}
}

func TestDistribute(t *testing.T) {
	tests := []struct {
		name   string
		models []string
		total  int
		want   []ensemble.Assignment
	}{
		{
			name:   "even split",
			models: []string{"m1", "m2"},
			total:  8,
			want:   []ensemble.Assignment{{Model: "m1", Count: 4}, {Model: "m2", Count: 4}},
		},
		{
			name:   "remainder to the front",
			models: []string{"m1", "m2", "m3"},
			total:  8,
			want:   []ensemble.Assignment{{Model: "m1", Count: 3}, {Model: "m2", Count: 3}, {Model: "m3", Count: 2}},
		},
		{
			name:   "more models than invocations",
			models: []string{"m1", "m2", "m3"},
			total:  2,
			want:   []ensemble.Assignment{{Model: "m1", Count: 1}, {Model: "m2", Count: 1}, {Model: "m3", Count: 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ensemble.Distribute(tt.models, tt.total)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDistribute_Errors(t *testing.T) {
	_, err := ensemble.Distribute(nil, 8)
	assert.ErrorIs(t, err, ensemble.ErrNoModels)

	_, err = ensemble.Distribute([]string{"m1"}, 0)
	assert.ErrorIs(t, err, ensemble.ErrNoInvocations)
}

func TestVote_TopNodeBelowThresholdStillIncluded(t *testing.T) {
	// A twice, B once, one empty: A is the top non-empty id and is kept
	// even at exactly the threshold; B falls below and is cut.
	judgments := []domain.FinalJudgment{
		judgment("A"),
		judgment("A"),
		judgment("B"),
		{},
	}

	selected, err := ensemble.Vote(judgments, 4, 0.5)
	require.NoError(t, err)

	require.Len(t, selected, 1)
	assert.Equal(t, "A", selected[0].NodeID)
	assert.Equal(t, 0.5, selected[0].Confidence)
}

func TestVote_MostlyEmptyStillSelectsTop(t *testing.T) {
	// Half the calls abstained; the top non-empty id survives with its
	// diluted confidence.
	judgments := []domain.FinalJudgment{
		judgment("A"),
		judgment("B"),
		{},
		{},
	}

	selected, err := ensemble.Vote(judgments, 4, 0.5)
	require.NoError(t, err)

	require.Len(t, selected, 1)
	assert.Equal(t, "A", selected[0].NodeID)
	assert.Equal(t, 0.25, selected[0].Confidence)
}

func TestVote_MultipleWinners(t *testing.T) {
	judgments := []domain.FinalJudgment{
		judgment("A", "B"),
		judgment("A", "B"),
		judgment("A"),
		judgment("B"),
	}

	selected, err := ensemble.Vote(judgments, 4, 0.5)
	require.NoError(t, err)

	require.Len(t, selected, 2)
	assert.Equal(t, "A", selected[0].NodeID)
	assert.Equal(t, 0.75, selected[0].Confidence)
	assert.Equal(t, "B", selected[1].NodeID)
	assert.Equal(t, 0.75, selected[1].Confidence)
}

func TestVote_AllEmptyReturnsNothing(t *testing.T) {
	judgments := []domain.FinalJudgment{{}, {}, {}, {}}

	selected, err := ensemble.Vote(judgments, 4, 0.5)
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestVote_TieBreaksByFirstAppearance(t *testing.T) {
	judgments := []domain.FinalJudgment{
		judgment("B", "A"),
		judgment("A", "B"),
	}

	selected, err := ensemble.Vote(judgments, 2, 0.5)
	require.NoError(t, err)

	require.Len(t, selected, 2)
	assert.Equal(t, "B", selected[0].NodeID, "B appeared first across judgments")
	assert.Equal(t, "A", selected[1].NodeID)
}

func TestVote_InvalidTotal(t *testing.T) {
	_, err := ensemble.Vote(nil, 0, 0.5)
	assert.ErrorIs(t, err, ensemble.ErrNoInvocations)
}

func TestRepair(t *testing.T) {
	siblings := []domain.Node{
		{ID: "n1", Label: "Phones"},
		{ID: "n2", Label: "Laptops"},
	}

	tests := []struct {
		name        string
		in          domain.FinalJudgment
		wantIDs     []string
		wantDropped int
	}{
		{
			name:    "consistent pair kept",
			in:      domain.FinalJudgment{NodeIDs: []string{"n1"}, NodeLabels: []string{"Phones"}},
			wantIDs: []string{"n1"},
		},
		{
			name:    "wrong id fixed by label",
			in:      domain.FinalJudgment{NodeIDs: []string{"bogus"}, NodeLabels: []string{"Laptops"}},
			wantIDs: []string{"n2"},
		},
		{
			name:        "unresolvable pair dropped",
			in:          domain.FinalJudgment{NodeIDs: []string{"bogus"}, NodeLabels: []string{"Tablets"}},
			wantIDs:     nil,
			wantDropped: 1,
		},
		{
			name: "mixed",
			in: domain.FinalJudgment{
				NodeIDs:    []string{"n1", "x", "y"},
				NodeLabels: []string{"Phones", "Laptops", "Cameras"},
			},
			wantIDs:     []string{"n1", "n2"},
			wantDropped: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, dropped := ensemble.Repair(tt.in, siblings)
			assert.Equal(t, tt.wantIDs, out.NodeIDs)
			assert.Len(t, dropped, tt.wantDropped)
			assert.Len(t, out.NodeLabels, len(tt.wantIDs))
		})
	}
}

func TestRepair_KeepsRationale(t *testing.T) {
	out, _ := ensemble.Repair(domain.FinalJudgment{Rationale: "because"}, nil)
	assert.Equal(t, "because", out.Rationale)
}

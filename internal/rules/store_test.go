package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("clause types ordered by order field", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Seed([]ClauseType{
			{ID: "term", DisplayName: "Term", Order: 3},
			{ID: "confidentiality", DisplayName: "Confidentiality", Order: 1},
			{ID: "governing_law", DisplayName: "Governing Law", Order: 2},
		}, nil))

		types, err := store.ListClauseTypes(ctx)
		require.NoError(t, err)
		got := make([]string, 0, len(types))
		for _, ct := range types {
			got = append(got, ct.ID)
		}
		assert.Equal(t, []string{"confidentiality", "governing_law", "term"}, got)
	})

	t.Run("rules filtered by type and perspective", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Seed(nil, []Rule{
			{ID: "b", ClauseType: "confidentiality", Perspective: PerspectiveReceiving, Tier: TierPreferred, Keywords: []string{"k"}, BaseConfidence: 0.5},
			{ID: "a", ClauseType: "confidentiality", Perspective: PerspectiveReceiving, Tier: TierFallback, Keywords: []string{"k"}, BaseConfidence: 0.5},
			{ID: "c", ClauseType: "confidentiality", Perspective: PerspectiveDisclosing, Tier: TierPreferred, Keywords: []string{"k"}, BaseConfidence: 0.5},
			{ID: "d", ClauseType: "term", Perspective: PerspectiveReceiving, Tier: TierPreferred, Keywords: []string{"k"}, BaseConfidence: 0.5},
		}))

		got, err := store.ListRules(ctx, "confidentiality", PerspectiveReceiving)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "a", got[0].ID, "rules come back ordered by ID")
		assert.Equal(t, "b", got[1].ID)
	})

	t.Run("performance round trip", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Seed(nil, []Rule{
			{ID: "r1", ClauseType: "term", Perspective: PerspectiveMutual, Tier: TierPreferred, Keywords: []string{"k"}, BaseConfidence: 0.5},
		}))

		got, err := store.GetPerformance(ctx, "r1")
		require.NoError(t, err)
		assert.Nil(t, got, "absent performance is nil, not an error")

		perf := &Performance{RuleID: "r1", TruePositives: 8, FalsePositives: 2, SampleSize: 10}
		perf.Recalculate()
		require.NoError(t, store.SavePerformance(ctx, perf))

		got, err = store.GetPerformance(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.InDelta(t, 0.8, got.Precision, 1e-9)
	})

	t.Run("save confidence updates the rule", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Seed(nil, []Rule{
			{ID: "r1", ClauseType: "term", Perspective: PerspectiveMutual, Tier: TierPreferred, Keywords: []string{"k"}, BaseConfidence: 0.5},
		}))

		require.NoError(t, store.SaveConfidence(ctx, "r1", 0.65))
		got, err := store.ListRules(ctx, "term", PerspectiveMutual)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.InDelta(t, 0.65, got[0].BaseConfidence, 1e-9)

		assert.ErrorIs(t, store.SaveConfidence(ctx, "missing", 0.5), ErrRuleNotFound)
	})
}

func TestPerformanceRecalculate(t *testing.T) {
	tests := []struct {
		name                   string
		tp, fp, fn             float64
		precision, recall, f1  float64
	}{
		{"balanced", 8, 2, 2, 0.8, 0.8, 0.8},
		{"no observations", 0, 0, 0, 0, 0, 0},
		{"all false positives", 0, 5, 0, 0, 0, 0},
		{"perfect", 10, 0, 0, 1, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Performance{TruePositives: tt.tp, FalsePositives: tt.fp, FalseNegatives: tt.fn}
			p.Recalculate()
			assert.InDelta(t, tt.precision, p.Precision, 1e-9)
			assert.InDelta(t, tt.recall, p.Recall, 1e-9)
			assert.InDelta(t, tt.f1, p.F1, 1e-9)
		})
	}
}

func TestPerformanceOverrideRate(t *testing.T) {
	p := &Performance{TruePositives: 3, FalsePositives: 7}
	assert.InDelta(t, 0.7, p.OverrideRate(), 1e-9)

	empty := &Performance{}
	assert.Zero(t, empty.OverrideRate())
}

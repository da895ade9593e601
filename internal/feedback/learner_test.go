package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redlinelabs/clauselens/internal/features"
	"github.com/redlinelabs/clauselens/internal/rules"
)

func seedRuleStore(t *testing.T) *rules.MemoryStore {
	t.Helper()
	store := rules.NewMemoryStore()
	require.NoError(t, store.Seed(nil, []rules.Rule{
		{
			ID:             "conf-std",
			ClauseType:     "confidentiality",
			Perspective:    rules.PerspectiveReceiving,
			Tier:           rules.TierPreferred,
			Keywords:       []string{"confidential information"},
			SentimentTerms: []string{"shall not disclose"},
			BaseConfidence: 0.7,
		},
	}))
	return store
}

func record(action Action, confidence float64) Record {
	return Record{
		RuleID:      "conf-std",
		ClauseType:  "confidentiality",
		Perspective: string(rules.PerspectiveReceiving),
		Action:      action,
		Confidence:  confidence,
		Text:        "The Receiving Party shall not disclose Confidential Information.",
	}
}

func newLearner(t *testing.T, fs Store, rs rules.Store, h *features.Handle, invalidate func()) *Learner {
	t.Helper()
	l, err := NewLearner(fs, rs, h, nil, invalidate, LearnerConfig{}, zap.NewNop())
	require.NoError(t, err)
	return l
}

func TestRunLearningPass(t *testing.T) {
	ctx := context.Background()

	t.Run("rejections raise false positives and lower F1", func(t *testing.T) {
		fs := NewMemoryStore(50)
		rs := seedRuleStore(t)
		rec := NewRecorder(fs, zap.NewNop())
		for range 3 {
			require.NotEmpty(t, rec.Record(ctx, record(ActionRejected, 0.8)))
		}

		l := newLearner(t, fs, rs, features.NewHandle(nil), nil)
		report, err := l.RunLearningPass(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, report.BatchesProcessed)
		assert.Equal(t, 3, report.RecordsProcessed)

		perf, err := rs.GetPerformance(ctx, "conf-std")
		require.NoError(t, err)
		require.NotNil(t, perf)
		assert.InDelta(t, 3.0, perf.FalsePositives, 1e-9)
		assert.Zero(t, perf.TruePositives)
		assert.Zero(t, perf.F1)
		assert.Equal(t, 3, perf.SampleSize)
	})

	t.Run("rejection lowers base confidence, acceptance of underconfident raises it", func(t *testing.T) {
		fs := NewMemoryStore(50)
		rs := seedRuleStore(t)
		rec := NewRecorder(fs, zap.NewNop())

		rec.Record(ctx, record(ActionRejected, 0.8))
		l := newLearner(t, fs, rs, features.NewHandle(nil), nil)
		_, err := l.RunLearningPass(ctx)
		require.NoError(t, err)

		list, err := rs.ListRules(ctx, "confidentiality", rules.PerspectiveReceiving)
		require.NoError(t, err)
		lowered := list[0].BaseConfidence
		assert.Less(t, lowered, 0.7)

		rec.Record(ctx, record(ActionAccepted, 0.3))
		_, err = l.RunLearningPass(ctx)
		require.NoError(t, err)

		list, err = rs.ListRules(ctx, "confidentiality", rules.PerspectiveReceiving)
		require.NoError(t, err)
		assert.Greater(t, list[0].BaseConfidence, lowered)
	})

	t.Run("modified counts half", func(t *testing.T) {
		fs := NewMemoryStore(50)
		rs := seedRuleStore(t)
		NewRecorder(fs, zap.NewNop()).Record(ctx, record(ActionModified, 0.5))

		l := newLearner(t, fs, rs, features.NewHandle(nil), nil)
		_, err := l.RunLearningPass(ctx)
		require.NoError(t, err)

		perf, err := rs.GetPerformance(ctx, "conf-std")
		require.NoError(t, err)
		require.NotNil(t, perf)
		assert.InDelta(t, 0.5, perf.TruePositives, 1e-9)
		assert.InDelta(t, 0.5, perf.FalsePositives, 1e-9)
	})

	t.Run("second pass is a no-op", func(t *testing.T) {
		fs := NewMemoryStore(50)
		rs := seedRuleStore(t)
		NewRecorder(fs, zap.NewNop()).Record(ctx, record(ActionRejected, 0.8))

		invalidations := 0
		l := newLearner(t, fs, rs, features.NewHandle(nil), func() { invalidations++ })

		first, err := l.RunLearningPass(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, first.BatchesProcessed)
		assert.Equal(t, 1, invalidations)

		perfAfterFirst, err := rs.GetPerformance(ctx, "conf-std")
		require.NoError(t, err)

		second, err := l.RunLearningPass(ctx)
		require.NoError(t, err)
		assert.Zero(t, second.BatchesProcessed)
		assert.Zero(t, second.RecordsProcessed)
		assert.Equal(t, 1, invalidations, "no invalidation without updates")

		perfAfterSecond, err := rs.GetPerformance(ctx, "conf-std")
		require.NoError(t, err)
		assert.Equal(t, perfAfterFirst, perfAfterSecond)
	})

	t.Run("weights swap atomically with new version", func(t *testing.T) {
		fs := NewMemoryStore(50)
		rs := seedRuleStore(t)
		NewRecorder(fs, zap.NewNop()).Record(ctx, record(ActionRejected, 0.9))

		h := features.NewHandle(nil)
		before := h.Load()

		l := newLearner(t, fs, rs, h, nil)
		report, err := l.RunLearningPass(ctx)
		require.NoError(t, err)
		assert.True(t, report.WeightsUpdated)

		after := h.Load()
		assert.NotSame(t, before, after)
		assert.Equal(t, before.Version+1, after.Version)
	})

	t.Run("stored prediction features train the weights directly", func(t *testing.T) {
		fs := NewMemoryStore(50)
		rs := seedRuleStore(t)

		rec := record(ActionRejected, 0.9)
		rec.Features = map[string]float64{features.FeatureDocPosition: 1.0}
		NewRecorder(fs, zap.NewNop()).Record(ctx, rec)

		h := features.NewHandle(nil)
		before := h.Load()

		l := newLearner(t, fs, rs, h, nil)
		_, err := l.RunLearningPass(ctx)
		require.NoError(t, err)

		after := h.Load()
		assert.Less(t, after.Values[features.FeatureDocPosition], before.Values[features.FeatureDocPosition])
		assert.Equal(t, before.Values[features.FeatureSpanLength], after.Values[features.FeatureSpanLength],
			"text is not re-extracted when the record carries its features")
	})

	t.Run("feedback for unknown rule still tracked in performance", func(t *testing.T) {
		fs := NewMemoryStore(50)
		rs := seedRuleStore(t)
		unknown := record(ActionAccepted, 0.6)
		unknown.RuleID = "deleted-rule"
		NewRecorder(fs, zap.NewNop()).Record(ctx, unknown)

		l := newLearner(t, fs, rs, features.NewHandle(nil), nil)
		report, err := l.RunLearningPass(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.BatchesProcessed)
		assert.Zero(t, report.RulesUpdated)

		perf, err := rs.GetPerformance(ctx, "deleted-rule")
		require.NoError(t, err)
		require.NotNil(t, perf)
		assert.InDelta(t, 1.0, perf.TruePositives, 1e-9)
	})

	t.Run("nothing pending", func(t *testing.T) {
		l := newLearner(t, NewMemoryStore(50), seedRuleStore(t), features.NewHandle(nil), nil)
		report, err := l.RunLearningPass(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.BatchesProcessed)
		assert.False(t, report.WeightsUpdated)
	})
}

func TestMemoryStoreBatching(t *testing.T) {
	ctx := context.Background()

	t.Run("seals at batch size", func(t *testing.T) {
		fs := NewMemoryStore(2)
		rec := NewRecorder(fs, zap.NewNop())

		rec.Record(ctx, record(ActionAccepted, 0.8))
		pending, err := fs.ListPending(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending, "open batch is not pending")

		rec.Record(ctx, record(ActionAccepted, 0.8))
		pending, err = fs.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Len(t, pending[0].Records, 2)
	})

	t.Run("stale open batch seals before the next record", func(t *testing.T) {
		fs := NewMemoryStore(100, WithMaxBatchAge(time.Hour))
		rec := NewRecorder(fs, zap.NewNop())

		rec.Record(ctx, record(ActionAccepted, 0.8))
		fs.open.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)

		rec.Record(ctx, record(ActionRejected, 0.8))

		pending, err := fs.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1, "aged batch sealed despite room left")
		assert.Len(t, pending[0].Records, 1)
		require.NotNil(t, fs.open)
		assert.Len(t, fs.open.Records, 1, "new record lands in a fresh batch")
	})

	t.Run("close open batch seals early", func(t *testing.T) {
		fs := NewMemoryStore(100)
		NewRecorder(fs, zap.NewNop()).Record(ctx, record(ActionAccepted, 0.8))

		id, err := fs.CloseOpenBatch(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		pending, err := fs.ListPending(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 1)

		id, err = fs.CloseOpenBatch(ctx)
		require.NoError(t, err)
		assert.Empty(t, id, "nothing open after sealing")
	})

	t.Run("settling is final", func(t *testing.T) {
		fs := NewMemoryStore(1)
		NewRecorder(fs, zap.NewNop()).Record(ctx, record(ActionAccepted, 0.8))

		pending, err := fs.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)

		require.NoError(t, fs.MarkCompleted(ctx, pending[0].ID))
		assert.ErrorIs(t, fs.MarkFailed(ctx, pending[0].ID, "late"), ErrBatchCompleted)
		assert.ErrorIs(t, fs.MarkCompleted(ctx, "nope"), ErrBatchNotFound)
	})

	t.Run("invalid record rejected", func(t *testing.T) {
		fs := NewMemoryStore(10)
		_, err := fs.SaveRecord(ctx, Record{RuleID: "r", Action: "shrugged"})
		assert.ErrorIs(t, err, ErrInvalidAction)
	})
}

func TestRecorderNeverFails(t *testing.T) {
	fs := NewMemoryStore(10)
	rec := NewRecorder(fs, zap.NewNop())

	id := rec.Record(context.Background(), Record{RuleID: "", Action: ActionAccepted})
	assert.Empty(t, id, "invalid record dropped silently")
}

func TestActionQualityLabel(t *testing.T) {
	assert.InDelta(t, 1.0, ActionAccepted.QualityLabel(), 1e-9)
	assert.InDelta(t, 0.0, ActionRejected.QualityLabel(), 1e-9)
	assert.InDelta(t, 0.5, ActionModified.QualityLabel(), 1e-9)
}

package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redlinelabs/clauselens/internal/features"
)

func TestScheduler(t *testing.T) {
	l := newLearner(t, NewMemoryStore(10), seedRuleStore(t), features.NewHandle(nil), nil)

	t.Run("start and stop are idempotent", func(t *testing.T) {
		s, err := NewScheduler(l, "@hourly", zap.NewNop())
		require.NoError(t, err)

		require.NoError(t, s.Start())
		require.NoError(t, s.Start())
		s.Stop()
		s.Stop()
	})

	t.Run("invalid schedule rejected at start", func(t *testing.T) {
		s, err := NewScheduler(l, "not a schedule", zap.NewNop())
		require.NoError(t, err)
		assert.Error(t, s.Start())
	})

	t.Run("learner required", func(t *testing.T) {
		_, err := NewScheduler(nil, "@hourly", zap.NewNop())
		assert.Error(t, err)
	})
}

package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider wraps LocalProvider and records provider invocations.
type countingProvider struct {
	*LocalProvider
	mu      sync.Mutex
	calls   int
	batches [][]string
	fail    bool
}

func newCountingProvider() *countingProvider {
	return &countingProvider{LocalProvider: NewLocalProvider(64)}
}

func (p *countingProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	p.batches = append(p.batches, append([]string(nil), texts...))
	fail := p.fail
	p.mu.Unlock()

	if fail {
		return nil, errors.New("model unavailable")
	}
	return p.LocalProvider.EmbedDocuments(ctx, texts)
}

func (p *countingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestService(t *testing.T, provider Provider, cfg Config) *Service {
	t.Helper()
	svc, err := NewService(provider, nil, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestService_CacheDeterminism(t *testing.T) {
	provider := newCountingProvider()
	svc := newTestService(t, provider, Config{})
	ctx := context.Background()

	first, err := svc.EmbedQuery(ctx, "The Receiving Party shall hold Confidential Information in strict confidence.")
	require.NoError(t, err)
	require.Equal(t, 1, provider.callCount())

	// Same normalized content, different surface form: cache hit, no
	// provider call, bit-identical vector.
	second, err := svc.EmbedQuery(ctx, "the receiving party SHALL hold confidential information, in strict confidence!")
	require.NoError(t, err)
	assert.Equal(t, 1, provider.callCount(), "second call must be served from cache")
	assert.Equal(t, first, second)
}

func TestService_Normalize(t *testing.T) {
	svc := newTestService(t, NewLocalProvider(0), Config{MaxTextLength: 10})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "Governing LAW", want: "governing"},
		{name: "collapses punctuation", in: "a,,b..c", want: "a b c"},
		{name: "trims", in: "  hi  ", want: "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.Normalize(tt.in))
		})
	}
}

func TestCosineSimilarity_Bounds(t *testing.T) {
	provider := NewLocalProvider(128)
	ctx := context.Background()

	texts := []string{
		"governing law of singapore",
		"confidential information definition",
		"term and termination",
		"governing law singapore arbitration",
	}
	vecs, err := provider.EmbedDocuments(ctx, texts)
	require.NoError(t, err)

	for i := range vecs {
		for j := range vecs {
			sim := CosineSimilarity(vecs[i], vecs[j])
			assert.GreaterOrEqual(t, sim, -1.0001)
			assert.LessOrEqual(t, sim, 1.0001)
		}
		assert.InDelta(t, 1.0, CosineSimilarity(vecs[i], vecs[i]), 0.0001)
	}

	// Overlapping vocabulary ranks higher than disjoint vocabulary.
	assert.Greater(t,
		CosineSimilarity(vecs[0], vecs[3]),
		CosineSimilarity(vecs[0], vecs[1]),
	)
}

func TestCosineSimilarity_ZeroMagnitude(t *testing.T) {
	zero := make([]float32, 4)
	unit := []float32{1, 0, 0, 0}

	assert.Equal(t, 0.0, CosineSimilarity(zero, unit))
	assert.Equal(t, 0.0, CosineSimilarity(unit, zero))
	assert.Equal(t, 0.0, CosineSimilarity(unit, []float32{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestService_EmptyInput(t *testing.T) {
	svc := newTestService(t, NewLocalProvider(0), Config{})

	_, err := svc.Embed(context.Background(), nil, PriorityNormal)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_ProviderFailurePropagates(t *testing.T) {
	provider := newCountingProvider()
	provider.fail = true
	svc := newTestService(t, provider, Config{})

	_, err := svc.EmbedQuery(context.Background(), "some clause text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestService_FindMostSimilar(t *testing.T) {
	svc := newTestService(t, NewLocalProvider(256), Config{})
	ctx := context.Background()

	corpus := []string{
		"this agreement shall be governed by the laws of singapore",
		"the receiving party shall not disclose confidential information",
		"either party may terminate this agreement upon thirty days notice",
	}

	matches, err := svc.FindMostSimilar(ctx, "governed by the laws of singapore", corpus, 2, 0.0)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, 0, matches[0].Index)
	assert.LessOrEqual(t, len(matches), 2)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}
}

func TestService_FindMostSimilar_EmptyCorpus(t *testing.T) {
	svc := newTestService(t, NewLocalProvider(0), Config{})

	matches, err := svc.FindMostSimilar(context.Background(), "query", nil, 5, 0.5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestService_PriorityHighBypassesQueue(t *testing.T) {
	provider := newCountingProvider()
	// Long flush interval: a queued request would stall well past the
	// assertion below.
	svc := newTestService(t, provider, Config{BatchSize: 100, FlushInterval: time.Minute})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.Embed(context.Background(), []string{"interactive lookup"}, PriorityHigh)
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("high priority request should not wait for batch flush")
	}
	assert.Equal(t, 1, provider.callCount())
}

package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProvider_Deterministic(t *testing.T) {
	p := NewLocalProvider(0)
	ctx := context.Background()

	a, err := p.EmbedQuery(ctx, "confidential information shall remain confidential")
	require.NoError(t, err)
	b, err := p.EmbedQuery(ctx, "confidential information shall remain confidential")
	require.NoError(t, err)

	assert.Equal(t, a, b, "same text must produce a bit-identical vector")
	assert.Len(t, a, defaultLocalDimension)
}

func TestLocalProvider_UnitMagnitude(t *testing.T) {
	p := NewLocalProvider(128)

	vec, err := p.EmbedQuery(context.Background(), "governing law and jurisdiction")
	require.NoError(t, err)

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(mag), 0.001)
}

func TestLocalProvider_EmptyInput(t *testing.T) {
	p := NewLocalProvider(0)

	_, err := p.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestLocalProvider_SharedVocabularySimilarity(t *testing.T) {
	p := NewLocalProvider(256)
	ctx := context.Background()

	base, err := p.EmbedQuery(ctx, "disputes resolved via singapore arbitration")
	require.NoError(t, err)
	near, err := p.EmbedQuery(ctx, "disputes shall be resolved by arbitration in singapore")
	require.NoError(t, err)
	far, err := p.EmbedQuery(ctx, "payment due within thirty days of invoice")
	require.NoError(t, err)

	assert.Greater(t, CosineSimilarity(base, near), CosineSimilarity(base, far))
}

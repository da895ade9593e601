package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorCodec(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		vec := []float32{0.1, -0.5, 3.14159, 0, 1e-7}
		decoded, err := decodeVector(encodeVector(vec), len(vec))
		require.NoError(t, err)
		assert.Equal(t, vec, decoded)
	})

	t.Run("empty vector", func(t *testing.T) {
		decoded, err := decodeVector(encodeVector(nil), 0)
		require.NoError(t, err)
		assert.Empty(t, decoded)
	})

	t.Run("corrupt length rejected", func(t *testing.T) {
		_, err := decodeVector([]byte{1, 2, 3}, 384)
		assert.Error(t, err)
	})
}

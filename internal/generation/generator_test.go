package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	t.Run("full request", func(t *testing.T) {
		prompt, err := BuildPrompt(Request{
			ClauseType:  "governing_law",
			Perspective: "mutual",
			Tier:        "preferred",
			Template:    "This Agreement shall be governed by the laws of [JURISDICTION].",
			ExampleText: "This Agreement shall be governed by the laws of Singapore.",
			Context:     "WHEREAS the parties wish to collaborate...",
		})
		require.NoError(t, err)
		assert.Contains(t, prompt, "governing_law")
		assert.Contains(t, prompt, "mutual")
		assert.Contains(t, prompt, "[JURISDICTION]")
		assert.Contains(t, prompt, "laws of Singapore")
		assert.Contains(t, prompt, "WHEREAS")
	})

	t.Run("minimal request", func(t *testing.T) {
		prompt, err := BuildPrompt(Request{ClauseType: "confidentiality", Perspective: "receiving"})
		require.NoError(t, err)
		assert.Contains(t, prompt, "confidentiality")
		assert.NotContains(t, prompt, "template")
	})

	t.Run("missing clause type", func(t *testing.T) {
		_, err := BuildPrompt(Request{})
		assert.ErrorIs(t, err, ErrEmptyPrompt)
	})
}

func TestFuncAdapter(t *testing.T) {
	g := Func(func(_ context.Context, req Request) (string, error) {
		return "drafted " + req.ClauseType, nil
	})

	out, err := g.Generate(context.Background(), Request{ClauseType: "term"})
	require.NoError(t, err)
	assert.Equal(t, "drafted term", out)
	assert.NoError(t, g.Close())
}

func TestNewGeminiGeneratorRequiresKey(t *testing.T) {
	_, err := NewGeminiGenerator(context.Background(), GeminiConfig{}, nil)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

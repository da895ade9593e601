package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleClause = `The Receiving Party shall hold all Confidential Information in strict confidence and shall not disclose it to any third party. "Confidential Information" means any information disclosed pursuant to Section 2.1 of this Agreement.`

func TestExtract(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := Extract(ExtractorSpan{Text: sampleClause})
		b := Extract(ExtractorSpan{Text: sampleClause})
		assert.Equal(t, a, b)
	})

	t.Run("values bounded", func(t *testing.T) {
		v := Extract(ExtractorSpan{Text: sampleClause})
		for name, val := range v {
			assert.GreaterOrEqual(t, val, 0.0, name)
			assert.LessOrEqual(t, val, 1.0, name)
		}
	})

	t.Run("legal language scores above plain text", func(t *testing.T) {
		legal := Extract(ExtractorSpan{Text: sampleClause})
		plain := Extract(ExtractorSpan{Text: "We went to the park and had a picnic with friends on Saturday afternoon."})

		assert.Greater(t, legal[FeatureLegalTermDensity], plain[FeatureLegalTermDensity])
		assert.Greater(t, legal[FeatureModalVerbCount], plain[FeatureModalVerbCount])
		assert.Greater(t, legal[FeatureCrossReferences], plain[FeatureCrossReferences])
	})

	t.Run("definition indicators", func(t *testing.T) {
		v := Extract(ExtractorSpan{Text: sampleClause})
		assert.Positive(t, v[FeatureDefinitionIndicators])
	})

	t.Run("doc position", func(t *testing.T) {
		head := Extract(ExtractorSpan{Text: "x", Start: 0, DocLength: 1000})
		tail := Extract(ExtractorSpan{Text: "x", Start: 900, DocLength: 1000})
		unknown := Extract(ExtractorSpan{Text: "x"})

		assert.InDelta(t, 0.0, head[FeatureDocPosition], 1e-9)
		assert.InDelta(t, 0.9, tail[FeatureDocPosition], 1e-9)
		assert.InDelta(t, 0.5, unknown[FeatureDocPosition], 1e-9)
	})

	t.Run("empty text", func(t *testing.T) {
		v := Extract(ExtractorSpan{Text: ""})
		assert.Zero(t, v[FeatureSpanLength])
		assert.Zero(t, v[FeatureLegalTermDensity])
		assert.Zero(t, v[FeatureReadability])
	})

	t.Run("paragraph and sentence counts", func(t *testing.T) {
		text := "First sentence. Second sentence.\n\nSecond paragraph here."
		v := Extract(ExtractorSpan{Text: text})
		assert.Positive(t, v[FeatureSentenceCount])
		assert.Positive(t, v[FeatureParagraphCount])
	})
}

func TestSentiment(t *testing.T) {
	terms := []string{"shall not disclose", "strict confidence"}

	t.Run("obligation language positive", func(t *testing.T) {
		s := Sentiment("The party shall not disclose and keeps strict confidence.", terms)
		assert.Positive(t, s)
	})

	t.Run("hedged language negative", func(t *testing.T) {
		s := Sentiment("The party may use reasonable efforts, subject to exceptions.", terms)
		assert.Negative(t, s)
	})

	t.Run("no signal is zero", func(t *testing.T) {
		assert.Zero(t, Sentiment("Unrelated text entirely.", terms))
	})

	t.Run("bounded", func(t *testing.T) {
		s := Sentiment("shall not disclose strict confidence may may may", terms)
		require.GreaterOrEqual(t, s, -1.0)
		require.LessOrEqual(t, s, 1.0)
	})
}

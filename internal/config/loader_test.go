package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 0.7, cfg.Analysis.ResolveThreshold)
	assert.Equal(t, 0.5, cfg.Analysis.MatchThreshold)
	assert.Equal(t, 16, cfg.Embedding.BatchSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Embedding.FlushInterval.Duration())
	assert.Equal(t, 0.8, cfg.Embedding.CacheRetainFraction)
	assert.Equal(t, 4, cfg.Analysis.Parallelism)
	assert.Equal(t, "none", cfg.Generation.Provider)
	assert.InDelta(t, 1.0, cfg.Scoring.KeywordWeight+cfg.Scoring.AdjustmentWeight+
		cfg.Scoring.PerformanceWeight+cfg.Scoring.BaseWeight, 0.001)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: console
embedding:
  provider: openai
  base_url: http://tei:8080/v1
  batch_size: 32
  flush_interval: 100ms
analysis:
  resolve_threshold: 0.75
  parallelism: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "http://tei:8080/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, 32, cfg.Embedding.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Embedding.FlushInterval.Duration())
	assert.Equal(t, 0.75, cfg.Analysis.ResolveThreshold)
	assert.Equal(t, 2, cfg.Analysis.Parallelism)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CLAUSELENS_EMBEDDING_BATCH_SIZE", "8")
	t.Setenv("CLAUSELENS_ANALYSIS_RESOLVE_THRESHOLD", "0.8")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Embedding.BatchSize)
	assert.Equal(t, 0.8, cfg.Analysis.ResolveThreshold)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		errPart string
	}{
		{
			name:    "bad provider",
			yaml:    "embedding:\n  provider: cuda\n",
			errPart: "unknown provider",
		},
		{
			name:    "thresholds inverted",
			yaml:    "analysis:\n  resolve_threshold: 0.4\n  match_threshold: 0.6\n",
			errPart: "resolve_threshold",
		},
		{
			name:    "weights off balance",
			yaml:    "scoring:\n  keyword_weight: 0.9\n  adjustment_weight: 0.9\n  performance_weight: 0.1\n  base_weight: 0.1\n",
			errPart: "sum to 1",
		},
		{
			name:    "gemini without key",
			yaml:    "generation:\n  provider: gemini\n",
			errPart: "requires api_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("sk-very-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "sk-very-secret", s.Value())

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "very-secret")
}

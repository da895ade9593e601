// Package config provides configuration loading for clauselens.
package config

import (
	"fmt"
	"time"

	"github.com/redlinelabs/clauselens/internal/logging"
)

// Config is the root configuration for clauselens.
type Config struct {
	Logging    logging.Config   `koanf:"logging"`
	Database   DatabaseConfig   `koanf:"database"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Analysis   AnalysisConfig   `koanf:"analysis"`
	Scoring    ScoringConfig    `koanf:"scoring"`
	Learning   LearningConfig   `koanf:"learning"`
	Generation GenerationConfig `koanf:"generation"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	// DSN is the postgres connection string. Empty means in-memory stores.
	DSN Secret `koanf:"dsn"`
}

// EmbeddingConfig configures the embedding service.
type EmbeddingConfig struct {
	// Provider selects the embedding strategy: "local" or "openai".
	Provider string `koanf:"provider"`

	// BaseURL is the OpenAI-compatible API base URL (TEI or OpenAI).
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model identifier.
	Model string `koanf:"model"`

	// APIKey authenticates against the remote provider.
	APIKey Secret `koanf:"api_key"`

	// CacheMaxEntries caps the in-process vector cache.
	CacheMaxEntries int `koanf:"cache_max_entries"`

	// CacheRetainFraction is the fraction of highest-hit entries kept on eviction.
	CacheRetainFraction float64 `koanf:"cache_retain_fraction"`

	// CacheTTL expires persistent cache entries.
	CacheTTL Duration `koanf:"cache_ttl"`

	// BatchSize triggers a queue flush when reached.
	BatchSize int `koanf:"batch_size"`

	// FlushInterval triggers a queue flush when the oldest request ages out.
	FlushInterval Duration `koanf:"flush_interval"`

	// MaxTextLength bounds normalized text before hashing and embedding.
	MaxTextLength int `koanf:"max_text_length"`

	// ExemplarPath is the chromem directory for the exemplar index.
	// Empty keeps the index in memory only.
	ExemplarPath string `koanf:"exemplar_path"`
}

// AnalysisConfig configures the orchestrator.
type AnalysisConfig struct {
	// ResolveThreshold resolves a clause immediately when a stage reaches it.
	ResolveThreshold float64 `koanf:"resolve_threshold"`

	// MatchThreshold is the minimum confidence for a detected (non-missing) clause.
	MatchThreshold float64 `koanf:"match_threshold"`

	// MinDocumentLength is the minimum rune count to attempt detection.
	MinDocumentLength int `koanf:"min_document_length"`

	// Parallelism bounds concurrent clause-type analyses per document.
	Parallelism int `koanf:"parallelism"`

	// MaxResults caps ranked matches returned by traversal.
	MaxResults int `koanf:"max_results"`

	// PreferHigherLevels orders matches by hierarchy depth before confidence.
	PreferHigherLevels bool `koanf:"prefer_higher_levels"`

	// EmbedTimeout bounds each embedding call.
	EmbedTimeout Duration `koanf:"embed_timeout"`

	// GenerateTimeout bounds each text-generation call.
	GenerateTimeout Duration `koanf:"generate_timeout"`
}

// ScoringConfig weights the score components of rule traversal.
// The four weights should sum to 1.
type ScoringConfig struct {
	KeywordWeight     float64 `koanf:"keyword_weight"`
	AdjustmentWeight  float64 `koanf:"adjustment_weight"`
	PerformanceWeight float64 `koanf:"performance_weight"`
	BaseWeight        float64 `koanf:"base_weight"`
}

// LearningConfig configures feedback batching and the learning pass.
type LearningConfig struct {
	// BatchSize closes a feedback batch when reached.
	BatchSize int `koanf:"batch_size"`

	// MaxBatchAge closes a non-empty batch after this age.
	MaxBatchAge Duration `koanf:"max_batch_age"`

	// LearningRate scales per-feature weight updates.
	LearningRate float64 `koanf:"learning_rate"`

	// Schedule is the cron expression for the periodic learning pass.
	Schedule string `koanf:"schedule"`
}

// GenerationConfig configures the replacement-language collaborator.
type GenerationConfig struct {
	// Provider selects the generator: "gemini" or "none".
	Provider string `koanf:"provider"`

	// APIKey authenticates against the Gemini API.
	APIKey Secret `koanf:"api_key"`

	// Model is the generative model identifier.
	Model string `koanf:"model"`

	// Timeout bounds each generation call.
	Timeout Duration `koanf:"timeout"`
}

// ApplyDefaults sets default values for missing configuration fields.
func (c *Config) ApplyDefaults() {
	c.Logging.ApplyDefaults()

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "local"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "http://localhost:8080/v1"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "legal-bert-base-uncased"
	}
	if c.Embedding.CacheMaxEntries == 0 {
		c.Embedding.CacheMaxEntries = 10000
	}
	if c.Embedding.CacheRetainFraction == 0 {
		c.Embedding.CacheRetainFraction = 0.8
	}
	if c.Embedding.CacheTTL == 0 {
		c.Embedding.CacheTTL = Duration(7 * 24 * time.Hour)
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 16
	}
	if c.Embedding.FlushInterval == 0 {
		c.Embedding.FlushInterval = Duration(50 * time.Millisecond)
	}
	if c.Embedding.MaxTextLength == 0 {
		c.Embedding.MaxTextLength = 2000
	}

	if c.Analysis.ResolveThreshold == 0 {
		c.Analysis.ResolveThreshold = 0.7
	}
	if c.Analysis.MatchThreshold == 0 {
		c.Analysis.MatchThreshold = 0.5
	}
	if c.Analysis.MinDocumentLength == 0 {
		c.Analysis.MinDocumentLength = 20
	}
	if c.Analysis.Parallelism == 0 {
		c.Analysis.Parallelism = 4
	}
	if c.Analysis.MaxResults == 0 {
		c.Analysis.MaxResults = 5
	}
	if c.Analysis.EmbedTimeout == 0 {
		c.Analysis.EmbedTimeout = Duration(10 * time.Second)
	}
	if c.Analysis.GenerateTimeout == 0 {
		c.Analysis.GenerateTimeout = Duration(15 * time.Second)
	}

	if c.Scoring.KeywordWeight == 0 && c.Scoring.AdjustmentWeight == 0 &&
		c.Scoring.PerformanceWeight == 0 && c.Scoring.BaseWeight == 0 {
		c.Scoring.KeywordWeight = 0.45
		c.Scoring.AdjustmentWeight = 0.25
		c.Scoring.PerformanceWeight = 0.18
		c.Scoring.BaseWeight = 0.12
	}

	if c.Learning.BatchSize == 0 {
		c.Learning.BatchSize = 50
	}
	if c.Learning.MaxBatchAge == 0 {
		c.Learning.MaxBatchAge = Duration(24 * time.Hour)
	}
	if c.Learning.LearningRate == 0 {
		c.Learning.LearningRate = 0.05
	}
	if c.Learning.Schedule == "" {
		c.Learning.Schedule = "0 3 * * *"
	}

	if c.Generation.Provider == "" {
		c.Generation.Provider = "none"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gemini-1.5-flash"
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = Duration(15 * time.Second)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	switch c.Embedding.Provider {
	case "local", "openai":
	default:
		return fmt.Errorf("embedding: unknown provider %q", c.Embedding.Provider)
	}
	if c.Embedding.CacheRetainFraction <= 0 || c.Embedding.CacheRetainFraction > 1 {
		return fmt.Errorf("embedding: cache_retain_fraction must be in (0,1], got %v", c.Embedding.CacheRetainFraction)
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding: batch_size must be positive")
	}

	if c.Analysis.ResolveThreshold < c.Analysis.MatchThreshold {
		return fmt.Errorf("analysis: resolve_threshold %v below match_threshold %v",
			c.Analysis.ResolveThreshold, c.Analysis.MatchThreshold)
	}
	if c.Analysis.Parallelism < 1 {
		return fmt.Errorf("analysis: parallelism must be positive")
	}

	sum := c.Scoring.KeywordWeight + c.Scoring.AdjustmentWeight +
		c.Scoring.PerformanceWeight + c.Scoring.BaseWeight
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("scoring: component weights must sum to 1, got %v", sum)
	}

	switch c.Generation.Provider {
	case "none", "gemini":
	default:
		return fmt.Errorf("generation: unknown provider %q", c.Generation.Provider)
	}
	if c.Generation.Provider == "gemini" && !c.Generation.APIKey.IsSet() {
		return fmt.Errorf("generation: gemini provider requires api_key")
	}

	return nil
}

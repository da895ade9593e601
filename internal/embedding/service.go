package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Priority controls batching behavior for embedding requests.
type Priority int

const (
	// PriorityNormal queues the request for batched computation.
	PriorityNormal Priority = iota

	// PriorityHigh bypasses batching and computes immediately.
	// Used for single interactive lookups.
	PriorityHigh
)

// Config holds service-level configuration. Provider configuration is
// supplied separately through ProviderConfig.
type Config struct {
	// CacheMaxEntries caps the in-process cache tier.
	CacheMaxEntries int

	// CacheRetainFraction is kept on eviction (highest hit counts first).
	CacheRetainFraction float64

	// CacheTTL expires cache entries in both tiers.
	CacheTTL time.Duration

	// BatchSize triggers a flush when the queue reaches it.
	BatchSize int

	// FlushInterval triggers a flush when the oldest queued request ages out.
	FlushInterval time.Duration

	// MaxTextLength bounds normalized text before hashing and embedding.
	MaxTextLength int

	// ProviderTimeout bounds background batch flushes against the provider.
	ProviderTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.CacheMaxEntries == 0 {
		c.CacheMaxEntries = 10000
	}
	if c.CacheRetainFraction == 0 {
		c.CacheRetainFraction = 0.8
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 7 * 24 * time.Hour
	}
	if c.BatchSize == 0 {
		c.BatchSize = 16
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 50 * time.Millisecond
	}
	if c.MaxTextLength == 0 {
		c.MaxTextLength = 2000
	}
	if c.ProviderTimeout == 0 {
		c.ProviderTimeout = 30 * time.Second
	}
}

// Service provides embedding generation with two-tier caching and batched
// provider invocation.
type Service struct {
	provider Provider
	mem      *memoryCache
	kv       KV // may be nil
	queue    *batchQueue
	metrics  *Metrics
	logger   *zap.Logger
	config   Config
}

// NewService creates an embedding service. kv may be nil to run with the
// in-process cache tier only.
func NewService(provider Provider, kv KV, cfg Config, logger *zap.Logger) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	metrics := NewMetrics()
	s := &Service{
		provider: provider,
		mem:      newMemoryCache(cfg.CacheMaxEntries, cfg.CacheRetainFraction, cfg.CacheTTL, metrics),
		kv:       kv,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}
	s.queue = newBatchQueue(cfg.BatchSize, cfg.FlushInterval, s.flushBatch)

	logger.Info("embedding service initialized",
		zap.String("model", provider.Model()),
		zap.Int("dimension", provider.Dimension()),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("flush_interval", cfg.FlushInterval),
	)
	return s, nil
}

// Close stops the batch queue and releases the provider.
func (s *Service) Close() error {
	s.queue.close()
	return s.provider.Close()
}

// Model returns the provider's model identifier.
func (s *Service) Model() string { return s.provider.Model() }

// Dimension returns the provider's embedding dimension.
func (s *Service) Dimension() int { return s.provider.Dimension() }

// Normalize lowercases text, collapses punctuation and whitespace runs to
// single spaces, and truncates to the configured bound. The normalized form
// is what gets hashed for cache lookup, so equivalent texts share an entry.
func (s *Service) Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToLower(text) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}

	normalized := strings.TrimSpace(b.String())
	runes := []rune(normalized)
	if len(runes) > s.config.MaxTextLength {
		normalized = string(runes[:s.config.MaxTextLength])
	}
	return normalized
}

// cacheKey content-addresses a normalized text for the current model.
func (s *Service) cacheKey(normalized string) string {
	h := sha256.New()
	h.Write([]byte(s.provider.Model()))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}

// Embed returns one vector per input text. Cache lookup order is the
// in-process map, then the persistent store; misses are computed by the
// provider (batched unless priority is high) and both tiers are populated.
func (s *Service) Embed(ctx context.Context, texts []string, priority Priority) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missKeys []string
	var missTexts []string

	for i, text := range texts {
		normalized := s.Normalize(text)
		key := s.cacheKey(normalized)

		if vec, ok := s.mem.get(key); ok {
			s.metrics.CacheHitsTotal.WithLabelValues("memory").Inc()
			results[i] = vec
			continue
		}
		if vec, createdAt, ok := s.kvGet(ctx, key); ok {
			s.metrics.CacheHitsTotal.WithLabelValues("persistent").Inc()
			s.mem.put(key, vec, createdAt)
			results[i] = vec
			continue
		}

		s.metrics.CacheMissesTotal.Inc()
		missIdx = append(missIdx, i)
		missKeys = append(missKeys, key)
		missTexts = append(missTexts, normalized)
	}

	if len(missIdx) == 0 {
		return results, nil
	}

	var vectors [][]float32
	var err error
	if priority == PriorityHigh {
		vectors, err = s.computeDirect(ctx, missKeys, missTexts)
	} else {
		vectors, err = s.computeQueued(ctx, missKeys, missTexts)
	}
	if err != nil {
		return nil, err
	}

	for n, i := range missIdx {
		results[i] = vectors[n]
	}
	return results, nil
}

// EmbedQuery embeds a single text at high priority.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{text}, PriorityHigh)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *Service) kvGet(ctx context.Context, key string) ([]float32, time.Time, bool) {
	if s.kv == nil {
		return nil, time.Time{}, false
	}
	vec, createdAt, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn("persistent cache read failed", zap.Error(err))
		return nil, time.Time{}, false
	}
	if !ok {
		return nil, time.Time{}, false
	}
	if s.config.CacheTTL > 0 && time.Since(createdAt) > s.config.CacheTTL {
		return nil, time.Time{}, false
	}
	return vec, createdAt, true
}

func (s *Service) store(ctx context.Context, key string, vec []float32) {
	now := time.Now()
	s.mem.put(key, vec, now)
	if s.kv != nil {
		if err := s.kv.Put(ctx, key, vec, now); err != nil {
			s.logger.Warn("persistent cache write failed", zap.Error(err))
		}
	}
}

// computeDirect bypasses the batch queue for interactive lookups.
func (s *Service) computeDirect(ctx context.Context, keys, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := s.provider.EmbedDocuments(ctx, texts)
	s.metrics.ProviderDuration.WithLabelValues(s.provider.Model()).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ProviderErrors.WithLabelValues(s.provider.Model()).Inc()
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	for i, key := range keys {
		s.store(ctx, key, vectors[i])
	}
	return vectors, nil
}

// computeQueued enqueues each text and waits for the batch flush.
func (s *Service) computeQueued(ctx context.Context, keys, texts []string) ([][]float32, error) {
	reqs := make([]*embedRequest, len(texts))
	for i := range texts {
		reqs[i] = &embedRequest{
			key:  keys[i],
			text: texts[i],
			done: make(chan embedResult, 1),
		}
		s.queue.enqueue(reqs[i])
	}

	vectors := make([][]float32, len(reqs))
	for i, req := range reqs {
		select {
		case res := <-req.done:
			if res.err != nil {
				return nil, res.err
			}
			vectors[i] = res.vec
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return vectors, nil
}

// flushBatch computes one accumulated batch against the provider and fans
// results back out to waiting requests.
func (s *Service) flushBatch(reqs []*embedRequest) {
	s.metrics.BatchSize.Observe(float64(len(reqs)))

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ProviderTimeout)
	defer cancel()

	texts := make([]string, len(reqs))
	for i, req := range reqs {
		texts[i] = req.text
	}

	start := time.Now()
	vectors, err := s.provider.EmbedDocuments(ctx, texts)
	s.metrics.ProviderDuration.WithLabelValues(s.provider.Model()).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ProviderErrors.WithLabelValues(s.provider.Model()).Inc()
		wrapped := fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		for _, req := range reqs {
			req.done <- embedResult{err: wrapped}
		}
		return
	}

	for i, req := range reqs {
		s.store(ctx, req.key, vectors[i])
		req.done <- embedResult{vec: vectors[i]}
	}
}

// CosineSimilarity returns the normalized dot product of two vectors in
// [-1, 1]. Zero-magnitude or mismatched vectors yield 0 rather than an error.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// SimilarityMatch is one ranked entry from FindMostSimilar.
type SimilarityMatch struct {
	Index      int
	Text       string
	Similarity float64
}

// FindMostSimilar embeds the query and corpus and returns corpus entries
// with similarity >= threshold, ranked descending, at most topK.
func (s *Service) FindMostSimilar(ctx context.Context, query string, corpus []string, topK int, threshold float64) ([]SimilarityMatch, error) {
	if len(corpus) == 0 {
		return []SimilarityMatch{}, nil
	}

	queryVec, err := s.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	corpusVecs, err := s.Embed(ctx, corpus, PriorityNormal)
	if err != nil {
		return nil, err
	}

	matches := make([]SimilarityMatch, 0, len(corpus))
	for i, vec := range corpusVecs {
		sim := CosineSimilarity(queryVec, vec)
		if sim >= threshold {
			matches = append(matches, SimilarityMatch{Index: i, Text: corpus[i], Similarity: sim})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

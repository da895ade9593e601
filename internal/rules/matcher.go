package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ScoringConfig weights the components of a rule's match score. The four
// component weights should sum to 1; keyword/pattern overlap carries the
// largest share by default.
type ScoringConfig struct {
	KeywordWeight     float64
	AdjustmentWeight  float64
	PerformanceWeight float64
	BaseWeight        float64

	// MinKeywordWordLen excludes short words from fuzzy partial credit so
	// stopwords cannot earn it.
	MinKeywordWordLen int

	// PatternShare is the share of the overlap component given to regex
	// pattern hits when a rule carries patterns.
	PatternShare float64
}

// ApplyDefaults sets default values for unset fields.
func (c *ScoringConfig) ApplyDefaults() {
	if c.KeywordWeight == 0 && c.AdjustmentWeight == 0 && c.PerformanceWeight == 0 && c.BaseWeight == 0 {
		c.KeywordWeight = 0.45
		c.AdjustmentWeight = 0.25
		c.PerformanceWeight = 0.18
		c.BaseWeight = 0.12
	}
	if c.MinKeywordWordLen == 0 {
		c.MinKeywordWordLen = 3
	}
	if c.PatternShare == 0 {
		c.PatternShare = 0.3
	}
}

// Validate validates the configuration.
func (c *ScoringConfig) Validate() error {
	sum := c.KeywordWeight + c.AdjustmentWeight + c.PerformanceWeight + c.BaseWeight
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("%w: scoring weights must sum to 1, got %v", ErrInvalidRule, sum)
	}
	if c.PatternShare < 0 || c.PatternShare > 1 {
		return fmt.Errorf("%w: pattern share must be in [0,1]", ErrInvalidRule)
	}
	return nil
}

// SearchOptions controls one traversal.
type SearchOptions struct {
	// MaxResults caps the ranked result list. Zero means no cap.
	MaxResults int

	// ConfidenceThreshold is the minimum score for a node to be collected.
	ConfidenceThreshold float64

	// PreferHigherLevels orders primarily by hierarchy depth (shallower
	// first), secondarily by confidence.
	PreferHigherLevels bool
}

// Matcher walks rule hierarchies and scores every node against candidate
// text. Hierarchies are built once per (clause type, perspective) pair and
// cached until Invalidate is called (after a learning pass).
type Matcher struct {
	store    Store
	adjuster ConfidenceAdjuster // may be nil: scores fall back to base
	scoring  ScoringConfig
	logger   *zap.Logger

	mu          sync.RWMutex
	hierarchies map[string]*Hierarchy
}

// NewMatcher creates a matcher over the given store.
func NewMatcher(store Store, adjuster ConfidenceAdjuster, scoring ScoringConfig, logger *zap.Logger) (*Matcher, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidRule)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	scoring.ApplyDefaults()
	if err := scoring.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{
		store:       store,
		adjuster:    adjuster,
		scoring:     scoring,
		logger:      logger,
		hierarchies: make(map[string]*Hierarchy),
	}, nil
}

func hierarchyKey(clauseType string, perspective Perspective) string {
	return clauseType + "|" + string(perspective)
}

// Hierarchy returns the cached tree for a pair, building it on first use.
// The boolean reports whether the tree was served from cache.
func (m *Matcher) Hierarchy(ctx context.Context, clauseType string, perspective Perspective) (*Hierarchy, bool, error) {
	key := hierarchyKey(clauseType, perspective)

	m.mu.RLock()
	h, ok := m.hierarchies[key]
	m.mu.RUnlock()
	if ok {
		return h, true, nil
	}

	flat, err := m.store.ListRules(ctx, clauseType, perspective)
	if err != nil {
		return nil, false, fmt.Errorf("listing rules: %w", err)
	}
	if len(flat) == 0 {
		return nil, false, fmt.Errorf("%w: %s/%s", ErrNoRules, clauseType, perspective)
	}

	h, err = BuildHierarchy(clauseType, perspective, flat, m.logger)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	m.hierarchies[key] = h
	m.mu.Unlock()
	return h, false, nil
}

// Invalidate drops all cached hierarchies, forcing rebuilds that pick up
// learned confidence updates.
func (m *Matcher) Invalidate() {
	m.mu.Lock()
	m.hierarchies = make(map[string]*Hierarchy)
	m.mu.Unlock()
}

// FindBestMatches walks the hierarchy pre-order, scores every node
// independently, and returns ranked matches at or above the threshold.
func (m *Matcher) FindBestMatches(ctx context.Context, text, clauseType string, perspective Perspective, opts SearchOptions) ([]MatchResult, error) {
	h, _, err := m.Hierarchy(ctx, clauseType, perspective)
	if err != nil {
		return nil, err
	}

	textLower := strings.ToLower(text)
	var matches []MatchResult

	h.Walk(func(node *Node) {
		overlap, matched, exact := m.overlapScore(textLower, node)
		if overlap == 0 {
			return
		}

		span := locateSpan(text, textLower, matched)
		base := node.Rule.BaseConfidence

		adjusted := base
		if m.adjuster != nil {
			if v, adjErr := m.adjuster.Adjust(ctx, node.Rule, base, span); adjErr == nil {
				adjusted = v
			}
		}

		perfTerm := 0.5
		if perf, perfErr := m.store.GetPerformance(ctx, node.Rule.ID); perfErr == nil && perf != nil && perf.SampleSize > 0 {
			perfTerm = perf.F1
		}

		score := m.scoring.KeywordWeight*overlap +
			m.scoring.AdjustmentWeight*adjusted +
			m.scoring.PerformanceWeight*perfTerm +
			m.scoring.BaseWeight*base
		score = clamp(score, 0, 1)

		if score < opts.ConfidenceThreshold {
			return
		}

		method := MethodKeyword
		if exact && overlap >= 0.99 {
			method = MethodExact
		}

		matches = append(matches, MatchResult{
			Rule:          node.Rule,
			Confidence:    score,
			Method:        method,
			Reasoning:     matchReasoning(node.Rule, matched, overlap),
			HierarchyPath: h.Path(node),
			MatchedText:   span.Text,
			Span:          span,
			SuggestedText: node.Rule.ExampleText,
			Depth:         node.Depth,
		})
	})

	rankMatches(matches, opts.PreferHigherLevels)
	if opts.MaxResults > 0 && len(matches) > opts.MaxResults {
		matches = matches[:opts.MaxResults]
	}
	return matches, nil
}

// FindKeywordMatches scores rules on keyword overlap and base confidence
// only, with no ML adjustment, no performance lookup and no external calls.
// It is the final fallback stage and never fails: any internal problem
// yields an empty result.
func (m *Matcher) FindKeywordMatches(ctx context.Context, text, clauseType string, perspective Perspective, threshold float64, maxResults int) []MatchResult {
	h, _, err := m.Hierarchy(ctx, clauseType, perspective)
	if err != nil {
		m.logger.Debug("keyword stage has no hierarchy",
			zap.String("clause_type", clauseType),
			zap.String("perspective", string(perspective)),
			zap.Error(err),
		)
		return nil
	}

	textLower := strings.ToLower(text)
	var matches []MatchResult

	h.Walk(func(node *Node) {
		overlap, matched, _ := m.overlapScore(textLower, node)
		if overlap == 0 {
			return
		}

		score := clamp(0.85*overlap+0.15*node.Rule.BaseConfidence, 0, 1)
		if score < threshold {
			return
		}

		span := locateSpan(text, textLower, matched)
		matches = append(matches, MatchResult{
			Rule:          node.Rule,
			Confidence:    score,
			Method:        MethodKeyword,
			Reasoning:     matchReasoning(node.Rule, matched, overlap),
			HierarchyPath: h.Path(node),
			MatchedText:   span.Text,
			Span:          span,
			SuggestedText: node.Rule.ExampleText,
			Depth:         node.Depth,
		})
	})

	rankMatches(matches, false)
	if maxResults > 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

// overlapScore combines keyword credit and regex pattern hits for one node.
// An exact substring match of a keyword earns full credit; a multi-word
// keyword that misses earns partial credit proportional to the fraction of
// its longer constituent words found in the text.
func (m *Matcher) overlapScore(textLower string, node *Node) (score float64, matched []string, exact bool) {
	r := node.Rule
	if len(r.Keywords) == 0 && len(node.patterns) == 0 {
		return 0, nil, false
	}

	var kwScore float64
	if len(r.Keywords) > 0 {
		var total float64
		for _, kw := range r.Keywords {
			kwLower := strings.ToLower(kw)
			if strings.Contains(textLower, kwLower) {
				total++
				matched = append(matched, kw)
				exact = true
				continue
			}

			words := strings.Fields(kwLower)
			if len(words) < 2 {
				continue
			}
			found, eligible := 0, 0
			for _, w := range words {
				if len(w) <= m.scoring.MinKeywordWordLen {
					continue
				}
				eligible++
				if strings.Contains(textLower, w) {
					found++
				}
			}
			if eligible > 0 && found > 0 {
				total += float64(found) / float64(eligible)
				matched = append(matched, kw)
			}
		}
		kwScore = total / float64(len(r.Keywords))
	}

	if len(node.patterns) == 0 {
		return kwScore, matched, exact
	}

	hits := 0
	for _, re := range node.patterns {
		if re.MatchString(textLower) {
			hits++
		}
	}
	patternScore := float64(hits) / float64(len(node.patterns))

	if len(r.Keywords) == 0 {
		return patternScore, matched, false
	}
	return (1-m.scoring.PatternShare)*kwScore + m.scoring.PatternShare*patternScore, matched, exact
}

// rankMatches orders matches primarily by depth (shallower first) when
// preferHigherLevels is set, secondarily by confidence; otherwise purely by
// confidence descending.
func rankMatches(matches []MatchResult, preferHigherLevels bool) {
	sort.SliceStable(matches, func(i, j int) bool {
		if preferHigherLevels && matches[i].Depth != matches[j].Depth {
			return matches[i].Depth < matches[j].Depth
		}
		return matches[i].Confidence > matches[j].Confidence
	})
}

func matchReasoning(r Rule, matched []string, overlap float64) string {
	if len(matched) == 0 {
		return fmt.Sprintf("pattern evidence only (overlap %.2f) for %s rule", overlap, r.Tier)
	}
	return fmt.Sprintf("matched %d/%d keywords (%s) with overlap %.2f for %s rule",
		len(matched), len(r.Keywords), strings.Join(matched, ", "), overlap, r.Tier)
}

// locateSpan extracts the sentence around the first matched keyword, capped
// to a readable length, with its byte offsets in the document. Keyword
// positions come from the lowered text; lowercasing can change byte lengths
// (ToLower is not length-preserving for every rune), so when the views
// diverge the span is cut from the lowered text, whose indexes the
// positions belong to.
func locateSpan(text, textLower string, matched []string) CandidateSpan {
	const maxSnippet = 240

	src := text
	if len(src) != len(textLower) {
		src = textLower
	}

	pos := -1
	for _, kw := range matched {
		kwLower := strings.ToLower(kw)
		if i := strings.Index(textLower, kwLower); i >= 0 {
			pos = i
			break
		}
		// Fuzzy match: locate the first long constituent word instead.
		for _, w := range strings.Fields(kwLower) {
			if len(w) > 3 {
				if i := strings.Index(textLower, w); i >= 0 {
					pos = i
					break
				}
			}
		}
		if pos >= 0 {
			break
		}
	}
	if pos < 0 {
		end := len(src)
		if end > maxSnippet {
			end = maxSnippet
		}
		return CandidateSpan{Text: strings.TrimSpace(src[:end]), DocLength: len(src)}
	}

	start := strings.LastIndex(textLower[:pos], ". ")
	if start < 0 {
		start = 0
	} else {
		start += 2
	}
	end := strings.Index(textLower[pos:], ". ")
	if end < 0 {
		end = len(textLower)
	} else {
		end = pos + end + 1
	}
	if end-start > maxSnippet {
		end = start + maxSnippet
	}

	span := src[start:end]
	start += len(span) - len(strings.TrimLeft(span, " \t\r\n"))
	return CandidateSpan{
		Text:      strings.TrimSpace(span),
		Start:     start,
		DocLength: len(src),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

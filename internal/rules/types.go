// Package rules holds the negotiation-position rule model, the per
// clause-type hierarchy, and the matching traversal that scores candidate
// text against it.
package rules

import (
	"context"
	"errors"
	"time"
)

// Common errors for rule operations.
var (
	ErrCycleDetected   = errors.New("cycle detected in rule hierarchy")
	ErrUnknownClause   = errors.New("unknown clause type")
	ErrInvalidRule     = errors.New("invalid rule")
	ErrNoRules         = errors.New("no rules for clause type and perspective")
	ErrRuleNotFound    = errors.New("rule not found")
	ErrInvalidTier     = errors.New("tier must be preferred, fallback or unacceptable")
	ErrInvalidPosition = errors.New("perspective must be receiving, disclosing or mutual")
)

// Tier is the severity classification of a rule.
type Tier string

const (
	TierPreferred    Tier = "preferred"
	TierFallback     Tier = "fallback"
	TierUnacceptable Tier = "unacceptable"
)

// Valid reports whether the tier is one of the known values.
func (t Tier) Valid() bool {
	switch t {
	case TierPreferred, TierFallback, TierUnacceptable:
		return true
	}
	return false
}

// severity orders tiers from most to least desirable. Children may refine a
// parent's tier to something equally or less desirable, never more.
func (t Tier) severity() int {
	switch t {
	case TierPreferred:
		return 0
	case TierFallback:
		return 1
	case TierUnacceptable:
		return 2
	}
	return 3
}

// Perspective is the negotiating stance the analysis is tuned for.
type Perspective string

const (
	PerspectiveReceiving  Perspective = "receiving"
	PerspectiveDisclosing Perspective = "disclosing"
	PerspectiveMutual     Perspective = "mutual"
)

// Valid reports whether the perspective is one of the known values.
func (p Perspective) Valid() bool {
	switch p {
	case PerspectiveReceiving, PerspectiveDisclosing, PerspectiveMutual:
		return true
	}
	return false
}

// ClauseType is immutable reference data describing one category of legal
// provision being searched for.
type ClauseType struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Order       int    `json:"order" yaml:"order"`
}

// Rule is one negotiation-position rule inside a clause type's hierarchy.
type Rule struct {
	ID          string      `json:"id" yaml:"id"`
	ClauseType  string      `json:"clause_type" yaml:"clause_type"`
	Perspective Perspective `json:"perspective" yaml:"perspective"`
	Tier        Tier        `json:"tier" yaml:"tier"`

	// Keywords drive the primary overlap score.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// ExampleText is reference language; it doubles as the exemplar for
	// semantic matching and as the static fallback suggestion.
	ExampleText string `json:"example_text" yaml:"example_text"`

	// RewriteTemplate instructs the generation collaborator when drafting
	// replacement language.
	RewriteTemplate string `json:"rewrite_template" yaml:"rewrite_template"`

	// BaseConfidence is the rule's static prior, nudged by learning.
	BaseConfidence float64 `json:"base_confidence" yaml:"base_confidence"`

	// ParentID links the rule into the hierarchy; empty means root.
	ParentID string `json:"parent_id" yaml:"parent_id"`

	// Patterns are optional regex hints compiled at hierarchy build.
	Patterns []string `json:"patterns" yaml:"patterns"`

	// SentimentTerms are obligation-language indicators for this rule.
	SentimentTerms []string `json:"sentiment_terms" yaml:"sentiment_terms"`
}

// Validate checks the rule's reference data.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return errors.Join(ErrInvalidRule, errors.New("rule ID cannot be empty"))
	}
	if r.ClauseType == "" {
		return errors.Join(ErrInvalidRule, errors.New("clause type cannot be empty"))
	}
	if !r.Tier.Valid() {
		return ErrInvalidTier
	}
	if !r.Perspective.Valid() {
		return ErrInvalidPosition
	}
	if r.BaseConfidence < 0 || r.BaseConfidence > 1 {
		return errors.Join(ErrInvalidRule, errors.New("base confidence must be in [0,1]"))
	}
	return nil
}

// Performance aggregates reviewer outcomes for one rule. Sample size never
// decreases; counters are only incremented by the learning pass.
type Performance struct {
	RuleID         string    `json:"rule_id"`
	TruePositives  float64   `json:"true_positives"`
	FalsePositives float64   `json:"false_positives"`
	TrueNegatives  float64   `json:"true_negatives"`
	FalseNegatives float64   `json:"false_negatives"`
	Precision      float64   `json:"precision"`
	Recall         float64   `json:"recall"`
	F1             float64   `json:"f1"`
	SampleSize     int       `json:"sample_size"`
	CalculatedAt   time.Time `json:"calculated_at"`
}

// Recalculate derives precision, recall and F1 from the raw counters.
func (p *Performance) Recalculate() {
	p.Precision = 0
	if p.TruePositives+p.FalsePositives > 0 {
		p.Precision = p.TruePositives / (p.TruePositives + p.FalsePositives)
	}
	p.Recall = 0
	if p.TruePositives+p.FalseNegatives > 0 {
		p.Recall = p.TruePositives / (p.TruePositives + p.FalseNegatives)
	}
	p.F1 = 0
	if p.Precision+p.Recall > 0 {
		p.F1 = 2 * p.Precision * p.Recall / (p.Precision + p.Recall)
	}
	p.CalculatedAt = time.Now()
}

// OverrideRate is the fraction of positive predictions reviewers rejected.
func (p *Performance) OverrideRate() float64 {
	total := p.TruePositives + p.FalsePositives
	if total == 0 {
		return 0
	}
	return p.FalsePositives / total
}

// MatchMethod records which detection path produced a match.
type MatchMethod string

const (
	MethodExact    MatchMethod = "exact"
	MethodSemantic MatchMethod = "semantic"
	MethodKeyword  MatchMethod = "keyword"
	MethodFallback MatchMethod = "fallback"
	MethodHybrid   MatchMethod = "hybrid"
)

// MatchResult is one scored rule match from traversal.
type MatchResult struct {
	Rule       Rule        `json:"rule"`
	Confidence float64     `json:"confidence"`
	Method     MatchMethod `json:"method"`
	Reasoning  string      `json:"reasoning"`

	// HierarchyPath is the ordered tier labels from root to the matched node.
	HierarchyPath []string `json:"hierarchy_path"`

	// MatchedText is the strongest matching span of the candidate text.
	MatchedText string `json:"matched_text"`

	// Span locates MatchedText within the source document. Feedback on
	// this match should carry the features derived from it, so learning
	// sees what the prediction saw.
	Span CandidateSpan `json:"span"`

	// SuggestedText is alternative language for the clause.
	SuggestedText string `json:"suggested_text"`

	// Depth is the node depth in the hierarchy (roots are 0).
	Depth int `json:"depth"`
}

// CandidateSpan is the contiguous text region a rule is being scored
// against, located within its source document by byte offsets.
type CandidateSpan struct {
	Text string

	// Start is the span's byte offset in the document; DocLength is the
	// document's byte length. DocLength zero means position is unknown.
	Start     int
	DocLength int
}

// ConfidenceAdjuster applies the learned adjustment layer to a rule's score.
// Implementations must degrade rather than fail: an error return means the
// caller should fall back to the unadjusted base.
type ConfidenceAdjuster interface {
	Adjust(ctx context.Context, rule Rule, base float64, span CandidateSpan) (float64, error)
}

// Store is read/write access to rule reference data and performance rows.
type Store interface {
	// ListClauseTypes returns all clause types ordered by Order.
	ListClauseTypes(ctx context.Context) ([]ClauseType, error)

	// ListRules returns the flat rule list for a clause type and perspective.
	ListRules(ctx context.Context, clauseType string, perspective Perspective) ([]Rule, error)

	// GetPerformance returns a rule's performance row, or nil when absent.
	GetPerformance(ctx context.Context, ruleID string) (*Performance, error)

	// SavePerformance upserts a performance row.
	SavePerformance(ctx context.Context, perf *Performance) error

	// SaveConfidence persists a learned base-confidence update.
	SaveConfidence(ctx context.Context, ruleID string, confidence float64) error
}

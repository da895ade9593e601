package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/redlinelabs/clauselens/internal/embedding"
	"github.com/redlinelabs/clauselens/internal/generation"
	"github.com/redlinelabs/clauselens/internal/rules"
)

var (
	ErrInvalidDocument = errors.New("invalid document")
	ErrNoClauseTypes   = errors.New("no clause types to analyze")
)

// Config controls the orchestrator.
type Config struct {
	// ResolveThreshold ends the fallback chain early when a stage reaches it.
	ResolveThreshold float64

	// MatchThreshold is the minimum confidence for a clause to count as
	// present.
	MatchThreshold float64

	// MinDocumentLength is the minimum rune count to attempt detection.
	MinDocumentLength int

	// Parallelism bounds concurrent clause-type analyses.
	Parallelism int

	// MaxResults caps ranked matches per stage.
	MaxResults int

	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ResolveThreshold == 0 {
		c.ResolveThreshold = 0.7
	}
	if c.MatchThreshold == 0 {
		c.MatchThreshold = 0.5
	}
	if c.MinDocumentLength == 0 {
		c.MinDocumentLength = 20
	}
	if c.Parallelism == 0 {
		c.Parallelism = 4
	}
	if c.MaxResults == 0 {
		c.MaxResults = 5
	}
	if c.EmbedTimeout == 0 {
		c.EmbedTimeout = 10 * time.Second
	}
	if c.GenerateTimeout == 0 {
		c.GenerateTimeout = 15 * time.Second
	}
}

// Document is one analysis input.
type Document struct {
	ID          string
	Text        string
	Perspective rules.Perspective

	// ClauseTypes limits the analysis; empty means every known type.
	ClauseTypes []string
}

// Orchestrator runs the fallback chain per clause type: hierarchical rule
// traversal first, semantic exemplar search when that is inconclusive,
// pure keyword matching as the last resort. Stages degrade, never abort;
// a stage failure is recorded and the chain moves on.
type Orchestrator struct {
	matcher   *rules.Matcher
	store     rules.Store
	exemplars *embedding.ExemplarIndex
	generator generation.Generator
	config    Config
	logger    *zap.Logger
	metrics   *Metrics
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithExemplarIndex enables the semantic fallback stage.
func WithExemplarIndex(idx *embedding.ExemplarIndex) Option {
	return func(o *Orchestrator) { o.exemplars = idx }
}

// WithGenerator enables drafted suggestions for missing clauses.
func WithGenerator(g generation.Generator) Option {
	return func(o *Orchestrator) { o.generator = g }
}

// NewOrchestrator creates an orchestrator. The exemplar index and generator
// are optional; without them the chain skips the semantic stage and falls
// back to rule example text for suggestions.
func NewOrchestrator(matcher *rules.Matcher, store rules.Store, cfg Config, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if matcher == nil {
		return nil, fmt.Errorf("%w: matcher is required", ErrInvalidDocument)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidDocument)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	o := &Orchestrator{
		matcher: matcher,
		store:   store,
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// AnalyzeDocument runs the fallback chain for every requested clause type,
// bounded by the configured parallelism. Individual clause failures never
// fail the document; they surface as missing clauses with recorded stage
// errors.
func (o *Orchestrator) AnalyzeDocument(ctx context.Context, doc Document) (*DocumentAnalysisResult, error) {
	start := time.Now()

	if !doc.Perspective.Valid() {
		return nil, fmt.Errorf("%w: perspective %q", ErrInvalidDocument, doc.Perspective)
	}

	clauseTypes := doc.ClauseTypes
	if len(clauseTypes) == 0 {
		known, err := o.store.ListClauseTypes(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing clause types: %w", err)
		}
		for _, ct := range known {
			clauseTypes = append(clauseTypes, ct.ID)
		}
	}
	if len(clauseTypes) == 0 {
		return nil, ErrNoClauseTypes
	}

	tooShort := utf8.RuneCountInString(strings.TrimSpace(doc.Text)) < o.config.MinDocumentLength

	results := make([]ClauseAnalysisResult, len(clauseTypes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Parallelism)
	for i, ct := range clauseTypes {
		g.Go(func() error {
			if tooShort {
				results[i] = o.shortInputResult(gctx, ct, doc.Perspective)
			} else {
				results[i] = o.analyzeClause(gctx, doc, ct)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	overall := 0
	var confidenceSum float64
	var high, medium, steps []string
	for _, r := range results {
		if r.RiskLevel > overall {
			overall = r.RiskLevel
		}
		if r.Match != nil {
			confidenceSum += r.Match.Confidence
		}
		switch {
		case r.RiskLevel >= RiskMissing:
			high = append(high, concern(r))
		case r.RiskLevel == RiskElevated:
			medium = append(medium, concern(r))
		}
		if step := nextStep(r); step != "" {
			steps = append(steps, step)
		}
		o.metrics.ClausesAnalyzed.WithLabelValues(string(r.Stage)).Inc()
		if !r.Present {
			o.metrics.MissingClauses.Inc()
		}
	}
	o.metrics.DocumentRisk.Observe(float64(overall))

	res := &DocumentAnalysisResult{
		DocumentID:         doc.ID,
		Perspective:        doc.Perspective,
		Clauses:            results,
		OverallRisk:        overall,
		OverallConfidence:  confidenceSum / float64(len(results)),
		HighPriority:       high,
		MediumPriority:     medium,
		SuggestedNextSteps: steps,
		AnalyzedAt:         start.UTC(),
		Duration:           time.Since(start),
	}
	o.logger.Info("document analyzed",
		zap.String("document_id", doc.ID),
		zap.Int("clause_types", len(clauseTypes)),
		zap.Int("overall_risk", overall),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// shortInputResult reports a clause missing without running any stage.
// Inputs below the minimum length carry no usable signal.
func (o *Orchestrator) shortInputResult(ctx context.Context, clauseType string, perspective rules.Perspective) ClauseAnalysisResult {
	res := ClauseAnalysisResult{
		ClauseType:  clauseType,
		Perspective: perspective,
		Present:     false,
		RiskLevel:   RiskMissing,
		Stage:       StageResolved,
	}
	res.Recommendation = o.recommendMissing(ctx, clauseType, perspective)
	return res
}

func (o *Orchestrator) analyzeClause(ctx context.Context, doc Document, clauseType string) ClauseAnalysisResult {
	start := time.Now()
	res := o.classifyClause(ctx, doc, clauseType)
	res.Duration = time.Since(start)
	return res
}

func (o *Orchestrator) classifyClause(ctx context.Context, doc Document, clauseType string) ClauseAnalysisResult {
	res := ClauseAnalysisResult{
		ClauseType:  clauseType,
		Perspective: doc.Perspective,
		Stage:       StageNotStarted,
	}

	_, cached, err := o.matcher.Hierarchy(ctx, clauseType, doc.Perspective)
	res.HierarchyCached = cached
	if err != nil {
		o.logger.Warn("no hierarchy for clause type",
			zap.String("clause_type", clauseType),
			zap.String("perspective", string(doc.Perspective)),
			zap.Error(err),
		)
		res.RiskLevel = RiskMissing
		res.Stage = StageResolved
		return res
	}

	var best *rules.MatchResult

	// Stage 1: hierarchical traversal with ML-adjusted scoring.
	best = o.runStage(&res, StageHierarchical, best, func() ([]rules.MatchResult, error) {
		return o.matcher.FindBestMatches(ctx, doc.Text, clauseType, doc.Perspective, rules.SearchOptions{
			MaxResults:          o.config.MaxResults,
			ConfidenceThreshold: o.config.MatchThreshold,
		})
	})
	if o.resolved(best) {
		return o.finish(ctx, res, best)
	}

	// Stage 2: semantic exemplar search.
	if o.exemplars != nil {
		best = o.runStage(&res, StageSemantic, best, func() ([]rules.MatchResult, error) {
			sctx, cancel := context.WithTimeout(ctx, o.config.EmbedTimeout)
			defer cancel()
			return o.semanticMatches(sctx, doc.Text, clauseType, doc.Perspective)
		})
		if o.resolved(best) {
			return o.finish(ctx, res, best)
		}
	}

	// Stage 3: pure keyword matching. Never fails.
	best = o.runStage(&res, StageKeyword, best, func() ([]rules.MatchResult, error) {
		return o.matcher.FindKeywordMatches(ctx, doc.Text, clauseType, doc.Perspective, o.config.MatchThreshold, o.config.MaxResults), nil
	})

	return o.finish(ctx, res, best)
}

// runStage executes one stage, records the attempt, and merges its best
// match with the running best. A match from a later stage for the same rule
// upgrades the method to hybrid and keeps the higher confidence.
func (o *Orchestrator) runStage(res *ClauseAnalysisResult, stage Stage, best *rules.MatchResult, fn func() ([]rules.MatchResult, error)) *rules.MatchResult {
	start := time.Now()
	matches, err := fn()
	attempt := StageAttempt{Stage: stage, Duration: time.Since(start)}

	if err != nil {
		attempt.Error = err.Error()
		o.logger.Warn("analysis stage failed",
			zap.String("clause_type", res.ClauseType),
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
	} else if len(matches) > 0 {
		attempt.Matches = len(matches)
		attempt.BestConfidence = matches[0].Confidence
		best = mergeBest(best, &matches[0])
	}

	o.metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	res.Attempts = append(res.Attempts, attempt)
	res.Stage = stage
	return best
}

func mergeBest(current, candidate *rules.MatchResult) *rules.MatchResult {
	if current == nil {
		return candidate
	}
	if candidate.Rule.ID == current.Rule.ID {
		merged := *current
		if candidate.Confidence > merged.Confidence {
			merged.Confidence = candidate.Confidence
		}
		merged.Method = rules.MethodHybrid
		merged.Reasoning = merged.Reasoning + "; corroborated: " + candidate.Reasoning
		return &merged
	}
	if candidate.Confidence > current.Confidence {
		return candidate
	}
	return current
}

func (o *Orchestrator) resolved(best *rules.MatchResult) bool {
	return best != nil && best.Confidence >= o.config.ResolveThreshold
}

// semanticMatches queries the exemplar index and maps hits back onto rules.
func (o *Orchestrator) semanticMatches(ctx context.Context, text, clauseType string, perspective rules.Perspective) ([]rules.MatchResult, error) {
	h, _, err := o.matcher.Hierarchy(ctx, clauseType, perspective)
	if err != nil {
		return nil, err
	}

	hits, err := o.exemplars.Query(ctx, clauseType, string(perspective), text, o.config.MaxResults)
	if err != nil {
		return nil, err
	}

	var matches []rules.MatchResult
	for _, hit := range hits {
		node := h.Node(hit.RuleID)
		if node == nil {
			continue
		}
		if hit.Similarity < o.config.MatchThreshold {
			continue
		}
		matches = append(matches, rules.MatchResult{
			Rule:          node.Rule,
			Confidence:    hit.Similarity,
			Method:        rules.MethodSemantic,
			Reasoning:     fmt.Sprintf("semantic similarity %.2f to exemplar %s", hit.Similarity, hit.ID),
			HierarchyPath: h.Path(node),
			SuggestedText: node.Rule.ExampleText,
			Depth:         node.Depth,
		})
	}
	return matches, nil
}

// finish settles the clause outcome: present when the best match clears
// the match threshold, missing otherwise. Missing and unacceptable
// outcomes carry a recommendation.
func (o *Orchestrator) finish(ctx context.Context, res ClauseAnalysisResult, best *rules.MatchResult) ClauseAnalysisResult {
	res.Stage = StageResolved

	if best != nil && best.Confidence >= o.config.MatchThreshold {
		res.Present = true
		res.Match = best
		res.RiskLevel = riskLevel(true, best)
		if best.Rule.Tier == rules.TierUnacceptable {
			res.Recommendation = o.recommendReplacement(ctx, res.ClauseType, res.Perspective, best)
		}
		return res
	}

	res.Present = false
	res.RiskLevel = RiskMissing
	res.Recommendation = o.recommendMissing(ctx, res.ClauseType, res.Perspective)
	return res
}

// recommendMissing drafts suggested language for an absent clause, using
// the strongest preferred rule as the template. Generation failures fall
// back to the rule's example text.
func (o *Orchestrator) recommendMissing(ctx context.Context, clauseType string, perspective rules.Perspective) *Recommendation {
	template := o.templateRule(ctx, clauseType, perspective)
	if template == nil {
		return nil
	}

	rec := &Recommendation{
		Action:        "add_clause",
		SuggestedText: template.ExampleText,
		Reasoning:     fmt.Sprintf("no %s clause detected; suggest adding the preferred language", clauseType),
	}
	o.draft(ctx, rec, template, perspective)
	return rec
}

// recommendReplacement drafts preferred language to replace an
// unacceptable clause.
func (o *Orchestrator) recommendReplacement(ctx context.Context, clauseType string, perspective rules.Perspective, matched *rules.MatchResult) *Recommendation {
	template := o.templateRule(ctx, clauseType, perspective)
	if template == nil {
		return nil
	}

	rec := &Recommendation{
		Action:        "replace_clause",
		SuggestedText: template.ExampleText,
		Reasoning:     fmt.Sprintf("matched unacceptable rule %s; suggest replacing with preferred language", matched.Rule.ID),
	}
	o.draft(ctx, rec, template, perspective)
	return rec
}

// templateRule picks the highest-confidence preferred rule, falling back
// to the first root.
func (o *Orchestrator) templateRule(ctx context.Context, clauseType string, perspective rules.Perspective) *rules.Rule {
	h, _, err := o.matcher.Hierarchy(ctx, clauseType, perspective)
	if err != nil {
		return nil
	}

	var preferred *rules.Rule
	h.Walk(func(n *rules.Node) {
		if preferred == nil && n.Rule.Tier == rules.TierPreferred {
			r := n.Rule
			preferred = &r
		}
	})
	if preferred == nil && len(h.Roots) > 0 {
		r := h.Roots[0].Rule
		preferred = &r
	}
	return preferred
}

func (o *Orchestrator) draft(ctx context.Context, rec *Recommendation, template *rules.Rule, perspective rules.Perspective) {
	if o.generator == nil {
		return
	}

	gctx, cancel := context.WithTimeout(ctx, o.config.GenerateTimeout)
	defer cancel()

	text, err := o.generator.Generate(gctx, generation.Request{
		ClauseType:  template.ClauseType,
		Perspective: string(perspective),
		Tier:        string(template.Tier),
		Template:    template.RewriteTemplate,
		ExampleText: template.ExampleText,
	})
	if err != nil {
		o.logger.Warn("suggestion drafting failed, using example text",
			zap.String("clause_type", template.ClauseType),
			zap.Error(err),
		)
		return
	}
	rec.SuggestedText = text
	rec.Generated = true
}

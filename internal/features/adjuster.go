package features

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/redlinelabs/clauselens/internal/rules"
)

const (
	// maxFeatureAdjustment bounds how far the learned model can move a
	// score away from the rule's base confidence.
	maxFeatureAdjustment = 0.3

	// Final scores stay inside this band so no rule is ever presented as
	// a certainty or dismissed outright.
	minFinalScore = 0.1
	maxFinalScore = 1.0

	// degradedJitter is the maximum deterministic offset applied around
	// base confidence when the model is unavailable.
	degradedJitter = 0.05

	performanceBoostHigh    = 0.1
	performanceBoostLow     = -0.1
	overrideRatePenalty     = -0.1
	overrideRateThreshold   = 0.5
	performanceHighF1       = 0.8
	performanceLowF1        = 0.4
)

// Config controls the adjuster.
type Config struct {
	// Degraded forces heuristic-only scoring, as if the model failed to
	// load.
	Degraded bool `koanf:"degraded"`
}

// Adjuster scores rule matches with the learned feature model. It
// implements rules.ConfidenceAdjuster. When degraded it returns base
// confidence with a small deterministic jitter instead of failing, so the
// matcher pipeline keeps working without the model.
type Adjuster struct {
	weights  *Handle
	perf     PerformanceSource
	logger   *zap.Logger
	degraded bool
}

// PerformanceSource supplies historical rule outcomes for the performance
// component. rules.Store satisfies it.
type PerformanceSource interface {
	GetPerformance(ctx context.Context, ruleID string) (*rules.Performance, error)
}

// NewAdjuster creates an adjuster over the shared weight handle. perf may
// be nil, which disables the performance and override components.
func NewAdjuster(weights *Handle, perf PerformanceSource, cfg Config, logger *zap.Logger) (*Adjuster, error) {
	if weights == nil {
		return nil, fmt.Errorf("weights handle is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adjuster{
		weights:  weights,
		perf:     perf,
		logger:   logger,
		degraded: cfg.Degraded,
	}, nil
}

// Degraded reports whether the adjuster is running without its model.
func (a *Adjuster) Degraded() bool {
	return a.degraded
}

// Adjust computes the ML-adjusted confidence for a rule against the
// candidate span. The result is always within [0.1, 1.0].
func (a *Adjuster) Adjust(ctx context.Context, rule rules.Rule, base float64, span rules.CandidateSpan) (float64, error) {
	if a.degraded {
		score := clampFinal(base + jitter(rule.ID, span.Text))
		a.logger.Warn("confidence adjuster degraded, using base confidence",
			zap.String("rule_id", rule.ID),
			zap.Float64("score", score),
		)
		return score, nil
	}

	components := a.Components(ctx, rule, base, span)

	score := 0.0
	for _, v := range components {
		score += v
	}
	return clampFinal(score), nil
}

// Components returns the named score components before final clamping.
// Exposed so callers can include an explanation with results.
func (a *Adjuster) Components(ctx context.Context, rule rules.Rule, base float64, span rules.CandidateSpan) map[string]float64 {
	components := map[string]float64{
		"base": base,
	}

	vec := SpanVector(rule, span)
	components["feature_adjustment"] = featureAdjustment(vec, a.weights.Load())

	if a.perf != nil {
		if perf, err := a.perf.GetPerformance(ctx, rule.ID); err == nil && perf != nil && perf.SampleSize > 0 {
			switch {
			case perf.F1 > performanceHighF1:
				components["performance"] = performanceBoostHigh
			case perf.F1 < performanceLowF1:
				components["performance"] = performanceBoostLow
			}
			if perf.OverrideRate() > overrideRateThreshold {
				components["override_penalty"] = overrideRatePenalty
			}
		}
	}

	components["context"] = contextBoost(rule, vec)

	return components
}

// SpanVector is the feature vector a span is scored with, rule sentiment
// included. Feedback records built from a match should carry it so the
// learner trains on what the prediction saw.
func SpanVector(rule rules.Rule, span rules.CandidateSpan) Vector {
	vec := Extract(ExtractorSpan{Text: span.Text, Start: span.Start, DocLength: span.DocLength})
	vec[FeatureSentiment] = Sentiment(span.Text, rule.SentimentTerms)
	return vec
}

// featureAdjustment is the dot product of the feature vector with the
// learned weights, recentered so a neutral span contributes nothing, and
// clamped to the adjustment band.
func featureAdjustment(vec Vector, w *Weights) float64 {
	var dot, weightSum float64
	for name, weight := range w.Values {
		dot += weight * vec[name]
		weightSum += weight
	}
	if weightSum == 0 {
		return 0
	}
	// A span scoring 0.5 on every weighted feature is neutral.
	adj := dot - 0.5*weightSum
	if adj > maxFeatureAdjustment {
		return maxFeatureAdjustment
	}
	if adj < -maxFeatureAdjustment {
		return -maxFeatureAdjustment
	}
	return adj
}

// contextBoost nudges the score based on tier and obligation sentiment:
// strong obligation language supports preferred rules and undercuts
// unacceptable ones.
func contextBoost(rule rules.Rule, vec Vector) float64 {
	sentiment := vec[FeatureSentiment]
	switch rule.Tier {
	case rules.TierPreferred:
		return 0.05 * sentiment
	case rules.TierUnacceptable:
		return -0.05 * sentiment
	default:
		return 0
	}
}

// jitter derives a small deterministic offset in [-degradedJitter,
// +degradedJitter] from the rule and text, so degraded-mode scores are
// stable across calls but not uniform across rules.
func jitter(ruleID, text string) float64 {
	h := fnv.New64a()
	h.Write([]byte(ruleID))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(text)))
	frac := float64(h.Sum64()%10_000) / 10_000
	return (frac*2 - 1) * degradedJitter
}

func clampFinal(v float64) float64 {
	if v < minFinalScore {
		return minFinalScore
	}
	if v > maxFinalScore {
		return maxFinalScore
	}
	return v
}

// ExplainComponents renders components deterministically for logs.
func ExplainComponents(components map[string]float64) string {
	names := make([]string, 0, len(components))
	for k := range components {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s=%.3f", n, components[n]))
	}
	return strings.Join(parts, " ")
}

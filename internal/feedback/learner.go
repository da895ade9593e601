package feedback

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/redlinelabs/clauselens/internal/features"
	"github.com/redlinelabs/clauselens/internal/rules"
)

const (
	defaultLearningRate = 0.05

	// Learned base confidence stays inside this band so no rule is ever
	// pinned open or shut by feedback alone.
	minBaseConfidence = 0.05
	maxBaseConfidence = 0.95

	// Individual feature weights are bounded so a burst of one-sided
	// feedback cannot dominate the model.
	maxWeightMagnitude = 1.0
)

// LearnerConfig controls the learning pass.
type LearnerConfig struct {
	LearningRate float64 `koanf:"learning_rate"`
}

// ApplyDefaults sets default values for unset fields.
func (c *LearnerConfig) ApplyDefaults() {
	if c.LearningRate == 0 {
		c.LearningRate = defaultLearningRate
	}
}

// Report summarizes one learning pass.
type Report struct {
	BatchesProcessed int      `json:"batches_processed"`
	BatchesFailed    int      `json:"batches_failed"`
	RecordsProcessed int      `json:"records_processed"`
	RulesUpdated     int      `json:"rules_updated"`
	WeightsUpdated   bool     `json:"weights_updated"`
	Errors           []string `json:"errors,omitempty"`
}

// Learner turns sealed feedback batches into rule performance updates,
// base confidence nudges and a new weight snapshot. A batch is learned
// from exactly once: the pass only sees pending batches and settles each
// one as completed or failed before moving on, so a rerun is a no-op.
type Learner struct {
	feedback    Store
	rules       rules.Store
	weights     *features.Handle
	weightStore features.WeightStore
	invalidate  func()
	config      LearnerConfig
	logger      *zap.Logger
}

// NewLearner creates a learner. weightStore may be nil (snapshots stay
// in-process); invalidate may be nil (no cache to drop).
func NewLearner(feedbackStore Store, ruleStore rules.Store, weights *features.Handle, weightStore features.WeightStore, invalidate func(), cfg LearnerConfig, logger *zap.Logger) (*Learner, error) {
	if feedbackStore == nil || ruleStore == nil || weights == nil {
		return nil, fmt.Errorf("feedback store, rule store and weights are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Learner{
		feedback:    feedbackStore,
		rules:       ruleStore,
		weights:     weights,
		weightStore: weightStore,
		invalidate:  invalidate,
		config:      cfg,
		logger:      logger,
	}, nil
}

// RunLearningPass seals the open batch and learns from every pending one.
// A malformed batch is marked failed and skipped; it never blocks the
// rest of the pass.
func (l *Learner) RunLearningPass(ctx context.Context) (*Report, error) {
	if _, err := l.feedback.CloseOpenBatch(ctx); err != nil {
		return nil, fmt.Errorf("closing open batch: %w", err)
	}

	pending, err := l.feedback.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pending batches: %w", err)
	}

	report := &Report{}
	next := l.weights.Load().Clone()
	weightsChanged := false

	for _, batch := range pending {
		if err := validateBatch(batch); err != nil {
			report.BatchesFailed++
			report.Errors = append(report.Errors, fmt.Sprintf("batch %s: %v", batch.ID, err))
			if markErr := l.feedback.MarkFailed(ctx, batch.ID, err.Error()); markErr != nil {
				l.logger.Error("failed to mark batch failed", zap.String("batch_id", batch.ID), zap.Error(markErr))
			}
			continue
		}

		updated, changed, err := l.learnBatch(ctx, batch, next)
		if err != nil {
			report.BatchesFailed++
			report.Errors = append(report.Errors, fmt.Sprintf("batch %s: %v", batch.ID, err))
			if markErr := l.feedback.MarkFailed(ctx, batch.ID, err.Error()); markErr != nil {
				l.logger.Error("failed to mark batch failed", zap.String("batch_id", batch.ID), zap.Error(markErr))
			}
			continue
		}

		if err := l.feedback.MarkCompleted(ctx, batch.ID); err != nil {
			return nil, fmt.Errorf("marking batch %s completed: %w", batch.ID, err)
		}
		report.BatchesProcessed++
		report.RecordsProcessed += len(batch.Records)
		report.RulesUpdated += updated
		weightsChanged = weightsChanged || changed
	}

	if weightsChanged {
		next.Version++
		next.UpdatedAt = time.Now().UTC()
		l.weights.Swap(next)
		report.WeightsUpdated = true

		if l.weightStore != nil {
			if err := l.weightStore.SaveWeights(ctx, next); err != nil {
				l.logger.Error("failed to persist weight snapshot", zap.Int64("version", next.Version), zap.Error(err))
				report.Errors = append(report.Errors, fmt.Sprintf("persisting weights: %v", err))
			}
		}
	}

	if (report.RulesUpdated > 0 || weightsChanged) && l.invalidate != nil {
		l.invalidate()
	}

	l.logger.Info("learning pass finished",
		zap.Int("batches_processed", report.BatchesProcessed),
		zap.Int("batches_failed", report.BatchesFailed),
		zap.Int("records_processed", report.RecordsProcessed),
		zap.Int("rules_updated", report.RulesUpdated),
		zap.Bool("weights_updated", report.WeightsUpdated),
	)
	return report, nil
}

func validateBatch(batch Batch) error {
	if len(batch.Records) == 0 {
		return fmt.Errorf("%w: batch has no records", ErrInvalidRecord)
	}
	for i := range batch.Records {
		if err := batch.Records[i].Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// learnBatch applies one batch: performance counters and base confidence
// per rule, weight nudges into next. Returns the number of rules updated
// and whether any weight moved.
func (l *Learner) learnBatch(ctx context.Context, batch Batch, next *features.Weights) (int, bool, error) {
	ruleCache := make(map[string]*rules.Rule)
	updatedRules := make(map[string]bool)
	weightsChanged := false

	for _, rec := range batch.Records {
		rule, err := l.lookupRule(ctx, ruleCache, rec)
		if err != nil {
			return 0, false, err
		}

		if err := l.updatePerformance(ctx, rec); err != nil {
			return 0, false, err
		}

		quality := rec.Action.QualityLabel()
		errSignal := quality - rec.Confidence

		if rule != nil {
			nudged := clampBase(rule.BaseConfidence + l.config.LearningRate*errSignal)
			if nudged != rule.BaseConfidence {
				if err := l.rules.SaveConfidence(ctx, rec.RuleID, nudged); err != nil {
					return 0, false, fmt.Errorf("saving confidence for %s: %w", rec.RuleID, err)
				}
				rule.BaseConfidence = nudged
				updatedRules[rec.RuleID] = true
			}
		}

		for name, value := range trainingVector(rec, rule) {
			if value == 0 {
				continue
			}
			w := clampWeight(next.Values[name] + l.config.LearningRate*errSignal*value)
			if w != next.Values[name] {
				next.Values[name] = w
				weightsChanged = true
			}
		}
	}

	return len(updatedRules), weightsChanged, nil
}

// trainingVector is the feature vector a record trains the weights on:
// the prediction-time features when the record carries them, otherwise a
// fresh extraction from the clause text.
func trainingVector(rec Record, rule *rules.Rule) map[string]float64 {
	if len(rec.Features) > 0 {
		return rec.Features
	}
	if rec.Text == "" {
		return nil
	}
	vec := features.Extract(features.ExtractorSpan{Text: rec.Text})
	if rule != nil {
		vec[features.FeatureSentiment] = features.Sentiment(rec.Text, rule.SentimentTerms)
	}
	return vec
}

// lookupRule resolves the record's rule, caching per batch. A feedback
// record for a since-deleted rule still updates performance history but
// cannot nudge confidence; lookup returns nil for it.
func (l *Learner) lookupRule(ctx context.Context, cache map[string]*rules.Rule, rec Record) (*rules.Rule, error) {
	if r, ok := cache[rec.RuleID]; ok {
		return r, nil
	}

	list, err := l.rules.ListRules(ctx, rec.ClauseType, rules.Perspective(rec.Perspective))
	if err != nil {
		return nil, fmt.Errorf("listing rules for %s/%s: %w", rec.ClauseType, rec.Perspective, err)
	}
	for i := range list {
		if list[i].ID == rec.RuleID {
			r := list[i]
			cache[rec.RuleID] = &r
			return cache[rec.RuleID], nil
		}
	}
	cache[rec.RuleID] = nil
	return nil, nil
}

func (l *Learner) updatePerformance(ctx context.Context, rec Record) error {
	perf, err := l.rules.GetPerformance(ctx, rec.RuleID)
	if err != nil {
		return fmt.Errorf("loading performance for %s: %w", rec.RuleID, err)
	}
	if perf == nil {
		perf = &rules.Performance{RuleID: rec.RuleID}
	}

	switch rec.Action {
	case ActionAccepted:
		perf.TruePositives++
	case ActionRejected:
		perf.FalsePositives++
	case ActionModified:
		perf.TruePositives += 0.5
		perf.FalsePositives += 0.5
	}
	perf.SampleSize++
	perf.CalculatedAt = time.Now().UTC()
	perf.Recalculate()

	if err := l.rules.SavePerformance(ctx, perf); err != nil {
		return fmt.Errorf("saving performance for %s: %w", rec.RuleID, err)
	}
	return nil
}

func clampBase(v float64) float64 {
	if v < minBaseConfidence {
		return minBaseConfidence
	}
	if v > maxBaseConfidence {
		return maxBaseConfidence
	}
	return v
}

func clampWeight(v float64) float64 {
	if v < -maxWeightMagnitude {
		return -maxWeightMagnitude
	}
	if v > maxWeightMagnitude {
		return maxWeightMagnitude
	}
	return v
}

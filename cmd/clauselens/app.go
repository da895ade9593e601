package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/redlinelabs/clauselens/internal/analyzer"
	"github.com/redlinelabs/clauselens/internal/config"
	"github.com/redlinelabs/clauselens/internal/embedding"
	"github.com/redlinelabs/clauselens/internal/features"
	"github.com/redlinelabs/clauselens/internal/feedback"
	"github.com/redlinelabs/clauselens/internal/generation"
	"github.com/redlinelabs/clauselens/internal/logging"
	"github.com/redlinelabs/clauselens/internal/rules"
	"github.com/redlinelabs/clauselens/internal/storage"
)

// app holds the wired object graph for one CLI invocation.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	ruleStore     rules.Store
	feedbackStore feedback.Store
	weightStore   features.WeightStore
	weights       *features.Handle
	matcher       *rules.Matcher
	orchestrator  *analyzer.Orchestrator
	embeddings    *embedding.Service

	db        *gorm.DB
	generator generation.Generator
}

// buildApp loads config, connects stores and assembles the pipeline. With
// --offline, or when no database DSN is configured, everything runs on
// in-memory stores and the local embedding provider.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	useDB := !offline && cfg.Database.DSN.IsSet()
	if useDB {
		db, err := storage.Open(cfg.Database.DSN.Value(), logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.ruleStore = storage.NewRuleRepo(db)
		a.feedbackStore = storage.NewFeedbackRepo(db, cfg.Learning.BatchSize,
			storage.WithMaxBatchAge(time.Duration(cfg.Learning.MaxBatchAge)))
		a.weightStore = storage.NewWeightsRepo(db)
	} else {
		a.ruleStore = rules.NewMemoryStore()
		a.feedbackStore = feedback.NewMemoryStore(cfg.Learning.BatchSize,
			feedback.WithMaxBatchAge(time.Duration(cfg.Learning.MaxBatchAge)))
	}

	ruleSet, err := rules.LoadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("loading rules from %s: %w", rulesPath, err)
	}
	if err := a.seedRules(ctx, ruleSet); err != nil {
		return nil, err
	}

	if err := a.buildEmbeddings(useDB); err != nil {
		return nil, err
	}

	if err := a.buildPipeline(ctx); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *app) seedRules(ctx context.Context, rs *rules.RuleSet) error {
	switch store := a.ruleStore.(type) {
	case *rules.MemoryStore:
		return store.Seed(rs.ClauseTypes, rs.Rules)
	case *storage.RuleRepo:
		return store.SeedRules(ctx, rs.ClauseTypes, rs.Rules)
	default:
		return fmt.Errorf("unknown rule store %T", a.ruleStore)
	}
}

func (a *app) buildEmbeddings(useDB bool) error {
	providerCfg := embedding.ProviderConfig{Provider: "local"}
	if !offline {
		providerCfg = embedding.ProviderConfig{
			Provider: a.cfg.Embedding.Provider,
			Model:    a.cfg.Embedding.Model,
			BaseURL:  a.cfg.Embedding.BaseURL,
			APIKey:   a.cfg.Embedding.APIKey.Value(),
		}
	}
	provider, err := embedding.NewProvider(providerCfg)
	if err != nil {
		return fmt.Errorf("building embedding provider: %w", err)
	}

	var kv embedding.KV
	if useDB {
		kv = storage.NewEmbeddingRepo(a.db)
	}

	svc, err := embedding.NewService(provider, kv, embedding.Config{
		CacheMaxEntries:     a.cfg.Embedding.CacheMaxEntries,
		CacheRetainFraction: a.cfg.Embedding.CacheRetainFraction,
		CacheTTL:            time.Duration(a.cfg.Embedding.CacheTTL),
		BatchSize:           a.cfg.Embedding.BatchSize,
		FlushInterval:       time.Duration(a.cfg.Embedding.FlushInterval),
		MaxTextLength:       a.cfg.Embedding.MaxTextLength,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("building embedding service: %w", err)
	}
	a.embeddings = svc
	return nil
}

func (a *app) buildPipeline(ctx context.Context) error {
	a.weights = features.NewHandle(nil)
	if a.weightStore != nil {
		persisted, err := a.weightStore.LoadWeights(ctx)
		if err != nil {
			a.logger.Warn("could not load persisted weights, using defaults", zap.Error(err))
		} else if persisted != nil {
			a.weights.Swap(persisted)
		}
	}

	adjuster, err := features.NewAdjuster(a.weights, a.ruleStore, features.Config{}, a.logger)
	if err != nil {
		return fmt.Errorf("building adjuster: %w", err)
	}

	matcher, err := rules.NewMatcher(a.ruleStore, adjuster, rules.ScoringConfig{
		KeywordWeight:     a.cfg.Scoring.KeywordWeight,
		AdjustmentWeight:  a.cfg.Scoring.AdjustmentWeight,
		PerformanceWeight: a.cfg.Scoring.PerformanceWeight,
		BaseWeight:        a.cfg.Scoring.BaseWeight,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("building matcher: %w", err)
	}
	a.matcher = matcher

	opts, err := a.buildCollaborators(ctx)
	if err != nil {
		return err
	}

	orch, err := analyzer.NewOrchestrator(matcher, a.ruleStore, analyzer.Config{
		ResolveThreshold:  a.cfg.Analysis.ResolveThreshold,
		MatchThreshold:    a.cfg.Analysis.MatchThreshold,
		MinDocumentLength: a.cfg.Analysis.MinDocumentLength,
		Parallelism:       a.cfg.Analysis.Parallelism,
		MaxResults:        a.cfg.Analysis.MaxResults,
		EmbedTimeout:      time.Duration(a.cfg.Analysis.EmbedTimeout),
		GenerateTimeout:   time.Duration(a.cfg.Analysis.GenerateTimeout),
	}, a.logger, opts...)
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}
	a.orchestrator = orch
	return nil
}

// buildCollaborators assembles the optional semantic index and generator.
func (a *app) buildCollaborators(ctx context.Context) ([]analyzer.Option, error) {
	var opts []analyzer.Option

	idx, err := embedding.NewExemplarIndex(a.cfg.Embedding.ExemplarPath, a.embeddings, a.logger)
	if err != nil {
		return nil, fmt.Errorf("building exemplar index: %w", err)
	}
	if err := a.indexExemplars(ctx, idx); err != nil {
		return nil, err
	}
	opts = append(opts, analyzer.WithExemplarIndex(idx))

	if !offline && a.cfg.Generation.Provider == "gemini" {
		gen, err := generation.NewGeminiGenerator(ctx, generation.GeminiConfig{
			APIKey:  a.cfg.Generation.APIKey.Value(),
			Model:   a.cfg.Generation.Model,
			Timeout: time.Duration(a.cfg.Generation.Timeout),
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("building generator: %w", err)
		}
		a.generator = gen
		opts = append(opts, analyzer.WithGenerator(gen))
	}

	return opts, nil
}

// indexExemplars feeds every rule's example language into the semantic
// index.
func (a *app) indexExemplars(ctx context.Context, idx *embedding.ExemplarIndex) error {
	clauseTypes, err := a.ruleStore.ListClauseTypes(ctx)
	if err != nil {
		return fmt.Errorf("listing clause types: %w", err)
	}

	var exemplars []embedding.Exemplar
	for _, ct := range clauseTypes {
		for _, persp := range []rules.Perspective{rules.PerspectiveReceiving, rules.PerspectiveDisclosing, rules.PerspectiveMutual} {
			list, err := a.ruleStore.ListRules(ctx, ct.ID, persp)
			if err != nil {
				return fmt.Errorf("listing rules for %s/%s: %w", ct.ID, persp, err)
			}
			for _, r := range list {
				if r.ExampleText == "" {
					continue
				}
				exemplars = append(exemplars, embedding.Exemplar{
					ID:          "rule-" + r.ID,
					ClauseType:  r.ClauseType,
					Perspective: string(r.Perspective),
					Tier:        string(r.Tier),
					RuleID:      r.ID,
					Text:        r.ExampleText,
				})
			}
		}
	}
	return idx.Index(ctx, exemplars)
}

// newLearner wires the learning pass over the app's stores.
func (a *app) newLearner() (*feedback.Learner, error) {
	return feedback.NewLearner(
		a.feedbackStore,
		a.ruleStore,
		a.weights,
		a.weightStore,
		a.matcher.Invalidate,
		feedback.LearnerConfig{LearningRate: a.cfg.Learning.LearningRate},
		a.logger,
	)
}

// close releases everything the app holds, logging rather than failing.
func (a *app) close() {
	if a.generator != nil {
		if err := a.generator.Close(); err != nil {
			a.logger.Warn("closing generator", zap.Error(err))
		}
	}
	if a.embeddings != nil {
		if err := a.embeddings.Close(); err != nil {
			a.logger.Warn("closing embedding service", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := storage.Close(a.db); err != nil {
			a.logger.Warn("closing database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

package embedding

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Exemplar is one reference clause text indexed for semantic matching.
type Exemplar struct {
	ID          string
	ClauseType  string
	Perspective string
	Tier        string
	RuleID      string
	Text        string
}

// ExemplarMatch is one ranked result from querying the exemplar index.
type ExemplarMatch struct {
	ID         string
	RuleID     string
	Tier       string
	Text       string
	Similarity float64
}

// ExemplarIndex stores clause exemplar texts in an embedded chromem-go
// vector database, one collection per (clause type, perspective) pair.
// The semantic fallback stage queries it when hierarchical matching is
// inconclusive.
type ExemplarIndex struct {
	db     *chromem.DB
	svc    *Service
	logger *zap.Logger
}

// NewExemplarIndex creates an exemplar index. An empty path keeps the index
// in memory only; otherwise vectors persist under the given directory.
func NewExemplarIndex(path string, svc *Service, logger *zap.Logger) (*ExemplarIndex, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: embedding service is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	return &ExemplarIndex{db: db, svc: svc, logger: logger}, nil
}

func collectionName(clauseType, perspective string) string {
	return fmt.Sprintf("exemplars-%s-%s", clauseType, perspective)
}

func (x *ExemplarIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return x.svc.EmbedQuery(ctx, text)
	}
}

// Index adds exemplars to their (clause type, perspective) collections.
// Embeddings are computed through the service so the cache tiers apply.
func (x *ExemplarIndex) Index(ctx context.Context, exemplars []Exemplar) error {
	if len(exemplars) == 0 {
		return nil
	}

	byCollection := make(map[string][]Exemplar)
	for _, ex := range exemplars {
		name := collectionName(ex.ClauseType, ex.Perspective)
		byCollection[name] = append(byCollection[name], ex)
	}

	for name, group := range byCollection {
		collection, err := x.db.GetOrCreateCollection(name, nil, x.embeddingFunc())
		if err != nil {
			return fmt.Errorf("getting/creating collection %s: %w", name, err)
		}

		texts := make([]string, len(group))
		for i, ex := range group {
			texts[i] = ex.Text
		}
		vectors, err := x.svc.Embed(ctx, texts, PriorityNormal)
		if err != nil {
			return fmt.Errorf("embedding exemplars for %s: %w", name, err)
		}

		docs := make([]chromem.Document, len(group))
		for i, ex := range group {
			docs[i] = chromem.Document{
				ID:      ex.ID,
				Content: ex.Text,
				Metadata: map[string]string{
					"rule_id": ex.RuleID,
					"tier":    ex.Tier,
				},
				Embedding: vectors[i],
			}
		}

		// Concurrency of 1 since embeddings are already computed.
		if err := collection.AddDocuments(ctx, docs, 1); err != nil {
			return fmt.Errorf("adding exemplars to %s: %w", name, err)
		}

		x.logger.Debug("indexed exemplars",
			zap.String("collection", name),
			zap.Int("count", len(group)),
		)
	}
	return nil
}

// Query returns the exemplars most similar to text for a clause type and
// perspective, ranked by cosine similarity descending. An unknown or empty
// collection yields an empty result, not an error.
func (x *ExemplarIndex) Query(ctx context.Context, clauseType, perspective, text string, topK int) ([]ExemplarMatch, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query text cannot be empty", ErrEmptyInput)
	}
	if topK <= 0 {
		topK = 5
	}

	collection, err := x.db.GetOrCreateCollection(collectionName(clauseType, perspective), nil, x.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting collection: %w", err)
	}

	count := collection.Count()
	if count == 0 {
		return []ExemplarMatch{}, nil
	}
	if topK > count {
		topK = count
	}

	results, err := collection.Query(ctx, text, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: exemplar query: %v", ErrEmbeddingFailed, err)
	}

	matches := make([]ExemplarMatch, len(results))
	for i, res := range results {
		matches[i] = ExemplarMatch{
			ID:         res.ID,
			RuleID:     res.Metadata["rule_id"],
			Tier:       res.Metadata["tier"],
			Text:       res.Content,
			Similarity: float64(res.Similarity),
		}
	}
	return matches, nil
}

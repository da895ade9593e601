package rules

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store implementation. It backs offline mode
// and tests; the gorm-backed store in internal/storage is the durable one.
type MemoryStore struct {
	mu          sync.RWMutex
	clauseTypes map[string]ClauseType
	rules       map[string]Rule
	performance map[string]Performance
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clauseTypes: make(map[string]ClauseType),
		rules:       make(map[string]Rule),
		performance: make(map[string]Performance),
	}
}

// Seed loads clause types and rules, replacing any existing entries with
// the same IDs.
func (s *MemoryStore) Seed(clauseTypes []ClauseType, rules []Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ct := range clauseTypes {
		s.clauseTypes[ct.ID] = ct
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
		s.rules[r.ID] = r
	}
	return nil
}

// ListClauseTypes returns all clause types ordered by Order.
func (s *MemoryStore) ListClauseTypes(ctx context.Context) ([]ClauseType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ClauseType, 0, len(s.clauseTypes))
	for _, ct := range s.clauseTypes {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// ListRules returns the flat rule list for a clause type and perspective.
func (s *MemoryStore) ListRules(ctx context.Context, clauseType string, perspective Perspective) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Rule
	for _, r := range s.rules {
		if r.ClauseType == clauseType && r.Perspective == perspective {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetPerformance returns a rule's performance row, or nil when absent.
func (s *MemoryStore) GetPerformance(ctx context.Context, ruleID string) (*Performance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.performance[ruleID]; ok {
		copied := p
		return &copied, nil
	}
	return nil, nil
}

// SavePerformance upserts a performance row.
func (s *MemoryStore) SavePerformance(ctx context.Context, perf *Performance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.performance[perf.RuleID] = *perf
	return nil
}

// SaveConfidence persists a learned base-confidence update.
func (s *MemoryStore) SaveConfidence(ctx context.Context, ruleID string, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[ruleID]
	if !ok {
		return ErrRuleNotFound
	}
	r.BaseConfidence = confidence
	s.rules[ruleID] = r
	return nil
}

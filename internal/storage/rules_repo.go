package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/redlinelabs/clauselens/internal/rules"
)

// RuleRepo is the gorm-backed rules.Store.
type RuleRepo struct {
	db *gorm.DB
}

// NewRuleRepo creates a rule repository.
func NewRuleRepo(db *gorm.DB) *RuleRepo {
	return &RuleRepo{db: db}
}

// SeedRules upserts clause types and rules, typically from a YAML rule
// file at startup.
func (r *RuleRepo) SeedRules(ctx context.Context, clauseTypes []rules.ClauseType, list []rules.Rule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ct := range clauseTypes {
			row := ClauseTypeRow{ID: ct.ID, DisplayName: ct.DisplayName, SortOrder: ct.Order}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("seeding clause type %s: %w", ct.ID, err)
			}
		}
		for i := range list {
			row, err := ruleToRow(&list[i])
			if err != nil {
				return err
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
				return fmt.Errorf("seeding rule %s: %w", list[i].ID, err)
			}
		}
		return nil
	})
}

func (r *RuleRepo) ListClauseTypes(ctx context.Context) ([]rules.ClauseType, error) {
	var rows []ClauseTypeRow
	if err := r.db.WithContext(ctx).Order("sort_order").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing clause types: %w", err)
	}

	out := make([]rules.ClauseType, 0, len(rows))
	for _, row := range rows {
		out = append(out, rules.ClauseType{ID: row.ID, DisplayName: row.DisplayName, Order: row.SortOrder})
	}
	return out, nil
}

func (r *RuleRepo) ListRules(ctx context.Context, clauseType string, perspective rules.Perspective) ([]rules.Rule, error) {
	var rows []RuleRow
	err := r.db.WithContext(ctx).
		Where("clause_type = ? AND perspective = ?", clauseType, string(perspective)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}

	out := make([]rules.Rule, 0, len(rows))
	for i := range rows {
		rule, err := rowToRule(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, nil
}

func (r *RuleRepo) GetPerformance(ctx context.Context, ruleID string) (*rules.Performance, error) {
	var row PerformanceRow
	err := r.db.WithContext(ctx).Where("rule_id = ?", ruleID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading performance: %w", err)
	}

	return &rules.Performance{
		RuleID:         row.RuleID,
		TruePositives:  row.TruePositives,
		FalsePositives: row.FalsePositives,
		TrueNegatives:  row.TrueNegatives,
		FalseNegatives: row.FalseNegatives,
		Precision:      row.Precision,
		Recall:         row.Recall,
		F1:             row.F1,
		SampleSize:     row.SampleSize,
		CalculatedAt:   row.CalculatedAt,
	}, nil
}

func (r *RuleRepo) SavePerformance(ctx context.Context, perf *rules.Performance) error {
	row := PerformanceRow{
		RuleID:         perf.RuleID,
		TruePositives:  perf.TruePositives,
		FalsePositives: perf.FalsePositives,
		TrueNegatives:  perf.TrueNegatives,
		FalseNegatives: perf.FalseNegatives,
		Precision:      perf.Precision,
		Recall:         perf.Recall,
		F1:             perf.F1,
		SampleSize:     perf.SampleSize,
		CalculatedAt:   perf.CalculatedAt,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("saving performance: %w", err)
	}
	return nil
}

func (r *RuleRepo) SaveConfidence(ctx context.Context, ruleID string, confidence float64) error {
	result := r.db.WithContext(ctx).
		Model(&RuleRow{}).
		Where("id = ?", ruleID).
		Updates(map[string]any{"base_confidence": confidence, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return fmt.Errorf("saving confidence: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return rules.ErrRuleNotFound
	}
	return nil
}

func ruleToRow(rule *rules.Rule) (*RuleRow, error) {
	keywords, err := json.Marshal(rule.Keywords)
	if err != nil {
		return nil, fmt.Errorf("encoding keywords for %s: %w", rule.ID, err)
	}
	patterns, err := json.Marshal(rule.Patterns)
	if err != nil {
		return nil, fmt.Errorf("encoding patterns for %s: %w", rule.ID, err)
	}
	sentiment, err := json.Marshal(rule.SentimentTerms)
	if err != nil {
		return nil, fmt.Errorf("encoding sentiment terms for %s: %w", rule.ID, err)
	}

	return &RuleRow{
		ID:              rule.ID,
		ClauseType:      rule.ClauseType,
		Perspective:     string(rule.Perspective),
		Tier:            string(rule.Tier),
		Keywords:        keywords,
		ExampleText:     rule.ExampleText,
		RewriteTemplate: rule.RewriteTemplate,
		BaseConfidence:  rule.BaseConfidence,
		ParentID:        rule.ParentID,
		Patterns:        patterns,
		SentimentTerms:  sentiment,
		UpdatedAt:       time.Now().UTC(),
	}, nil
}

func rowToRule(row *RuleRow) (*rules.Rule, error) {
	rule := &rules.Rule{
		ID:              row.ID,
		ClauseType:      row.ClauseType,
		Perspective:     rules.Perspective(row.Perspective),
		Tier:            rules.Tier(row.Tier),
		ExampleText:     row.ExampleText,
		RewriteTemplate: row.RewriteTemplate,
		BaseConfidence:  row.BaseConfidence,
		ParentID:        row.ParentID,
	}
	if len(row.Keywords) > 0 {
		if err := json.Unmarshal(row.Keywords, &rule.Keywords); err != nil {
			return nil, fmt.Errorf("decoding keywords for %s: %w", row.ID, err)
		}
	}
	if len(row.Patterns) > 0 {
		if err := json.Unmarshal(row.Patterns, &rule.Patterns); err != nil {
			return nil, fmt.Errorf("decoding patterns for %s: %w", row.ID, err)
		}
	}
	if len(row.SentimentTerms) > 0 {
		if err := json.Unmarshal(row.SentimentTerms, &rule.SentimentTerms); err != nil {
			return nil, fmt.Errorf("decoding sentiment terms for %s: %w", row.ID, err)
		}
	}
	return rule, nil
}

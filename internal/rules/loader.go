package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleSet is the on-disk rule file format.
type RuleSet struct {
	ClauseTypes []ClauseType `yaml:"clause_types"`
	Rules       []Rule       `yaml:"rules"`
}

// LoadFile reads and validates a YAML rule set.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML rule set and validates every rule. Duplicate rule IDs
// and references to undeclared clause types are rejected here so the
// hierarchy builder only sees structurally sound input.
func Parse(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parsing rule file: %w", err)
	}
	if len(rs.Rules) == 0 {
		return nil, ErrNoRules
	}

	declared := make(map[string]bool, len(rs.ClauseTypes))
	for i, ct := range rs.ClauseTypes {
		if ct.ID == "" {
			return nil, fmt.Errorf("%w: clause type %d has empty id", ErrInvalidRule, i)
		}
		if declared[ct.ID] {
			return nil, fmt.Errorf("%w: duplicate clause type %q", ErrInvalidRule, ct.ID)
		}
		declared[ct.ID] = true
	}

	seen := make(map[string]bool, len(rs.Rules))
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.ID, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %q", ErrInvalidRule, r.ID)
		}
		seen[r.ID] = true
		if len(declared) > 0 && !declared[r.ClauseType] {
			return nil, fmt.Errorf("%w: rule %q references undeclared clause type %q", ErrUnknownClause, r.ID, r.ClauseType)
		}
	}
	return &rs, nil
}

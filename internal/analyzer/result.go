package analyzer

import (
	"fmt"
	"time"

	"github.com/redlinelabs/clauselens/internal/rules"
)

// Stage names the steps of the fallback chain. Every clause analysis walks
// not_started through resolved; the attempts list records how far it got
// and what each stage produced.
type Stage string

const (
	StageNotStarted   Stage = "not_started"
	StageHierarchical Stage = "hierarchical_attempted"
	StageSemantic     Stage = "semantic_attempted"
	StageKeyword      Stage = "keyword_attempted"
	StageResolved     Stage = "resolved"
)

// Risk levels for a clause outcome. Higher is worse.
const (
	RiskMinimal      = 1
	RiskLow          = 2
	RiskElevated     = 3
	RiskMissing      = 4
	RiskUnacceptable = 5
)

// StageAttempt records one stage of the fallback chain.
type StageAttempt struct {
	Stage          Stage         `json:"stage"`
	Matches        int           `json:"matches"`
	BestConfidence float64       `json:"best_confidence"`
	Duration       time.Duration `json:"duration"`
	Error          string        `json:"error,omitempty"`
}

// Recommendation suggests language for a missing or unacceptable clause.
type Recommendation struct {
	Action        string `json:"action"`
	SuggestedText string `json:"suggested_text"`
	Reasoning     string `json:"reasoning"`

	// Generated is true when the text came from the generator rather
	// than rule example language.
	Generated bool `json:"generated"`
}

// ClauseAnalysisResult is the outcome for one clause type.
type ClauseAnalysisResult struct {
	ClauseType  string            `json:"clause_type"`
	Perspective rules.Perspective `json:"perspective"`

	// Present is true when a match at or above the match threshold was
	// found.
	Present bool `json:"present"`

	// Match is the winning match, nil when the clause is missing.
	Match *rules.MatchResult `json:"match,omitempty"`

	RiskLevel int `json:"risk_level"`

	// Stage is the stage that produced the final outcome.
	Stage Stage `json:"stage"`

	Attempts []StageAttempt `json:"attempts"`

	Recommendation *Recommendation `json:"recommendation,omitempty"`

	// HierarchyCached is true when the rule tree was served from cache.
	HierarchyCached bool `json:"hierarchy_cached"`

	Duration time.Duration `json:"duration"`
}

// DocumentAnalysisResult is the outcome for a whole document.
type DocumentAnalysisResult struct {
	DocumentID  string                 `json:"document_id"`
	Perspective rules.Perspective      `json:"perspective"`
	Clauses     []ClauseAnalysisResult `json:"clauses"`

	// OverallRisk is the highest clause risk in the document.
	OverallRisk int `json:"overall_risk"`

	// OverallConfidence is the arithmetic mean of clause confidences;
	// missing clauses count as zero.
	OverallConfidence float64 `json:"overall_confidence"`

	// HighPriority lists clause concerns at risk 4 or above, MediumPriority
	// those at risk 3. SuggestedNextSteps turns recommendations and weak
	// positions into reviewer actions.
	HighPriority       []string `json:"high_priority"`
	MediumPriority     []string `json:"medium_priority"`
	SuggestedNextSteps []string `json:"suggested_next_steps"`

	AnalyzedAt time.Time     `json:"analyzed_at"`
	Duration   time.Duration `json:"duration"`
}

// concern renders one clause outcome for the priority lists.
func concern(r ClauseAnalysisResult) string {
	switch {
	case !r.Present:
		return fmt.Sprintf("%s: no clause detected", r.ClauseType)
	case r.Match != nil && r.Match.Rule.Tier == rules.TierUnacceptable:
		return fmt.Sprintf("%s: unacceptable terms (rule %s)", r.ClauseType, r.Match.Rule.ID)
	case r.Match != nil:
		return fmt.Sprintf("%s: %s position at confidence %.2f", r.ClauseType, r.Match.Rule.Tier, r.Match.Confidence)
	default:
		return r.ClauseType
	}
}

// nextStep turns a clause outcome into a reviewer action, or "" when the
// clause needs none.
func nextStep(r ClauseAnalysisResult) string {
	if r.Recommendation != nil {
		switch r.Recommendation.Action {
		case "add_clause":
			return fmt.Sprintf("add the missing %s clause using the suggested language", r.ClauseType)
		case "replace_clause":
			return fmt.Sprintf("replace the %s clause with the suggested language", r.ClauseType)
		}
	}
	if r.Match != nil && r.Match.Rule.Tier == rules.TierFallback {
		return fmt.Sprintf("negotiate the %s clause toward the preferred position", r.ClauseType)
	}
	return ""
}

// riskLevel maps a clause outcome to its risk band.
func riskLevel(present bool, match *rules.MatchResult) int {
	if !present || match == nil {
		return RiskMissing
	}
	switch match.Rule.Tier {
	case rules.TierUnacceptable:
		return RiskUnacceptable
	case rules.TierFallback:
		if match.Confidence < 0.7 {
			return RiskElevated
		}
		return RiskLow
	case rules.TierPreferred:
		if match.Confidence > 0.8 {
			return RiskMinimal
		}
		return RiskLow
	default:
		return RiskLow
	}
}

package feedback

import (
	"errors"
	"time"
)

var (
	ErrInvalidAction  = errors.New("invalid feedback action")
	ErrInvalidRecord  = errors.New("invalid feedback record")
	ErrBatchNotFound  = errors.New("feedback batch not found")
	ErrBatchCompleted = errors.New("feedback batch already completed")
)

// Action is the reviewer's verdict on one classification.
type Action string

const (
	ActionAccepted Action = "accepted"
	ActionRejected Action = "rejected"
	ActionModified Action = "modified"
)

// Valid reports whether the action is one of the known verdicts.
func (a Action) Valid() bool {
	switch a {
	case ActionAccepted, ActionRejected, ActionModified:
		return true
	}
	return false
}

// QualityLabel maps the verdict to a supervised label: accepted is a clean
// positive, rejected a clean negative, modified counts half.
func (a Action) QualityLabel() float64 {
	switch a {
	case ActionAccepted:
		return 1.0
	case ActionModified:
		return 0.5
	default:
		return 0.0
	}
}

// Record is one piece of reviewer feedback on a classification.
type Record struct {
	ID          string    `json:"id"`
	RuleID      string    `json:"rule_id"`
	ClauseType  string    `json:"clause_type"`
	Perspective string    `json:"perspective"`
	Action      Action    `json:"action"`

	// Confidence is the score the system reported at classification time.
	Confidence float64 `json:"confidence"`

	// Features is the feature vector extracted at prediction time. When
	// present the learner trains on it directly instead of re-extracting
	// from Text, so weight updates see exactly what the adjuster saw.
	Features map[string]float64 `json:"features,omitempty"`

	// Text is the clause text the verdict applies to.
	Text string `json:"text"`

	// ModifiedText holds the reviewer's rewrite for modified verdicts.
	ModifiedText string `json:"modified_text,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the record's reference data.
func (r *Record) Validate() error {
	if r.RuleID == "" {
		return errors.Join(ErrInvalidRecord, errors.New("rule ID cannot be empty"))
	}
	if !r.Action.Valid() {
		return ErrInvalidAction
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return errors.Join(ErrInvalidRecord, errors.New("confidence must be in [0,1]"))
	}
	return nil
}

// BatchStatus is the lifecycle state of a feedback batch.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// Batch groups feedback records for one learning pass. A batch is learned
// from at most once; completed batches are skipped on replay.
type Batch struct {
	ID        string      `json:"id"`
	Status    BatchStatus `json:"status"`
	Records   []Record    `json:"records"`
	CreatedAt time.Time   `json:"created_at"`
	ClosedAt  time.Time   `json:"closed_at,omitempty"`

	// Note carries the failure reason for failed batches.
	Note string `json:"note,omitempty"`
}

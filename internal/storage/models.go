package storage

import "time"

// ClauseTypeRow mirrors rules.ClauseType.
type ClauseTypeRow struct {
	ID          string `gorm:"primaryKey"`
	DisplayName string
	SortOrder   int `gorm:"column:sort_order"`
}

func (ClauseTypeRow) TableName() string { return "clause_types" }

// RuleRow mirrors rules.Rule. Slice fields are stored as JSON columns.
type RuleRow struct {
	ID              string `gorm:"primaryKey"`
	ClauseType      string `gorm:"index:idx_rules_scope"`
	Perspective     string `gorm:"index:idx_rules_scope"`
	Tier            string
	Keywords        []byte `gorm:"type:jsonb"`
	ExampleText     string
	RewriteTemplate string
	BaseConfidence  float64
	ParentID        string
	Patterns        []byte `gorm:"type:jsonb"`
	SentimentTerms  []byte `gorm:"type:jsonb"`
	UpdatedAt       time.Time
}

func (RuleRow) TableName() string { return "rules" }

// PerformanceRow mirrors rules.Performance, one row per rule.
type PerformanceRow struct {
	RuleID         string `gorm:"primaryKey"`
	TruePositives  float64
	FalsePositives float64
	TrueNegatives  float64
	FalseNegatives float64
	Precision      float64 `gorm:"column:precision_score"`
	Recall         float64
	F1             float64
	SampleSize     int
	CalculatedAt   time.Time
}

func (PerformanceRow) TableName() string { return "rule_performance" }

// EmbeddingRow is the persistent embedding cache tier, keyed by content
// hash. Vector holds the float32 slice in little-endian binary.
type EmbeddingRow struct {
	Hash      string `gorm:"primaryKey"`
	Vector    []byte
	Dimension int
	CreatedAt time.Time
	HitCount  int64
}

func (EmbeddingRow) TableName() string { return "embedding_cache" }

// FeedbackRow is one reviewer verdict.
type FeedbackRow struct {
	ID           string `gorm:"primaryKey"`
	BatchID      string `gorm:"index"`
	RuleID       string
	ClauseType   string
	Perspective  string
	Action       string
	Confidence   float64
	Features     []byte `gorm:"type:jsonb"`
	Text         string
	ModifiedText string
	CreatedAt    time.Time
}

func (FeedbackRow) TableName() string { return "feedback_records" }

// BatchRow tracks the lifecycle of one feedback batch.
type BatchRow struct {
	ID        string `gorm:"primaryKey"`
	Status    string `gorm:"index"`
	Note      string
	CreatedAt time.Time
	ClosedAt  *time.Time
}

func (BatchRow) TableName() string { return "feedback_batches" }

// WeightsRow is one persisted weight snapshot. Values is the weight map
// as JSON.
type WeightsRow struct {
	Version   int64  `gorm:"primaryKey"`
	Values    []byte `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

func (WeightsRow) TableName() string { return "model_weights" }

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/redlinelabs/clauselens/internal/feedback"
)

// FeedbackRepo is the gorm-backed feedback.Store. Batches seal at
// batchSize records, once the open batch outlives the configured maximum
// age, or explicitly via CloseOpenBatch.
type FeedbackRepo struct {
	db          *gorm.DB
	batchSize   int
	maxBatchAge time.Duration
}

// FeedbackRepoOption configures a FeedbackRepo.
type FeedbackRepoOption func(*FeedbackRepo)

// WithMaxBatchAge seals an open batch once it is older than d. Zero
// disables age-based sealing.
func WithMaxBatchAge(d time.Duration) FeedbackRepoOption {
	return func(r *FeedbackRepo) { r.maxBatchAge = d }
}

// NewFeedbackRepo creates a feedback repository.
func NewFeedbackRepo(db *gorm.DB, batchSize int, opts ...FeedbackRepoOption) *FeedbackRepo {
	if batchSize <= 0 {
		batchSize = 50
	}
	r := &FeedbackRepo{db: db, batchSize: batchSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// statusOpen marks the batch still accumulating records; it becomes
// pending when sealed.
const statusOpen = "open"

func (r *FeedbackRepo) SaveRecord(ctx context.Context, rec feedback.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}

	var batchID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch BatchRow
		err := tx.Where("status = ?", statusOpen).First(&batch).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			batch = BatchRow{ID: uuid.NewString(), Status: statusOpen, CreatedAt: time.Now().UTC()}
			if err := tx.Create(&batch).Error; err != nil {
				return fmt.Errorf("opening batch: %w", err)
			}
		case err != nil:
			return fmt.Errorf("finding open batch: %w", err)
		case r.maxBatchAge > 0 && time.Since(batch.CreatedAt) >= r.maxBatchAge:
			if err := sealBatch(tx, batch.ID); err != nil {
				return err
			}
			batch = BatchRow{ID: uuid.NewString(), Status: statusOpen, CreatedAt: time.Now().UTC()}
			if err := tx.Create(&batch).Error; err != nil {
				return fmt.Errorf("opening batch: %w", err)
			}
		}
		batchID = batch.ID

		row := FeedbackRow{
			ID:           rec.ID,
			BatchID:      batch.ID,
			RuleID:       rec.RuleID,
			ClauseType:   rec.ClauseType,
			Perspective:  rec.Perspective,
			Action:       string(rec.Action),
			Confidence:   rec.Confidence,
			Text:         rec.Text,
			ModifiedText: rec.ModifiedText,
			CreatedAt:    rec.CreatedAt,
		}
		if len(rec.Features) > 0 {
			encoded, err := json.Marshal(rec.Features)
			if err != nil {
				return fmt.Errorf("encoding features: %w", err)
			}
			row.Features = encoded
		}
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("saving feedback record: %w", err)
		}

		var count int64
		if err := tx.Model(&FeedbackRow{}).Where("batch_id = ?", batch.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("counting batch records: %w", err)
		}
		if count >= int64(r.batchSize) {
			return sealBatch(tx, batch.ID)
		}
		return nil
	})
	return batchID, err
}

func (r *FeedbackRepo) CloseOpenBatch(ctx context.Context) (string, error) {
	var batchID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch BatchRow
		err := tx.Where("status = ?", statusOpen).First(&batch).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("finding open batch: %w", err)
		}
		batchID = batch.ID
		return sealBatch(tx, batch.ID)
	})
	return batchID, err
}

func sealBatch(tx *gorm.DB, batchID string) error {
	now := time.Now().UTC()
	err := tx.Model(&BatchRow{}).
		Where("id = ?", batchID).
		Updates(map[string]any{"status": string(feedback.BatchPending), "closed_at": now}).Error
	if err != nil {
		return fmt.Errorf("sealing batch: %w", err)
	}
	return nil
}

func (r *FeedbackRepo) ListPending(ctx context.Context) ([]feedback.Batch, error) {
	var batchRows []BatchRow
	err := r.db.WithContext(ctx).
		Where("status = ?", string(feedback.BatchPending)).
		Order("created_at").
		Find(&batchRows).Error
	if err != nil {
		return nil, fmt.Errorf("listing pending batches: %w", err)
	}

	out := make([]feedback.Batch, 0, len(batchRows))
	for _, br := range batchRows {
		var recordRows []FeedbackRow
		if err := r.db.WithContext(ctx).Where("batch_id = ?", br.ID).Order("created_at").Find(&recordRows).Error; err != nil {
			return nil, fmt.Errorf("loading records for batch %s: %w", br.ID, err)
		}

		batch := feedback.Batch{
			ID:        br.ID,
			Status:    feedback.BatchStatus(br.Status),
			CreatedAt: br.CreatedAt,
		}
		if br.ClosedAt != nil {
			batch.ClosedAt = *br.ClosedAt
		}
		for _, rr := range recordRows {
			rec := feedback.Record{
				ID:           rr.ID,
				RuleID:       rr.RuleID,
				ClauseType:   rr.ClauseType,
				Perspective:  rr.Perspective,
				Action:       feedback.Action(rr.Action),
				Confidence:   rr.Confidence,
				Text:         rr.Text,
				ModifiedText: rr.ModifiedText,
				CreatedAt:    rr.CreatedAt,
			}
			if len(rr.Features) > 0 {
				if err := json.Unmarshal(rr.Features, &rec.Features); err != nil {
					return nil, fmt.Errorf("decoding features for record %s: %w", rr.ID, err)
				}
			}
			batch.Records = append(batch.Records, rec)
		}
		out = append(out, batch)
	}
	return out, nil
}

func (r *FeedbackRepo) MarkCompleted(ctx context.Context, batchID string) error {
	return r.settle(ctx, batchID, feedback.BatchCompleted, "")
}

func (r *FeedbackRepo) MarkFailed(ctx context.Context, batchID, note string) error {
	return r.settle(ctx, batchID, feedback.BatchFailed, note)
}

func (r *FeedbackRepo) settle(ctx context.Context, batchID string, status feedback.BatchStatus, note string) error {
	result := r.db.WithContext(ctx).
		Model(&BatchRow{}).
		Where("id = ? AND status = ?", batchID, string(feedback.BatchPending)).
		Updates(map[string]any{"status": string(status), "note": note})
	if result.Error != nil {
		return fmt.Errorf("settling batch: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var exists int64
		r.db.WithContext(ctx).Model(&BatchRow{}).Where("id = ?", batchID).Count(&exists)
		if exists == 0 {
			return feedback.ErrBatchNotFound
		}
		return feedback.ErrBatchCompleted
	}
	return nil
}

package feedback

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder accepts reviewer feedback on the analysis path. Recording is
// fire-and-forget: persistence failures are logged, never returned, so
// feedback can never break a review flow.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

// Record persists one feedback record, assigning ID and timestamp. The
// returned ID is empty when the record was invalid or persistence failed.
func (r *Recorder) Record(ctx context.Context, rec Record) string {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	batchID, err := r.store.SaveRecord(ctx, rec)
	if err != nil {
		r.logger.Warn("dropping feedback record",
			zap.String("rule_id", rec.RuleID),
			zap.String("action", string(rec.Action)),
			zap.Error(err),
		)
		return ""
	}

	r.logger.Debug("feedback recorded",
		zap.String("record_id", rec.ID),
		zap.String("batch_id", batchID),
		zap.String("rule_id", rec.RuleID),
		zap.String("action", string(rec.Action)),
	)
	return rec.ID
}

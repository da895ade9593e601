package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/redlinelabs/clauselens/internal/features"
)

// WeightsRepo is the gorm-backed features.WeightStore. Every snapshot is
// kept; LoadWeights returns the highest version.
type WeightsRepo struct {
	db *gorm.DB
}

// NewWeightsRepo creates a weight snapshot repository.
func NewWeightsRepo(db *gorm.DB) *WeightsRepo {
	return &WeightsRepo{db: db}
}

func (r *WeightsRepo) LoadWeights(ctx context.Context) (*features.Weights, error) {
	var row WeightsRow
	err := r.db.WithContext(ctx).Order("version DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading weights: %w", err)
	}

	w := &features.Weights{Version: row.Version, UpdatedAt: row.UpdatedAt}
	if err := json.Unmarshal(row.Values, &w.Values); err != nil {
		return nil, fmt.Errorf("decoding weights version %d: %w", row.Version, err)
	}
	return w, nil
}

func (r *WeightsRepo) SaveWeights(ctx context.Context, w *features.Weights) error {
	values, err := json.Marshal(w.Values)
	if err != nil {
		return fmt.Errorf("encoding weights: %w", err)
	}

	row := WeightsRow{Version: w.Version, Values: values, UpdatedAt: w.UpdatedAt}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("saving weights version %d: %w", w.Version, err)
	}
	return nil
}

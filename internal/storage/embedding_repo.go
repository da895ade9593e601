package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EmbeddingRepo is the persistent tier of the embedding cache,
// implementing embedding.KV over Postgres.
type EmbeddingRepo struct {
	db *gorm.DB
}

// NewEmbeddingRepo creates an embedding cache repository.
func NewEmbeddingRepo(db *gorm.DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

func (r *EmbeddingRepo) Get(ctx context.Context, key string) ([]float32, time.Time, bool, error) {
	var row EmbeddingRow
	err := r.db.WithContext(ctx).Where("hash = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("loading cached embedding: %w", err)
	}

	vec, err := decodeVector(row.Vector, row.Dimension)
	if err != nil {
		return nil, time.Time{}, false, err
	}

	// Hit counting is best effort; a failed update never fails the read.
	r.db.WithContext(ctx).
		Model(&EmbeddingRow{}).
		Where("hash = ?", key).
		UpdateColumn("hit_count", gorm.Expr("hit_count + 1"))

	return vec, row.CreatedAt, true, nil
}

func (r *EmbeddingRepo) Put(ctx context.Context, key string, vec []float32, createdAt time.Time) error {
	row := EmbeddingRow{
		Hash:      key,
		Vector:    encodeVector(vec),
		Dimension: len(vec),
		CreatedAt: createdAt,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("storing cached embedding: %w", err)
	}
	return nil
}

// Prune deletes cache rows older than the cutoff and returns how many
// went. Run periodically alongside the learning schedule.
func (r *EmbeddingRepo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&EmbeddingRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("pruning embedding cache: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte, dim int) ([]float32, error) {
	if len(data) != dim*4 {
		return nil, fmt.Errorf("corrupt cached vector: %d bytes for dimension %d", len(data), dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

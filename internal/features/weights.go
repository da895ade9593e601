package features

import (
	"context"
	"sync/atomic"
	"time"
)

// Weights is one immutable version of the learned model. The learning pass
// builds a new Weights value and swaps it in whole; scorers never see a
// partially updated vector.
type Weights struct {
	Version   int64              `json:"version"`
	Values    map[string]float64 `json:"values"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// DefaultWeights returns the hand-tuned starting model used before any
// feedback has been learned.
func DefaultWeights() *Weights {
	return &Weights{
		Version: 1,
		Values: map[string]float64{
			FeatureSpanLength:           0.05,
			FeatureKeywordDensity:       0.20,
			FeatureLegalTermDensity:     0.15,
			FeatureModalVerbCount:       0.10,
			FeatureDefinitionIndicators: 0.05,
			FeatureCrossReferences:      0.05,
			FeatureSentenceCount:        0.02,
			FeatureParagraphCount:       0.02,
			FeatureReadability:          0.06,
			FeatureDocPosition:          0.05,
			FeatureNumberedLists:        0.05,
			FeatureSentiment:            0.20,
		},
		UpdatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy suitable for mutation by a learning pass.
func (w *Weights) Clone() *Weights {
	values := make(map[string]float64, len(w.Values))
	for k, v := range w.Values {
		values[k] = v
	}
	return &Weights{Version: w.Version, Values: values, UpdatedAt: w.UpdatedAt}
}

// Handle is the shared access point for the live weight snapshot. Load is
// lock-free; Swap publishes a new version atomically.
type Handle struct {
	current atomic.Pointer[Weights]
}

// NewHandle creates a handle seeded with the given weights, or defaults
// when nil.
func NewHandle(initial *Weights) *Handle {
	h := &Handle{}
	if initial == nil {
		initial = DefaultWeights()
	}
	h.current.Store(initial)
	return h
}

// Load returns the current snapshot. Callers must treat it as read-only.
func (h *Handle) Load() *Weights {
	return h.current.Load()
}

// Swap publishes a new snapshot and returns the previous one.
func (h *Handle) Swap(next *Weights) *Weights {
	return h.current.Swap(next)
}

// WeightStore persists weight snapshots across restarts.
type WeightStore interface {
	// LoadWeights returns the latest persisted snapshot, or nil when none
	// has been saved yet.
	LoadWeights(ctx context.Context) (*Weights, error)

	// SaveWeights persists a snapshot.
	SaveWeights(ctx context.Context, w *Weights) error
}

package feedback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists feedback records and batches.
type Store interface {
	// SaveRecord appends a record to the open batch, starting one when
	// none is open. It returns the batch the record landed in.
	SaveRecord(ctx context.Context, rec Record) (string, error)

	// CloseOpenBatch seals the currently accumulating batch so the next
	// learning pass picks it up. A nil error with empty ID means nothing
	// was open.
	CloseOpenBatch(ctx context.Context) (string, error)

	// ListPending returns sealed batches not yet learned from, oldest
	// first.
	ListPending(ctx context.Context) ([]Batch, error)

	// MarkCompleted records that a batch was learned from.
	MarkCompleted(ctx context.Context, batchID string) error

	// MarkFailed records that a batch could not be learned from.
	MarkFailed(ctx context.Context, batchID, note string) error
}

// MemoryStore is an in-memory Store. Batches seal automatically at
// batchSize records or, when a maximum age is set, once the open batch
// outlives it; CloseOpenBatch seals early.
type MemoryStore struct {
	mu          sync.Mutex
	batchSize   int
	maxBatchAge time.Duration
	open        *Batch
	sealed      []Batch
	done        map[string]BatchStatus
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMaxBatchAge seals an open batch once it is older than d, so sparse
// feedback still reaches the learner. Zero disables age-based sealing.
func WithMaxBatchAge(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.maxBatchAge = d }
}

// NewMemoryStore creates a store that seals batches at the given size.
func NewMemoryStore(batchSize int, opts ...MemoryStoreOption) *MemoryStore {
	if batchSize <= 0 {
		batchSize = 50
	}
	s := &MemoryStore{
		batchSize: batchSize,
		done:      make(map[string]BatchStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) SaveRecord(ctx context.Context, rec Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open != nil && s.maxBatchAge > 0 && time.Since(s.open.CreatedAt) >= s.maxBatchAge {
		s.sealLocked()
	}
	if s.open == nil {
		s.open = &Batch{
			ID:        uuid.NewString(),
			Status:    BatchPending,
			CreatedAt: time.Now().UTC(),
		}
	}
	s.open.Records = append(s.open.Records, rec)
	id := s.open.ID

	if len(s.open.Records) >= s.batchSize {
		s.sealLocked()
	}
	return id, nil
}

func (s *MemoryStore) CloseOpenBatch(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		return "", nil
	}
	id := s.open.ID
	s.sealLocked()
	return id, nil
}

func (s *MemoryStore) sealLocked() {
	s.open.ClosedAt = time.Now().UTC()
	s.sealed = append(s.sealed, *s.open)
	s.open = nil
}

func (s *MemoryStore) ListPending(ctx context.Context) ([]Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []Batch
	for _, b := range s.sealed {
		if _, settled := s.done[b.ID]; !settled {
			pending = append(pending, b)
		}
	}
	return pending, nil
}

func (s *MemoryStore) MarkCompleted(ctx context.Context, batchID string) error {
	return s.settle(batchID, BatchCompleted, "")
}

func (s *MemoryStore) MarkFailed(ctx context.Context, batchID, note string) error {
	return s.settle(batchID, BatchFailed, note)
}

func (s *MemoryStore) settle(batchID string, status BatchStatus, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sealed {
		if s.sealed[i].ID != batchID {
			continue
		}
		if s.sealed[i].Status != BatchPending {
			return ErrBatchCompleted
		}
		s.sealed[i].Status = status
		s.sealed[i].Note = note
		s.done[batchID] = status
		return nil
	}
	return ErrBatchNotFound
}

package embedding

import (
	"sync"
	"time"
)

type embedResult struct {
	vec []float32
	err error
}

type embedRequest struct {
	key  string
	text string
	done chan embedResult
}

// batchQueue accumulates embedding requests and flushes them either when
// the batch-size threshold is reached or after the flush interval elapses,
// whichever comes first. The pending slice is the one piece of shared
// mutable state; all access is serialized through mu, and take clears the
// slice and stops the timer so exactly one flush runs per accumulated batch.
type batchQueue struct {
	mu       sync.Mutex
	pending  []*embedRequest
	timer    *time.Timer
	size     int
	interval time.Duration
	flush    func([]*embedRequest)
	closed   bool
}

func newBatchQueue(size int, interval time.Duration, flush func([]*embedRequest)) *batchQueue {
	if size <= 0 {
		size = 16
	}
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &batchQueue{
		size:     size,
		interval: interval,
		flush:    flush,
	}
}

func (q *batchQueue) enqueue(req *embedRequest) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		req.done <- embedResult{err: ErrServiceClosed}
		return
	}

	q.pending = append(q.pending, req)

	if len(q.pending) >= q.size {
		batch := q.takeLocked()
		q.mu.Unlock()
		go q.flush(batch)
		return
	}

	if len(q.pending) == 1 {
		q.timer = time.AfterFunc(q.interval, q.onTimer)
	}
	q.mu.Unlock()
}

// takeLocked removes and returns the accumulated batch. Must be called with
// mu held. Stopping the timer here guarantees the timeout trigger cannot
// flush the same batch a second time.
func (q *batchQueue) takeLocked() []*embedRequest {
	batch := q.pending
	q.pending = nil
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	return batch
}

func (q *batchQueue) onTimer() {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	batch := q.takeLocked()
	q.mu.Unlock()
	q.flush(batch)
}

// close rejects future requests and fails any still pending.
func (q *batchQueue) close() {
	q.mu.Lock()
	q.closed = true
	batch := q.takeLocked()
	q.mu.Unlock()

	for _, req := range batch {
		req.done <- embedResult{err: ErrServiceClosed}
	}
}

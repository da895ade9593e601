package embedding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchQueue_FlushOnSize(t *testing.T) {
	var mu sync.Mutex
	var flushed [][]string

	q := newBatchQueue(3, time.Minute, func(reqs []*embedRequest) {
		mu.Lock()
		defer mu.Unlock()
		texts := make([]string, len(reqs))
		for i, r := range reqs {
			texts[i] = r.text
			r.done <- embedResult{vec: []float32{1}}
		}
		flushed = append(flushed, texts)
	})

	reqs := make([]*embedRequest, 3)
	for i := range reqs {
		reqs[i] = &embedRequest{text: "t", done: make(chan embedResult, 1)}
		q.enqueue(reqs[i])
	}

	for _, r := range reqs {
		select {
		case <-r.done:
		case <-time.After(time.Second):
			t.Fatal("expected flush on reaching batch size")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, flushed, 1)
	assert.Len(t, flushed[0], 3)
}

func TestBatchQueue_FlushOnTimeout(t *testing.T) {
	q := newBatchQueue(100, 20*time.Millisecond, func(reqs []*embedRequest) {
		for _, r := range reqs {
			r.done <- embedResult{vec: []float32{1}}
		}
	})

	req := &embedRequest{text: "t", done: make(chan embedResult, 1)}
	q.enqueue(req)

	select {
	case <-req.done:
	case <-time.After(time.Second):
		t.Fatal("expected flush on timeout")
	}
}

func TestBatchQueue_SingleFlushPerBatch(t *testing.T) {
	var mu sync.Mutex
	flushes := 0

	q := newBatchQueue(2, 10*time.Millisecond, func(reqs []*embedRequest) {
		mu.Lock()
		flushes++
		mu.Unlock()
		for _, r := range reqs {
			r.done <- embedResult{vec: []float32{1}}
		}
	})

	// Fill to the size threshold, then wait past the timer: the timer
	// must not fire a second flush for the same batch.
	a := &embedRequest{text: "a", done: make(chan embedResult, 1)}
	b := &embedRequest{text: "b", done: make(chan embedResult, 1)}
	q.enqueue(a)
	q.enqueue(b)
	<-a.done
	<-b.done

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, flushes)
}

func TestBatchQueue_CloseFailsPending(t *testing.T) {
	q := newBatchQueue(100, time.Minute, func(reqs []*embedRequest) {})

	req := &embedRequest{text: "t", done: make(chan embedResult, 1)}
	q.enqueue(req)
	q.close()

	res := <-req.done
	assert.ErrorIs(t, res.err, ErrServiceClosed)

	late := &embedRequest{text: "t", done: make(chan embedResult, 1)}
	q.enqueue(late)
	res = <-late.done
	assert.ErrorIs(t, res.err, ErrServiceClosed)
}

func TestService_BatchedEmbed(t *testing.T) {
	provider := newCountingProvider()
	svc := newTestService(t, provider, Config{BatchSize: 4, FlushInterval: 20 * time.Millisecond})

	// Four distinct texts from concurrent callers should coalesce into
	// one provider call once the batch fills.
	texts := []string{"clause one", "clause two", "clause three", "clause four"}
	var wg sync.WaitGroup
	for _, text := range texts {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_, err := svc.Embed(context.Background(), []string{text}, PriorityNormal)
			assert.NoError(t, err)
		}(text)
	}
	wg.Wait()

	assert.Equal(t, 1, provider.callCount())
}

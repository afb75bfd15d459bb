package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/houzhh15/minutes/cmd/minutes/internal/metrics"
	"github.com/houzhh15/minutes/pkg/logger"
)

// WorkQueue is an unbounded FIFO between the capture side and the
// transcription workers. Push never blocks and never drops; growing past
// the soft cap is reported once per excursion.
type WorkQueue[T any] struct {
	mu      sync.Mutex
	items   []T
	closed  bool
	ready   chan struct{}
	softCap int
	over    bool
	log     *slog.Logger
}

// NewWorkQueue creates a queue; softCap <= 0 disables the warning.
func NewWorkQueue[T any](softCap int, log *slog.Logger) *WorkQueue[T] {
	if log == nil {
		log = logger.Discard()
	}
	return &WorkQueue[T]{ready: make(chan struct{}, 1), softCap: softCap, log: log}
}

// Push appends v. It returns false once the queue is closed.
func (q *WorkQueue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	depth := len(q.items)
	metrics.SetQueueDepth(depth, q.softCap)
	if q.softCap > 0 && depth > q.softCap && !q.over {
		q.over = true
		q.log.Warn("transcription queue above soft cap, latency will grow",
			"depth", depth, "soft_cap", q.softCap)
	}
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// Pop returns the oldest item, blocking until one is available. It returns
// false when the queue is closed and empty, or ctx is done.
func (q *WorkQueue[T]) Pop(ctx context.Context) (T, bool) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			depth := len(q.items)
			if depth <= q.softCap {
				q.over = false
			}
			q.mu.Unlock()
			metrics.SetQueueDepth(depth, 0)
			return v, true
		}
		if q.closed {
			q.mu.Unlock()
			return zero, false
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return zero, false
		}
	}
}

// Len is the number of items waiting.
func (q *WorkQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting items. Items already queued can still be popped.
func (q *WorkQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}

package transcript

import (
	"log/slog"
	"sync"

	"github.com/houzhh15/minutes/pkg/logger"
)

// feedBuffer is the per-subscriber channel capacity.
const feedBuffer = 64

// Feed is a Sink that fans appended segments out to live subscribers. Slow
// subscribers miss segments rather than stall the transcript. Closing the
// sink at the end of a session keeps subscribers attached; Shutdown detaches
// them.
type Feed struct {
	mu     sync.Mutex
	subs   map[int]chan Segment
	nextID int
	done   bool
	log    *slog.Logger
}

// NewFeed creates a feed without subscribers.
func NewFeed(log *slog.Logger) *Feed {
	if log == nil {
		log = logger.Discard()
	}
	return &Feed{subs: make(map[int]chan Segment), log: log}
}

// Subscribe streams every segment appended after the call. The returned
// cancel func unsubscribes and closes the channel.
func (f *Feed) Subscribe() (<-chan Segment, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Segment, feedBuffer)
	if f.done {
		close(ch)
		return ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers counts attached subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) Append(seg Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- seg:
		default:
			f.log.Warn("subscriber is behind, dropping event", "seq", seg.Seq)
		}
	}
	return nil
}

func (f *Feed) Close() error { return nil }

// Shutdown closes every subscriber channel; later subscriptions start closed.
func (f *Feed) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

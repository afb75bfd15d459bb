package transcript

import (
	"sort"
	"sync"
)

// Reorderer buffers completed segments and releases them in sequence order,
// so a later utterance finishing first waits for the earlier ones.
type Reorderer struct {
	mu      sync.Mutex
	next    int
	pending map[int]Segment
}

// NewReorderer expects first as the first sequence number.
func NewReorderer(first int) *Reorderer {
	return &Reorderer{next: first, pending: make(map[int]Segment)}
}

// Complete records a finished segment and returns every segment that is now
// releasable, in order. Sequences already released or already pending are ignored.
func (r *Reorderer) Complete(seg Segment) []Segment {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seg.Seq < r.next {
		return nil
	}
	if _, dup := r.pending[seg.Seq]; dup {
		return nil
	}
	r.pending[seg.Seq] = seg

	var out []Segment
	for {
		s, ok := r.pending[r.next]
		if !ok {
			return out
		}
		delete(r.pending, r.next)
		out = append(out, s)
		r.next++
	}
}

// Pending counts segments waiting on an earlier sequence.
func (r *Reorderer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Next is the sequence number the reorderer is waiting for.
func (r *Reorderer) Next() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// Drain releases everything still buffered in sequence order, skipping the
// gaps. Called once no more completions can arrive.
func (r *Reorderer) Drain() []Segment {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Segment, 0, len(r.pending))
	for _, s := range r.pending {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if n := len(out); n > 0 {
		r.next = out[n-1].Seq + 1
	}
	r.pending = make(map[int]Segment)
	return out
}

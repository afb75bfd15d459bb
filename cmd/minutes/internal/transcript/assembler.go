package transcript

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/houzhh15/minutes/pkg/logger"
	"github.com/houzhh15/minutes/pkg/simhash"
)

// ErrOutOfOrder is returned when a segment does not follow the last appended one.
var ErrOutOfOrder = errors.New("segment out of order")

// ErrClosed is returned by Append after Finalize.
var ErrClosed = errors.New("transcript closed")

// Sink receives appended segments in order. Durable sinks must not return
// from Append until the segment is persisted.
type Sink interface {
	Append(seg Segment) error
	Close() error
}

// Assembler owns the transcript of one session.
type Assembler struct {
	mu       sync.Mutex
	segments []Segment
	lastSeq  int
	closed   bool
	sinks    []Sink
	repeats  *simhash.RepetitionDetector
	log      *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithSinks adds durable sinks, written in the given order.
func WithSinks(sinks ...Sink) Option {
	return func(a *Assembler) { a.sinks = append(a.sinks, sinks...) }
}

// WithRepetitionDetector flags near-duplicate consecutive segments.
func WithRepetitionDetector(d *simhash.RepetitionDetector) Option {
	return func(a *Assembler) { a.repeats = d }
}

// NewAssembler creates an empty, open transcript.
func NewAssembler(log *slog.Logger, opts ...Option) *Assembler {
	if log == nil {
		log = logger.Discard()
	}
	a := &Assembler{log: log.With("component", "assemble")}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Append adds seg to the transcript and writes it to every sink before
// returning. Sequence numbers must strictly increase.
func (a *Assembler) Append(seg Segment) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if len(a.segments) > 0 && seg.Seq <= a.lastSeq {
		return fmt.Errorf("%w: got %d after %d", ErrOutOfOrder, seg.Seq, a.lastSeq)
	}
	if a.repeats != nil && seg.Status == StatusOK && a.repeats.Observe(seg.Text) {
		seg.Repeated = true
		a.log.Warn("segment repeats the previous one", "seq", seg.Seq, "text", seg.Text)
	}

	a.segments = append(a.segments, seg)
	a.lastSeq = seg.Seq

	var errs []error
	for _, s := range a.sinks {
		if err := s.Append(seg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Segments returns a copy of the appended segments.
func (a *Assembler) Segments() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Segment(nil), a.segments...)
}

// Len is the number of appended segments.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.segments)
}

// Text renders the transcript as plain text.
func (a *Assembler) Text() string {
	return Join(a.Segments())
}

// Finalize closes the transcript and its sinks and returns the full text.
// Calling it again returns the same text.
func (a *Assembler) Finalize() (string, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return a.Text(), nil
	}
	a.closed = true
	var errs []error
	for _, s := range a.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	text := Join(a.segments)
	n := len(a.segments)
	a.mu.Unlock()

	a.log.Info("transcript finalized", "segments", n)
	return text, errors.Join(errs...)
}

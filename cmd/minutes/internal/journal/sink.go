package journal

import (
	"context"
	"time"

	"github.com/houzhh15/minutes/cmd/minutes/internal/transcript"
)

// Sink adapts a journal session to transcript.Sink.
type Sink struct {
	store     *Store
	sessionID string
	timeout   time.Duration
}

// NewSink writes segments to sessionID. Closing the sink does not end the
// session; the orchestrator records the final status.
func NewSink(store *Store, sessionID string) *Sink {
	return &Sink{store: store, sessionID: sessionID, timeout: 5 * time.Second}
}

// SessionID of the journaled session.
func (s *Sink) SessionID() string { return s.sessionID }

func (s *Sink) Append(seg transcript.Segment) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.store.AppendSegment(ctx, s.sessionID, seg)
}

func (s *Sink) Close() error { return nil }

// Package transcript assembles transcribed utterances into an ordered,
// durably persisted transcript.
package transcript

import (
	"strings"
	"time"
)

// Status describes how a segment's text was obtained.
type Status string

const (
	StatusOK        Status = "ok"
	StatusFailed    Status = "failed"
	StatusDegraded  Status = "degraded"
	StatusAbandoned Status = "abandoned"
)

// Segment is the transcription of one utterance.
type Segment struct {
	Seq        int           `json:"seq"`
	Text       string        `json:"text"`
	Language   string        `json:"language,omitempty"`
	Confidence *float64      `json:"confidence,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	Offset     time.Duration `json:"offset"`
	Duration   time.Duration `json:"duration"`
	Status     Status        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Repeated   bool          `json:"repeated,omitempty"`
}

// HasText reports whether the segment carries non-blank text.
func (s Segment) HasText() bool { return strings.TrimSpace(s.Text) != "" }

// Failed reports whether the engine produced no usable result.
func (s Segment) Failed() bool { return s.Status == StatusFailed || s.Status == StatusAbandoned }

// Join renders segments as plain text, one non-empty segment per line.
func Join(segments []Segment) string {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		if s.HasText() {
			lines = append(lines, strings.TrimSpace(s.Text))
		}
	}
	return strings.Join(lines, "\n")
}

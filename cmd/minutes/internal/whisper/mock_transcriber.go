package whisper

import (
	"context"
	"log/slog"

	"github.com/houzhh15/minutes/pkg/logger"
)

// MockTranscriber implements Transcriber as the "degraded mode" fallback.
//
// Behavior:
//   - Transcribe: returns an empty result with nil error and never blocks
//   - HealthCheck: always false, so the degradation controller knows it is a fallback
//   - Logs a warning per call so degraded sessions are visible
type MockTranscriber struct {
	log *slog.Logger
}

// NewMockTranscriber creates a MockTranscriber; a nil logger discards.
func NewMockTranscriber(log *slog.Logger) *MockTranscriber {
	if log == nil {
		log = logger.Discard()
	}
	return &MockTranscriber{log: log}
}

// Transcribe returns an empty result. Segments built from it are marked
// degraded by the pipeline rather than failed.
func (m *MockTranscriber) Transcribe(ctx context.Context, req *Request) (*TranscriptionResult, error) {
	m.log.Warn("transcription engine unavailable, returning empty text (degraded mode)", "seq", req.Seq)
	return &TranscriptionResult{
		Segments: []TranscriptionSegment{},
		Text:     "",
		Language: "unknown",
		Duration: req.Duration().Seconds(),
	}, nil
}

// HealthCheck always reports unhealthy.
func (m *MockTranscriber) HealthCheck(ctx context.Context) (bool, error) {
	return false, nil
}

// Name identifies degraded mode in logs and the status API.
func (m *MockTranscriber) Name() string {
	return MockName
}

// MockName is the Name of MockTranscriber.
const MockName = "mock-degraded"

// Package whisper provides an abstraction layer for speech-to-text engines.
// It defines the engine boundary used by the transcription pipeline and ships
// adapters for a go-whisper HTTP service, a local whisper program, the OpenAI
// audio API, Google Cloud Speech, and a degraded no-op fallback.
package whisper

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ModelSize names a Whisper model tier.
type ModelSize string

const (
	ModelTiny    ModelSize = "tiny"
	ModelBase    ModelSize = "base"
	ModelSmall   ModelSize = "small"
	ModelMedium  ModelSize = "medium"
	ModelLargeV3 ModelSize = "large-v3"
)

// DefaultModelSize trades speed for the best accuracy.
const DefaultModelSize = ModelLargeV3

// ModelSizes lists every accepted size in increasing order.
var ModelSizes = []ModelSize{ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLargeV3}

// ParseModelSize validates a model size string. "large" is accepted as an
// alias for large-v3.
func ParseModelSize(s string) (ModelSize, error) {
	v := ModelSize(strings.ToLower(strings.TrimSpace(s)))
	if v == "large" {
		return ModelLargeV3, nil
	}
	for _, m := range ModelSizes {
		if v == m {
			return m, nil
		}
	}
	return "", NewTranscriptionError(ErrCodeInvalidModel, "",
		fmt.Sprintf("unknown model size %q (want one of tiny, base, small, medium, large-v3)", s), nil)
}

// TranscriptionSegment represents a single segment of transcribed audio with timing information.
// Each segment corresponds to a continuous speech interval within one request.
type TranscriptionSegment struct {
	// ID is the sequential identifier of this segment within the transcription
	ID int `json:"id"`

	// Start is the beginning time of this segment in seconds from the request start
	Start float64 `json:"start"`

	// End is the ending time of this segment in seconds from the request start
	End float64 `json:"end"`

	// Text is the transcribed text content of this segment
	Text string `json:"text"`
}

// TranscriptionResult represents the complete result of one transcription request.
type TranscriptionResult struct {
	// Segments is the list of transcribed segments with timing information
	Segments []TranscriptionSegment `json:"segments"`

	// Text is the complete transcribed text (concatenation of all segment texts)
	Text string `json:"text"`

	// Language is the detected or specified language code (e.g., "en", "ja")
	Language string `json:"language"`

	// Confidence is the engine's confidence in [0, 1], nil when the engine reports none
	Confidence *float64 `json:"confidence,omitempty"`

	// Duration is the total duration of the audio in seconds
	Duration float64 `json:"duration"`
}

// FullText returns Text, falling back to the joined segment texts for
// engines that only report segments.
func (r *TranscriptionResult) FullText() string {
	if r == nil {
		return ""
	}
	if t := strings.TrimSpace(r.Text); t != "" {
		return t
	}
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Request carries one block of audio to transcribe.
type Request struct {
	// Seq identifies the utterance for logging and error reporting (0 for whole-file requests)
	Seq int

	// Samples are mono samples normalized to [-1, 1]
	Samples []float32

	// SampleRate of Samples in Hz (16000 expected by every engine)
	SampleRate int

	// Options tune the engine call; nil means engine defaults
	Options *TranscribeOptions
}

// Duration returns the audio length of the request.
func (r *Request) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(r.Samples)) * time.Second / time.Duration(r.SampleRate)
}

// Transcriber defines the standard interface for speech-to-text engines.
// All concrete implementations (GoWhisperImpl, LocalWhisperImpl, OpenAIImpl,
// GoogleSpeechImpl, MockTranscriber) implement it so the degradation controller
// and the pipeline can use them interchangeably.
type Transcriber interface {
	// Transcribe converts one block of audio to text.
	//
	// Parameters:
	//   - ctx: Context for timeout control and cancellation
	//   - req: Samples, sample rate and options
	//
	// Returns:
	//   - *TranscriptionResult: Text plus language and optional confidence
	//   - error: A *TranscriptionError when the engine is unavailable or output cannot be decoded
	//
	// Implementation notes:
	//   - Must respect context timeout and cancellation
	//   - Very short requests (a single frame) must not fail; an empty result is fine
	Transcribe(ctx context.Context, req *Request) (*TranscriptionResult, error)

	// HealthCheck verifies that the engine is operational.
	//
	// Returns:
	//   - bool: true if the engine is ready to transcribe
	//   - error: Non-nil when the probe itself failed (network error, program missing)
	//
	// Should be lightweight and finish well within 10 seconds.
	HealthCheck(ctx context.Context) (bool, error)

	// Name returns the identifier used in logs, metrics and the status API
	// (e.g., "go-whisper", "local-whisper", "openai", "google-speech", "mock-degraded").
	Name() string
}

// TranscribeOptions defines optional parameters for the Transcribe operation.
// All fields are optional; implementations provide sensible defaults.
type TranscribeOptions struct {
	// Model is the Whisper model tier.
	// Default: large-v3
	Model ModelSize

	// Language hints the spoken language (ISO 639-1, e.g., "ja", "en").
	// Empty string means auto-detection.
	Language string

	// Prompt provides context to improve accuracy (domain terms, names).
	Prompt string

	// Temperature is the decoding temperature; 0 reduces hallucinated repetitions.
	Temperature float64

	// Timeout bounds one engine call. Zero means the engine default.
	Timeout time.Duration
}

func (o *TranscribeOptions) model() ModelSize {
	if o == nil || o.Model == "" {
		return DefaultModelSize
	}
	return o.Model
}

func (o *TranscribeOptions) language() string {
	if o == nil {
		return ""
	}
	return o.Language
}

func (o *TranscribeOptions) prompt() string {
	if o == nil {
		return ""
	}
	return o.Prompt
}

func (o *TranscribeOptions) temperature() float64 {
	if o == nil || o.Temperature < 0 {
		return 0
	}
	return o.Temperature
}

// withTimeout applies the per-call timeout from options, if any.
func withTimeout(ctx context.Context, o *TranscribeOptions) (context.Context, context.CancelFunc) {
	if o == nil || o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

func float64Ptr(v float64) *float64 { return &v }

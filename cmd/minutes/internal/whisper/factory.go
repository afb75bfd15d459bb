package whisper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/houzhh15/minutes/pkg/retry"
)

// Engine kinds accepted by NewFromSettings.
const (
	KindHTTP   = "http"
	KindCLI    = "cli"
	KindOpenAI = "openai"
	KindGoogle = "google"
	KindMock   = "mock"
)

// Kinds lists the engine kinds in documentation order.
var Kinds = []string{KindHTTP, KindCLI, KindOpenAI, KindGoogle, KindMock}

// EngineSettings selects and configures one engine adapter.
type EngineSettings struct {
	Kind        string
	URL         string // go-whisper base URL or OpenAI-compatible base URL
	Program     string // local whisper executable
	WorkDir     string // temp dir for the local program
	APIKey      string
	APIModel    string // OpenAI or Google model name
	Credentials string // Google credentials file
	Retry       retry.Policy
}

// NewFromSettings builds the configured engine.
func NewFromSettings(ctx context.Context, s EngineSettings, log *slog.Logger) (Transcriber, error) {
	switch strings.ToLower(s.Kind) {
	case KindHTTP, "":
		if s.URL == "" {
			return nil, fmt.Errorf("engine %q requires a URL", KindHTTP)
		}
		return NewGoWhisperImpl(s.URL, s.Retry, log), nil
	case KindCLI:
		return NewLocalWhisperImpl(s.Program, s.WorkDir, log)
	case KindOpenAI:
		return NewOpenAIImpl(s.APIKey, s.URL, s.APIModel, s.Retry, log), nil
	case KindGoogle:
		return NewGoogleSpeechImpl(ctx, s.Credentials, s.APIModel, s.Retry, log)
	case KindMock:
		return NewMockTranscriber(log), nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q (want one of %s)", s.Kind, strings.Join(Kinds, ", "))
	}
}

package generation

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/houzhh15/minutes/pkg/retry"
)

// Backend kinds accepted by New.
const (
	KindOllama = "ollama"
	KindOpenAI = "openai"
)

// Settings selects and configures a backend.
type Settings struct {
	Kind     string
	Endpoint string
	APIKey   string
	Retry    retry.Policy
}

// New builds the backend named by s.Kind.
func New(s Settings, log *slog.Logger) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "", KindOllama:
		return NewOllamaBackend(s.Endpoint, s.Retry, log), nil
	case KindOpenAI:
		return NewOpenAIBackend(s.APIKey, s.Endpoint, s.Retry, log), nil
	default:
		return nil, fmt.Errorf("unknown generation backend %q (want ollama or openai)", s.Kind)
	}
}

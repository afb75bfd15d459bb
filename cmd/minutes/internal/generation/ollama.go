package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/houzhh15/minutes/pkg/logger"
	"github.com/houzhh15/minutes/pkg/metrics"
	"github.com/houzhh15/minutes/pkg/retry"
)

// DefaultOllamaURL is the local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// numPredict caps generated tokens; long meetings produce long corrections.
const numPredict = 8192

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// OllamaBackend calls a local Ollama server's /api/chat endpoint with
// deterministic sampling.
type OllamaBackend struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	log        *slog.Logger
}

// NewOllamaBackend creates a backend for baseURL (DefaultOllamaURL when empty).
func NewOllamaBackend(baseURL string, policy retry.Policy, log *slog.Logger) *OllamaBackend {
	if log == nil {
		log = logger.Discard()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOllamaURL
	}
	return &OllamaBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Minute},
		policy:     policy,
		log:        log.With("backend", "ollama"),
	}
}

func (o *OllamaBackend) Name() string { return "ollama" }

// Generate sends one non-streaming chat request.
func (o *OllamaBackend) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	payload := ollamaChatRequest{
		Model:   req.Model,
		Stream:  false,
		Options: map[string]any{"temperature": 0, "num_predict": numPredict},
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	payload.Messages = append(payload.Messages, ollamaMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		payload.Format = "json"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", NewGenerationError(ErrCodeMalformed, o.Name(), req.Model, "encode request", err)
	}

	start := time.Now()
	text, err := retry.Do(ctx, o.policy, o.log, "ollama chat", func(ctx context.Context) (string, error) {
		return o.chat(ctx, body, req.Model)
	})
	metrics.RecordBackendDuration(o.Name(), "generate", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordBackendCall(o.Name(), "generate", "failed")
		var ge *GenerationError
		if errors.As(err, &ge) {
			return "", ge
		}
		return "", NewGenerationError(ErrCodeUnreachable, o.Name(), req.Model, "chat request failed", err)
	}
	metrics.RecordBackendCall(o.Name(), "generate", "success")
	return text, nil
}

func (o *OllamaBackend) chat(ctx context.Context, body []byte, model string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(NewGenerationError(ErrCodeUnreachable, o.Name(), model, "build request", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		gerr := NewGenerationError(ErrCodeUnreachable, o.Name(), model, "server not reachable (is `ollama serve` running?)", err)
		if ctx.Err() != nil {
			return "", retry.Permanent(gerr)
		}
		return "", gerr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", retry.Permanent(NewGenerationError(ErrCodeRejected, o.Name(), model, detail, nil))
		}
		return "", NewGenerationError(ErrCodeUnreachable, o.Name(), model, detail, nil)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", retry.Permanent(NewGenerationError(ErrCodeMalformed, o.Name(), model, "decode response", err))
	}
	if out.Error != "" {
		return "", retry.Permanent(NewGenerationError(ErrCodeRejected, o.Name(), model, out.Error, nil))
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return "", retry.Permanent(NewGenerationError(ErrCodeMalformed, o.Name(), model, "empty response content", nil))
	}
	o.log.Debug("chat response", "model", model, "chars", len(out.Message.Content))
	return out.Message.Content, nil
}

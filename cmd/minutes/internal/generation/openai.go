package generation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/houzhh15/minutes/cmd/minutes/internal/openaiapi"
	"github.com/houzhh15/minutes/pkg/logger"
	"github.com/houzhh15/minutes/pkg/metrics"
	"github.com/houzhh15/minutes/pkg/retry"
)

// OpenAIBackend calls the chat completions API of OpenAI or any compatible
// server.
type OpenAIBackend struct {
	client *openai.Client
	policy retry.Policy
	log    *slog.Logger
}

// NewOpenAIBackend creates a backend; an empty baseURL means api.openai.com.
func NewOpenAIBackend(apiKey, baseURL string, policy retry.Policy, log *slog.Logger) *OpenAIBackend {
	if log == nil {
		log = logger.Discard()
	}
	return &OpenAIBackend{
		client: openaiapi.NewClient(apiKey, baseURL),
		policy: policy,
		log:    log.With("backend", "openai"),
	}
}

func (o *OpenAIBackend) Name() string { return "openai" }

// Generate sends one chat completion with temperature 0.
func (o *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
		// a zero temperature is dropped by omitempty
		Temperature: math.SmallestNonzeroFloat32,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	text, err := retry.Do(ctx, o.policy, o.log, "openai chat", func(ctx context.Context) (string, error) {
		resp, err := o.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			if ctx.Err() != nil {
				return "", retry.Permanent(NewGenerationError(ErrCodeUnreachable, o.Name(), req.Model, "request canceled", err))
			}
			if !openaiapi.Retryable(err) {
				return "", retry.Permanent(NewGenerationError(ErrCodeRejected, o.Name(), req.Model, "request rejected", err))
			}
			return "", NewGenerationError(ErrCodeUnreachable, o.Name(), req.Model, "chat completion failed", err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return "", retry.Permanent(NewGenerationError(ErrCodeMalformed, o.Name(), req.Model, "empty completion", nil))
		}
		return resp.Choices[0].Message.Content, nil
	})
	metrics.RecordBackendDuration(o.Name(), "generate", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordBackendCall(o.Name(), "generate", "failed")
		var ge *GenerationError
		if errors.As(err, &ge) {
			return "", ge
		}
		return "", NewGenerationError(ErrCodeUnreachable, o.Name(), req.Model, "chat completion failed", err)
	}
	metrics.RecordBackendCall(o.Name(), "generate", "success")
	return text, nil
}

package whisper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
	"github.com/houzhh15/minutes/cmd/minutes/internal/openaiapi"
	"github.com/houzhh15/minutes/pkg/logger"
	"github.com/houzhh15/minutes/pkg/metrics"
	"github.com/houzhh15/minutes/pkg/retry"
)

// OpenAIImpl implements Transcriber with the OpenAI audio transcription API
// or a compatible server (e.g., a self-hosted faster-whisper with an
// OpenAI-style endpoint).
type OpenAIImpl struct {
	client *openai.Client
	// model overrides the API model name; empty means whisper-1
	model  string
	policy retry.Policy
	log    *slog.Logger
}

// NewOpenAIImpl creates an OpenAIImpl.
//
// Parameters:
//   - apiKey: API key (may be empty for local compatible servers)
//   - baseURL: API base URL; empty means api.openai.com
//   - model: API model name; empty means whisper-1
func NewOpenAIImpl(apiKey, baseURL, model string, policy retry.Policy, log *slog.Logger) *OpenAIImpl {
	if log == nil {
		log = logger.Discard()
	}
	return &OpenAIImpl{
		client: openaiapi.NewClient(apiKey, baseURL),
		model:  model,
		policy: policy,
		log:    log.With("engine", "openai"),
	}
}

// Transcribe uploads the utterance as WAV with verbose_json output so the
// detected language and per-segment log probabilities come back.
func (o *OpenAIImpl) Transcribe(ctx context.Context, req *Request) (*TranscriptionResult, error) {
	if len(req.Samples) == 0 {
		return &TranscriptionResult{Segments: []TranscriptionSegment{}, Language: req.Options.language()}, nil
	}
	ctx, cancel := withTimeout(ctx, req.Options)
	defer cancel()

	model := o.model
	if model == "" {
		model = openai.Whisper1
	}
	wav := audio.EncodeWAV(req.Samples, req.SampleRate)

	start := time.Now()
	resp, err := retry.Do(ctx, o.policy, o.log, "openai transcribe", func(ctx context.Context) (openai.AudioResponse, error) {
		r, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:       model,
			FilePath:    fmt.Sprintf("utterance-%04d.wav", req.Seq),
			Reader:      bytes.NewReader(wav),
			Prompt:      req.Options.prompt(),
			Temperature: float32(req.Options.temperature()),
			Language:    req.Options.language(),
			Format:      openai.AudioResponseFormatVerboseJSON,
		})
		if err != nil && !openaiapi.Retryable(err) {
			return r, retry.Permanent(err)
		}
		return r, err
	})
	metrics.RecordBackendDuration(o.Name(), "transcribe", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordBackendCall(o.Name(), "transcribe", "failed")
		code := ErrCodeEngineHTTP
		if openaiapi.Unreachable(err) {
			code = ErrCodeEngineUnavailable
		}
		if ctx.Err() != nil {
			return nil, AsTranscriptionError(ctx.Err(), o.Name(), req.Seq)
		}
		terr := NewTranscriptionError(code, o.Name(), "transcription request failed", err)
		terr.Seq = req.Seq
		return nil, terr
	}
	metrics.RecordBackendCall(o.Name(), "transcribe", "success")

	result := &TranscriptionResult{
		Segments: make([]TranscriptionSegment, 0, len(resp.Segments)),
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
	}
	var logprob float64
	for _, s := range resp.Segments {
		result.Segments = append(result.Segments, TranscriptionSegment{ID: s.ID, Start: s.Start, End: s.End, Text: s.Text})
		logprob += s.AvgLogprob
	}
	if n := len(resp.Segments); n > 0 {
		result.Confidence = float64Ptr(math.Exp(logprob / float64(n)))
	}
	if result.Language == "" {
		result.Language = req.Options.language()
	}
	result.Text = result.FullText()
	return result, nil
}

// HealthCheck lists models, which needs a valid key but costs nothing.
func (o *OpenAIImpl) HealthCheck(ctx context.Context) (bool, error) {
	if _, err := o.client.ListModels(ctx); err != nil {
		return false, fmt.Errorf("list models: %w", err)
	}
	return true, nil
}

// Name returns the identifier of this transcriber implementation.
func (o *OpenAIImpl) Name() string {
	return "openai"
}

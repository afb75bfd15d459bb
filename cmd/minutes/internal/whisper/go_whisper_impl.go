package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
	"github.com/houzhh15/minutes/pkg/logger"
	"github.com/houzhh15/minutes/pkg/metrics"
	"github.com/houzhh15/minutes/pkg/retry"
)

// GoWhisperImpl implements Transcriber for a go-whisper HTTP service
// (ghcr.io/mutablelogic/go-whisper). Each utterance is encoded as an in-memory
// WAV and uploaded as multipart/form-data.
type GoWhisperImpl struct {
	apiURL     string       // Base URL of the go-whisper service (e.g., "http://localhost:8082")
	httpClient *http.Client // Reusable HTTP client
	policy     retry.Policy
	log        *slog.Logger
}

// NewGoWhisperImpl creates a GoWhisperImpl for the given base URL.
//
// Parameters:
//   - apiURL: Base URL of the go-whisper service
//   - policy: Retry policy for transient failures (network errors, 5xx)
//   - log: Logger; nil discards
//
// The HTTP client timeout is generous because a hard-sealed utterance can be
// minutes long; per-request deadlines come from TranscribeOptions.Timeout.
func NewGoWhisperImpl(apiURL string, policy retry.Policy, log *slog.Logger) *GoWhisperImpl {
	if log == nil {
		log = logger.Discard()
	}
	return &GoWhisperImpl{
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		policy:     policy,
		log:        log.With("engine", "go-whisper"),
	}
}

// Transcribe sends the utterance to POST {apiURL}/api/whisper/transcribe.
//
// Implementation details:
//   - Encodes samples as 16-bit PCM WAV in memory
//   - Sends audio, model, response_format=json, temperature, and the optional language and prompt fields
//   - Retries network errors and 5xx responses; 4xx and undecodable bodies fail immediately
//
// Reference: https://github.com/mutablelogic/go-whisper/blob/main/doc/API.md#transcription
func (g *GoWhisperImpl) Transcribe(ctx context.Context, req *Request) (*TranscriptionResult, error) {
	if len(req.Samples) == 0 {
		return &TranscriptionResult{Segments: []TranscriptionSegment{}, Language: req.Options.language()}, nil
	}
	ctx, cancel := withTimeout(ctx, req.Options)
	defer cancel()

	wav := audio.EncodeWAV(req.Samples, req.SampleRate)
	start := time.Now()
	result, err := retry.Do(ctx, g.policy, g.log, "go-whisper transcribe", func(ctx context.Context) (*TranscriptionResult, error) {
		return g.post(ctx, wav, req.Options)
	})
	metrics.RecordBackendDuration(g.Name(), "transcribe", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordBackendCall(g.Name(), "transcribe", "failed")
		return nil, AsTranscriptionError(err, g.Name(), req.Seq)
	}
	metrics.RecordBackendCall(g.Name(), "transcribe", "success")
	result.Text = result.FullText()
	return result, nil
}

func (g *GoWhisperImpl) post(ctx context.Context, wav []byte, opts *TranscribeOptions) (*TranscriptionResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", "utterance.wav")
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create form file: %w", err))
	}
	if _, err := part.Write(wav); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to write audio data: %w", err))
	}

	fields := [][2]string{
		{"model", "ggml-" + string(opts.model())},
		{"response_format", "json"},
		{"temperature", fmt.Sprintf("%.1f", opts.temperature())},
	}
	if lang := opts.language(); lang != "" {
		fields = append(fields, [2]string{"language", lang})
	}
	if p := opts.prompt(); p != "" {
		fields = append(fields, [2]string{"prompt", p})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, retry.Permanent(fmt.Errorf("failed to write %s field: %w", f[0], err))
		}
	}
	if err := writer.Close(); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to close multipart writer: %w", err))
	}

	endpoint := g.apiURL + "/api/whisper/transcribe"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(ctx.Err())
		}
		return nil, NewTranscriptionError(ErrCodeEngineUnavailable, g.Name(), "HTTP request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		terr := NewTranscriptionError(ErrCodeEngineHTTP, g.Name(),
			fmt.Sprintf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(terr)
		}
		return nil, terr
	}

	var result TranscriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, retry.Permanent(NewTranscriptionError(ErrCodeDecodeFailure, g.Name(), "failed to parse JSON response", err))
	}
	g.log.Debug("transcription response", "segments", len(result.Segments), "language", result.Language)
	return &result, nil
}

// HealthCheck verifies that the go-whisper service is operational by
// requesting GET /api/whisper/model.
func (g *GoWhisperImpl) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL+"/api/whisper/model", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}
	return false, fmt.Errorf("health check failed: status %d", resp.StatusCode)
}

// Name returns the identifier of this transcriber implementation.
func (g *GoWhisperImpl) Name() string {
	return "go-whisper"
}

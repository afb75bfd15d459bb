package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/houzhh15/minutes/cmd/minutes/internal/generation"
	"github.com/houzhh15/minutes/cmd/minutes/internal/metrics"
	"github.com/houzhh15/minutes/pkg/logger"
)

// Default models and chunking.
const (
	DefaultModel           = "qwen3:14b"
	DefaultCorrectionModel = "qwen3:8b"
	DefaultChunkSize       = 4000
	DefaultContextSize     = 300
)

// Options tunes a Pipeline.
type Options struct {
	// Model writes the notes.
	Model string
	// CorrectionModel runs the correction pass; empty means Model.
	CorrectionModel string
	// Correct enables the correction pass.
	Correct bool
	// ChunkSize and ContextSize are counted in characters.
	ChunkSize   int
	ContextSize int
	// Timeout bounds each backend call; zero means the backend default.
	Timeout time.Duration
}

// DefaultOptions returns the stock models with correction enabled.
func DefaultOptions() Options {
	return Options{
		Model:           DefaultModel,
		CorrectionModel: DefaultCorrectionModel,
		Correct:         true,
		ChunkSize:       DefaultChunkSize,
		ContextSize:     DefaultContextSize,
	}
}

// Pipeline corrects and summarizes transcripts through one Backend.
type Pipeline struct {
	backend generation.Backend
	opts    Options
	log     *slog.Logger
}

// NewPipeline creates a pipeline. Zero option fields take their defaults.
func NewPipeline(backend generation.Backend, opts Options, log *slog.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.CorrectionModel == "" {
		opts.CorrectionModel = opts.Model
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ContextSize < 0 {
		opts.ContextSize = 0
	}
	return &Pipeline{backend: backend, opts: opts, log: log.With("component", "summary", "backend", backend.Name())}
}

// Correct returns the corrected transcript, or raw unchanged when correction
// is disabled or any chunk fails.
func (p *Pipeline) Correct(ctx context.Context, raw string) string {
	if !p.opts.Correct || strings.TrimSpace(raw) == "" {
		return raw
	}
	start := time.Now()
	defer func() { metrics.RecordDuration("correct", time.Since(start).Seconds()) }()

	chunks := SplitChunks(raw, p.opts.ChunkSize, p.opts.ContextSize)
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		p.log.Info("correcting chunk", "chunk", i+1, "of", len(chunks), "model", p.opts.CorrectionModel)
		out, err := p.correctChunk(ctx, c)
		if err != nil {
			p.log.Warn("correction failed, using uncorrected transcript",
				"chunk", i+1, "error", err, "error_code", generation.CodeOf(err))
			return raw
		}
		parts = append(parts, out)
	}
	return strings.Join(parts, "\n\n")
}

func (p *Pipeline) correctChunk(ctx context.Context, c Chunk) (string, error) {
	out, err := p.backend.Generate(ctx, generation.Request{
		System:  correctionSystemPrompt,
		Prompt:  correctionPrompt(c.Context, c.Text),
		Model:   p.opts.CorrectionModel,
		JSON:    true,
		Timeout: p.opts.Timeout,
	})
	if err != nil {
		return "", err
	}
	text := decodeCorrection(out)
	if text == "" {
		return "", generation.NewGenerationError(generation.ErrCodeMalformed, p.backend.Name(),
			p.opts.CorrectionModel, "empty correction", nil)
	}
	return text, nil
}

// decodeCorrection reads {"corrected_text": ...}, falling back to the plain
// answer for backends that ignore the JSON request.
func decodeCorrection(out string) string {
	out = strings.TrimSpace(thinkRe.ReplaceAllString(out, ""))
	if raw := extractJSONObject(out); raw != "" {
		var v struct {
			CorrectedText *string `json:"corrected_text"`
		}
		if err := json.Unmarshal([]byte(raw), &v); err == nil && v.CorrectedText != nil {
			return strings.TrimSpace(*v.CorrectedText)
		}
	}
	return out
}

// Extract asks the backend for the notes and normalizes the answer. Missing
// sections are logged and rendered as not available; backend failures are
// returned.
func (p *Pipeline) Extract(ctx context.Context, text string) (*Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyTranscript
	}
	start := time.Now()
	out, err := p.backend.Generate(ctx, generation.Request{
		System:  extractionSystemPrompt,
		Prompt:  extractionPrompt(text),
		Model:   p.opts.Model,
		Timeout: p.opts.Timeout,
	})
	metrics.RecordDuration("extract", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("extract meeting notes: %w", err)
	}

	doc := Parse(out)
	doc.Model = p.opts.Model
	doc.SetTranscript(text)

	var mse *MalformedSectionError
	if err := doc.Validate(); errors.As(err, &mse) {
		for _, k := range mse.Missing {
			metrics.RecordMissingSection(string(k))
		}
		p.log.Warn("backend output incomplete", "error", err, "missing", len(mse.Missing))
	}
	return doc, nil
}

// Run corrects raw and extracts notes from the result.
func (p *Pipeline) Run(ctx context.Context, raw string) (*Document, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyTranscript
	}
	corrected := p.Correct(ctx, raw)
	return p.Extract(ctx, corrected)
}

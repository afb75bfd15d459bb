package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
	"github.com/houzhh15/minutes/pkg/logger"
	"github.com/houzhh15/minutes/pkg/metrics"
)

// LocalWhisperImpl implements Transcriber by invoking a local whisper program
// (a whisper.cpp style CLI) once per utterance on a temporary WAV file.
type LocalWhisperImpl struct {
	programPath string // Path to the whisper executable
	workDir     string // Directory for temporary utterance files
	log         *slog.Logger
}

// NewLocalWhisperImpl creates a LocalWhisperImpl with startup validation.
//
// Parameters:
//   - programPath: Path to the whisper executable
//   - workDir: Directory for temporary WAV files; empty uses the OS temp dir
//
// Returns:
//   - *LocalWhisperImpl: Configured instance if the program exists and is executable
//   - error: A *TranscriptionError with ENGINE_UNAVAILABLE otherwise
func NewLocalWhisperImpl(programPath, workDir string, log *slog.Logger) (*LocalWhisperImpl, error) {
	if log == nil {
		log = logger.Discard()
	}
	info, err := os.Stat(programPath)
	if err != nil {
		return nil, NewTranscriptionError(ErrCodeEngineUnavailable, "local-whisper", "whisper program not found: "+programPath, err)
	}
	// at least one execute bit: owner, group, or other
	if info.Mode()&0111 == 0 {
		return nil, NewTranscriptionError(ErrCodeEngineUnavailable, "local-whisper",
			fmt.Sprintf("whisper program is not executable: %s (mode: %s)", programPath, info.Mode()), nil)
	}
	return &LocalWhisperImpl{programPath: programPath, workDir: workDir, log: log.With("engine", "local-whisper")}, nil
}

// buildArgs assembles: transcribe ggml-<model> <audio> --format json --temperature T [--language L] [--prompt P]
func buildArgs(audioPath string, opts *TranscribeOptions) []string {
	args := []string{"transcribe", "ggml-" + string(opts.model()), audioPath, "--format", "json"}
	args = append(args, "--temperature", fmt.Sprintf("%.1f", opts.temperature()))
	if lang := opts.language(); lang != "" {
		args = append(args, "--language", lang)
	}
	if p := opts.prompt(); p != "" {
		args = append(args, "--prompt", p)
	}
	return args
}

// Transcribe writes the utterance to a temporary WAV and runs the program on it.
//
// The program prints one or more pretty-printed JSON segment objects (not
// strict JSONL) on stdout; they are decoded as a stream.
func (l *LocalWhisperImpl) Transcribe(ctx context.Context, req *Request) (*TranscriptionResult, error) {
	if len(req.Samples) == 0 {
		return &TranscriptionResult{Segments: []TranscriptionSegment{}, Language: req.Options.language()}, nil
	}
	ctx, cancel := withTimeout(ctx, req.Options)
	defer cancel()

	f, err := os.CreateTemp(l.workDir, fmt.Sprintf("utterance-%04d-*.wav", req.Seq))
	if err != nil {
		return nil, AsTranscriptionError(err, l.Name(), req.Seq)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)
	if err := audio.WriteWAVFile(path, req.Samples, req.SampleRate); err != nil {
		return nil, AsTranscriptionError(err, l.Name(), req.Seq)
	}

	args := buildArgs(path, req.Options)
	l.log.Debug("executing whisper program", "program", l.programPath, "args", strings.Join(args, " "))

	start := time.Now()
	cmd := exec.CommandContext(ctx, l.programPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	metrics.RecordBackendDuration(l.Name(), "transcribe", time.Since(start).Seconds())
	if err != nil {
		metrics.RecordBackendCall(l.Name(), "transcribe", "failed")
		if ctx.Err() != nil {
			return nil, AsTranscriptionError(ctx.Err(), l.Name(), req.Seq)
		}
		terr := NewTranscriptionError(ErrCodeEngineCLI, l.Name(),
			"CLI execution failed: "+strings.TrimSpace(stderr.String()), err)
		terr.Seq = req.Seq
		return nil, terr
	}

	result, err := decodeSegments(output)
	if err != nil {
		metrics.RecordBackendCall(l.Name(), "transcribe", "failed")
		terr := NewTranscriptionError(ErrCodeDecodeFailure, l.Name(), "failed to parse program output", err)
		terr.Seq = req.Seq
		return nil, terr
	}
	metrics.RecordBackendCall(l.Name(), "transcribe", "success")
	result.Language = req.Options.language()
	result.Duration = req.Duration().Seconds()
	result.Text = result.FullText()
	return result, nil
}

// decodeSegments parses a stream of JSON segment objects. Empty output is a
// valid empty transcription.
func decodeSegments(output []byte) (*TranscriptionResult, error) {
	result := &TranscriptionResult{Segments: []TranscriptionSegment{}}
	decoder := json.NewDecoder(bytes.NewReader(output))
	for {
		var seg TranscriptionSegment
		if err := decoder.Decode(&seg); err != nil {
			if errors.Is(err, io.EOF) {
				return result, nil
			}
			return nil, fmt.Errorf("failed to parse JSON segment: %w", err)
		}
		result.Segments = append(result.Segments, seg)
	}
}

// HealthCheck runs "<program> version" and expects some output.
func (l *LocalWhisperImpl) HealthCheck(ctx context.Context) (bool, error) {
	output, err := exec.CommandContext(ctx, l.programPath, "version").CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("version check failed: %w, output: %s", err, string(output))
	}
	if len(bytes.TrimSpace(output)) > 0 {
		return true, nil
	}
	return false, errors.New("unexpected empty version output")
}

// Name returns the identifier of this transcriber implementation.
func (l *LocalWhisperImpl) Name() string {
	return "local-whisper"
}

// ProgramPath reports the configured executable, used by the status API.
func (l *LocalWhisperImpl) ProgramPath() string { return filepath.Clean(l.programPath) }

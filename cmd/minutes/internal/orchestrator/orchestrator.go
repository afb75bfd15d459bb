// Package orchestrator wires audio capture, segmentation, transcription and
// transcript assembly into sessions for the file, record and realtime modes,
// and owns their lifecycle and cancellation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
	"github.com/houzhh15/minutes/cmd/minutes/internal/config"
	"github.com/houzhh15/minutes/cmd/minutes/internal/journal"
	"github.com/houzhh15/minutes/cmd/minutes/internal/summary"
	"github.com/houzhh15/minutes/cmd/minutes/internal/transcript"
	"github.com/houzhh15/minutes/cmd/minutes/internal/whisper"
	"github.com/houzhh15/minutes/pkg/logger"
)

// warmupDuration is the silence sent to the engine before live capture.
const warmupDuration = time.Second

// Deps are the collaborators of an Orchestrator. Engine is required.
type Deps struct {
	Engine *Engine
	// Journal records every session when set.
	Journal *journal.Store
	// Console receives the growing transcript in realtime mode.
	Console io.Writer
	// Capture opens the live device; defaults to ffmpeg capture.
	Capture func(audio.CaptureConfig, *slog.Logger) (audio.Source, error)
	// OpenFile decodes an input file; defaults to audio.OpenFile.
	OpenFile func(ctx context.Context, path string) (audio.Source, error)
	// Summarizer runs after the transcript closes when Output.Summarize is set.
	Summarizer Summarizer
	// Feed fans appended segments out to live subscribers; created when nil.
	Feed *transcript.Feed
	Log  *slog.Logger
	Now  func() time.Time
}

// Orchestrator runs one session at a time.
type Orchestrator struct {
	cfg  *config.Config
	deps Deps
	log  *slog.Logger
	feed *transcript.Feed

	mu    sync.Mutex
	state State
	sess  *session // current or most recent
}

// New creates an idle orchestrator. cfg is treated as read-only.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	if deps.Log == nil {
		deps.Log = logger.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Feed == nil {
		deps.Feed = transcript.NewFeed(deps.Log)
	}
	if deps.Capture == nil {
		deps.Capture = func(c audio.CaptureConfig, l *slog.Logger) (audio.Source, error) {
			return audio.StartCapture(c, l)
		}
	}
	if deps.OpenFile == nil {
		deps.OpenFile = func(ctx context.Context, path string) (audio.Source, error) {
			return audio.OpenFile(ctx, path, cfg.Audio.SampleRate, cfg.FrameSize(), cfg.FFmpeg())
		}
	}
	return &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		log:   deps.Log.With("component", "orchestrator"),
		feed:  deps.Feed,
		state: StateCreated,
	}
}

// RunFile transcribes a recorded file. An empty output selects the default name.
func (o *Orchestrator) RunFile(ctx context.Context, input, output string) (*Result, error) {
	if err := o.reserve(); err != nil {
		return nil, err
	}
	if output == "" {
		output = DefaultOutput(ModeFile, input, o.cfg.Output.Dir, o.deps.Now())
	}
	src, err := o.deps.OpenFile(ctx, input)
	if err != nil {
		o.release(StateFailed)
		return nil, NewSessionError(ErrCodeCaptureFailed, "open "+input, "", err)
	}
	return o.run(ctx, ModeFile, src, input, output)
}

// RunRecord records from the configured device until the maximum duration
// elapses or ctx is cancelled.
func (o *Orchestrator) RunRecord(ctx context.Context, output string) (*Result, error) {
	return o.runLive(ctx, ModeRecord, output)
}

// RunRealtime is RunRecord with engine warm-up and the transcript echoed to
// the console as each segment is appended.
func (o *Orchestrator) RunRealtime(ctx context.Context, output string) (*Result, error) {
	return o.runLive(ctx, ModeRealtime, output)
}

func (o *Orchestrator) runLive(ctx context.Context, mode Mode, output string) (*Result, error) {
	if err := o.reserve(); err != nil {
		return nil, err
	}
	if output == "" {
		output = DefaultOutput(mode, "", o.cfg.Output.Dir, o.deps.Now())
	}
	if mode == ModeRealtime && o.cfg.Pipeline.Warmup {
		o.warmup(ctx)
	}
	src, err := o.deps.Capture(audio.CaptureConfig{
		FFmpeg:      o.cfg.FFmpeg(),
		Device:      o.cfg.Audio.Device,
		SampleRate:  o.cfg.Audio.SampleRate,
		FrameSize:   o.cfg.FrameSize(),
		MaxDuration: o.cfg.Audio.MaxDuration,
	}, o.log)
	if err != nil {
		o.release(StateFailed)
		return nil, NewSessionError(ErrCodeCaptureFailed, "start capture", "", err)
	}
	device := o.cfg.Audio.Device
	if device == "" {
		device = "default"
	}
	return o.run(ctx, mode, src, device, output)
}

// warmup loads the engine model with one second of silence. Failures are
// ignored; the first real utterance reports them.
func (o *Orchestrator) warmup(ctx context.Context) {
	rate := o.cfg.Audio.SampleRate
	samples := make([]float32, int(int64(rate)*int64(warmupDuration)/int64(time.Second)))
	start := time.Now()
	t := o.deps.Engine.Current()
	_, err := t.Transcribe(ctx, &whisper.Request{Samples: samples, SampleRate: rate, Options: o.cfg.TranscribeOptions()})
	if err != nil {
		o.log.Warn("engine warm-up failed", "engine", t.Name(), "error", err)
		return
	}
	o.log.Info("engine warmed up", "engine", t.Name(), "elapsed", time.Since(start))
}

func (o *Orchestrator) run(ctx context.Context, mode Mode, src audio.Source, input, output string) (*Result, error) {
	defer src.Close()

	s, err := o.newSession(ctx, mode, src, input, output)
	if err != nil {
		o.release(StateFailed)
		return nil, err
	}
	o.mu.Lock()
	o.sess = s
	o.mu.Unlock()

	runErr := s.run(ctx, src)

	text, finErr := s.asm.Finalize()
	if finErr != nil && runErr == nil {
		runErr = NewSessionError(ErrCodeSinkFailed, "close transcript", output, finErr)
	}
	s.endJournal(runErr)
	res := s.result(text, ctx.Err() != nil)
	if err := s.saveAudio(res); err != nil {
		s.log.Error("save audio failed", "path", res.AudioPath, "error", err)
		res.AudioPath = ""
	}

	final := StateCompleted
	switch {
	case runErr != nil:
		final = StateFailed
	case res.Cancelled:
		final = StateStopped
	}
	o.release(final)
	s.log.Info("session closed", "state", final, "segments", res.Segments, "failed", res.Failed,
		"abandoned", res.Abandoned, "output", output)
	if runErr != nil {
		return res, runErr
	}

	if o.cfg.Output.Summarize && o.deps.Summarizer != nil {
		if err := o.summarize(ctx, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// summarize chains the notes after the transcript is closed. It keeps
// running when the session itself was stopped by the user.
func (o *Orchestrator) summarize(ctx context.Context, res *Result) error {
	path := SummaryPath(res.Output)
	sctx := context.WithoutCancel(ctx)
	if _, err := WriteSummary(sctx, o.deps.Summarizer, res.Text, path); err != nil {
		if errors.Is(err, summary.ErrEmptyTranscript) {
			o.log.Warn("transcript is empty, skipping summary", "output", res.Output)
			return nil
		}
		return NewSessionError(ErrCodeSummaryFailed, "summarize "+res.Output, res.Output, err)
	}
	res.SummaryPath = path
	o.log.Info("summary written", "path", path)
	return nil
}

func (o *Orchestrator) reserve() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Terminal() {
		return ErrBusy
	}
	o.state = StateRunning
	return nil
}

func (o *Orchestrator) release(final State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = final
}

func (o *Orchestrator) setState(st State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Terminal() {
		o.state = st
	}
}

// State returns the lifecycle state of the current or last session.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Progress snapshots the current or most recent session.
func (o *Orchestrator) Progress() ProgressInfo {
	o.mu.Lock()
	st, s := o.state, o.sess
	o.mu.Unlock()
	if s == nil {
		return ProgressInfo{State: st, UpdatedAt: o.deps.Now()}
	}
	p := s.progress()
	p.State = st
	return p
}

// Segments returns the transcript of the current or most recent session.
func (o *Orchestrator) Segments() []transcript.Segment {
	o.mu.Lock()
	s := o.sess
	o.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.asm.Segments()
}

// Subscribe streams segments as they are appended to any later session.
func (o *Orchestrator) Subscribe() (<-chan transcript.Segment, func()) {
	return o.feed.Subscribe()
}

// EngineStatus reports the engine and its health.
func (o *Orchestrator) EngineStatus() EngineStatus {
	return o.deps.Engine.Status()
}

// Close detaches every subscriber. The orchestrator must not be used after.
func (o *Orchestrator) Close() {
	o.feed.Shutdown()
}

func (o *Orchestrator) String() string {
	return fmt.Sprintf("orchestrator(%s)", o.State())
}

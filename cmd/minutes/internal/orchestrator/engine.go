package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/houzhh15/minutes/cmd/minutes/internal/config"
	"github.com/houzhh15/minutes/cmd/minutes/internal/metrics"
	"github.com/houzhh15/minutes/cmd/minutes/internal/whisper"
	"github.com/houzhh15/minutes/cmd/minutes/internal/whisper/degradation"
	"github.com/houzhh15/minutes/cmd/minutes/internal/whisper/health"
	"github.com/houzhh15/minutes/pkg/logger"
)

// Engine is the transcription engine of a process together with its health
// checker and degradation controller, when degradation is enabled.
type Engine struct {
	primary     whisper.Transcriber
	health      *health.HealthChecker
	degradation *degradation.DegradationController

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	log    *slog.Logger
}

// EngineStatus is what the status API reports about the engine.
type EngineStatus struct {
	Engine   string                `json:"engine"`
	Primary  string                `json:"primary"`
	Degraded bool                  `json:"degraded"`
	Health   *health.ServiceStatus `json:"health,omitempty"`
}

// NewEngine builds the configured engine. With degradation enabled and a
// real engine selected, utterances fall back to the empty mock engine while
// the primary fails its health probes.
func NewEngine(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = logger.Discard()
	}
	primary, err := whisper.NewFromSettings(ctx, cfg.EngineSettings(), log)
	if err != nil {
		return nil, fmt.Errorf("create transcription engine: %w", err)
	}
	e := &Engine{primary: primary, log: log.With("component", "engine")}
	if cfg.Engine.Degrade && primary.Name() != whisper.MockName && cfg.Engine.HealthInterval > 0 {
		e.health = health.NewHealthChecker(primary, cfg.Engine.HealthInterval, cfg.Engine.HealthFailThreshold, log)
		e.degradation = degradation.NewDegradationController(primary, whisper.NewMockTranscriber(log), e.health, log)
	}
	return e, nil
}

// NewStaticEngine wraps a transcriber without health checking.
func NewStaticEngine(t whisper.Transcriber) *Engine {
	return &Engine{primary: t, log: logger.Discard()}
}

// Transcriber is what the pipeline calls.
func (e *Engine) Transcriber() whisper.Transcriber {
	if e.degradation != nil {
		return e.degradation
	}
	return e.primary
}

// Current resolves the transcriber for the next utterance.
func (e *Engine) Current() whisper.Transcriber {
	if e.degradation != nil {
		t := e.degradation.GetTranscriber()
		metrics.SetEngineDegraded(e.degradation.IsDegraded())
		return t
	}
	return e.primary
}

// Start launches the health checker in the background. It is a no-op
// without degradation or when already started.
func (e *Engine) Start(ctx context.Context) {
	if e.health == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go func() {
		defer close(e.done)
		e.health.Start(ctx)
	}()
	e.log.Info("engine health checker started", "engine", e.primary.Name())
}

// Stop ends health checking and waits for the checker to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	e.health.Stop()
	cancel()
	<-done
}

// Status snapshots the engine state.
func (e *Engine) Status() EngineStatus {
	st := EngineStatus{Engine: e.primary.Name(), Primary: e.primary.Name()}
	if e.degradation != nil {
		h := e.degradation.Status()
		st.Health = &h
		st.Degraded = e.degradation.IsDegraded()
		if st.Degraded {
			st.Engine = whisper.MockName
		}
	}
	return st
}

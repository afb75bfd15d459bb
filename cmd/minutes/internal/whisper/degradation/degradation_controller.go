// Package degradation switches between a primary transcription engine and a
// fallback based on the primary's health, and recovers when it comes back.
package degradation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/houzhh15/minutes/cmd/minutes/internal/whisper"
	"github.com/houzhh15/minutes/cmd/minutes/internal/whisper/health"
	"github.com/houzhh15/minutes/pkg/logger"
	"github.com/houzhh15/minutes/pkg/metrics"
)

// DegradationController picks the active transcriber from the health of the
// primary. It implements whisper.Transcriber itself, so the pipeline can use
// it in place of a single engine.
//
// Thread-safety: All public methods are safe for concurrent use.
type DegradationController struct {
	primaryTranscriber  whisper.Transcriber
	fallbackTranscriber whisper.Transcriber
	healthChecker       *health.HealthChecker
	currentTranscriber  whisper.Transcriber // protected by mu
	mu                  sync.RWMutex
	isDegraded          bool // protected by mu
	log                 *slog.Logger
}

// NewDegradationController creates a controller that starts on the primary.
//
// Parameters:
//   - primary: The preferred engine
//   - fallback: The engine used while the primary is unhealthy (typically MockTranscriber)
//   - hc: The health checker monitoring the primary
func NewDegradationController(primary, fallback whisper.Transcriber, hc *health.HealthChecker, log *slog.Logger) *DegradationController {
	if log == nil {
		log = logger.Discard()
	}
	return &DegradationController{
		primaryTranscriber:  primary,
		fallbackTranscriber: fallback,
		healthChecker:       hc,
		currentTranscriber:  primary,
		log:                 log.With("component", "degradation"),
	}
}

// GetTranscriber returns the active transcriber, switching on health changes.
func (dc *DegradationController) GetTranscriber() whisper.Transcriber {
	status := dc.healthChecker.GetStatus()

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if !status.IsHealthy && !dc.isDegraded {
		dc.log.Warn("degrading to fallback transcriber",
			"fallback", dc.fallbackTranscriber.Name(), "primary", dc.primaryTranscriber.Name(), "reason", status.ErrorMessage)
		metrics.RecordDegradationEvent(dc.primaryTranscriber.Name(), dc.fallbackTranscriber.Name())
		dc.currentTranscriber = dc.fallbackTranscriber
		dc.isDegraded = true
	}

	if status.IsHealthy && dc.isDegraded {
		dc.log.Info("recovering to primary transcriber", "primary", dc.primaryTranscriber.Name())
		metrics.RecordDegradationEvent(dc.fallbackTranscriber.Name(), dc.primaryTranscriber.Name())
		dc.currentTranscriber = dc.primaryTranscriber
		dc.isDegraded = false
	}

	return dc.currentTranscriber
}

// IsDegraded reports whether the fallback is active.
func (dc *DegradationController) IsDegraded() bool {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.isDegraded
}

// Status exposes the primary's health for the status API.
func (dc *DegradationController) Status() health.ServiceStatus {
	return dc.healthChecker.GetStatus()
}

// Transcribe delegates to the active transcriber.
func (dc *DegradationController) Transcribe(ctx context.Context, req *whisper.Request) (*whisper.TranscriptionResult, error) {
	return dc.GetTranscriber().Transcribe(ctx, req)
}

// HealthCheck reports the primary's last known health.
func (dc *DegradationController) HealthCheck(ctx context.Context) (bool, error) {
	return dc.healthChecker.GetStatus().IsHealthy, nil
}

// Name is the name of the active transcriber.
func (dc *DegradationController) Name() string {
	return dc.GetTranscriber().Name()
}

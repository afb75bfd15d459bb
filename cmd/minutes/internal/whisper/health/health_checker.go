// Package health provides periodic health probing for transcription engines,
// with a consecutive-failure threshold before an engine is marked unhealthy.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/houzhh15/minutes/cmd/minutes/internal/whisper"
	"github.com/houzhh15/minutes/pkg/logger"
	"github.com/houzhh15/minutes/pkg/metrics"
)

// probeTimeout bounds one health probe.
const probeTimeout = 10 * time.Second

// ServiceStatus represents the current health state of an engine.
// All fields are safe for JSON serialization and are exposed by the status API.
type ServiceStatus struct {
	// Engine is the Name of the probed transcriber
	Engine string `json:"engine"`

	// IsHealthy indicates whether the engine passed recent health checks
	IsHealthy bool `json:"is_healthy"`

	// LastCheckTime records when the most recent health check was performed
	LastCheckTime time.Time `json:"last_check_time"`

	// ConsecutiveFails counts how many health checks have failed in a row.
	// Reset to 0 when a check succeeds
	ConsecutiveFails int `json:"consecutive_fails"`

	// ErrorMessage contains the last error message if the health check failed
	ErrorMessage string `json:"error_message,omitempty"`
}

// HealthChecker performs periodic health checks on a Transcriber.
//
// Thread-safety: All public methods are safe for concurrent use.
type HealthChecker struct {
	transcriber   whisper.Transcriber
	status        ServiceStatus // protected by mu
	mu            sync.RWMutex
	checkInterval time.Duration
	failThreshold int
	stopChan      chan struct{}
	stopOnce      sync.Once
	log           *slog.Logger
}

// NewHealthChecker creates a HealthChecker.
//
// Parameters:
//   - transcriber: The engine to monitor
//   - checkInterval: Duration between health checks
//   - failThreshold: Consecutive failures before marking unhealthy (minimum 1)
//
// The checker starts in a healthy state. Call Start to begin probing.
func NewHealthChecker(transcriber whisper.Transcriber, checkInterval time.Duration, failThreshold int, log *slog.Logger) *HealthChecker {
	if failThreshold < 1 {
		failThreshold = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	return &HealthChecker{
		transcriber:   transcriber,
		checkInterval: checkInterval,
		failThreshold: failThreshold,
		stopChan:      make(chan struct{}),
		log:           log.With("component", "health", "engine", transcriber.Name()),
		status: ServiceStatus{
			Engine:        transcriber.Name(),
			IsHealthy:     true,
			LastCheckTime: time.Now(),
		},
	}
}

// Start probes immediately and then every checkInterval until Stop is called
// or ctx is cancelled. It blocks; run it in its own goroutine.
func (hc *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	hc.CheckNow(ctx)

	for {
		select {
		case <-ticker.C:
			hc.CheckNow(ctx)
		case <-hc.stopChan:
			hc.log.Debug("health checker stopped")
			return
		case <-ctx.Done():
			hc.log.Debug("health checker context cancelled")
			return
		}
	}
}

// CheckNow runs one probe and updates the status.
func (hc *HealthChecker) CheckNow(ctx context.Context) ServiceStatus {
	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	isHealthy, err := hc.transcriber.HealthCheck(checkCtx)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.status.LastCheckTime = time.Now()
	if isHealthy {
		if !hc.status.IsHealthy {
			hc.log.Info("engine healthy again")
		}
		hc.status.IsHealthy = true
		hc.status.ConsecutiveFails = 0
		hc.status.ErrorMessage = ""
		metrics.RecordBackendCall(hc.transcriber.Name(), "health", "success")
		return hc.status
	}

	metrics.RecordBackendCall(hc.transcriber.Name(), "health", "failed")
	hc.status.ConsecutiveFails++
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	hc.status.ErrorMessage = fmt.Sprintf("health check failed: %s", errMsg)

	if hc.status.ConsecutiveFails >= hc.failThreshold {
		if hc.status.IsHealthy {
			hc.log.Error("engine marked unhealthy", "consecutive_fails", hc.status.ConsecutiveFails, "error", errMsg)
		}
		hc.status.IsHealthy = false
	} else {
		hc.log.Warn("health check failed", "consecutive_fails", hc.status.ConsecutiveFails,
			"threshold", hc.failThreshold, "error", errMsg)
	}
	return hc.status
}

// GetStatus returns a copy of the current health status.
func (hc *HealthChecker) GetStatus() ServiceStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.status
}

// Stop terminates the probing loop. Safe to call more than once.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopChan) })
}

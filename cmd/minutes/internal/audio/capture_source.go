package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// stopGrace is how long ffmpeg gets to exit after an interrupt before it is killed.
const stopGrace = 2 * time.Second

// CaptureConfig selects the live device and framing.
type CaptureConfig struct {
	FFmpeg     FFmpegConfig
	Device     string
	SampleRate int
	FrameSize  int
	// MaxDuration ends the stream after this much audio; zero means until stopped.
	MaxDuration time.Duration
}

// CaptureSource streams raw PCM from a live device through ffmpeg.
type CaptureSource struct {
	cfg    CaptureConfig
	log    *slog.Logger
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer

	index    int
	captured int64
	limit    int64
	done     bool

	stopped  atomic.Bool
	exited   chan struct{}
	waitOnce sync.Once
	waitErr  error
}

// StartCapture launches ffmpeg on the configured device.
func StartCapture(cfg CaptureConfig, log *slog.Logger) (*CaptureSource, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = FrameSize(cfg.SampleRate, DefaultFrameDuration)
	}
	bin := cfg.FFmpeg.bin()
	if _, err := exec.LookPath(bin); err != nil {
		return nil, NewCaptureError(ErrCodeDeviceUnavailable, "ffmpeg not found: "+bin, err)
	}

	s := &CaptureSource{cfg: cfg, log: log, exited: make(chan struct{})}
	if cfg.MaxDuration > 0 {
		s.limit = int64(cfg.MaxDuration) * int64(cfg.SampleRate) / int64(time.Second)
	}

	args := captureArgs(cfg.FFmpeg.format(), cfg.Device, cfg.SampleRate)
	s.cmd = exec.Command(bin, args...)
	setProcessGroup(s.cmd)
	s.cmd.Stderr = &s.stderr
	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return nil, NewCaptureError(ErrCodeCaptureFailed, "stdout pipe", err)
	}
	s.stdout = stdout
	if err := s.cmd.Start(); err != nil {
		return nil, NewCaptureError(ErrCodeDeviceUnavailable, "start ffmpeg", err)
	}
	log.Info("capture started", "device", cfg.Device, "format", cfg.FFmpeg.format(), "sample_rate", cfg.SampleRate)
	return s, nil
}

func (s *CaptureSource) SampleRate() int { return s.cfg.SampleRate }
func (s *CaptureSource) FrameSize() int  { return s.cfg.FrameSize }

// Next blocks for one frame of audio. After Stop it keeps returning what
// ffmpeg already produced and then io.EOF.
func (s *CaptureSource) Next(ctx context.Context) (Frame, error) {
	if s.done {
		return Frame{}, io.EOF
	}
	if ctx.Err() != nil {
		s.Stop()
	}

	want := s.cfg.FrameSize
	if s.limit > 0 {
		remaining := s.limit - s.captured
		if remaining <= 0 {
			s.Stop()
			s.finish()
			return Frame{}, io.EOF
		}
		if int64(want) > remaining {
			want = int(remaining)
		}
	}

	buf := make([]byte, want*2)
	n, err := io.ReadFull(s.stdout, buf)
	if samples := n / 2; samples > 0 {
		f := Frame{Index: s.index, SampleRate: s.cfg.SampleRate, Samples: PCM16ToFloat(buf[:samples*2])}
		s.index++
		s.captured += int64(samples)
		return f, nil
	}
	if err == nil {
		return Frame{}, io.ErrNoProgress
	}

	waitErr := s.finish()
	if s.stopped.Load() || (errors.Is(err, io.EOF) && waitErr == nil) {
		return Frame{}, io.EOF
	}
	msg := strings.TrimSpace(s.stderr.String())
	if msg == "" {
		msg = "capture stream dropped"
	}
	cause := waitErr
	if cause == nil {
		cause = err
	}
	return Frame{}, NewCaptureError(ErrCodeCaptureFailed, msg, cause)
}

// Stop asks ffmpeg to end the stream. Safe to call more than once.
func (s *CaptureSource) Stop() {
	if !s.stopped.CompareAndSwap(false, true) || s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = s.cmd.Process.Kill()
		return
	}
	go func() {
		select {
		case <-s.exited:
		case <-time.After(stopGrace):
			_ = s.cmd.Process.Kill()
		}
	}()
}

func (s *CaptureSource) finish() error {
	s.done = true
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		close(s.exited)
		if s.waitErr != nil && s.stopped.Load() {
			s.log.Debug("ffmpeg exited after stop", "error", s.waitErr)
		}
		s.log.Info("capture stopped", "device", s.cfg.Device, "captured", s.Captured())
	})
	return s.waitErr
}

// Close kills ffmpeg if it is still running and reaps it.
func (s *CaptureSource) Close() error {
	if !s.done {
		s.stopped.Store(true)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.finish()
	}
	return nil
}

// Captured reports how much audio has been delivered.
func (s *CaptureSource) Captured() time.Duration {
	return time.Duration(s.captured) * time.Second / time.Duration(s.cfg.SampleRate)
}

func (s *CaptureSource) String() string {
	return fmt.Sprintf("capture(%s:%s)", s.cfg.FFmpeg.format(), s.cfg.Device)
}

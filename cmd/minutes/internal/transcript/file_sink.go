package transcript

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileSink appends segment text to a UTF-8 plain text file, one line per
// segment, syncing after every write.
type FileSink struct {
	mu            sync.Mutex
	f             *os.File
	failureMarker string
}

// NewFileSink creates (or truncates) path. Failed segments are skipped unless
// failureMarker is non-empty, in which case the marker is written in their place.
func NewFileSink(path, failureMarker string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create transcript dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	return &FileSink{f: f, failureMarker: failureMarker}, nil
}

// Path of the transcript file.
func (s *FileSink) Path() string { return s.f.Name() }

// Append writes one line and fsyncs.
func (s *FileSink) Append(seg Segment) error {
	line := strings.TrimSpace(seg.Text)
	if seg.Failed() {
		line = s.failureMarker
	}
	if line == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.f, line+"\n"); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync transcript: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// ConsoleSink prints segments as they arrive, prefixed with their wall time.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink writes to w.
func NewConsoleSink(w io.Writer) *ConsoleSink { return &ConsoleSink{w: w} }

func (c *ConsoleSink) Append(seg Segment) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := seg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	switch {
	case seg.Failed():
		_, err := fmt.Fprintf(c.w, "[%s] (transcription failed: %s)\n", ts.Format("15:04:05"), seg.Error)
		return err
	case !seg.HasText():
		return nil
	default:
		_, err := fmt.Fprintf(c.w, "[%s] %s\n", ts.Format("15:04:05"), strings.TrimSpace(seg.Text))
		return err
	}
}

func (c *ConsoleSink) Close() error { return nil }

// Package audio produces fixed-size frames of normalized mono samples from
// decoded files, live capture devices, or in-memory buffers.
package audio

import (
	"context"
	"time"
)

const (
	// DefaultSampleRate is the rate every source delivers, matching what the
	// transcription engines expect.
	DefaultSampleRate = 16000
	// DefaultFrameDuration is the length of one analysis frame.
	DefaultFrameDuration = 100 * time.Millisecond
)

// Frame is one fixed-length block of samples in [-1, 1]. Frames are
// immutable once produced; the final frame of a source may be shorter.
type Frame struct {
	Index      int
	SampleRate int
	Samples    []float32
}

// Duration reports the wall time the frame covers.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Source yields frames in increasing Index order. Next returns io.EOF once
// the source is exhausted or stopped.
type Source interface {
	SampleRate() int
	FrameSize() int
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Stopper is implemented by sources that can be asked to stop producing
// new audio while still returning what has already been read.
type Stopper interface {
	Stop()
}

// FrameSize converts a frame duration to a sample count, at least one.
func FrameSize(sampleRate int, d time.Duration) int {
	n := int(int64(sampleRate) * int64(d) / int64(time.Second))
	if n < 1 {
		return 1
	}
	return n
}

// Concat joins the samples of frames in order.
func Concat(frames []Frame) []float32 {
	total := 0
	for _, f := range frames {
		total += len(f.Samples)
	}
	out := make([]float32, 0, total)
	for _, f := range frames {
		out = append(out, f.Samples...)
	}
	return out
}

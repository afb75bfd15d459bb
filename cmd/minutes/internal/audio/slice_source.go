package audio

import (
	"context"
	"io"
)

// SliceSource frames an in-memory sample buffer.
type SliceSource struct {
	samples    []float32
	sampleRate int
	frameSize  int
	pos        int
	index      int
}

// NewSliceSource frames samples into blocks of frameSize.
func NewSliceSource(samples []float32, sampleRate, frameSize int) *SliceSource {
	if frameSize < 1 {
		frameSize = FrameSize(sampleRate, DefaultFrameDuration)
	}
	return &SliceSource{samples: samples, sampleRate: sampleRate, frameSize: frameSize}
}

func (s *SliceSource) SampleRate() int { return s.sampleRate }
func (s *SliceSource) FrameSize() int  { return s.frameSize }
func (s *SliceSource) Close() error    { return nil }

// Next returns the next frame; the last one may be short.
func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.samples) {
		return Frame{}, io.EOF
	}
	end := s.pos + s.frameSize
	if end > len(s.samples) {
		end = len(s.samples)
	}
	f := Frame{Index: s.index, SampleRate: s.sampleRate, Samples: s.samples[s.pos:end:end]}
	s.pos = end
	s.index++
	return f, nil
}

// Stop makes subsequent Next calls report io.EOF.
func (s *SliceSource) Stop() { s.pos = len(s.samples) }

// Samples exposes the whole buffer, used by whole-file transcription.
func (s *SliceSource) Samples() []float32 { return s.samples }

package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// OpenFile decodes a whole audio file up front and frames it. WAV files are
// decoded directly; anything else is converted with ffmpeg first.
func OpenFile(ctx context.Context, path string, sampleRate int, frameSize int, ff FFmpegConfig) (*SliceSource, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if _, err := os.Stat(path); err != nil {
		return nil, NewCaptureError(ErrCodeDeviceUnavailable, "open audio file", err)
	}

	wavPath := path
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		converted, err := ConvertToWAV(ctx, ff, path, sampleRate)
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(filepath.Dir(converted))
		wavPath = converted
	}

	f, err := os.Open(wavPath)
	if err != nil {
		return nil, NewCaptureError(ErrCodeDeviceUnavailable, "open wav", err)
	}
	defer f.Close()

	samples, err := DecodeWAV(f, sampleRate)
	if err != nil {
		return nil, err
	}
	return NewSliceSource(samples, sampleRate, frameSize), nil
}

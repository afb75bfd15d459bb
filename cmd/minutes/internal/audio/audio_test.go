package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*440*float64(i)/DefaultSampleRate))
	}
	return out
}

func TestFrameSize(t *testing.T) {
	assert.Equal(t, 1600, FrameSize(16000, 100*time.Millisecond))
	assert.Equal(t, 1, FrameSize(16000, 0))
	assert.Equal(t, 100*time.Millisecond, Frame{SampleRate: 16000, Samples: make([]float32, 1600)}.Duration())
}

func TestSliceSource(t *testing.T) {
	ctx := context.Background()
	src := NewSliceSource(make([]float32, 2500), 16000, 1000)

	var frames []Frame
	for {
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}

	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, i, f.Index)
	}
	assert.Len(t, frames[2].Samples, 500, "final short frame is kept")
	assert.Len(t, Concat(frames), 2500)

	t.Run("stop ends the stream", func(t *testing.T) {
		s := NewSliceSource(make([]float32, 5000), 16000, 1000)
		_, err := s.Next(ctx)
		require.NoError(t, err)
		s.Stop()
		_, err = s.Next(ctx)
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestEncodeWAVHeader(t *testing.T) {
	data := EncodeWAV(sine(160, 0.5), 16000)
	require.Len(t, data, 44+320)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, "data", string(data[36:40]))
}

func TestWAVRoundTrip(t *testing.T) {
	in := sine(16000, 0.5)

	t.Run("in-memory encoder", func(t *testing.T) {
		out, err := DecodeWAV(bytes.NewReader(EncodeWAV(in, 16000)), 16000)
		require.NoError(t, err)
		require.Len(t, out, len(in))
		for i := range in {
			assert.InDelta(t, in[i], out[i], 1e-3)
		}
	})

	t.Run("file writer", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.wav")
		require.NoError(t, WriteWAVFile(path, in, 16000))
		src, err := OpenFile(context.Background(), path, 16000, 1600, FFmpegConfig{})
		require.NoError(t, err)
		assert.Len(t, src.Samples(), len(in))
		assert.InDelta(t, in[100], src.Samples()[100], 1e-3)
	})

	t.Run("resamples other rates", func(t *testing.T) {
		out, err := DecodeWAV(bytes.NewReader(EncodeWAV(sine(8000, 0.5), 8000)), 16000)
		require.NoError(t, err)
		assert.InDelta(t, 16000, len(out), 50)
	})
}

// wav24 renders mono samples as 24-bit PCM WAV.
func wav24(samples []float32, rate int) []byte {
	var b bytes.Buffer
	size := uint32(3 * len(samples))
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, 36+size)
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint32(rate))
	binary.Write(&b, binary.LittleEndian, uint32(3*rate))
	binary.Write(&b, binary.LittleEndian, uint16(3))
	binary.Write(&b, binary.LittleEndian, uint16(24))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, size)
	for _, v := range samples {
		x := uint32(int32(math.Round(float64(v) * (1<<23 - 1))))
		b.Write([]byte{byte(x), byte(x >> 8), byte(x >> 16)})
	}
	return b.Bytes()
}

func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestWAVDecodeKeepsFullScale(t *testing.T) {
	// just above the default VAD threshold
	in := constant(1600, 0.015)

	t.Run("16-bit in memory", func(t *testing.T) {
		out, err := DecodeWAV(bytes.NewReader(EncodeWAV(in, 16000)), 16000)
		require.NoError(t, err)
		assert.InDeltaSlice(t, in, out, 1e-4)
	})

	t.Run("16-bit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "level.wav")
		require.NoError(t, WriteWAVFile(path, in, 16000))
		src, err := OpenFile(context.Background(), path, 16000, 160, FFmpegConfig{})
		require.NoError(t, err)
		f, err := src.Next(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, 0.015, f.Samples[0], 1e-4)
	})

	t.Run("24-bit", func(t *testing.T) {
		out, err := DecodeWAV(bytes.NewReader(wav24([]float32{0.5, -0.5, 0.015}, 16000)), 16000)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float32{0.5, -0.5, 0.015}, out, 1e-5)
	})

	t.Run("full scale stays in range", func(t *testing.T) {
		out, err := DecodeWAV(bytes.NewReader(EncodeWAV([]float32{1, -1}, 16000)), 16000)
		require.NoError(t, err)
		for _, v := range out {
			assert.LessOrEqual(t, math.Abs(float64(v)), 1.0)
		}
		assert.InDelta(t, 1, out[0], 1e-4)
		assert.InDelta(t, -1, out[1], 1e-4)
	})
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, err := DecodeWAV(bytes.NewReader([]byte("not a wav file at all")), 16000)
	require.Error(t, err)
	assert.True(t, IsCaptureError(err))
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), 16000, 1600, FFmpegConfig{})
	var ce *CaptureError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeDeviceUnavailable, ce.Code)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPCM16(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1, -1}
	out := PCM16ToFloat(PCM16Bytes(in))
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1e-3)
	}
	assert.Equal(t, int16(math.MaxInt16), floatToPCM16(2))
}

func TestCaptureArgs(t *testing.T) {
	args := captureArgs("avfoundation", "1", 16000)
	assert.Contains(t, args, ":1")
	assert.Equal(t, []string{"-f", "s16le", "-"}, args[len(args)-3:])
	assert.Equal(t, "audio=Mic", inputArg("dshow", "Mic"))
	assert.Equal(t, "default", inputArg("pulse", ""))
}

func TestParseDeviceList(t *testing.T) {
	t.Run("avfoundation", func(t *testing.T) {
		out := `[AVFoundation indev @ 0x7f9] AVFoundation video devices:
[AVFoundation indev @ 0x7f9] [0] FaceTime HD Camera
[AVFoundation indev @ 0x7f9] AVFoundation audio devices:
[AVFoundation indev @ 0x7f9] [0] MacBook Pro Microphone
[AVFoundation indev @ 0x7f9] [1] ZoomAudioDevice
: Input/output error`
		devices := ParseDeviceList("avfoundation", out)
		require.Len(t, devices, 2)
		assert.Equal(t, Device{ID: "0", Name: "MacBook Pro Microphone", Kind: "audio"}, devices[0])
		assert.Equal(t, "ZoomAudioDevice", devices[1].Name)
	})

	t.Run("dshow", func(t *testing.T) {
		out := `[dshow @ 000001] "Integrated Camera" (video)
[dshow @ 000001] "Microphone (Realtek Audio)" (audio)`
		devices := ParseDeviceList("dshow", out)
		require.Len(t, devices, 1)
		assert.Equal(t, "Microphone (Realtek Audio)", devices[0].ID)
	})

	t.Run("pulse", func(t *testing.T) {
		out := `Auto-detected sources for pulse:
  alsa_output.pci-0000_00_1f.3.analog-stereo.monitor [Monitor of Built-in Audio] (none)
* alsa_input.pci-0000_00_1f.3.analog-stereo [Built-in Audio Analog Stereo] (none)`
		devices := ParseDeviceList("pulse", out)
		require.Len(t, devices, 1)
		assert.Equal(t, "Built-in Audio Analog Stereo", devices[0].Name)
		assert.Equal(t, "audio-default", devices[0].Kind)
	})
}

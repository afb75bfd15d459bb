package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// resampleQuality is the beep resampler interpolation window.
const resampleQuality = 4

// DecodeWAV reads a WAV stream and returns mono samples at targetRate.
// Multi-channel input is averaged; other rates are resampled.
func DecodeWAV(r io.Reader, targetRate int) ([]float32, error) {
	stream, format, err := wav.Decode(r)
	if err != nil {
		return nil, NewCaptureError(ErrCodeDecodeFailed, "decode wav", err)
	}
	defer stream.Close()

	var s beep.Streamer = stream
	if targetRate > 0 && int(format.SampleRate) != targetRate {
		s = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(targetRate), stream)
	}

	mono := format.NumChannels <= 1
	scale := pcmScale(format.Precision)
	out := make([]float32, 0, stream.Len())
	buf := make([][2]float64, 4096)
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			v := buf[i][0]
			if !mono {
				v = (buf[i][0] + buf[i][1]) / 2
			}
			out = append(out, float32(clamp(v*scale)))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, NewCaptureError(ErrCodeDecodeFailed, "stream wav", err)
	}
	return out, nil
}

// pcmScale corrects beep's decoder, which divides signed 16 and 24 bit PCM
// by 2^n-1 instead of 2^(n-1) and so yields half-scale samples.
func pcmScale(precision int) float64 {
	switch precision {
	case 2:
		return float64(1<<16-1) / (1 << 15)
	case 3:
		return float64(1<<24-1) / (1 << 23)
	}
	return 1
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// sampleStreamer adapts a mono float32 buffer to beep.Streamer.
type sampleStreamer struct {
	samples []float32
	pos     int
}

func (s *sampleStreamer) Stream(buf [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := 0
	for n < len(buf) && s.pos < len(s.samples) {
		v := float64(s.samples[s.pos])
		buf[n] = [2]float64{v, v}
		n++
		s.pos++
	}
	return n, true
}

func (s *sampleStreamer) Err() error { return nil }

// WriteWAVFile stores mono samples as 16-bit PCM WAV at path.
func WriteWAVFile(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	format := beep.Format{SampleRate: beep.SampleRate(sampleRate), NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, &sampleStreamer{samples: samples}, format); err != nil {
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	return f.Close()
}

// EncodeWAV renders mono samples as an in-memory 16-bit PCM WAV, for
// engines that take an upload body rather than a file.
func EncodeWAV(samples []float32, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := len(samples) * bitsPerSample / 8
	var buf bytes.Buffer
	buf.Grow(44 + dataSize)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))

	pcm := make([]byte, 2)
	for _, s := range samples {
		binary.LittleEndian.PutUint16(pcm, uint16(floatToPCM16(s)))
		buf.Write(pcm)
	}
	return buf.Bytes()
}

// PCM16ToFloat decodes little-endian signed 16-bit samples.
func PCM16ToFloat(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[2*i:]))) / 32768
	}
	return out
}

// PCM16Bytes encodes samples as little-endian signed 16-bit PCM.
func PCM16Bytes(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(floatToPCM16(s)))
	}
	return out
}

func floatToPCM16(s float32) int16 {
	v := math.Round(float64(s) * 32767)
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	}
	return int16(v)
}

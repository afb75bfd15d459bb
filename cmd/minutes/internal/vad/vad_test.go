package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
)

func constFrame(idx int, v float32, n int) audio.Frame {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
		if i%2 == 1 {
			s[i] = -v
		}
	}
	return audio.Frame{Index: idx, SampleRate: 16000, Samples: s}
}

func TestNewDetector(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		wantErr   bool
	}{
		{"default", DefaultThreshold, false},
		{"one", 1, false},
		{"zero", 0, true},
		{"negative", -0.1, true},
		{"above range", 1.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDetector(tt.threshold)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	d, err := NewDetector(0.01)
	require.NoError(t, err)

	loud := d.Classify(constFrame(7, 0.2, 160))
	assert.True(t, loud.IsSpeech)
	assert.Equal(t, 7, loud.Index)
	assert.InDelta(t, 0.2, loud.Energy, 1e-6)

	quiet := d.Classify(constFrame(8, 0.005, 160))
	assert.False(t, quiet.IsSpeech)

	assert.False(t, d.Classify(constFrame(9, 0.01, 160)).IsSpeech, "energy equal to threshold is not speech")
	assert.False(t, d.Classify(audio.Frame{Index: 10}).IsSpeech)
}

func TestClassifyDeterministic(t *testing.T) {
	d, _ := NewDetector(DefaultThreshold)
	f := constFrame(1, 0.03, 1600)
	assert.Equal(t, d.Classify(f), d.Classify(f))
}

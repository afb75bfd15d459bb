// Package vad classifies audio frames as speech or silence by mean absolute
// amplitude.
package vad

import (
	"fmt"
	"math"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
)

// DefaultThreshold is the mean |sample| above which a frame counts as speech.
const DefaultThreshold = 0.01

// Decision is the classification of one frame.
type Decision struct {
	Index    int
	IsSpeech bool
	Energy   float64
}

// Detector is a stateless energy threshold classifier.
type Detector struct {
	threshold float64
}

// NewDetector validates the threshold, which must be in (0, 1].
func NewDetector(threshold float64) (*Detector, error) {
	if !(threshold > 0) || threshold > 1 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("vad threshold must be in (0, 1], got %v", threshold)
	}
	return &Detector{threshold: threshold}, nil
}

// Threshold returns the configured threshold.
func (d *Detector) Threshold() float64 { return d.threshold }

// Classify measures the frame energy and compares it with the threshold.
// An empty frame is silence.
func (d *Detector) Classify(f audio.Frame) Decision {
	e := Energy(f.Samples)
	return Decision{Index: f.Index, IsSpeech: e > d.threshold, Energy: e}
}

// Energy is the mean absolute sample value.
func Energy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}

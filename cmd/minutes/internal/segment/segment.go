// Package segment groups classified frames into utterances with a two-state
// machine: Idle and Capturing. Transitions are pure functions of the
// previous state, so the machine is testable without audio hardware.
package segment

import (
	"errors"
	"time"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
	"github.com/houzhh15/minutes/cmd/minutes/internal/vad"
)

// DefaultSilenceDuration is the hangover before an open utterance seals.
const DefaultSilenceDuration = 1500 * time.Millisecond

// Phase is the machine state tag.
type Phase int

const (
	Idle Phase = iota
	Capturing
)

func (p Phase) String() string {
	if p == Capturing {
		return "capturing"
	}
	return "idle"
}

// SealReason records why an utterance was closed.
type SealReason string

const (
	SealSilence   SealReason = "silence"
	SealMaxLength SealReason = "max_length"
	SealStreamEnd SealReason = "stream_end"
)

// Config tunes the machine. Zero MinUtterance disables filtering and zero
// MaxUtterance disables the hard seal.
type Config struct {
	SilenceDuration time.Duration
	MinUtterance    time.Duration
	MaxUtterance    time.Duration
}

// DefaultConfig returns the permissive defaults.
func DefaultConfig() Config {
	return Config{SilenceDuration: DefaultSilenceDuration}
}

// Validate rejects settings the machine cannot honor.
func (c Config) Validate() error {
	var errs []error
	if c.SilenceDuration <= 0 {
		errs = append(errs, errors.New("silence duration must be positive"))
	}
	if c.MinUtterance < 0 {
		errs = append(errs, errors.New("min utterance must not be negative"))
	}
	if c.MaxUtterance < 0 {
		errs = append(errs, errors.New("max utterance must not be negative"))
	}
	if c.MaxUtterance > 0 && c.MinUtterance > c.MaxUtterance {
		errs = append(errs, errors.New("min utterance exceeds max utterance"))
	}
	return errors.Join(errs...)
}

// Utterance is a sealed, non-empty run of contiguous frames.
type Utterance struct {
	Seq          int
	Frames       []audio.Frame
	SpeechFrames int
	// Voiced spans onset through the last speech frame, excluding hangover.
	Voiced time.Duration
	Reason SealReason
}

// FirstIndex is the index of the onset frame.
func (u *Utterance) FirstIndex() int { return u.Frames[0].Index }

// LastIndex is the index of the final frame.
func (u *Utterance) LastIndex() int { return u.Frames[len(u.Frames)-1].Index }

// SampleRate of the contained frames.
func (u *Utterance) SampleRate() int { return u.Frames[0].SampleRate }

// Duration covers every frame including hangover silence.
func (u *Utterance) Duration() time.Duration {
	var d time.Duration
	for _, f := range u.Frames {
		d += f.Duration()
	}
	return d
}

// Samples concatenates the frames.
func (u *Utterance) Samples() []float32 { return audio.Concat(u.Frames) }

// State is the machine state. Step and Flush take ownership of the value
// they are given; callers must continue with the returned state only.
type State struct {
	Phase   Phase
	NextSeq int

	frames       []audio.Frame
	speechFrames int
	total        time.Duration
	voiced       time.Duration
	silence      time.Duration
}

// NewState returns an Idle state whose first utterance gets sequence 1.
func NewState() State {
	return State{Phase: Idle, NextSeq: 1}
}

// Open reports the number of frames buffered in the open utterance.
func (s State) Open() int { return len(s.frames) }

// Emission is what one transition produced. At most one field is set.
type Emission struct {
	// Utterance was sealed and must be transcribed.
	Utterance *Utterance
	// Filtered was sealed below the minimum length and is not transcribed.
	Filtered *Utterance
	// Idle is a silent frame that arrived with no utterance open.
	Idle *audio.Frame
}

// Step applies one frame and its classification.
func Step(cfg Config, s State, f audio.Frame, d vad.Decision) (State, Emission) {
	switch s.Phase {
	case Idle:
		if !d.IsSpeech {
			return s, Emission{Idle: &f}
		}
		s.Phase = Capturing
		s.frames = []audio.Frame{f}
		s.speechFrames = 1
		s.total = f.Duration()
		s.voiced = s.total
		s.silence = 0
	default:
		s.frames = append(s.frames, f)
		s.total += f.Duration()
		if d.IsSpeech {
			s.speechFrames++
			s.voiced = s.total
			s.silence = 0
		} else {
			s.silence += f.Duration()
			if s.silence >= cfg.SilenceDuration {
				return seal(cfg, s, SealSilence)
			}
		}
	}

	if cfg.MaxUtterance > 0 && s.total >= cfg.MaxUtterance {
		return seal(cfg, s, SealMaxLength)
	}
	return s, Emission{}
}

// Flush seals any open utterance at stream end. A flushed utterance is
// always emitted, whatever its length.
func Flush(cfg Config, s State) (State, Emission) {
	if s.Phase != Capturing || len(s.frames) == 0 {
		s.Phase = Idle
		return s, Emission{}
	}
	return seal(cfg, s, SealStreamEnd)
}

func seal(cfg Config, s State, reason SealReason) (State, Emission) {
	u := &Utterance{
		Frames:       s.frames,
		SpeechFrames: s.speechFrames,
		Voiced:       s.voiced,
		Reason:       reason,
	}
	next := State{Phase: Idle, NextSeq: s.NextSeq}

	if reason == SealSilence && cfg.MinUtterance > 0 && u.Voiced < cfg.MinUtterance {
		return next, Emission{Filtered: u}
	}
	u.Seq = s.NextSeq
	next.NextSeq++
	return next, Emission{Utterance: u}
}

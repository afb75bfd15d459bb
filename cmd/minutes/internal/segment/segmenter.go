package segment

import (
	"log/slog"

	"github.com/houzhh15/minutes/cmd/minutes/internal/audio"
	"github.com/houzhh15/minutes/cmd/minutes/internal/vad"
	"github.com/houzhh15/minutes/pkg/logger"
)

// Segmenter holds a State between calls for callers that process a stream.
// It is not safe for concurrent use.
type Segmenter struct {
	cfg   Config
	state State
	log   *slog.Logger
}

// New validates cfg and returns an Idle segmenter.
func New(cfg Config, log *slog.Logger) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Segmenter{cfg: cfg, state: NewState(), log: log}, nil
}

// Push feeds one classified frame.
func (s *Segmenter) Push(f audio.Frame, d vad.Decision) Emission {
	var e Emission
	s.state, e = Step(s.cfg, s.state, f, d)
	s.logEmission(e)
	return e
}

// Close flushes the open utterance, if any.
func (s *Segmenter) Close() Emission {
	var e Emission
	s.state, e = Flush(s.cfg, s.state)
	s.logEmission(e)
	return e
}

// Phase reports the current state tag.
func (s *Segmenter) Phase() Phase { return s.state.Phase }

func (s *Segmenter) logEmission(e Emission) {
	switch {
	case e.Utterance != nil:
		u := e.Utterance
		s.log.Debug("utterance sealed", "seq", u.Seq, "frames", len(u.Frames),
			"speech_frames", u.SpeechFrames, "voiced", u.Voiced, "reason", u.Reason)
	case e.Filtered != nil:
		logger.LogUtterance(s.log, "segment", "filtered", 0, e.Filtered.Voiced.Milliseconds(), "")
	}
}

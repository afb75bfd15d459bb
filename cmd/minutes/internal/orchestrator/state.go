package orchestrator

import (
	"time"
)

// Mode is the operating mode of a session.
type Mode string

const (
	ModeFile     Mode = "file"
	ModeRecord   Mode = "record"
	ModeRealtime Mode = "realtime"
)

// State values
type State string

const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateDraining  State = "draining"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether no session is in progress.
func (s State) Terminal() bool {
	switch s {
	case StateCreated, StateStopped, StateCompleted, StateFailed:
		return true
	}
	return false
}

// ProgressInfo snapshot
type ProgressInfo struct {
	State      State         `json:"state"`
	Mode       Mode          `json:"mode,omitempty"`
	SessionID  string        `json:"session_id,omitempty"`
	Output     string        `json:"output,omitempty"`
	Engine     string        `json:"engine,omitempty"`
	Degraded   bool          `json:"degraded"`
	Utterances int           `json:"utterances"`
	Filtered   int           `json:"filtered"`
	Queued     int           `json:"queued"`
	InFlight   int           `json:"in_flight"`
	Reordering int           `json:"reordering"`
	Segments   int           `json:"segments"`
	Failed     int           `json:"failed"`
	Repeated   int           `json:"repeated"`
	Audio      time.Duration `json:"audio"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Result summarizes a finished session.
type Result struct {
	SessionID   string
	Mode        Mode
	Output      string
	AudioPath   string
	SummaryPath string
	Text        string
	Segments    int
	Failed      int
	Degraded    int
	Abandoned   int
	Filtered    int
	Audio       time.Duration
	Cancelled   bool
}

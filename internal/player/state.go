package player

import (
	"time"

	"github.com/glebovdev/somafm-player/internal/fault"
	"github.com/glebovdev/somafm-player/internal/stream"
)

type State int

const (
	StateStopped State = iota
	StateBuffering
	StatePlaying
	StatePaused
	StateReconnecting
	StateFailed
)

var allStates = []State{StateStopped, StateBuffering, StatePlaying, StatePaused, StateReconnecting, StateFailed}

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateBuffering:
		return "BUFFERING"
	case StatePlaying:
		return "LIVE"
	case StatePaused:
		return "PAUSED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Active reports whether a session exists in this state.
func (s State) Active() bool {
	return s == StateBuffering || s == StatePlaying || s == StatePaused || s == StateReconnecting
}

// HasNowPlaying reports whether track information is meaningful in this state.
func (s State) HasNowPlaying() bool {
	return s == StateBuffering || s == StatePlaying || s == StatePaused
}

// transitions lists the allowed edges. Every state may go to Stopped.
var transitions = map[State][]State{
	StateStopped:      {StateBuffering},
	StateBuffering:    {StatePlaying, StateReconnecting, StateFailed},
	StatePlaying:      {StatePaused, StateReconnecting, StateFailed},
	StatePaused:       {StatePlaying, StateReconnecting, StateFailed},
	StateReconnecting: {StateBuffering, StateFailed},
	StateFailed:       {},
}

// CanTransition reports whether the controller may move from s to next.
func (s State) CanTransition(next State) bool {
	if next == StateStopped || next == s {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NowPlaying is the track currently announced by the stream.
type NowPlaying struct {
	ChannelID string
	Title     string
	Artist    string
	Song      string
	UpdatedAt time.Time
}

// Snapshot is a read-only copy of the controller state, published after every
// change.
type Snapshot struct {
	Seq          uint64
	State        State
	ChannelID    string
	URL          string
	Err          *fault.Error
	NowPlaying   NowPlaying
	Volume       int
	Attempt      int
	MaxAttempts  int
	RetryAt      time.Time
	Stream       stream.Info
	Format       string
	SessionStart time.Time
	LeakWarnings int
}

// SessionDuration returns how long the current channel has been playing.
func (s Snapshot) SessionDuration() time.Duration {
	if s.SessionStart.IsZero() {
		return 0
	}
	return time.Since(s.SessionStart)
}

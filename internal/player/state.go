package player

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by transport operations without a playable
	// resource, or while it is still preparing, ended or failed.
	ErrNotReady = errors.New("player not ready")

	// ErrNotBuffered rejects seeks past the decoded audio.
	ErrNotBuffered = errors.New("seek target not buffered")

	// ErrAlreadyInProgress rejects a prepare while another is in flight.
	ErrAlreadyInProgress = errors.New("prepare already in progress")
)

type Status int

const (
	Idle Status = iota
	Preparing
	Ready
	Playing
	Paused
	Ended
	Failed
)

var statusNames = [...]string{"idle", "preparing", "ready", "playing", "paused", "ended", "failed"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// State is a snapshot of the player.
type State struct {
	Status            Status  `json:"status"`
	CurrentTime       float64 `json:"current_time"`
	Duration          float64 `json:"duration"`
	EstimatedDuration float64 `json:"estimated_duration"`
	Buffering         float64 `json:"buffering"`
	Resource          uint64  `json:"resource"`
	Error             string  `json:"error,omitempty"`
}

// DisplayDuration is the real duration once known, the estimate before.
func (s State) DisplayDuration() float64 {
	if s.Duration > 0 {
		return s.Duration
	}
	return s.EstimatedDuration
}

type EventKind int

const (
	TimeUpdate EventKind = iota
	DurationKnown
	EndedEvent
	BufferingUpdate
	StatusChange
)

var eventNames = [...]string{"time", "duration", "ended", "buffering", "status"}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return fmt.Sprintf("event(%d)", int(k))
	}
	return eventNames[k]
}

func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event is pushed to subscribers. Resource identifies the prepared audio the
// event belongs to; 0 marks events of a torn-down player.
type Event struct {
	Kind     EventKind `json:"kind"`
	Resource uint64    `json:"resource"`
	Seconds  float64   `json:"seconds,omitempty"`
	Percent  float64   `json:"percent,omitempty"`
	Status   Status    `json:"status"`
}

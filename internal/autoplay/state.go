package autoplay

import "slices"

// Status is the orchestrator's run state.
type Status int

const (
	// StatusIdle indicates no run is active.
	StatusIdle Status = iota
	// StatusGenerating indicates audio is being obtained for the deck.
	StatusGenerating
	// StatusPlaying indicates slides are being narrated.
	StatusPlaying
	// StatusPaused indicates the current slide's audio is held.
	StatusPaused
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusGenerating:
		return "generating"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// transitions lists the statuses reachable from each status.
var transitions = map[Status][]Status{
	StatusIdle:       {StatusGenerating, StatusPlaying},
	StatusGenerating: {StatusPlaying, StatusIdle},
	StatusPlaying:    {StatusPaused, StatusIdle},
	StatusPaused:     {StatusPlaying, StatusIdle},
}

// CanTransition reports whether to is reachable from s.
func (s Status) CanTransition(to Status) bool {
	return slices.Contains(transitions[s], to)
}

// Progress counts slides with audio during generation.
type Progress struct {
	Done  int
	Total int
}

// State is a snapshot of the orchestrator, safe to retain.
type State struct {
	Seq            uint64 // increases with every change
	RunID          string // empty when no run has started
	Status         Status
	CurrentSlide   int // -1 before the first slide
	CurrentSegment int // -1 when not mid-playback
	Progress       Progress
	Error          string
	PlaybackRate   float64
	AudioReady     []bool
}

// IsActive returns true while a run is generating or narrating.
func (s State) IsActive() bool {
	return s.Status != StatusIdle
}

// CanPause returns true if Pause is currently valid.
func (s State) CanPause() bool {
	return s.Status == StatusPlaying
}

// CanSkip returns true if Skip is currently valid.
func (s State) CanSkip() bool {
	return s.Status == StatusPlaying || s.Status == StatusPaused
}

func (s State) clone() State {
	s.AudioReady = slices.Clone(s.AudioReady)
	return s
}

package autoplay

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when a control is not valid in the
	// current status.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrAlreadyRunning is returned by Start and GenerateAll while a run is
	// active.
	ErrAlreadyRunning = errors.New("narration is already running")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator is closed")
)

// SlideError is a generation failure for one slide. Its message is what the
// status surface shows.
type SlideError struct {
	Slide int // 0-based
	Err   error
}

func (e *SlideError) Error() string {
	return fmt.Sprintf("Slide %d failed: %v", e.Slide+1, e.Err)
}

// Unwrap returns the generation error.
func (e *SlideError) Unwrap() error {
	return e.Err
}

// PlaybackError is a local, recovered failure to play one slide.
type PlaybackError struct {
	Slide int
	Op    string // "open", "start" or "play"
	Err   error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("slide %d %s: %v", e.Slide, e.Op, e.Err)
}

// Unwrap returns the audio error.
func (e *PlaybackError) Unwrap() error {
	return e.Err
}

func invalidState(op string, s Status) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, op, s)
}

package audio

import (
	"errors"
	"time"
)

var (
	// ErrUnsupportedFormat is returned by Open when an artifact cannot be
	// decoded by the player.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrAutoplayBlocked is returned by Start when the output device refuses
	// to begin playback without user interaction.
	ErrAutoplayBlocked = errors.New("automatic playback blocked")

	// ErrPlayerClosed is returned when the player or stream has been closed.
	ErrPlayerClosed = errors.New("player is closed")

	// ErrAudioUnavailable is returned when no output device can be opened.
	ErrAudioUnavailable = errors.New("audio output unavailable")

	// ErrInvalidRate is returned for non-positive playback rates.
	ErrInvalidRate = errors.New("playback rate must be positive")
)

// PlayerState represents the current state of a stream.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

// String returns the string representation of the state.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Player decodes artifacts into playable streams. Only one stream is expected
// to be live at a time; callers own the stream and must Close it.
type Player interface {
	// Open decodes the artifact and returns a stream positioned at zero.
	Open(art Artifact) (Stream, error)

	// Close releases the output device.
	Close() error
}

// Stream is a single loaded artifact: the scoped playback resource for one
// slide.
type Stream interface {
	// Start begins playback at the given rate.
	Start(rate float64) error

	// Pause suspends playback, keeping the position.
	Pause() error

	// Resume continues playback from the paused position.
	Resume() error

	// SetRate changes the playback rate without moving the position.
	SetRate(rate float64) error

	// Position returns the media position reached so far.
	Position() time.Duration

	// Duration returns the total media length.
	Duration() time.Duration

	// Finished is closed when playback reaches the end or the stream is
	// closed, whichever happens first.
	Finished() <-chan struct{}

	// Err returns the playback error, if any, once Finished is closed.
	Err() error

	// Close stops playback and releases the stream's buffers. Safe to call
	// more than once.
	Close() error
}

// Progress returns position/duration in [0, 1] for s, or -1 if the duration is
// unknown.
func Progress(s Stream) float64 {
	d := s.Duration()
	if d <= 0 {
		return -1
	}
	p := float64(s.Position()) / float64(d)
	if p > 1 {
		p = 1
	}
	return p
}

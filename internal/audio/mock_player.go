package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockPlayer implements Player without producing sound. Streams advance on
// the wall clock scaled by their rate, so pause/resume/rate behave like a real
// device. Artifacts must be WAV; anything else fails in Open like an
// undecodable file would.
type MockPlayer struct {
	blockAutoplay atomic.Bool
	closed        atomic.Bool

	mu      sync.Mutex
	streams []*mockStream

	// Metrics for testing
	openCount  atomic.Int64
	closeCount atomic.Int64
}

// NewMockPlayer creates a new mock player.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// SetBlockAutoplay makes every subsequent Start fail with ErrAutoplayBlocked.
func (mp *MockPlayer) SetBlockAutoplay(block bool) {
	mp.blockAutoplay.Store(block)
}

// Open implements Player.
func (mp *MockPlayer) Open(art Artifact) (Stream, error) {
	if mp.closed.Load() {
		return nil, ErrPlayerClosed
	}
	info, err := ParseWAV(art.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	s := &mockStream{
		player:   mp,
		duration: info.Duration(),
		rate:     1,
		finished: make(chan struct{}),
	}
	mp.openCount.Add(1)

	mp.mu.Lock()
	mp.streams = append(mp.streams, s)
	mp.mu.Unlock()

	return s, nil
}

// Close implements Player.
func (mp *MockPlayer) Close() error {
	mp.closed.Store(true)
	mp.mu.Lock()
	streams := append([]*mockStream(nil), mp.streams...)
	mp.mu.Unlock()
	for _, s := range streams {
		_ = s.Close()
	}
	return nil
}

// OpenCount returns how many streams have been opened.
func (mp *MockPlayer) OpenCount() int64 {
	return mp.openCount.Load()
}

// LiveStreams returns how many opened streams have not been closed yet.
func (mp *MockPlayer) LiveStreams() int64 {
	return mp.openCount.Load() - mp.closeCount.Load()
}

// Current returns the most recently opened stream, or nil.
func (mp *MockPlayer) Current() *MockStream {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if len(mp.streams) == 0 {
		return nil
	}
	return &MockStream{s: mp.streams[len(mp.streams)-1]}
}

// MockStream exposes test hooks on a mock stream.
type MockStream struct {
	s *mockStream
}

// State returns the stream state.
func (m *MockStream) State() PlayerState {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.state
}

// Rate returns the current playback rate.
func (m *MockStream) Rate() float64 {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.s.rate
}

// Position returns the stream position.
func (m *MockStream) Position() time.Duration {
	return m.s.Position()
}

type mockStream struct {
	player *MockPlayer

	mu       sync.Mutex
	state    PlayerState
	duration time.Duration
	rate     float64
	elapsed  time.Duration // media position at lastTick
	lastTick time.Time
	timer    *time.Timer
	gen      int

	finished   chan struct{}
	finishOnce sync.Once
	closeOnce  sync.Once
}

func (s *mockStream) Start(rate float64) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	if s.player.blockAutoplay.Load() {
		return ErrAutoplayBlocked
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrPlayerClosed
	}
	s.rate = rate
	s.state = StatePlaying
	s.lastTick = time.Now()
	s.scheduleLocked()
	return nil
}

func (s *mockStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return fmt.Errorf("cannot pause: stream is %s", s.state)
	}
	s.checkpointLocked()
	s.stopTimerLocked()
	s.state = StatePaused
	return nil
}

func (s *mockStream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return fmt.Errorf("cannot resume: stream is %s", s.state)
	}
	s.state = StatePlaying
	s.lastTick = time.Now()
	s.scheduleLocked()
	return nil
}

func (s *mockStream) SetRate(rate float64) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StatePlaying {
		s.checkpointLocked()
		s.rate = rate
		s.scheduleLocked()
		return nil
	}
	s.rate = rate
	return nil
}

func (s *mockStream) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked(time.Now())
}

func (s *mockStream) Duration() time.Duration {
	return s.duration
}

func (s *mockStream) Finished() <-chan struct{} {
	return s.finished
}

func (s *mockStream) Err() error {
	return nil
}

func (s *mockStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopTimerLocked()
		s.state = StateClosed
		s.mu.Unlock()

		s.finish()
		s.player.closeCount.Add(1)
	})
	return nil
}

func (s *mockStream) positionLocked(now time.Time) time.Duration {
	pos := s.elapsed
	if s.state == StatePlaying {
		pos += time.Duration(float64(now.Sub(s.lastTick)) * s.rate)
	}
	if pos > s.duration {
		pos = s.duration
	}
	return pos
}

func (s *mockStream) checkpointLocked() {
	now := time.Now()
	s.elapsed = s.positionLocked(now)
	s.lastTick = now
}

func (s *mockStream) scheduleLocked() {
	s.stopTimerLocked()
	remaining := time.Duration(float64(s.duration-s.elapsed) / s.rate)
	if remaining < 0 {
		remaining = 0
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(remaining, func() { s.complete(gen) })
}

func (s *mockStream) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *mockStream) complete(gen int) {
	s.mu.Lock()
	if s.state != StatePlaying || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.elapsed = s.duration
	s.state = StateStopped
	s.timer = nil
	s.mu.Unlock()

	s.finish()
}

func (s *mockStream) finish() {
	s.finishOnce.Do(func() { close(s.finished) })
}

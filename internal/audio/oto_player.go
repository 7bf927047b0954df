//go:build cgo

package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoContext is process-wide; oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// OtoPlayer plays artifacts on the default output device using oto.
type OtoPlayer struct {
	format PCMFormat
	ctx    *oto.Context

	mu     sync.Mutex
	closed bool
}

// NewOtoPlayer initializes the audio device for the given format. Artifacts
// with a different sample layout are rejected by Open.
func NewOtoPlayer(format PCMFormat) (*OtoPlayer, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("bit depth must be 16, got %d", format.BitDepth)
	}
	if format.Channels != 1 && format.Channels != 2 {
		return nil, fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", format.Channels)
	}

	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		}
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(op)
		if otoErr == nil {
			<-ready
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAudioUnavailable, otoErr)
	}

	return &OtoPlayer{format: format, ctx: otoCtx}, nil
}

// Open implements Player.
func (p *OtoPlayer) Open(art Artifact) (Stream, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPlayerClosed
	}

	info, err := ParseWAV(art.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if info.AudioFormat != 1 || info.PCMFormat != p.format {
		return nil, fmt.Errorf("%w: %d Hz/%d ch/%d bit, device is %d Hz/%d ch/%d bit",
			ErrUnsupportedFormat, info.SampleRate, info.Channels, info.BitDepth,
			p.format.SampleRate, p.format.Channels, p.format.BitDepth)
	}

	// Own a copy so the caller's buffer can be reused while playing.
	pcm := append([]byte(nil), info.Samples(art.Data)...)
	reader := newRateReader(pcm, p.format.BlockAlign(), 1)

	s := &otoStream{
		format:   p.format,
		reader:   reader,
		player:   p.ctx.NewPlayer(reader),
		duration: info.Duration(),
		finished: make(chan struct{}),
		done:     make(chan struct{}),
	}
	return s, nil
}

// Close implements Player. The oto context itself lives for the process.
func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

type otoStream struct {
	format   PCMFormat
	reader   *rateReader
	player   *oto.Player
	duration time.Duration

	mu    sync.Mutex
	state PlayerState
	err   error

	finished   chan struct{}
	done       chan struct{}
	finishOnce sync.Once
	closeOnce  sync.Once
}

func (s *otoStream) Start(rate float64) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrPlayerClosed
	}
	s.reader.setRate(rate)
	s.player.Play()
	if err := s.player.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAutoplayBlocked, err)
	}
	s.state = StatePlaying
	go s.watch()
	return nil
}

// watch closes finished once the device drains the stream.
func (s *otoStream) watch() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		state := s.state
		s.mu.Unlock()
		if state == StatePaused {
			continue
		}
		if s.player.IsPlaying() {
			continue
		}

		s.mu.Lock()
		s.err = s.player.Err()
		if s.state == StatePlaying {
			s.state = StateStopped
		}
		s.mu.Unlock()
		s.finish()
		return
	}
}

func (s *otoStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return fmt.Errorf("cannot pause: stream is %s", s.state)
	}
	s.player.Pause()
	s.state = StatePaused
	return nil
}

func (s *otoStream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return fmt.Errorf("cannot resume: stream is %s", s.state)
	}
	s.player.Play()
	s.state = StatePlaying
	return nil
}

func (s *otoStream) SetRate(rate float64) error {
	if rate <= 0 {
		return ErrInvalidRate
	}
	s.reader.setRate(rate)
	return nil
}

// Position is the source position handed to the device minus what is still
// buffered there, scaled back through the rate.
func (s *otoStream) Position() time.Duration {
	consumed, rate := s.reader.consumed()
	pending := int(float64(s.player.BufferedSize()) * rate)
	n := consumed - pending
	if n < 0 {
		n = 0
	}
	pos := s.format.DurationOf(n)
	if pos > s.duration {
		pos = s.duration
	}
	return pos
}

func (s *otoStream) Duration() time.Duration {
	return s.duration
}

func (s *otoStream) Finished() <-chan struct{} {
	return s.finished
}

func (s *otoStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *otoStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.player.Pause()
		err = s.player.Close()
		s.mu.Unlock()

		close(s.done)
		s.finish()
	})
	return err
}

func (s *otoStream) finish() {
	s.finishOnce.Do(func() { close(s.finished) })
}

// Package autoplay drives a narrated walkthrough of a slide deck: it obtains
// audio for every slide, then navigates and plays each slide in order while
// tracking the spoken sentence and honoring transport controls.
package autoplay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jasonshaw0/eng-final/internal/audio"
	"github.com/jasonshaw0/eng-final/internal/narration"
	"github.com/jasonshaw0/eng-final/internal/speech"
)

// Generator produces audio for narration text.
type Generator interface {
	Generate(ctx context.Context, text, credential, voice string) (speech.Result, error)
}

// Timing holds the fixed waits of the playback loop.
type Timing struct {
	Settle   time.Duration // after navigation, before audio starts
	Advance  time.Duration // between slides
	Recovery time.Duration // after a slide fails to play
	Update   time.Duration // segment tracking interval
}

// DefaultTiming returns the standard delays.
func DefaultTiming() Timing {
	return Timing{
		Settle:   500 * time.Millisecond,
		Advance:  time.Second,
		Recovery: 3 * time.Second,
		Update:   100 * time.Millisecond,
	}
}

// Config wires an Orchestrator to its collaborators.
type Config struct {
	Deck      narration.Deck
	Generator Generator
	Player    audio.Player

	// Navigate is called once per slide transition. It may be called again
	// with the same index on a later run.
	Navigate func(slide int)

	// Credential is read each time generation is needed.
	Credential func() string

	Voice        string
	PlaybackRate float64 // 0 means 1
	Timing       Timing  // zero fields take DefaultTiming values
	Logger       *log.Logger
}

// Orchestrator is the narration state machine. Control methods are safe to
// call from any goroutine while Start runs.
type Orchestrator struct {
	deck       narration.Deck
	gen        Generator
	player     audio.Player
	navigate   func(int)
	credential func() string
	voice      string
	timing     Timing
	logger     *log.Logger

	mu        sync.Mutex
	state     State
	artifacts []audio.Artifact // slide-indexed slots
	runID     string
	cancel    context.CancelFunc
	done      chan struct{} // closed when the current run returns
	stream    audio.Stream  // live stream, at most one
	skipCh    chan struct{} // closed to end the current slide
	paused    bool
	resumeCh  chan struct{} // closed on resume
	listeners []func(State)
	closed    bool
}

// New creates an orchestrator for cfg.Deck.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.Deck.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deck: %w", err)
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if cfg.Player == nil {
		return nil, errors.New("player is required")
	}

	rate := cfg.PlaybackRate
	if rate == 0 {
		rate = 1
	}
	if err := ValidateRate(rate); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		deck:       cfg.Deck,
		gen:        cfg.Generator,
		player:     cfg.Player,
		navigate:   cfg.Navigate,
		credential: cfg.Credential,
		voice:      cfg.Voice,
		timing:     withDefaults(cfg.Timing),
		logger:     cfg.Logger,
		artifacts:  make([]audio.Artifact, len(cfg.Deck)),
	}
	if o.navigate == nil {
		o.navigate = func(int) {}
	}
	if o.credential == nil {
		o.credential = func() string { return "" }
	}
	if o.logger == nil {
		o.logger = log.Default().WithPrefix("autoplay")
	}

	o.state = State{
		Status:         StatusIdle,
		CurrentSlide:   -1,
		CurrentSegment: -1,
		Progress:       Progress{Total: len(cfg.Deck)},
		PlaybackRate:   rate,
		AudioReady:     make([]bool, len(cfg.Deck)),
	}
	return o, nil
}

func withDefaults(t Timing) Timing {
	d := DefaultTiming()
	if t.Settle == 0 {
		t.Settle = d.Settle
	}
	if t.Advance == 0 {
		t.Advance = d.Advance
	}
	if t.Recovery == 0 {
		t.Recovery = d.Recovery
	}
	if t.Update == 0 {
		t.Update = d.Update
	}
	return t
}

// State returns a snapshot of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// OnStateChange registers fn to receive a snapshot after every change. fn is
// called without internal locks held and must not block.
func (o *Orchestrator) OnStateChange(fn func(State)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// Start runs the presentation and blocks until it ends: every slide narrated,
// Stop called, ctx cancelled, or generation failed. Slides whose audio is
// already held are not generated again. A generation failure is recorded in
// the state's Error and returned as a *SlideError; a missing credential
// returns *speech.AuthenticationError before any generation.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.run(ctx, true)
}

// GenerateAll obtains audio for every slide without playing anything.
func (o *Orchestrator) GenerateAll(ctx context.Context) error {
	return o.run(ctx, false)
}

func (o *Orchestrator) run(ctx context.Context, play bool) error {
	runCtx, runID, done, err := o.begin(ctx)
	if err != nil {
		return err
	}
	defer close(done)
	defer o.finish(runID)

	logger := o.logger.With("run", runID[:8])

	if !o.allReady() {
		cred := o.credential()
		if strings.TrimSpace(cred) == "" {
			authErr := &speech.AuthenticationError{}
			o.update(runID, func(s *State) { s.Error = authErr.Error() })
			logger.Warn("no credential, not generating")
			return authErr
		}
		if err := o.generate(runCtx, runID, cred, logger); err != nil {
			return err
		}
	}

	if !play || runCtx.Err() != nil {
		return nil
	}

	o.playAll(runCtx, runID, logger)
	return nil
}

// begin claims the orchestrator for a new run.
func (o *Orchestrator) begin(ctx context.Context) (context.Context, string, chan struct{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, "", nil, ErrClosed
	}
	if o.runID != "" || o.state.Status != StatusIdle {
		return nil, "", nil, ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.runID = uuid.NewString()
	o.cancel = cancel
	o.done = make(chan struct{})
	o.paused = false
	o.state.RunID = o.runID
	o.state.Error = ""

	return runCtx, o.runID, o.done, nil
}

// finish returns a run to idle unless Stop already did.
func (o *Orchestrator) finish(runID string) {
	o.mu.Lock()
	if o.runID != runID {
		o.mu.Unlock()
		return
	}
	o.cancel()
	o.cancel = nil
	o.runID = ""
	o.clearPauseLocked()
	o.state.Status = StatusIdle
	o.state.CurrentSegment = -1
	snap, listeners := o.changedLocked()
	o.mu.Unlock()

	notify(listeners, snap)
}

func (o *Orchestrator) allReady() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !slices.Contains(o.state.AudioReady, false)
}

// generate fills missing artifact slots one slide at a time, stopping at the
// first failure.
func (o *Orchestrator) generate(ctx context.Context, runID, cred string, logger *log.Logger) error {
	total := len(o.deck)
	if !o.update(runID, func(s *State) {
		s.Status = StatusGenerating
		s.Progress = Progress{Total: total}
	}) {
		return nil
	}

	for i, script := range o.deck {
		if ctx.Err() != nil {
			logger.Debug("generation cancelled", "slide", i)
			return nil
		}

		if !o.hasArtifact(i) {
			res, err := o.gen.Generate(ctx, script.FullText, cred, o.voice)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slideErr := &SlideError{Slide: i, Err: err}
				logger.Error("generation failed", "slide", i, "err", err)
				o.update(runID, func(s *State) {
					s.Error = slideErr.Error()
					s.Status = StatusIdle
				})
				return slideErr
			}
			logger.Debug("slide audio ready", "slide", i, "cached", res.FromCache, "bytes", res.Artifact.Len())
			o.setArtifact(runID, i, res.Artifact)
		}

		o.update(runID, func(s *State) { s.Progress.Done = i + 1 })
	}
	return nil
}

func (o *Orchestrator) hasArtifact(i int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.AudioReady[i]
}

func (o *Orchestrator) setArtifact(runID string, i int, art audio.Artifact) {
	o.mu.Lock()
	// Audio obtained by a stopped run is still kept for the next one.
	o.artifacts[i] = art
	o.state.AudioReady[i] = true
	if o.runID != runID {
		o.mu.Unlock()
		return
	}
	snap, listeners := o.changedLocked()
	o.mu.Unlock()

	notify(listeners, snap)
}

// playAll narrates each slide in ascending order.
func (o *Orchestrator) playAll(ctx context.Context, runID string, logger *log.Logger) {
	if !o.update(runID, func(s *State) { s.Status = StatusPlaying }) {
		return
	}

	last := len(o.deck) - 1
	for i := range o.deck {
		if ctx.Err() != nil {
			return
		}

		skipCh := make(chan struct{})
		if !o.beginSlide(runID, i, skipCh) {
			return
		}
		o.navigate(i)

		if !sleep(ctx, o.timing.Settle) || !o.waitResumed(ctx) {
			return
		}

		if err := o.playSlide(ctx, runID, i, skipCh); err != nil {
			var pe *PlaybackError
			if errors.As(err, &pe) {
				logger.Warn("skipping slide after playback failure", "slide", i, "op", pe.Op, "err", pe.Err)
				if !sleep(ctx, o.timing.Recovery) {
					return
				}
			}
		}

		if !o.update(runID, func(s *State) { s.CurrentSegment = -1 }) {
			return
		}

		if i < last && !sleep(ctx, o.timing.Advance) {
			return
		}
	}
}

// beginSlide makes i the current slide with a fresh skip channel.
func (o *Orchestrator) beginSlide(runID string, i int, skipCh chan struct{}) bool {
	o.mu.Lock()
	if o.runID != runID {
		o.mu.Unlock()
		return false
	}
	o.skipCh = skipCh
	o.state.CurrentSlide = i
	o.state.CurrentSegment = 0
	snap, listeners := o.changedLocked()
	o.mu.Unlock()

	notify(listeners, snap)
	return true
}

// playSlide plays slide i to completion, skip, or cancellation. The stream
// is released on every exit path.
func (o *Orchestrator) playSlide(ctx context.Context, runID string, i int, skipCh chan struct{}) error {
	select {
	case <-skipCh:
		return nil
	default:
	}

	o.mu.Lock()
	art := o.artifacts[i]
	rate := o.state.PlaybackRate
	o.mu.Unlock()

	stream, err := o.player.Open(art)
	if err != nil {
		return &PlaybackError{Slide: i, Op: "open", Err: err}
	}
	defer func() {
		o.mu.Lock()
		if o.stream == stream {
			o.stream = nil
		}
		o.mu.Unlock()
		stream.Close()
	}()

	if err := stream.Start(rate); err != nil {
		return &PlaybackError{Slide: i, Op: "start", Err: err}
	}

	o.mu.Lock()
	if o.runID != runID {
		o.mu.Unlock()
		return nil
	}
	o.stream = stream
	if o.paused {
		// Paused between the resume gate and now.
		stream.Pause()
	}
	if rate != o.state.PlaybackRate {
		stream.SetRate(o.state.PlaybackRate)
	}
	o.mu.Unlock()

	return o.playToCompletion(ctx, runID, i, stream, skipCh)
}

// playToCompletion waits for the stream to end while mapping its progress to
// the spoken segment.
func (o *Orchestrator) playToCompletion(ctx context.Context, runID string, i int, stream audio.Stream, skipCh <-chan struct{}) error {
	tracker := narration.NewTracker(o.deck[i])
	ticker := time.NewTicker(o.timing.Update)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-skipCh:
			return nil
		case <-stream.Finished():
			if err := stream.Err(); err != nil {
				return &PlaybackError{Slide: i, Op: "play", Err: err}
			}
			return nil
		case <-ticker.C:
			progress := audio.Progress(stream)
			if progress < 0 {
				continue
			}
			if seg, changed := tracker.Update(progress); changed {
				o.update(runID, func(s *State) { s.CurrentSegment = seg })
			}
		}
	}
}

// waitResumed blocks while paused.
func (o *Orchestrator) waitResumed(ctx context.Context) bool {
	o.mu.Lock()
	if !o.paused {
		o.mu.Unlock()
		return true
	}
	ch := o.resumeCh
	o.mu.Unlock()

	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Pause holds the current slide's audio at its position.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	if o.state.Status != StatusPlaying {
		defer o.mu.Unlock()
		return invalidState("pause", o.state.Status)
	}

	o.paused = true
	o.resumeCh = make(chan struct{})
	if o.stream != nil {
		if err := o.stream.Pause(); err != nil {
			o.logger.Debug("stream pause", "err", err)
		}
	}
	o.state.Status = StatusPaused
	snap, listeners := o.changedLocked()
	o.mu.Unlock()

	notify(listeners, snap)
	return nil
}

// Resume continues the current slide's audio from where it was paused.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	if o.state.Status != StatusPaused {
		defer o.mu.Unlock()
		return invalidState("resume", o.state.Status)
	}

	o.resumeLocked()
	snap, listeners := o.changedLocked()
	o.mu.Unlock()

	notify(listeners, snap)
	return nil
}

func (o *Orchestrator) resumeLocked() {
	o.clearPauseLocked()
	if o.stream != nil {
		if err := o.stream.Resume(); err != nil {
			o.logger.Debug("stream resume", "err", err)
		}
	}
	o.state.Status = StatusPlaying
}

func (o *Orchestrator) clearPauseLocked() {
	if o.paused {
		o.paused = false
		close(o.resumeCh)
	}
}

// Skip ends the current slide as if its audio had finished. Skipping while
// paused also resumes, so the next slide plays; the skipped audio stays
// silent.
func (o *Orchestrator) Skip() error {
	o.mu.Lock()
	status := o.state.Status
	if status != StatusPlaying && status != StatusPaused {
		defer o.mu.Unlock()
		return invalidState("skip", status)
	}

	if o.skipCh != nil {
		close(o.skipCh)
		o.skipCh = nil
	}
	if status == StatusPaused {
		// The skipped stream is closed while still paused.
		o.clearPauseLocked()
		o.state.Status = StatusPlaying
	}
	snap, listeners := o.changedLocked()
	o.mu.Unlock()

	notify(listeners, snap)
	return nil
}

// ChangeSpeed sets the playback rate, applying it to live audio without
// moving its position. Valid in any status.
func (o *Orchestrator) ChangeSpeed(rate float64) error {
	if err := ValidateRate(rate); err != nil {
		return err
	}

	o.mu.Lock()
	o.state.PlaybackRate = rate
	if o.stream != nil {
		if err := o.stream.SetRate(rate); err != nil {
			o.logger.Debug("stream rate", "err", err)
		}
	}
	snap, listeners := o.changedLocked()
	o.mu.Unlock()

	notify(listeners, snap)
	return nil
}

// CycleSpeed advances to the next speed step and returns it.
func (o *Orchestrator) CycleSpeed() float64 {
	next := NextSpeed(o.State().PlaybackRate)
	_ = o.ChangeSpeed(next)
	return next
}

// Stop halts any generation or playback, releases live audio and returns to
// idle. The error and current slide are kept. Safe to call in any state and
// more than once; it does not wait for Start to return.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.runID = ""
	stream := o.stream
	o.stream = nil
	o.skipCh = nil
	o.clearPauseLocked()

	wasIdle := o.state.Status == StatusIdle && o.state.CurrentSegment == -1
	o.state.Status = StatusIdle
	o.state.CurrentSegment = -1

	var (
		snap      State
		listeners []func(State)
	)
	if !wasIdle {
		snap, listeners = o.changedLocked()
	}
	o.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	notify(listeners, snap)
}

// Wait blocks until the current run, if any, has returned.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops the run, waits for it to unwind and closes the player.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.Stop()
	o.Wait()
	return o.player.Close()
}

// update applies fn to the state if runID is still the active run, then
// notifies listeners. It reports whether the run is still active.
func (o *Orchestrator) update(runID string, fn func(*State)) bool {
	o.mu.Lock()
	if o.runID != runID {
		o.mu.Unlock()
		return false
	}

	prev := o.state.Status
	fn(&o.state)
	if prev != o.state.Status && !prev.CanTransition(o.state.Status) {
		o.logger.Warn("unexpected transition", "from", prev, "to", o.state.Status)
	}
	snap, listeners := o.changedLocked()
	o.mu.Unlock()

	notify(listeners, snap)
	return true
}

func (o *Orchestrator) changedLocked() (State, []func(State)) {
	o.state.Seq++
	return o.state.clone(), slices.Clone(o.listeners)
}

func notify(listeners []func(State), s State) {
	for _, fn := range listeners {
		fn(s)
	}
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

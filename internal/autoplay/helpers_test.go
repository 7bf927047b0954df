package autoplay

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jasonshaw0/eng-final/internal/audio"
	"github.com/jasonshaw0/eng-final/internal/narration"
	"github.com/jasonshaw0/eng-final/internal/speech"
)

// wavOf returns a silent WAV artifact of length d.
func wavOf(d time.Duration) audio.Artifact {
	format := audio.DefaultPCMFormat()
	n := int(d * time.Duration(format.ByteRate()) / time.Second)
	n -= n % format.BlockAlign()
	return audio.Artifact{Data: audio.WrapPCM(make([]byte, n), format), ContentType: audio.ContentTypeWAV}
}

// testDeck builds n slides of three equal-length segments.
func testDeck(t *testing.T, n int) narration.Deck {
	t.Helper()
	deck := make(narration.Deck, n)
	for i := range deck {
		s, err := narration.New(i,
			fmt.Sprintf("Slide %d opens here.", i),
			fmt.Sprintf("Slide %d continues on.", i),
			fmt.Sprintf("Slide %d wraps it up.", i),
		)
		if err != nil {
			t.Fatal(err)
		}
		deck[i] = s
	}
	return deck
}

// fakeGenerator serves artifacts per text.
type fakeGenerator struct {
	mu        sync.Mutex
	calls     []string
	creds     []string
	fail      map[string]error
	artifacts map[string]audio.Artifact
	fallback  time.Duration
	block     bool // wait for ctx cancellation
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		fail:      make(map[string]error),
		artifacts: make(map[string]audio.Artifact),
		fallback:  30 * time.Millisecond,
	}
}

func (g *fakeGenerator) Generate(ctx context.Context, text, credential, voice string) (speech.Result, error) {
	g.mu.Lock()
	g.calls = append(g.calls, text)
	g.creds = append(g.creds, credential)
	block := g.block
	err := g.fail[text]
	art, ok := g.artifacts[text]
	fallback := g.fallback
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return speech.Result{}, &speech.GenerationError{Cause: ctx.Err()}
	}
	if err != nil {
		return speech.Result{}, err
	}
	if !ok {
		art = wavOf(fallback)
	}
	return speech.Result{Artifact: art}, nil
}

func (g *fakeGenerator) setArtifact(text string, art audio.Artifact) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.artifacts[text] = art
}

func (g *fakeGenerator) setFail(text string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.fail, text)
		return
	}
	g.fail[text] = err
}

func (g *fakeGenerator) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

// navRecorder records navigation callbacks.
type navRecorder struct {
	mu     sync.Mutex
	slides []int
}

func (n *navRecorder) navigate(i int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.slides = append(n.slides, i)
}

func (n *navRecorder) Slides() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.slides)
}

// stateRecorder keeps every snapshot, ordered by sequence number.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.states)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (r *stateRecorder) Statuses() []Status {
	var out []Status
	for _, s := range r.States() {
		if len(out) == 0 || out[len(out)-1] != s.Status {
			out = append(out, s.Status)
		}
	}
	return out
}

type harness struct {
	o      *Orchestrator
	gen    *fakeGenerator
	player *audio.MockPlayer
	nav    *navRecorder
	rec    *stateRecorder
	cred   string
	credMu sync.Mutex
}

func (h *harness) setCredential(c string) {
	h.credMu.Lock()
	defer h.credMu.Unlock()
	h.cred = c
}

func (h *harness) credential() string {
	h.credMu.Lock()
	defer h.credMu.Unlock()
	return h.cred
}

func fastTiming() Timing {
	return Timing{
		Settle:   5 * time.Millisecond,
		Advance:  5 * time.Millisecond,
		Recovery: 10 * time.Millisecond,
		Update:   2 * time.Millisecond,
	}
}

func newHarness(t *testing.T, deck narration.Deck) *harness {
	t.Helper()
	h := &harness{
		gen:    newFakeGenerator(),
		player: audio.NewMockPlayer(),
		nav:    &navRecorder{},
		rec:    &stateRecorder{},
		cred:   "test-key",
	}

	o, err := New(Config{
		Deck:       deck,
		Generator:  h.gen,
		Player:     h.player,
		Navigate:   h.nav.navigate,
		Credential: h.credential,
		Timing:     fastTiming(),
		Logger:     log.New(io.Discard),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	o.OnStateChange(h.rec.record)
	h.o = o

	t.Cleanup(func() { o.Close() })
	return h
}

// startAsync runs Start in the background.
func (h *harness) startAsync() <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- h.o.Start(context.Background()) }()
	return ch
}

func waitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// slidePlaying reports whether slide i's stream is audibly playing.
func (h *harness) slidePlaying(i int) bool {
	cur := h.player.Current()
	return h.o.State().CurrentSlide == i && cur != nil && cur.State() == audio.StatePlaying
}

func isSubsequence(want, got []Status) bool {
	j := 0
	for _, s := range got {
		if j < len(want) && s == want[j] {
			j++
		}
	}
	return j == len(want)
}

var errProvider = &speech.GenerationError{StatusCode: 500, Body: "boom"}

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jasonshaw0/eng-final/internal/autoplay"
	"github.com/jasonshaw0/eng-final/internal/narration"
)

func testDeck(t *testing.T) narration.Deck {
	t.Helper()
	deck, err := narration.Parse([]byte(`
title: Test
slides:
  - title: Opening
    segments:
      - "First sentence."
      - "Second sentence."
  - segments:
      - "Only sentence."
`))
	if err != nil {
		t.Fatal(err)
	}
	return deck
}

func TestSlideHeading(t *testing.T) {
	deck := testDeck(t)

	tests := []struct {
		slide int
		want  string
	}{
		{0, "Slide 1/2 · Opening"},
		{1, "Slide 2/2"},
		{5, "Slide 6"},
	}
	for _, tt := range tests {
		if got := slideHeading(deck, tt.slide); got != tt.want {
			t.Errorf("slideHeading(%d) = %q, want %q", tt.slide, got, tt.want)
		}
	}
}

func TestStatusPrinter(t *testing.T) {
	deck := testDeck(t)
	var buf bytes.Buffer
	p := newStatusPrinter(&buf, deck, 80)

	base := autoplay.State{Status: autoplay.StatusIdle, CurrentSlide: -1, CurrentSegment: -1, PlaybackRate: 1}
	step := func(seq uint64, fn func(*autoplay.State)) {
		fn(&base)
		base.Seq = seq
		p.Update(base)
	}

	step(1, func(s *autoplay.State) {
		s.Status = autoplay.StatusGenerating
		s.Progress = autoplay.Progress{Done: 1, Total: 2}
	})
	step(2, func(s *autoplay.State) { s.Status = autoplay.StatusPlaying })
	p.Navigate(0)
	step(3, func(s *autoplay.State) { s.CurrentSlide, s.CurrentSegment = 0, 0 })
	step(4, func(s *autoplay.State) { s.CurrentSegment = 1 })
	step(5, func(s *autoplay.State) { s.Status = autoplay.StatusPaused })
	step(6, func(s *autoplay.State) { s.Status = autoplay.StatusPlaying })
	step(7, func(s *autoplay.State) { s.PlaybackRate = 1.5 })

	// A stale snapshot is ignored.
	stale := base
	stale.Seq = 2
	stale.Error = "stale"
	p.Update(stale)

	step(8, func(s *autoplay.State) {
		s.Status = autoplay.StatusIdle
		s.Error = "Slide 2 failed: boom"
	})

	out := buf.String()
	for _, want := range []string{
		"generating audio 1/2",
		"Slide 1/2 · Opening",
		"› First sentence.",
		"› Second sentence.",
		"paused",
		"resumed",
		"speed 1.5x",
		"Slide 2 failed: boom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "stale") {
		t.Errorf("stale snapshot printed:\n%s", out)
	}
	if n := strings.Count(out, "First sentence."); n != 1 {
		t.Errorf("segment printed %d times", n)
	}
}

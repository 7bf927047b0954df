package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/jasonshaw0/eng-final/internal/autoplay"
	"github.com/jasonshaw0/eng-final/internal/narration"
)

// terminalWidth returns the stdout width, capped at 120, or 80 when stdout
// is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd()) //nolint:gosec
	if !term.IsTerminal(fd) {
		return 80
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 80
	}
	return min(w, 120)
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec
}

// statusPrinter renders orchestrator state changes as lines of text. It is
// used when input is not a terminal.
type statusPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	deck  narration.Deck
	width int
	last  autoplay.State
	seen  bool
}

func newStatusPrinter(w io.Writer, deck narration.Deck, width int) *statusPrinter {
	return &statusPrinter{w: w, deck: deck, width: width}
}

// Navigate prints the slide heading; it is the orchestrator's navigation
// callback.
func (p *statusPrinter) Navigate(slide int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, slideStyle.Render(slideHeading(p.deck, slide)))
}

// Update prints what changed since the previous snapshot. Snapshots older
// than the last one printed are ignored.
func (p *statusPrinter) Update(s autoplay.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.last
	if p.seen && s.Seq <= prev.Seq {
		return
	}
	p.last, p.seen = s, true

	if s.Status == autoplay.StatusGenerating && s.Progress != prev.Progress {
		fmt.Fprintln(p.w, faintStyle.Render(fmt.Sprintf("generating audio %d/%d", s.Progress.Done, s.Progress.Total)))
	}
	if s.Status != prev.Status {
		switch s.Status {
		case autoplay.StatusPaused:
			fmt.Fprintln(p.w, faintStyle.Render("paused"))
		case autoplay.StatusPlaying:
			if prev.Status == autoplay.StatusPaused {
				fmt.Fprintln(p.w, faintStyle.Render("resumed"))
			}
		}
	}
	if s.PlaybackRate != prev.PlaybackRate && prev.PlaybackRate != 0 {
		fmt.Fprintln(p.w, faintStyle.Render("speed "+autoplay.FormatRate(s.PlaybackRate)))
	}
	if s.CurrentSegment >= 0 && s.IsActive() &&
		(s.CurrentSegment != prev.CurrentSegment || s.CurrentSlide != prev.CurrentSlide) {
		if text, ok := segmentText(p.deck, s.CurrentSlide, s.CurrentSegment); ok {
			fmt.Fprintln(p.w, segmentStyle.MaxWidth(p.width).Render("  › "+text))
		}
	}
	if s.Error != "" && s.Error != prev.Error {
		fmt.Fprintln(p.w, errorStyle.Render(s.Error))
	}
}

// Message prints a one-off line, such as a control error.
func (p *statusPrinter) Message(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, faintStyle.Render(msg))
}

func slideHeading(deck narration.Deck, slide int) string {
	if slide < 0 || slide >= len(deck) {
		return fmt.Sprintf("Slide %d", slide+1)
	}
	h := fmt.Sprintf("Slide %d/%d", slide+1, len(deck))
	if t := deck[slide].Title; t != "" {
		h += " · " + t
	}
	return h
}

func segmentText(deck narration.Deck, slide, segment int) (string, bool) {
	if slide < 0 || slide >= len(deck) {
		return "", false
	}
	segs := deck[slide].Segments
	if segment < 0 || segment >= len(segs) {
		return "", false
	}
	return segs[segment].Text, true
}

// Package narration holds per-slide narration scripts and the mapping from
// playback progress to the sentence being spoken.
package narration

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
)

var (
	// ErrNoSegments is returned for a script without spoken text.
	ErrNoSegments = errors.New("narration script has no segments")

	// ErrEmptySegment is returned when a segment's text is blank.
	ErrEmptySegment = errors.New("narration segment is empty")

	// ErrFullTextMismatch is returned when FullText is not the join of the
	// segments.
	ErrFullTextMismatch = errors.New("narration full text does not match segments")
)

// Segment is one sentence-level unit of a script.
type Segment struct {
	Text string `yaml:"text"`
}

// Script is the narration for one slide. FullText is what gets synthesized
// and fingerprinted; it is always the segments joined with single spaces.
type Script struct {
	SlideIndex int
	Title      string
	Segments   []Segment
	FullText   string
}

// New builds a script from segment texts in spoken order.
func New(slideIndex int, texts ...string) (Script, error) {
	s := Script{
		SlideIndex: slideIndex,
		Segments:   make([]Segment, len(texts)),
	}
	for i, text := range texts {
		s.Segments[i] = Segment{Text: text}
	}
	s.FullText = Join(s.Segments)

	if err := s.Validate(); err != nil {
		return Script{}, err
	}
	return s, nil
}

// Join concatenates segment texts with single spaces.
func Join(segments []Segment) string {
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}
	return strings.Join(texts, " ")
}

// Validate checks the script invariants.
func (s Script) Validate() error {
	if len(s.Segments) == 0 {
		return fmt.Errorf("slide %d: %w", s.SlideIndex, ErrNoSegments)
	}
	for i, seg := range s.Segments {
		if strings.TrimSpace(seg.Text) == "" {
			return fmt.Errorf("slide %d segment %d: %w", s.SlideIndex, i, ErrEmptySegment)
		}
	}
	if s.FullText != Join(s.Segments) {
		return fmt.Errorf("slide %d: %w", s.SlideIndex, ErrFullTextMismatch)
	}
	return nil
}

// SegmentAt maps a playback fraction in [0, 1] to the first segment whose
// cumulative share of the full text length exceeds it. Lengths are counted
// in UTF-16 code units. It reports false when no segment qualifies, which
// happens in the final stretch because separators count toward the total.
func (s Script) SegmentAt(progress float64) (int, bool) {
	total := textLen(s.FullText)
	if total == 0 {
		return 0, false
	}

	sum := 0
	for i, seg := range s.Segments {
		sum += textLen(seg.Text)
		if float64(sum)/float64(total) > progress {
			return i, true
		}
	}
	return 0, false
}

func textLen(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// Deck is an ordered list of scripts, one per slide.
type Deck []Script

// Validate checks every script and that slide indices match positions.
func (d Deck) Validate() error {
	if len(d) == 0 {
		return errors.New("narration deck is empty")
	}
	for i, s := range d {
		if s.SlideIndex != i {
			return fmt.Errorf("script at position %d has slide index %d", i, s.SlideIndex)
		}
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

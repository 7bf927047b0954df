package narration

import "sync"

// Tracker follows the spoken segment of one script during playback. The
// reported segment never moves backwards.
type Tracker struct {
	mu      sync.Mutex
	script  Script
	current int
}

// NewTracker starts tracking script at its first segment.
func NewTracker(script Script) *Tracker {
	return &Tracker{script: script}
}

// Update maps progress to a segment and reports whether the tracked segment
// advanced.
func (t *Tracker) Update(progress float64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seg, ok := t.script.SegmentAt(progress)
	if !ok || seg <= t.current {
		return t.current, false
	}
	t.current = seg
	return seg, true
}

// Current returns the tracked segment index.
func (t *Tracker) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

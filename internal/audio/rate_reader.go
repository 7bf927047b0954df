package audio

import (
	"io"
	"math"
	"sync"
)

// rateReader streams PCM frames at an adjustable rate by nearest-frame
// resampling. Pitch follows the rate; narration at 0.75x-2x stays intelligible.
type rateReader struct {
	mu         sync.Mutex
	pcm        []byte
	blockAlign int
	pos        float64 // source frame cursor
	rate       float64
}

func newRateReader(pcm []byte, blockAlign int, rate float64) *rateReader {
	if rate <= 0 {
		rate = 1
	}
	return &rateReader{pcm: pcm, blockAlign: blockAlign, rate: rate}
}

func (r *rateReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(r.pcm) / r.blockAlign
	n := 0
	for n+r.blockAlign <= len(p) {
		idx := int(r.pos)
		if idx >= frames {
			break
		}
		off := idx * r.blockAlign
		copy(p[n:n+r.blockAlign], r.pcm[off:off+r.blockAlign])
		n += r.blockAlign
		r.pos += r.rate
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (r *rateReader) setRate(rate float64) {
	r.mu.Lock()
	r.rate = rate
	r.mu.Unlock()
}

// consumed returns source bytes handed to the device so far, and the rate.
func (r *rateReader) consumed() (int, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := int(math.Min(r.pos, float64(len(r.pcm)/r.blockAlign)))
	return frames * r.blockAlign, r.rate
}

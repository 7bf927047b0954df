//go:build !cgo

package audio

// OtoPlayer is unavailable in builds without cgo.
type OtoPlayer struct{}

// NewOtoPlayer always fails without cgo.
func NewOtoPlayer(format PCMFormat) (*OtoPlayer, error) {
	return nil, ErrAudioUnavailable
}

// Open implements Player.
func (p *OtoPlayer) Open(art Artifact) (Stream, error) {
	return nil, ErrAudioUnavailable
}

// Close implements Player.
func (p *OtoPlayer) Close() error {
	return nil
}

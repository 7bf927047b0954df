package audio

import (
	"strings"
	"time"
)

// Content types understood by the players.
const (
	ContentTypeWAV = "audio/wav"
	ContentTypeRaw = "audio/raw"
)

// Artifact is an immutable playable audio payload plus its content type.
type Artifact struct {
	Data        []byte
	ContentType string
}

// Len returns the payload size in bytes.
func (a Artifact) Len() int {
	return len(a.Data)
}

// IsZero reports whether the artifact carries no audio.
func (a Artifact) IsZero() bool {
	return len(a.Data) == 0
}

// Duration returns the playback length of a WAV artifact at normal speed, or
// zero if the payload is not a readable WAV container.
func (a Artifact) Duration() time.Duration {
	info, err := ParseWAV(a.Data)
	if err != nil {
		return 0
	}
	return info.Duration()
}

// IsRawPCM reports whether a provider-declared MIME type describes headerless
// PCM samples that must be wrapped before playback.
func IsRawPCM(mimeType string) bool {
	return strings.Contains(mimeType, "pcm") ||
		strings.Contains(mimeType, "L16") ||
		mimeType == ContentTypeRaw
}

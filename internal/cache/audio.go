package cache

import (
	"bytes"
	"encoding/gob"
	"strconv"
	"unicode/utf16"

	"github.com/charmbracelet/log"

	"github.com/jasonshaw0/eng-final/internal/audio"
)

// KeyPrefix namespaces audio entries from anything else sharing a store.
const KeyPrefix = "tts_"

// Fingerprint derives the cache key for narration text: a 32-bit rolling
// hash (h = h*31 + c, wrapping) over the UTF-16 code units of text.
// Collisions are possible; the narration corpus is small and fixed.
func Fingerprint(text string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(text)) {
		h = h*31 + int32(c)
	}
	return KeyPrefix + strconv.Itoa(int(h))
}

// envelope is the on-store encoding of an artifact.
type envelope struct {
	ContentType string
	Data        []byte
}

// AudioCache maps narration text to audio artifacts. It never fails
// observably: read errors are misses and write errors are dropped.
type AudioCache struct {
	store  Store
	logger *log.Logger
}

// AudioCacheOption configures an AudioCache.
type AudioCacheOption func(*AudioCache)

// WithLogger sets the logger used for swallowed storage errors.
func WithLogger(l *log.Logger) AudioCacheOption {
	return func(c *AudioCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewAudioCache wraps store.
func NewAudioCache(store Store, opts ...AudioCacheOption) *AudioCache {
	c := &AudioCache{
		store:  store,
		logger: log.Default().WithPrefix("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached artifact for text, if any.
func (c *AudioCache) Get(text string) (audio.Artifact, bool) {
	key := Fingerprint(text)

	raw, ok := c.store.Get(key)
	if !ok {
		return audio.Artifact{}, false
	}

	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil || len(env.Data) == 0 {
		c.logger.Warn("discarding unreadable cache entry", "key", key, "err", err)
		_ = c.store.Delete(key)
		return audio.Artifact{}, false
	}

	c.logger.Debug("cache hit", "key", key, "bytes", len(env.Data))
	return audio.Artifact{Data: env.Data, ContentType: env.ContentType}, true
}

// Put stores art under the fingerprint of text. Failures are logged only.
func (c *AudioCache) Put(text string, art audio.Artifact) {
	key := Fingerprint(text)

	var buf bytes.Buffer
	env := envelope{ContentType: art.ContentType, Data: art.Data}
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		c.logger.Warn("cache encode failed", "key", key, "err", err)
		return
	}
	if err := c.store.Put(key, buf.Bytes()); err != nil {
		c.logger.Warn("cache write failed", "key", key, "err", err)
		return
	}
	c.logger.Debug("cached artifact", "key", key, "bytes", art.Len())
}

// Contains reports whether text has a cached artifact.
func (c *AudioCache) Contains(text string) bool {
	return c.store.Contains(Fingerprint(text))
}

// Clear removes every entry, best effort.
func (c *AudioCache) Clear() {
	if err := c.store.Clear(); err != nil {
		c.logger.Warn("cache clear incomplete", "err", err)
	}
}

// Stats returns the underlying store statistics.
func (c *AudioCache) Stats() CacheStats {
	return c.store.Stats()
}

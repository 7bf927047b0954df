// Package config holds the narrate configuration: defaults, validation and
// loading from the config file and environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jasonshaw0/eng-final/internal/autoplay"
	"github.com/jasonshaw0/eng-final/internal/speech"
)

// Config contains all narrate configuration options.
type Config struct {
	// Provider settings
	APIKey   string `yaml:"api_key" env:"NARRATE_API_KEY"`
	BaseURL  string `yaml:"base_url" env:"NARRATE_BASE_URL"`
	Model    string `yaml:"model" env:"NARRATE_MODEL"`
	Voice    string `yaml:"voice" env:"NARRATE_VOICE"`
	Preamble string `yaml:"preamble" env:"NARRATE_PREAMBLE"`

	// RequestsPerMinute paces provider calls; 0 disables pacing.
	RequestsPerMinute int `yaml:"requests_per_minute" env:"NARRATE_REQUESTS_PER_MINUTE"`
	// Timeout bounds a single provider request; 0 waits indefinitely.
	Timeout time.Duration `yaml:"timeout" env:"NARRATE_TIMEOUT"`

	// Playback settings
	PlaybackRate float64 `yaml:"playback_rate" env:"NARRATE_PLAYBACK_RATE"`
	Deck         string  `yaml:"deck" env:"NARRATE_DECK"`

	Cache  CacheConfig  `yaml:"cache" envPrefix:"NARRATE_CACHE_"`
	Timing TimingConfig `yaml:"timing" envPrefix:"NARRATE_TIMING_"`
}

// CacheConfig contains audio cache settings.
type CacheConfig struct {
	Enabled          bool   `yaml:"enabled" env:"ENABLED"`
	Dir              string `yaml:"dir" env:"DIR"`
	MemoryMB         int    `yaml:"memory_mb" env:"MEMORY_MB"`
	CompressionLevel int    `yaml:"compression_level" env:"COMPRESSION_LEVEL"`
}

// TimingConfig contains the playback loop delays.
type TimingConfig struct {
	Settle   time.Duration `yaml:"settle" env:"SETTLE"`
	Advance  time.Duration `yaml:"advance" env:"ADVANCE"`
	Recovery time.Duration `yaml:"recovery" env:"RECOVERY"`
	Update   time.Duration `yaml:"update" env:"UPDATE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	t := autoplay.DefaultTiming()
	return Config{
		BaseURL:      speech.DefaultBaseURL,
		Model:        speech.DefaultModel,
		Voice:        speech.DefaultVoice,
		Preamble:     speech.DefaultPreamble,
		PlaybackRate: 1.0,

		Cache: CacheConfig{
			Enabled:          true,
			MemoryMB:         64,
			CompressionLevel: 3,
		},
		Timing: TimingConfig{
			Settle:   t.Settle,
			Advance:  t.Advance,
			Recovery: t.Recovery,
			Update:   t.Update,
		},
	}
}

// Validate checks if the configuration is valid. A missing API key is not an
// error here; it is reported when generation is needed.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q: must be an absolute URL", c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if strings.TrimSpace(c.Model) == "" {
		return errors.New("model cannot be empty")
	}
	if strings.TrimSpace(c.Voice) == "" {
		return errors.New("voice cannot be empty")
	}

	if err := autoplay.ValidateRate(c.PlaybackRate); err != nil {
		return fmt.Errorf("playback_rate: %w", err)
	}

	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative, got %d", c.RequestsPerMinute)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %v", c.Timeout)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing config: %w", err)
	}
	return nil
}

// Validate checks if the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if c.MemoryMB < 0 || c.MemoryMB > 4096 {
		return fmt.Errorf("memory_mb must be between 0 and 4096, got %d", c.MemoryMB)
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		return fmt.Errorf("compression_level must be between 0 and 22, got %d", c.CompressionLevel)
	}
	return nil
}

// Validate checks if the timing configuration is valid.
func (c *TimingConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"settle":   c.Settle,
		"advance":  c.Advance,
		"recovery": c.Recovery,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative, got %v", name, d)
		}
	}
	if c.Update < 10*time.Millisecond || c.Update > time.Second {
		return fmt.Errorf("update must be between 10ms and 1s, got %v", c.Update)
	}
	return nil
}

// ToTiming converts the timing config for the orchestrator.
func (c *Config) ToTiming() autoplay.Timing {
	return autoplay.Timing{
		Settle:   c.Timing.Settle,
		Advance:  c.Timing.Advance,
		Recovery: c.Timing.Recovery,
		Update:   c.Timing.Update,
	}
}

// MemoryCapacity returns the L1 cache size in bytes.
func (c *CacheConfig) MemoryCapacity() int64 {
	return int64(c.MemoryMB) << 20
}

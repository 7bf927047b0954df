package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// AppName names the config file, config directory and cache directory.
const AppName = "narrate"

// LoadFromViper loads configuration from v, then applies environment
// overrides. The result is validated.
func LoadFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	if v.IsSet("api_key") {
		cfg.APIKey = v.GetString("api_key")
	}
	if v.IsSet("base_url") {
		cfg.BaseURL = v.GetString("base_url")
	}
	if v.IsSet("model") {
		cfg.Model = v.GetString("model")
	}
	if v.IsSet("voice") {
		cfg.Voice = v.GetString("voice")
	}
	if v.IsSet("preamble") {
		cfg.Preamble = v.GetString("preamble")
	}
	if v.IsSet("requests_per_minute") {
		cfg.RequestsPerMinute = v.GetInt("requests_per_minute")
	}
	if v.IsSet("timeout") {
		cfg.Timeout = v.GetDuration("timeout")
	}
	if v.IsSet("playback_rate") {
		cfg.PlaybackRate = v.GetFloat64("playback_rate")
	}
	if v.IsSet("deck") {
		cfg.Deck = v.GetString("deck")
	}

	cfg.Cache = loadCacheConfig(v, cfg.Cache)
	cfg.Timing = loadTimingConfig(v, cfg.Timing)

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	cfg.Deck = ExpandPath(cfg.Deck)
	cfg.Cache.Dir = ExpandPath(cfg.Cache.Dir)
	if cfg.Cache.Dir == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			return cfg, err
		}
		cfg.Cache.Dir = dir
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadCacheConfig(v *viper.Viper, cfg CacheConfig) CacheConfig {
	if v.IsSet("cache.enabled") {
		cfg.Enabled = v.GetBool("cache.enabled")
	}
	if v.IsSet("cache.dir") {
		cfg.Dir = v.GetString("cache.dir")
	}
	if v.IsSet("cache.memory_mb") {
		cfg.MemoryMB = v.GetInt("cache.memory_mb")
	}
	if v.IsSet("cache.compression_level") {
		cfg.CompressionLevel = v.GetInt("cache.compression_level")
	}
	return cfg
}

func loadTimingConfig(v *viper.Viper, cfg TimingConfig) TimingConfig {
	if v.IsSet("timing.settle") {
		cfg.Settle = v.GetDuration("timing.settle")
	}
	if v.IsSet("timing.advance") {
		cfg.Advance = v.GetDuration("timing.advance")
	}
	if v.IsSet("timing.recovery") {
		cfg.Recovery = v.GetDuration("timing.recovery")
	}
	if v.IsSet("timing.update") {
		cfg.Update = v.GetDuration("timing.update")
	}
	return cfg
}

// credentialEnv is the fallback credential variable shared with other
// Gemini tooling.
type credentialEnv struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
}

// applyEnv overrides cfg with NARRATE_* variables. GEMINI_API_KEY is used
// only when no other credential is configured.
func applyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) != "" {
		return nil
	}
	ce, err := env.ParseAs[credentialEnv]()
	if err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}
	cfg.APIKey = ce.GeminiAPIKey
	return nil
}

// SetDefaults sets default values in v for every config key.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("model", d.Model)
	v.SetDefault("voice", d.Voice)
	v.SetDefault("preamble", d.Preamble)
	v.SetDefault("requests_per_minute", d.RequestsPerMinute)
	v.SetDefault("timeout", d.Timeout.String())
	v.SetDefault("playback_rate", d.PlaybackRate)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.memory_mb", d.Cache.MemoryMB)
	v.SetDefault("cache.compression_level", d.Cache.CompressionLevel)

	v.SetDefault("timing.settle", d.Timing.Settle.String())
	v.SetDefault("timing.advance", d.Timing.Advance.String())
	v.SetDefault("timing.recovery", d.Timing.Recovery.String())
	v.SetDefault("timing.update", d.Timing.Update.String())
}

// SearchDirs returns the directories searched for narrate.yml, most specific
// first: $NARRATE_CONFIG_HOME, $XDG_CONFIG_HOME/narrate, then the platform
// config directories.
func SearchDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("could not find configuration directory: %w", err)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv("NARRATE_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// DefaultCacheDir returns the platform cache directory for audio.
func DefaultCacheDir() (string, error) {
	dir, err := gap.NewScope(gap.User, AppName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("could not find cache directory: %w", err)
	}
	return filepath.Join(dir, "audio"), nil
}

// ExpandPath expands a leading ~ and environment variables in path.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if p, err := homedir.Expand(path); err == nil {
		path = p
	}
	return os.ExpandEnv(path)
}

// Watch reloads the config whenever v's config file changes and passes each
// valid result to fn. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, logger *log.Logger, fn func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		logger.Debug("config file changed", "file", e.Name, "op", e.Op)

		cfg, err := LoadFromViper(v)
		if err != nil {
			logger.Warn("ignoring config change", "err", err)
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
}

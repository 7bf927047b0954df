package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// clearEnv isolates a test from credentials in the developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"NARRATE_API_KEY", "GEMINI_API_KEY", "NARRATE_VOICE", "NARRATE_PLAYBACK_RATE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("NARRATE_CACHE_DIR", t.TempDir())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if cfg.Voice != "Rasalgethi" {
		t.Errorf("Default voice should be Rasalgethi, got %s", cfg.Voice)
	}
	if cfg.Timing.Settle != 500*time.Millisecond || cfg.Timing.Recovery != 3*time.Second {
		t.Errorf("unexpected default timing %+v", cfg.Timing)
	}
	if cfg.APIKey != "" {
		t.Error("API key should not have a default")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:    "relative base url",
			modify:  func(c *Config) { c.BaseURL = "example.com/api" },
			wantErr: true,
			errMsg:  "invalid base_url",
		},
		{
			name:    "empty model",
			modify:  func(c *Config) { c.Model = " " },
			wantErr: true,
			errMsg:  "model cannot be empty",
		},
		{
			name:    "empty voice",
			modify:  func(c *Config) { c.Voice = "" },
			wantErr: true,
			errMsg:  "voice cannot be empty",
		},
		{
			name:    "rate too high",
			modify:  func(c *Config) { c.PlaybackRate = 5 },
			wantErr: true,
			errMsg:  "playback_rate",
		},
		{
			name:    "rate zero",
			modify:  func(c *Config) { c.PlaybackRate = 0 },
			wantErr: true,
			errMsg:  "playback_rate",
		},
		{
			name:    "negative rate limit",
			modify:  func(c *Config) { c.RequestsPerMinute = -1 },
			wantErr: true,
			errMsg:  "requests_per_minute",
		},
		{
			name:    "compression out of range",
			modify:  func(c *Config) { c.Cache.CompressionLevel = 23 },
			wantErr: true,
			errMsg:  "compression_level",
		},
		{
			name:    "negative settle",
			modify:  func(c *Config) { c.Timing.Settle = -time.Second },
			wantErr: true,
			errMsg:  "settle cannot be negative",
		},
		{
			name:    "update too fast",
			modify:  func(c *Config) { c.Timing.Update = time.Millisecond },
			wantErr: true,
			errMsg:  "update must be between",
		},
		{
			name:   "memory cache disabled",
			modify: func(c *Config) { c.Cache.MemoryMB = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestValidate_TrimsBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://localhost:8080/"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
}

const sampleYAML = `
api_key: "file-key"
voice: "Kore"
playback_rate: 1.5
requests_per_minute: 10
timeout: "45s"
cache:
  memory_mb: 16
  compression_level: 0
timing:
  settle: "250ms"
  update: "50ms"
`

func loadYAML(t *testing.T, body string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(body)); err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}
	return v
}

func TestLoadFromViper(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromViper(loadYAML(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromViper failed: %v", err)
	}

	if cfg.APIKey != "file-key" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.Voice != "Kore" {
		t.Errorf("Voice = %q", cfg.Voice)
	}
	if cfg.PlaybackRate != 1.5 {
		t.Errorf("PlaybackRate = %v", cfg.PlaybackRate)
	}
	if cfg.RequestsPerMinute != 10 || cfg.Timeout != 45*time.Second {
		t.Errorf("RequestsPerMinute=%d Timeout=%v", cfg.RequestsPerMinute, cfg.Timeout)
	}
	if cfg.Cache.MemoryMB != 16 || cfg.Cache.CompressionLevel != 0 || !cfg.Cache.Enabled {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Timing.Settle != 250*time.Millisecond || cfg.Timing.Update != 50*time.Millisecond {
		t.Errorf("Timing = %+v", cfg.Timing)
	}
	// Unset keys keep their defaults.
	if cfg.Model != DefaultConfig().Model || cfg.Timing.Advance != time.Second {
		t.Errorf("defaults lost: Model=%q Advance=%v", cfg.Model, cfg.Timing.Advance)
	}
}

func TestLoadFromViper_Invalid(t *testing.T) {
	clearEnv(t)

	_, err := LoadFromViper(loadYAML(t, "playback_rate: 9\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("LoadFromViper() error = %v", err)
	}
}

func TestLoadFromViper_Environment(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		yaml    string
		wantKey string
	}{
		{
			name:    "file only",
			yaml:    "api_key: file-key\n",
			wantKey: "file-key",
		},
		{
			name:    "narrate variable overrides file",
			env:     map[string]string{"NARRATE_API_KEY": "narrate-key"},
			yaml:    "api_key: file-key\n",
			wantKey: "narrate-key",
		},
		{
			name:    "gemini variable fills missing key",
			env:     map[string]string{"GEMINI_API_KEY": "gemini-key"},
			wantKey: "gemini-key",
		},
		{
			name:    "gemini variable does not override file",
			env:     map[string]string{"GEMINI_API_KEY": "gemini-key"},
			yaml:    "api_key: file-key\n",
			wantKey: "file-key",
		},
		{
			name: "narrate variable wins over gemini",
			env: map[string]string{
				"NARRATE_API_KEY": "narrate-key",
				"GEMINI_API_KEY":  "gemini-key",
			},
			wantKey: "narrate-key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadFromViper(loadYAML(t, tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.APIKey != tt.wantKey {
				t.Errorf("APIKey = %q, want %q", cfg.APIKey, tt.wantKey)
			}
		})
	}
}

func TestLoadFromViper_NestedEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("NARRATE_VOICE", "Puck")
	t.Setenv("NARRATE_PLAYBACK_RATE", "2")
	t.Setenv("NARRATE_CACHE_MEMORY_MB", "8")
	t.Setenv("NARRATE_TIMING_ADVANCE", "2s")

	cfg, err := LoadFromViper(viper.New())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Voice != "Puck" || cfg.PlaybackRate != 2 {
		t.Errorf("Voice=%q PlaybackRate=%v", cfg.Voice, cfg.PlaybackRate)
	}
	if cfg.Cache.MemoryMB != 8 {
		t.Errorf("Cache.MemoryMB = %d", cfg.Cache.MemoryMB)
	}
	if cfg.Timing.Advance != 2*time.Second {
		t.Errorf("Timing.Advance = %v", cfg.Timing.Advance)
	}
}

func TestLoadFromViper_CacheDir(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("NARRATE_CACHE_DIR")
	dir := t.TempDir()

	cfg, err := LoadFromViper(loadYAML(t, "cache:\n  dir: "+dir+"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Dir != dir {
		t.Errorf("Cache.Dir = %q, want %q", cfg.Cache.Dir, dir)
	}

	cfg, err = LoadFromViper(viper.New())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.Dir == "" || filepath.Base(cfg.Cache.Dir) != "audio" {
		t.Errorf("default Cache.Dir = %q", cfg.Cache.Dir)
	}
}

func TestSetDefaults(t *testing.T) {
	clearEnv(t)
	v := viper.New()
	SetDefaults(v)

	if got := v.GetString("voice"); got != "Rasalgethi" {
		t.Errorf("voice default = %q", got)
	}
	if got := v.GetDuration("timing.recovery"); got != 3*time.Second {
		t.Errorf("timing.recovery default = %v", got)
	}

	cfg, err := LoadFromViper(v)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	if cfg.Timing != want.Timing || cfg.PlaybackRate != want.PlaybackRate {
		t.Errorf("defaults round trip: got %+v", cfg)
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("NARRATE_TEST_DIR", "/tmp/decks")

	if got := ExpandPath(""); got != "" {
		t.Errorf("ExpandPath(\"\") = %q", got)
	}
	if got := ExpandPath("$NARRATE_TEST_DIR/a.yaml"); got != "/tmp/decks/a.yaml" {
		t.Errorf("env expansion = %q", got)
	}
	if got := ExpandPath("~/deck.yaml"); strings.HasPrefix(got, "~") {
		t.Errorf("home expansion = %q", got)
	}
}

func TestSearchDirs(t *testing.T) {
	t.Setenv("NARRATE_CONFIG_HOME", "/custom")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	dirs, err := SearchDirs()
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) < 2 || dirs[0] != "/custom" || dirs[1] != filepath.Join("/xdg", AppName) {
		t.Errorf("SearchDirs() = %v", dirs)
	}
}

func TestWatch(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "narrate.yml")
	if err := os.WriteFile(path, []byte("playback_rate: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	changes := make(chan Config, 8)
	Watch(v, log.New(os.Stderr), func(c Config) {
		select {
		case changes <- c:
		default:
		}
	})

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("playback_rate: 1.25\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.PlaybackRate == 1.25 {
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}

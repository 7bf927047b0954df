package main

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/jasonshaw0/eng-final/internal/audio"
	"github.com/jasonshaw0/eng-final/internal/autoplay"
	"github.com/jasonshaw0/eng-final/internal/cache"
	"github.com/jasonshaw0/eng-final/internal/config"
	"github.com/jasonshaw0/eng-final/internal/narration"
	"github.com/jasonshaw0/eng-final/internal/speech"
)

// app holds the components shared by the commands.
type app struct {
	cfg    config.Config
	deck   narration.Deck
	store  *cache.TieredStore // nil when caching is disabled
	audio  *cache.AudioCache  // nil when caching is disabled
	client *speech.Client
	cred   *credential
	logger *log.Logger
}

// newApp builds the deck, cache and speech client from cfg. deckPath
// overrides cfg.Deck when non-empty.
func newApp(cfg config.Config, deckPath string, opts ...speech.Option) (*app, error) {
	a := &app{
		cfg:    cfg,
		cred:   &credential{value: cfg.APIKey},
		logger: log.Default(),
	}

	deck, err := loadDeck(deckPath, cfg.Deck)
	if err != nil {
		return nil, err
	}
	a.deck = deck

	clientOpts := []speech.Option{
		speech.WithBaseURL(cfg.BaseURL),
		speech.WithModel(cfg.Model),
		speech.WithPreamble(cfg.Preamble),
		speech.WithRateLimit(cfg.RequestsPerMinute),
		speech.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		speech.WithLogger(a.logger.WithPrefix("speech")),
	}

	if cfg.Cache.Enabled {
		if err := a.openCache(); err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, speech.WithCache(a.audio))
	}

	a.client = speech.NewClient(append(clientOpts, opts...)...)
	return a, nil
}

func (a *app) openCache() error {
	store, err := cache.NewTieredStore(cache.Config{
		MemoryCapacity:   a.cfg.Cache.MemoryCapacity(),
		DiskPath:         a.cfg.Cache.Dir,
		CompressionLevel: a.cfg.Cache.CompressionLevel,
	})
	if err != nil {
		return fmt.Errorf("unable to open audio cache: %w", err)
	}
	a.store = store
	a.audio = cache.NewAudioCache(store, cache.WithLogger(a.logger.WithPrefix("cache")))
	return nil
}

// loadDeck prefers path, then the configured deck, then the built-in deck.
func loadDeck(path, configured string) (narration.Deck, error) {
	if path == "" {
		path = configured
	}
	if path == "" {
		return narration.Default(), nil
	}
	deck, err := narration.LoadFile(config.ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("unable to load deck: %w", err)
	}
	return deck, nil
}

// newOrchestrator wires an orchestrator to this app's client.
func (a *app) newOrchestrator(player audio.Player, navigate func(int)) (*autoplay.Orchestrator, error) {
	return autoplay.New(autoplay.Config{
		Deck:         a.deck,
		Generator:    a.client,
		Player:       player,
		Navigate:     navigate,
		Credential:   a.cred.Get,
		Voice:        a.cfg.Voice,
		PlaybackRate: a.cfg.PlaybackRate,
		Timing:       a.cfg.ToTiming(),
		Logger:       a.logger.WithPrefix("autoplay"),
	})
}

// Close flushes the cache index.
func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// credential is the API key, replaceable while a run is in progress.
type credential struct {
	mu    sync.RWMutex
	value string
}

func (c *credential) Get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

func (c *credential) Set(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
}

// newPlayer returns the speaker-backed player, or a silent one that only
// keeps time when dryRun is set.
func newPlayer(dryRun bool) (audio.Player, error) {
	if dryRun {
		return audio.NewMockPlayer(), nil
	}
	p, err := audio.NewOtoPlayer(audio.DefaultPCMFormat())
	if err != nil {
		return nil, fmt.Errorf("unable to open audio output (try --dry-run): %w", err)
	}
	return p, nil
}

// Package speech turns narration text into playable audio through the Gemini
// generateContent API, preferring the audio cache over the network.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/jasonshaw0/eng-final/internal/audio"
)

const (
	// DefaultBaseURL is the Gemini API host.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultModel is the speech-capable Gemini model.
	DefaultModel = "gemini-2.5-pro-preview-tts"

	// DefaultVoice is the prebuilt voice used when none is given.
	DefaultVoice = "Rasalgethi"

	// DefaultPreamble sets tone and pacing ahead of the narration text.
	DefaultPreamble = "Read this narration for a university presentation in a clear, professional, and engaging tone. Speak at a moderate pace suitable for a classroom audience:"

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 64 * 1024

	apiKeyHeader = "x-goog-api-key"
)

// Cache is the artifact store consulted before and written after a provider
// call. Implementations must not fail observably.
type Cache interface {
	Get(text string) (audio.Artifact, bool)
	Put(text string, art audio.Artifact)
}

// Result is a generated or cached artifact.
type Result struct {
	Artifact  audio.Artifact
	FromCache bool
}

// Client generates speech for narration text. It is safe for concurrent use;
// concurrent requests for the same text share one provider call.
type Client struct {
	baseURL    string
	model      string
	preamble   string
	format     audio.PCMFormat
	httpClient *http.Client
	cache      Cache
	limiter    *rate.Limiter
	metrics    *Metrics
	logger     *log.Logger

	group singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API host, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithPreamble replaces the instruction placed before the narration text.
func WithPreamble(p string) Option {
	return func(c *Client) { c.preamble = p }
}

// WithHTTPClient sets the HTTP client. The default has no timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCache enables read-through/write-through caching.
func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithRateLimit caps provider calls per minute. Zero disables the limit.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithMetrics records provider calls on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPCMFormat sets the layout assumed for raw PCM responses.
func WithPCMFormat(f audio.PCMFormat) Option {
	return func(c *Client) { c.format = f }
}

// NewClient creates a speech client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		preamble:   DefaultPreamble,
		format:     audio.DefaultPCMFormat(),
		httpClient: &http.Client{},
		logger:     log.Default().WithPrefix("speech"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = defaultMetrics()
	}
	return c
}

// Generate returns audio for text: from the cache when present, otherwise
// from a single, unretried provider call whose result is then cached.
// An empty credential fails with *AuthenticationError before any network use.
func (c *Client) Generate(ctx context.Context, text, credential, voice string) (Result, error) {
	if c.cache != nil {
		if art, ok := c.cache.Get(text); ok {
			c.metrics.CacheHits.Add(ctx, 1)
			return Result{Artifact: art, FromCache: true}, nil
		}
	}

	if strings.TrimSpace(credential) == "" {
		return Result{}, &AuthenticationError{}
	}
	if voice == "" {
		voice = DefaultVoice
	}

	v, err, shared := c.group.Do(voice+"\x00"+text, func() (interface{}, error) {
		art, err := c.synthesize(ctx, text, credential, voice)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Put(text, art)
		}
		return art, nil
	})
	if err != nil {
		return Result{}, err
	}
	if shared {
		c.logger.Debug("shared in-flight generation", "chars", len(text))
	}
	return Result{Artifact: v.(audio.Artifact)}, nil
}

// Request and response shapes of generateContent, reduced to what is used.
type (
	generateRequest struct {
		Contents         []content        `json:"contents"`
		GenerationConfig generationConfig `json:"generationConfig"`
	}

	content struct {
		Parts []part `json:"parts"`
	}

	part struct {
		Text       string      `json:"text,omitempty"`
		InlineData *inlineData `json:"inlineData,omitempty"`
	}

	inlineData struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	}

	generationConfig struct {
		ResponseModalities []string     `json:"responseModalities"`
		SpeechConfig       speechConfig `json:"speechConfig"`
	}

	speechConfig struct {
		VoiceConfig voiceConfig `json:"voiceConfig"`
	}

	voiceConfig struct {
		PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
	}

	prebuiltVoiceConfig struct {
		VoiceName string `json:"voiceName"`
	}

	generateResponse struct {
		Candidates []struct {
			Content content `json:"content"`
		} `json:"candidates"`
	}
)

// endpoint carries no credential, so transport errors quoting the URL never
// expose it.
func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		c.baseURL, url.PathEscape(c.model))
}

func (c *Client) buildRequest(text, voice string) generateRequest {
	prompt := text
	if c.preamble != "" {
		prompt = c.preamble + "\n\n" + text
	}

	var req generateRequest
	req.Contents = []content{{Parts: []part{{Text: prompt}}}}
	req.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	req.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = voice
	return req
}

func (c *Client) synthesize(ctx context.Context, text, credential, voice string) (audio.Artifact, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return audio.Artifact{}, &GenerationError{Cause: fmt.Errorf("rate limit wait cancelled: %w", err)}
		}
	}

	body, err := json.Marshal(c.buildRequest(text, voice))
	if err != nil {
		return audio.Artifact{}, &GenerationError{Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return audio.Artifact{}, &GenerationError{Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(apiKeyHeader, credential)

	c.logger.Debug("requesting speech", "model", c.model, "voice", voice, "chars", len(text))
	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.record(ctx, start, "transport_error")
		return audio.Artifact{}, &GenerationError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.record(ctx, start, "http_error")
		return audio.Artifact{}, &GenerationError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.record(ctx, start, "malformed")
		return audio.Artifact{}, &MalformedResponseError{Cause: err}
	}

	art, err := c.artifactFrom(parsed)
	if err != nil {
		c.record(ctx, start, "malformed")
		return audio.Artifact{}, err
	}

	c.record(ctx, start, "ok")
	c.metrics.AudioBytes.Add(ctx, int64(art.Len()))
	c.logger.Debug("speech generated",
		"content_type", art.ContentType,
		"bytes", art.Len(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return art, nil
}

// artifactFrom extracts the first inline audio part, wrapping raw PCM in a
// WAV container.
func (c *Client) artifactFrom(resp generateResponse) (audio.Artifact, error) {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return audio.Artifact{}, &MalformedResponseError{}
	}
	inline := resp.Candidates[0].Content.Parts[0].InlineData
	if inline == nil || inline.Data == "" {
		return audio.Artifact{}, &MalformedResponseError{}
	}

	data, err := base64.StdEncoding.DecodeString(inline.Data)
	if err != nil {
		return audio.Artifact{}, &MalformedResponseError{Cause: err}
	}

	mimeType := inline.MimeType
	if mimeType == "" {
		mimeType = audio.ContentTypeWAV
	}
	if audio.IsRawPCM(mimeType) {
		return audio.Artifact{
			Data:        audio.WrapPCM(data, c.format),
			ContentType: audio.ContentTypeWAV,
		}, nil
	}
	return audio.Artifact{Data: data, ContentType: mimeType}, nil
}

func (c *Client) record(ctx context.Context, start time.Time, status string) {
	attrs := metric.WithAttributes(
		attribute.String("model", c.model),
		attribute.String("status", status),
	)
	c.metrics.Requests.Add(ctx, 1, attrs)
	c.metrics.Duration.Record(ctx, time.Since(start).Seconds(), attrs)
}

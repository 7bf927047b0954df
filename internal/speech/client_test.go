package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jasonshaw0/eng-final/internal/audio"
)

// memCache is an in-memory Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string]audio.Artifact
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]audio.Artifact)}
}

func (m *memCache) Get(text string) (audio.Artifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	art, ok := m.data[text]
	return art, ok
}

func (m *memCache) Put(text string, art audio.Artifact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[text] = art
}

// audioResponse builds a generateContent response body.
func audioResponse(mimeType string, data []byte) string {
	resp := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{
						map[string]any{
							"inlineData": map[string]any{
								"mimeType": mimeType,
								"data":     base64.StdEncoding.EncodeToString(data),
							},
						},
					},
				},
			},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

type fakeProvider struct {
	*httptest.Server
	calls     atomic.Int64
	lastBody  atomic.Value // generateRequest
	lastPath  atomic.Value // string
	lastKey   atomic.Value // string
	lastQuery atomic.Value // string
}

func newFakeProvider(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{}
	fp.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp.calls.Add(1)
		fp.lastPath.Store(r.URL.Path)
		fp.lastKey.Store(r.Header.Get(apiKeyHeader))
		fp.lastQuery.Store(r.URL.RawQuery)

		var req generateRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err == nil {
			fp.lastBody.Store(req)
		}
		handler(w, r)
	}))
	t.Cleanup(fp.Close)
	return fp
}

func newTestClient(url string, opts ...Option) *Client {
	opts = append([]Option{
		WithBaseURL(url),
		WithLogger(log.New(io.Discard)),
	}, opts...)
	return NewClient(opts...)
}

func TestGenerate_WrapsRawPCM(t *testing.T) {
	pcm := make([]byte, 4800)
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, audioResponse("audio/L16;codec=pcm;rate=24000", pcm))
	})
	c := newTestClient(fp.URL)

	res, err := c.Generate(context.Background(), "Hello class.", "secret", "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if res.FromCache {
		t.Error("FromCache = true on first generation")
	}
	if res.Artifact.ContentType != audio.ContentTypeWAV {
		t.Errorf("ContentType = %q, want audio/wav", res.Artifact.ContentType)
	}
	if got := res.Artifact.Duration(); got != 100*time.Millisecond {
		t.Errorf("Duration() = %v, want 100ms", got)
	}

	if got := fp.lastPath.Load().(string); got != "/v1beta/models/"+DefaultModel+":generateContent" {
		t.Errorf("path = %q", got)
	}
	if got := fp.lastKey.Load().(string); got != "secret" {
		t.Errorf("key = %q, want secret", got)
	}
	if got := fp.lastQuery.Load().(string); got != "" {
		t.Errorf("query = %q, want none", got)
	}

	req := fp.lastBody.Load().(generateRequest)
	if want := DefaultPreamble + "\n\nHello class."; req.Contents[0].Parts[0].Text != want {
		t.Errorf("prompt = %q, want %q", req.Contents[0].Parts[0].Text, want)
	}
	if got := req.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != DefaultVoice {
		t.Errorf("voice = %q, want %q", got, DefaultVoice)
	}
	if m := req.GenerationConfig.ResponseModalities; len(m) != 1 || m[0] != "AUDIO" {
		t.Errorf("responseModalities = %v", m)
	}
}

func TestGenerate_PassesThroughContainers(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		want     string
	}{
		{"declared mp3", "audio/mpeg", "audio/mpeg"},
		{"missing mime defaults to wav", "", audio.ContentTypeWAV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte("container bytes")
			fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, audioResponse(tt.mimeType, payload))
			})
			c := newTestClient(fp.URL)

			res, err := c.Generate(context.Background(), "text", "key", "Kore")
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if res.Artifact.ContentType != tt.want {
				t.Errorf("ContentType = %q, want %q", res.Artifact.ContentType, tt.want)
			}
			if string(res.Artifact.Data) != string(payload) {
				t.Error("payload was modified")
			}
		})
	}
}

func TestGenerate_MissingCredential(t *testing.T) {
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {})
	c := newTestClient(fp.URL)

	for _, cred := range []string{"", "   "} {
		_, err := c.Generate(context.Background(), "text", cred, "")
		if !IsAuthentication(err) {
			t.Errorf("Generate(cred=%q) error = %v, want authentication error", cred, err)
		}
		if err.Error() != "Please set your Gemini API key in Settings first." {
			t.Errorf("message = %q", err.Error())
		}
	}
	if fp.calls.Load() != 0 {
		t.Errorf("provider called %d times without credential", fp.calls.Load())
	}
}

func TestGenerate_HTTPError(t *testing.T) {
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":"API key not valid"}`)
	})
	cache := newMemCache()
	c := newTestClient(fp.URL, WithCache(cache))

	_, err := c.Generate(context.Background(), "text", "bad", "")

	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %v, want *GenerationError", err)
	}
	if genErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d", genErr.StatusCode)
	}
	if want := `Gemini TTS error (403): {"error":"API key not valid"}`; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !IsGeneration(err) {
		t.Error("IsGeneration() = false")
	}
	if len(cache.data) != 0 {
		t.Error("failed generation was cached")
	}
	if fp.calls.Load() != 1 {
		t.Errorf("provider called %d times, want exactly 1 (no retries)", fp.calls.Load())
	}
}

func TestGenerate_MalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>"},
		{"no candidates", `{"candidates":[]}`},
		{"text part only", `{"candidates":[{"content":{"parts":[{"text":"sorry"}]}}]}`},
		{"empty data", audioResponse("audio/wav", nil)},
		{"bad base64", `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/wav","data":"***"}}]}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			})
			c := newTestClient(fp.URL)

			_, err := c.Generate(context.Background(), "text", "key", "")
			var malformed *MalformedResponseError
			if !errors.As(err, &malformed) {
				t.Fatalf("error = %v, want *MalformedResponseError", err)
			}
			if err.Error() != "No audio data in Gemini response" {
				t.Errorf("Error() = %q", err.Error())
			}
			if !IsGeneration(err) {
				t.Error("malformed responses should classify as generation failures")
			}
		})
	}
}

func TestGenerate_ReadThroughWriteThrough(t *testing.T) {
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, audioResponse("audio/pcm", make([]byte, 480)))
	})
	cache := newMemCache()
	c := newTestClient(fp.URL, WithCache(cache))
	ctx := context.Background()

	first, err := c.Generate(ctx, "same text", "key", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Generate(ctx, "same text", "key", "")
	if err != nil {
		t.Fatal(err)
	}

	if first.FromCache || !second.FromCache {
		t.Errorf("FromCache = %v, %v; want false, true", first.FromCache, second.FromCache)
	}
	if string(first.Artifact.Data) != string(second.Artifact.Data) {
		t.Error("cached artifact differs from generated one")
	}
	if fp.calls.Load() != 1 {
		t.Errorf("provider called %d times, want 1", fp.calls.Load())
	}

	// A cache hit needs no credential.
	if _, err := c.Generate(ctx, "same text", "", ""); err != nil {
		t.Errorf("cached Generate without credential failed: %v", err)
	}
}

func TestGenerate_CollapsesConcurrentRequests(t *testing.T) {
	release := make(chan struct{})
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, audioResponse("audio/pcm", make([]byte, 480)))
	})
	c := newTestClient(fp.URL)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Generate(context.Background(), "shared", "key", "")
			errs <- err
		}()
	}

	// Let all callers join the in-flight request.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Generate failed: %v", err)
		}
	}
	if fp.calls.Load() != 1 {
		t.Errorf("provider called %d times, want 1", fp.calls.Load())
	}
}

func TestGenerate_TransportErrorHidesCredential(t *testing.T) {
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {})
	addr := fp.URL
	fp.Close()

	const key = "SECRET-KEY-123"
	c := newTestClient(addr)

	_, err := c.Generate(context.Background(), "hello", key, "")
	if !IsGeneration(err) {
		t.Fatalf("error = %v, want generation error", err)
	}
	if strings.Contains(err.Error(), key) {
		t.Errorf("error exposes credential: %q", err.Error())
	}
}

func TestGenerate_ContextCancelled(t *testing.T) {
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	c := newTestClient(fp.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Generate(ctx, "text", "key", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	if !IsGeneration(err) {
		t.Error("transport failures should classify as generation failures")
	}
}

func TestGenerate_CustomModelAndPreamble(t *testing.T) {
	fp := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, audioResponse("audio/wav", []byte("x")))
	})
	c := newTestClient(fp.URL, WithModel("gemini-2.5-flash-preview-tts"), WithPreamble(""))

	if _, err := c.Generate(context.Background(), "plain", "key", "Puck"); err != nil {
		t.Fatal(err)
	}
	if got := fp.lastPath.Load().(string); !strings.Contains(got, "gemini-2.5-flash-preview-tts") {
		t.Errorf("path = %q", got)
	}
	req := fp.lastBody.Load().(generateRequest)
	if req.Contents[0].Parts[0].Text != "plain" {
		t.Errorf("prompt = %q, want bare text", req.Contents[0].Parts[0].Text)
	}
}

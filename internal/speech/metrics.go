package speech

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope for speech metrics.
const meterName = "github.com/jasonshaw0/eng-final/internal/speech"

// Metrics holds the instruments recorded by the client.
type Metrics struct {
	// Requests counts provider calls. Attribute "status": ok, http_error,
	// transport_error, malformed.
	Requests metric.Int64Counter

	// CacheHits counts generations served from the audio cache.
	CacheHits metric.Int64Counter

	// Duration tracks provider call latency in seconds.
	Duration metric.Float64Histogram

	// AudioBytes counts artifact bytes produced by the provider.
	AudioBytes metric.Int64Counter
}

// latencyBuckets are sized for whole-paragraph synthesis, which takes
// seconds rather than milliseconds.
var latencyBuckets = []float64{
	0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Requests, err = m.Int64Counter("narrate.speech.requests",
		metric.WithDescription("Speech provider calls by outcome."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("narrate.speech.cache_hits",
		metric.WithDescription("Generations served from the audio cache."),
	); err != nil {
		return nil, err
	}
	if met.Duration, err = m.Float64Histogram("narrate.speech.duration",
		metric.WithDescription("Latency of speech provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AudioBytes, err = m.Int64Counter("narrate.speech.audio_bytes",
		metric.WithDescription("Audio bytes received from the provider."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics uses the global meter provider, which is a no-op unless the
// host installs one.
func defaultMetrics() *Metrics {
	if m, err := NewMetrics(otel.GetMeterProvider()); err == nil {
		return m
	}
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

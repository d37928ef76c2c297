package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"speechtext/usage"
)

// Metrics exposes usage of the current recognition session and totals
// across sessions.
type Metrics struct {
	registry *prometheus.Registry

	// Current session
	AudioSeconds   prometheus.Gauge
	BillableChunks prometheus.Gauge
	CostUSD        prometheus.Gauge
	Characters     prometheus.Gauge

	// Totals
	Sessions        prometheus.Counter
	Transcripts     *prometheus.CounterVec
	SessionDuration prometheus.Histogram
}

// New registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		AudioSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "speechtext_session_audio_seconds",
			Help: "Audio streamed in the current session",
		}),
		BillableChunks: f.NewGauge(prometheus.GaugeOpts{
			Name: "speechtext_session_billable_chunks",
			Help: "Billable 15 second chunks in the current session",
		}),
		CostUSD: f.NewGauge(prometheus.GaugeOpts{
			Name: "speechtext_session_cost_usd",
			Help: "Estimated cost of the current session in USD",
		}),
		Characters: f.NewGauge(prometheus.GaugeOpts{
			Name: "speechtext_session_characters",
			Help: "Longest transcript seen in the current session",
		}),

		Sessions: f.NewCounter(prometheus.CounterOpts{
			Name: "speechtext_sessions_total",
			Help: "Recognition sessions started",
		}),
		Transcripts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "speechtext_transcripts_total",
			Help: "Recognition results delivered, by kind",
		}, []string{"kind"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechtext_session_duration_seconds",
			Help:    "Wall clock length of finished sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) SessionStarted() {
	m.Sessions.Inc()
	m.ObserveUsage(usage.Stats{})
}

func (m *Metrics) Interim() { m.Transcripts.WithLabelValues("interim").Inc() }

func (m *Metrics) Final() { m.Transcripts.WithLabelValues("final").Inc() }

func (m *Metrics) ObserveUsage(s usage.Stats) {
	m.AudioSeconds.Set(s.TotalAudioSeconds)
	m.BillableChunks.Set(float64(s.BillableChunks))
	m.CostUSD.Set(s.EstimatedCostUSD)
	m.Characters.Set(float64(s.TotalCharacters))
}

func (m *Metrics) SessionEnded(s usage.Stats) {
	m.ObserveUsage(s)
	m.SessionDuration.Observe(s.ElapsedSeconds)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NewServer serves the metrics at /metrics on addr.
func (m *Metrics) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Package metrics exposes playback counters for Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "somafm"

type Metrics struct {
	BytesIngested   prometheus.Counter
	MetadataBlocks  prometheus.Counter
	MetadataDropped prometheus.Counter
	Reconnects      prometheus.Counter
	Underruns       prometheus.Counter
	Leaks           prometheus.Counter
	Volume          prometheus.Gauge
	State           *prometheus.GaugeVec
}

// New registers the player metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BytesIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_total",
			Help:      "Bytes read from stream servers.",
		}),
		MetadataBlocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_blocks_total",
			Help:      "ICY metadata blocks parsed.",
		}),
		MetadataDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_dropped_total",
			Help:      "Malformed ICY metadata blocks skipped.",
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnection attempts after recoverable stream errors.",
		}),
		Underruns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_underruns_total",
			Help:      "Device pulls that found the frame queue empty.",
		}),
		Leaks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_cleanup_timeouts_total",
			Help:      "Sessions that did not stop within the cleanup timeout.",
		}),
		Volume: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "volume_percent",
			Help:      "Current playback volume.",
		}),
		State: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "player_state",
			Help:      "1 for the current player state, 0 otherwise.",
		}, []string{"state"}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) SetState(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.State.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) SetVolume(v int) {
	if m == nil {
		return
	}
	m.Volume.Set(float64(v))
}

func (m *Metrics) AddBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesIngested.Add(float64(n))
}

func (m *Metrics) AddMetadata(blocks, dropped int64) {
	if m == nil {
		return
	}
	m.MetadataBlocks.Add(float64(blocks))
	m.MetadataDropped.Add(float64(dropped))
}

func (m *Metrics) AddUnderruns(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.Underruns.Add(float64(n))
}

func (m *Metrics) IncReconnects() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) IncLeaks() {
	if m == nil {
		return
	}
	m.Leaks.Inc()
}

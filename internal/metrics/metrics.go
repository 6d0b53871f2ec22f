package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for a telegram reader. It
// implements godsmr.Observer.
type Metrics struct {
	BytesRead    prometheus.Counter
	Telegrams    prometheus.Counter
	TelegramSize prometheus.Histogram
	FrameErrors  *prometheus.CounterVec
	IdleResets   prometheus.Counter
}

// New creates the collectors and registers them with reg. The variant label
// ("plaintext" or "encrypted") is attached to every series.
func New(reg prometheus.Registerer, variant string) *Metrics {
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"variant": variant}, reg))
	return &Metrics{
		BytesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "dsmr_bytes_read_total",
			Help: "Total number of bytes read from the P1 port",
		}),
		Telegrams: factory.NewCounter(prometheus.CounterOpts{
			Name: "dsmr_telegrams_total",
			Help: "Total number of complete telegrams received",
		}),
		TelegramSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dsmr_telegram_size_bytes",
			Help:    "Size of received telegrams",
			Buckets: prometheus.ExponentialBuckets(64, 2, 8),
		}),
		FrameErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dsmr_frame_errors_total",
			Help: "Total number of dropped frames by error kind",
		}, []string{"kind"}),
		IdleResets: factory.NewCounter(prometheus.CounterOpts{
			Name: "dsmr_idle_resets_total",
			Help: "Total number of accumulator resets after the stream went idle",
		}),
	}
}

// ObserveBytes counts n bytes read from the source.
func (m *Metrics) ObserveBytes(n int) {
	m.BytesRead.Add(float64(n))
}

// ObserveTelegram counts a complete telegram and records its size.
func (m *Metrics) ObserveTelegram(size int) {
	m.Telegrams.Inc()
	m.TelegramSize.Observe(float64(size))
}

// ObserveError counts a dropped frame under its error kind.
func (m *Metrics) ObserveError(kind string) {
	m.FrameErrors.WithLabelValues(kind).Inc()
}

// ObserveReset counts an idle reset.
func (m *Metrics) ObserveReset() {
	m.IdleResets.Inc()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "attok"

// Scrape results.
const (
	ResultOK          = "ok"
	ResultUnavailable = "unavailable"
	ResultMalformed   = "malformed"
)

// Metrics holds the daemon's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	scrapes        *prometheus.CounterVec
	scrapeDuration prometheus.Histogram
	failures       prometheus.Gauge
	events         *prometheus.CounterVec
	students       *prometheus.GaugeVec
	renders        *prometheus.CounterVec
	sinkFailures   *prometheus.CounterVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		scrapes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrapes_total",
			Help:      "Board scrapes by result.",
		}, []string{"result"}),
		scrapeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scrape_duration_seconds",
			Help:      "Time spent reading the board.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20},
		}),
		failures: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_failures",
			Help:      "Scrape failures since the last success.",
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Student events emitted by kind.",
		}, []string{"kind"}),
		students: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "students",
			Help:      "Students on today's board by state.",
		}, []string{"state"}),
		renders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_requests_total",
			Help:      "Render requests queued by mode.",
		}, []string{"mode"}),
		sinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Failed notification deliveries by sink.",
		}, []string{"sink"}),
	}
}

func (m *Metrics) ObserveScrape(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.scrapes.WithLabelValues(result).Inc()
	m.scrapeDuration.Observe(d.Seconds())
}

func (m *Metrics) SetConsecutiveFailures(n int) {
	if m == nil {
		return
	}
	m.failures.Set(float64(n))
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetStudents(active, overrun, departed int) {
	if m == nil {
		return
	}
	m.students.WithLabelValues("active").Set(float64(active))
	m.students.WithLabelValues("overrun").Set(float64(overrun))
	m.students.WithLabelValues("departed").Set(float64(departed))
}

func (m *Metrics) Render(mode string) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(mode).Inc()
}

func (m *Metrics) SinkFailure(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

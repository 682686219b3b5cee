// Package metrics exposes Prometheus counters for the polling engine,
// the availability checker and notification delivery.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamed0406/resymon/internal/domain"
)

// Recorder is what the engine and checker report into.
type Recorder interface {
	RecordCheck(status domain.Status, d time.Duration)
	RecordCheckFailure()
	SetMonitors(active, paused int)
	RecordNotification(ok bool)
}

type Collector struct {
	checks        *prometheus.CounterVec
	checkFailures prometheus.Counter
	checkDuration prometheus.Histogram
	monitors      *prometheus.GaugeVec
	notifications *prometheus.CounterVec
}

// NewCollector builds the collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resymon_checks_total",
			Help: "Completed availability checks by resulting status.",
		}, []string{"status"}),
		checkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "resymon_check_failures_total",
			Help: "Checks that failed or panicked and were contained by the engine.",
		}),
		checkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "resymon_check_duration_seconds",
			Help:    "Wall time of a single availability check.",
			Buckets: prometheus.DefBuckets,
		}),
		monitors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "resymon_monitors",
			Help: "Registered monitors by state.",
		}, []string{"state"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resymon_notifications_total",
			Help: "Notification deliveries by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(c.checks, c.checkFailures, c.checkDuration, c.monitors, c.notifications)
	return c
}

func (c *Collector) RecordCheck(status domain.Status, d time.Duration) {
	c.checks.WithLabelValues(string(status)).Inc()
	c.checkDuration.Observe(d.Seconds())
}

func (c *Collector) RecordCheckFailure() { c.checkFailures.Inc() }

func (c *Collector) SetMonitors(active, paused int) {
	c.monitors.WithLabelValues("active").Set(float64(active))
	c.monitors.WithLabelValues("paused").Set(float64(paused))
}

func (c *Collector) RecordNotification(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.notifications.WithLabelValues(result).Inc()
}

// Handler serves the given gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordCheck(domain.Status, time.Duration) {}
func (Nop) RecordCheckFailure()                      {}
func (Nop) SetMonitors(int, int)                     {}
func (Nop) RecordNotification(bool)                  {}

// Package metrics exposes Prometheus counters for slot scheduling and HTTP
// traffic, served at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation run outcomes.
const (
	OutcomeCreated           = "created"
	OutcomeNothingToGenerate = "nothing_to_generate"
	OutcomeInvalid           = "invalid"
	OutcomeError             = "error"
)

type Metrics struct {
	// GenerationRuns counts slot generation requests by outcome.
	GenerationRuns *prometheus.CounterVec

	// GenerationDuration is the wall time of a generation run including storage.
	GenerationDuration prometheus.Histogram

	SlotsCreated prometheus.Counter

	// SlotsDropped counts slots rejected by the store's uniqueness constraint.
	SlotsDropped prometheus.Counter

	Assignments   *prometheus.CounterVec
	StatusChanges *prometheus.CounterVec

	CalendarCacheLookups *prometheus.CounterVec

	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		GenerationRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slot_generation_runs_total",
				Help:      "Total number of slot generation runs",
			},
			[]string{"outcome"},
		),
		GenerationDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "slot_generation_duration_seconds",
				Help:      "Time to generate and store slots",
				Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2, 5},
			},
		),
		SlotsCreated: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slots_created_total",
				Help:      "Total number of open slots stored",
			},
		),
		SlotsDropped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slots_dropped_total",
				Help:      "Total number of generated slots rejected as duplicates at insert",
			},
		),
		Assignments: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slot_assignments_total",
				Help:      "Total number of patient assignment attempts",
			},
			[]string{"result"},
		),
		StatusChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slot_status_changes_total",
				Help:      "Total number of slot status changes",
			},
			[]string{"status"},
		),
		CalendarCacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calendar_cache_lookups_total",
				Help:      "Calendar cache lookups by result",
			},
			[]string{"result"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		ActiveRequests: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_active_requests",
				Help:      "Number of in-flight HTTP requests",
			},
		),
		gatherer: reg,
	}
}

// ObserveGeneration records one generation run.
func (m *Metrics) ObserveGeneration(outcome string, created, dropped int, d time.Duration) {
	m.GenerationRuns.WithLabelValues(outcome).Inc()
	m.GenerationDuration.Observe(d.Seconds())
	m.SlotsCreated.Add(float64(created))
	m.SlotsDropped.Add(float64(dropped))
}

func (m *Metrics) IncAssignment(result string) {
	m.Assignments.WithLabelValues(result).Inc()
}

func (m *Metrics) IncStatusChange(status string) {
	m.StatusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) IncCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CalendarCacheLookups.WithLabelValues(result).Inc()
}

// Middleware records latency per route pattern and the in-flight gauge.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.ActiveRequests.Inc()
			start := time.Now()

			err := next(c)

			m.ActiveRequests.Dec()
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			m.RequestDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(responseStatus(c, err))).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// responseStatus predicts the final status when the handler returned an
// error that echo has not written yet.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

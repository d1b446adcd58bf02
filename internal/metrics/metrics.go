// Package metrics exposes harvester and energy source traces as Prometheus
// series.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sun_harvester/internal/trace"
)

const namespace = "sun_harvester"

type Metrics struct {
	registry *prometheus.Registry

	power      *prometheus.GaugeVec
	energy     *prometheus.GaugeVec
	ticks      *prometheus.CounterVec
	remaining  *prometheus.GaugeVec
	elevation  prometheus.Gauge
	azimuth    prometheus.Gauge
	simSeconds prometheus.Gauge

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers every collector on a private registry so several instances
// can coexist in one process.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "harvested_power_watts",
			Help:      "Most recent harvested power per harvester.",
		}, []string{"harvester"}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "harvested_energy_joules",
			Help:      "Energy harvested so far per harvester.",
		}, []string{"harvester"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harvester_ticks_total",
			Help:      "Power updates performed per harvester.",
		}, []string{"harvester"}),
		remaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remaining_energy_joules",
			Help:      "Energy left in each energy source.",
		}, []string{"source"}),
		elevation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sun_elevation_degrees",
			Help:      "Sun elevation at the simulated site.",
		}),
		azimuth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sun_azimuth_degrees",
			Help:      "Sun azimuth at the simulated site.",
		}),
		simSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_time_seconds",
			Help:      "Current simulation time.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.power,
		m.energy,
		m.ticks,
		m.remaining,
		m.elevation,
		m.azimuth,
		m.simSeconds,
		m.httpRequestsTotal,
		m.httpDuration,
	)
	return m
}

// PowerSink follows a harvester's power trace. Every write is one tick.
func (m *Metrics) PowerSink(harvesterID string) trace.Sink {
	g := m.power.WithLabelValues(harvesterID)
	c := m.ticks.WithLabelValues(harvesterID)
	return func(_, current float64) {
		g.Set(current)
		c.Inc()
	}
}

func (m *Metrics) EnergySink(harvesterID string) trace.Sink {
	g := m.energy.WithLabelValues(harvesterID)
	return func(_, current float64) {
		g.Set(current)
	}
}

func (m *Metrics) RemainingSink(sourceID string) trace.Sink {
	g := m.remaining.WithLabelValues(sourceID)
	return func(_, current float64) {
		g.Set(current)
	}
}

// SetSun records the latest sun position.
func (m *Metrics) SetSun(elevationDeg, azimuthDeg float64) {
	m.elevation.Set(elevationDeg)
	m.azimuth.Set(azimuthDeg)
}

func (m *Metrics) SetSimulationTime(d time.Duration) {
	m.simSeconds.Set(d.Seconds())
}

// Forget drops the series of a disposed harvester.
func (m *Metrics) Forget(harvesterID string) {
	m.power.DeleteLabelValues(harvesterID)
	m.energy.DeleteLabelValues(harvesterID)
	m.ticks.DeleteLabelValues(harvesterID)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and their latency under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

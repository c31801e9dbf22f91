// Package telemetry exposes Prometheus metrics for the IPD server.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ipd"

// Metrics groups every collector the server reports. All methods are safe
// on a nil receiver so services can run without metrics in tests.
type Metrics struct {
	registry *prometheus.Registry

	admissions      *prometheus.CounterVec
	discharges      *prometheus.CounterVec
	transfers       *prometheus.CounterVec
	clinicalAlerts  prometheus.Counter
	occupiedBeds    *prometheus.GaugeVec
	auditFailures   prometheus.Counter
	publishFailures *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
}

// New builds the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Admissions created, by ward category.",
		}, []string{"ward_category"}),
		discharges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discharges_total",
			Help:      "Admissions discharged, by discharge type.",
		}, []string{"discharge_type"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfers recorded, by whether the bed changed.",
		}, []string{"bed_changed"}),
		clinicalAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clinical_alerts_total",
			Help:      "Vital-sign readings that tripped at least one threshold.",
		}),
		occupiedBeds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "occupied_beds",
			Help:      "Beds currently occupied, by tenant and ward category.",
		}, []string{"tenant", "ward_category"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Audit events that could not be written.",
		}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_publish_failures_total",
			Help:      "Clinical alerts that a publisher failed to deliver.",
		}, []string{"publisher"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),
	}
	m.registry.MustRegister(
		m.admissions, m.discharges, m.transfers, m.clinicalAlerts, m.occupiedBeds,
		m.auditFailures, m.publishFailures, m.httpDuration, m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) AdmissionCreated(tenant, category string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(category).Inc()
	m.occupiedBeds.WithLabelValues(tenant, category).Inc()
}

func (m *Metrics) Discharged(tenant, category, dischargeType string) {
	if m == nil {
		return
	}
	m.discharges.WithLabelValues(dischargeType).Inc()
	m.occupiedBeds.WithLabelValues(tenant, category).Dec()
}

func (m *Metrics) Transferred(tenant, fromCategory, toCategory string, bedChanged bool) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(strconv.FormatBool(bedChanged)).Inc()
	if bedChanged {
		m.occupiedBeds.WithLabelValues(tenant, fromCategory).Dec()
		m.occupiedBeds.WithLabelValues(tenant, toCategory).Inc()
	}
}

func (m *Metrics) ClinicalAlert() {
	if m == nil {
		return
	}
	m.clinicalAlerts.Inc()
}

func (m *Metrics) AuditFailed() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

func (m *Metrics) PublishFailed(publisher string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(publisher).Inc()
}

// SetOccupiedBeds seeds one tenant's occupancy series from a snapshot,
// typically taken from the bed-availability report at startup.
func (m *Metrics) SetOccupiedBeds(tenant string, byCategory map[string]int) {
	if m == nil {
		return
	}
	for category, n := range byCategory {
		m.occupiedBeds.WithLabelValues(tenant, category).Set(float64(n))
	}
}

// Middleware records request count and latency keyed by the matched route
// rather than the raw path, keeping label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return echo.WrapHandler(h)
}

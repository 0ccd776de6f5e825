// Package metrics exposes Prometheus instrumentation for the blood bank.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors updated by the domain services.
type Metrics struct {
	registry *prometheus.Registry

	StatusTransitions    *prometheus.CounterVec
	ReservationConflicts prometheus.Counter
	BreachesDetected     *prometheus.CounterVec
	ReactionsReported    *prometheus.CounterVec
	UnitsDiscarded       *prometheus.CounterVec
	OpenLookbacks        prometheus.Gauge
	AvailableUnits       *prometheus.GaugeVec
	SweepRuns            *prometheus.CounterVec
}

// New builds a Metrics with its own registry so tests never collide on the
// global default registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_unit_status_transitions_total",
			Help: "Blood unit status transitions by from/to status.",
		}, []string{"from", "to"}),
		ReservationConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "bloodbank_reservation_conflicts_total",
			Help: "Reservation attempts lost to a concurrent claim.",
		}),
		BreachesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_storage_breaches_total",
			Help: "Storage condition breaches by type.",
		}, []string{"breach_type"}),
		ReactionsReported: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_transfusion_reactions_total",
			Help: "Transfusion reactions reported by severity.",
		}, []string{"severity"}),
		UnitsDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_units_discarded_total",
			Help: "Units discarded by reason.",
		}, []string{"reason"}),
		OpenLookbacks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bloodbank_open_lookback_cases",
			Help: "Lookback cases currently open.",
		}),
		AvailableUnits: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bloodbank_available_units",
			Help: "Units currently available for issue, by blood group and component.",
		}, []string{"blood_group", "component_type"}),
		SweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bloodbank_sweep_runs_total",
			Help: "Background sweep executions by sweep name and outcome.",
		}, []string{"sweep", "outcome"}),
	}
}

// Handler returns the /metrics scrape endpoint.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c echo.Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

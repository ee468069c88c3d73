// Package metrics registers the Prometheus metrics exported by the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Credential lifecycle metrics
	KeysIssuedTotal     prometheus.Counter
	KeyValidationsTotal *prometheus.CounterVec
	KeysRevokedTotal    *prometheus.CounterVec

	// Sweep metrics
	SweepRunsTotal          prometheus.Counter
	SweepNotificationsTotal *prometheus.CounterVec
	SweepErrorsTotal        prometheus.Counter
}

// Validation result label values.
const (
	ValidationOK       = "ok"
	ValidationRejected = "rejected"
)

// Revocation source label values.
const (
	RevokeByUser  = "user"
	RevokeBySweep = "sweep"
)

// New creates and registers all metrics on the given registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		KeysIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "horreum_auth_keys_issued_total",
				Help: "Total number of API keys issued",
			},
		),
		KeyValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horreum_auth_key_validations_total",
				Help: "Total number of API key validation attempts",
			},
			[]string{"result"},
		),
		KeysRevokedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horreum_auth_keys_revoked_total",
				Help: "Total number of API keys revoked",
			},
			[]string{"source"},
		),
		SweepRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "horreum_auth_sweep_runs_total",
				Help: "Total number of expiry sweep executions",
			},
		),
		SweepNotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "horreum_auth_sweep_notifications_total",
				Help: "Total number of expiry notifications sent, by days-to-expiration offset",
			},
			[]string{"offset"},
		),
		SweepErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "horreum_auth_sweep_errors_total",
				Help: "Total number of errors encountered during expiry sweeps",
			},
		),
	}

	registry.MustRegister(
		m.KeysIssuedTotal,
		m.KeyValidationsTotal,
		m.KeysRevokedTotal,
		m.SweepRunsTotal,
		m.SweepNotificationsTotal,
		m.SweepErrorsTotal,
	)

	return m
}

// Handler returns the HTTP handler serving the registry in the Prometheus
// exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

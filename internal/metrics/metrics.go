// Package metrics defines the Prometheus instrumentation of the
// authentication service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	// Logins counts login attempts by mechanism and outcome.
	Logins *prometheus.CounterVec

	// TokensIssued counts issued tokens by type.
	TokensIssued *prometheus.CounterVec

	// ConfigRefreshes counts configuration reads from storage.
	ConfigRefreshes prometheus.Counter

	// ProviderCalls counts outbound identity provider exchanges by provider
	// and outcome.
	ProviderCalls *prometheus.CounterVec

	// SweepsRun counts background expiry sweeps by target.
	SweepsRun *prometheus.CounterVec
}

// New registers and returns the service collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_logins_total",
			Help: "Login attempts by mechanism and outcome.",
		}, []string{"mechanism", "outcome"}),
		TokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_tokens_issued_total",
			Help: "Issued tokens by type.",
		}, []string{"type"}),
		ConfigRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "authgate_config_refreshes_total",
			Help: "Configuration reads from storage.",
		}),
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_provider_calls_total",
			Help: "Outbound identity provider exchanges by provider and outcome.",
		}, []string{"provider", "outcome"}),
		SweepsRun: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_sweeps_total",
			Help: "Background expiry sweeps by target.",
		}, []string{"target"}),
	}
}

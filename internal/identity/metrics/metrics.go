// Package metrics exposes user-registry counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the user-registry prometheus collectors.
type Metrics struct {
	Registrations prometheus.Counter
	Revocations   prometheus.Counter
}

// New creates a Metrics instance with all user-registry metrics registered.
func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_registrations_total",
			Help: "Total number of successful delegated-key registrations",
		}),
		Revocations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_revocations_total",
			Help: "Total number of delegation revocations",
		}),
	}
}

// IncrementRegistrations counts one successful registration.
func (m *Metrics) IncrementRegistrations() { m.Registrations.Inc() }

// IncrementRevocations counts one revocation.
func (m *Metrics) IncrementRevocations() { m.Revocations.Inc() }

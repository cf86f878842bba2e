// Package metrics exposes message-registry counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the message-registry prometheus collectors.
type Metrics struct {
	Posted prometheus.Counter
}

// New creates a Metrics instance with all message-registry metrics registered.
func New() *Metrics {
	return &Metrics{
		Posted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_messages_posted_total",
			Help: "Total number of successfully anchored messages",
		}),
	}
}

// IncrementPosted counts one anchored message.
func (m *Metrics) IncrementPosted() { m.Posted.Inc() }

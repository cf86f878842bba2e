package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the token-gate module.
type Metrics struct {
	CommunitiesCreated prometheus.Counter
	CommunitiesDeleted prometheus.Counter
	ChannelsCreated    prometheus.Counter
	Joins              prometheus.Counter
	Kicks              prometheus.Counter
	Withdrawals        prometheus.Counter
	JoinDuration       prometheus.Histogram
}

// New creates a Metrics instance with all token-gate metrics registered.
func New() *Metrics {
	return &Metrics{
		CommunitiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_communities_created_total",
			Help: "Total number of communities created",
		}),
		CommunitiesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_communities_deleted_total",
			Help: "Total number of communities logically deleted",
		}),
		ChannelsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_channels_created_total",
			Help: "Total number of channels created",
		}),
		Joins: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_joins_total",
			Help: "Total number of successful community joins",
		}),
		Kicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_kicks_total",
			Help: "Total number of membership removals by owners",
		}),
		Withdrawals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tokengate_fee_withdrawals_total",
			Help: "Total number of custodial fee withdrawals",
		}),
		JoinDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tokengate_join_duration_seconds",
			Help:    "Duration of JoinCommunity operations (oracle check critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCommunitiesCreated records a successful community creation.
func (m *Metrics) IncrementCommunitiesCreated() { m.CommunitiesCreated.Inc() }

// IncrementCommunitiesDeleted records a logical community deletion.
func (m *Metrics) IncrementCommunitiesDeleted() { m.CommunitiesDeleted.Inc() }

// IncrementChannelsCreated records a successful channel creation.
func (m *Metrics) IncrementChannelsCreated() { m.ChannelsCreated.Inc() }

// IncrementJoins records a successful join.
func (m *Metrics) IncrementJoins() { m.Joins.Inc() }

// IncrementKicks records an owner-initiated membership removal.
func (m *Metrics) IncrementKicks() { m.Kicks.Inc() }

// IncrementWithdrawals records a fee withdrawal.
func (m *Metrics) IncrementWithdrawals() { m.Withdrawals.Inc() }

// ObserveJoin records the duration of a JoinCommunity operation.
func (m *Metrics) ObserveJoin(start time.Time) {
	m.JoinDuration.Observe(time.Since(start).Seconds())
}

package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestrator's Prometheus instrumentation: blocks/sec,
// tx/sec, mean mining time, mean challenge latency and the
// replication-factor distribution. Registered against an instance-owned
// Registry, rather than promauto's package-level default registerer, so
// multiple Orchestrators (as in tests) never collide on metric names.
type Metrics struct {
	Registry *prometheus.Registry

	blocksMined       prometheus.Counter
	transactionsTotal prometheus.Counter
	miningDuration    prometheus.Histogram
	challengeLatency  prometheus.Histogram
	replicationFactor prometheus.Histogram
}

// NewMetrics constructs and registers a fresh metric set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		blocksMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polytorus",
			Subsystem: "orchestrator",
			Name:      "blocks_mined_total",
			Help:      "Number of blocks that reached the Mined state.",
		}),
		transactionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "polytorus",
			Subsystem: "orchestrator",
			Name:      "transactions_total",
			Help:      "Number of transactions observed as submitted.",
		}),
		miningDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "polytorus",
			Subsystem: "orchestrator",
			Name:      "mining_duration_seconds",
			Help:      "Elapsed time between block-proposed and block-mined.",
			Buckets:   prometheus.DefBuckets,
		}),
		challengeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "polytorus",
			Subsystem: "orchestrator",
			Name:      "challenge_latency_seconds",
			Help:      "Elapsed time between challenge-opened and challenge-resolved.",
			Buckets:   prometheus.DefBuckets,
		}),
		replicationFactor: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "polytorus",
			Subsystem: "orchestrator",
			Name:      "replication_factor",
			Help:      "Distribution of per-block replication factors reported by Data Availability.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
	}
	reg.MustRegister(m.blocksMined, m.transactionsTotal, m.miningDuration, m.challengeLatency, m.replicationFactor)
	return m
}

func (m *Metrics) observeTransactionSubmitted() { m.transactionsTotal.Inc() }
func (m *Metrics) observeBlockMined()           { m.blocksMined.Inc() }

func (m *Metrics) observeMiningDuration(d time.Duration) {
	m.miningDuration.Observe(d.Seconds())
}

func (m *Metrics) observeChallengeLatency(d time.Duration) {
	m.challengeLatency.Observe(d.Seconds())
}

func (m *Metrics) observeReplicationFactor(n int) {
	m.replicationFactor.Observe(float64(n))
}

// Package metrics collects Prometheus counters and gauges for the query
// manager and serves them on an optional admin HTTP listener.
//
// Collection is nil-disabled: New returns nil when metrics are off, and
// every Collector method is safe to call on a nil receiver with zero
// overhead. Callers never branch on whether metrics are enabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openmmo/querymanager/pkg/config"
	"github.com/openmmo/querymanager/pkg/database"
)

// Collector holds the registry and instruments for the whole service.
type Collector struct {
	registry *prometheus.Registry

	connectionsAccepted prometheus.Counter
	connectionsRejected *prometheus.CounterVec
	connectionsActive   prometheus.Gauge

	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	queryRetries  prometheus.Counter
	queueDepth    prometheus.Gauge
}

// New builds a Collector, or nil when cfg disables metrics.
func New(cfg config.MetricsConfig) *Collector {
	if !cfg.Enabled {
		return nil
	}

	reg := prometheus.NewRegistry()

	return &Collector{
		registry: reg,
		connectionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "querymanager_connections_accepted_total",
			Help: "Connections that passed the loopback and capacity checks",
		}),
		connectionsRejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "querymanager_connections_rejected_total",
			Help: "Connections dropped before entering the query loop",
		}, []string{"reason"}), // "not_loopback", "unauthorized"
		connectionsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "querymanager_connections_active",
			Help: "Connections currently being served",
		}),
		queries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "querymanager_queries_total",
			Help: "Queries completed, by query name and final status",
		}, []string{"query", "status"}),
		queryDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "querymanager_query_duration_seconds",
			Help: "Time from dequeue to completed execution",
			Buckets: []float64{
				0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5,
			},
		}, []string{"query"}),
		queryRetries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "querymanager_query_retries_total",
			Help: "Query executions repeated after a retryable failure",
		}),
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "querymanager_queue_depth",
			Help: "Queries waiting for a worker",
		}),
	}
}

// ObserveDatabase registers statement cache counters backed by db's
// cumulative totals. Called once after the database opens.
func (c *Collector) ObserveDatabase(db *database.Database) {
	if c == nil {
		return
	}
	stat := func(name, help string, read func(database.Stats) uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(read(db.Stats())) })
	}
	c.registry.MustRegister(
		stat("querymanager_statement_cache_hits_total",
			"Prepared statements served from a session cache",
			func(s database.Stats) uint64 { return s.StatementHits }),
		stat("querymanager_statement_cache_misses_total",
			"Statement lookups that had to prepare",
			func(s database.Stats) uint64 { return s.StatementMisses }),
		stat("querymanager_statement_cache_evictions_total",
			"Cached statements closed to make room",
			func(s database.Stats) uint64 { return s.StatementEvictions }),
	)
}

// ConnectionAccepted records a connection entering the serve loop.
func (c *Collector) ConnectionAccepted() {
	if c == nil {
		return
	}
	c.connectionsAccepted.Inc()
	c.connectionsActive.Inc()
}

// ConnectionRejected records a connection dropped before serving.
func (c *Collector) ConnectionRejected(reason string) {
	if c == nil {
		return
	}
	c.connectionsRejected.WithLabelValues(reason).Inc()
}

// ConnectionClosed records the end of a served connection.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Dec()
}

// QueryProcessed records a completed query execution.
func (c *Collector) QueryProcessed(query, status string, seconds float64) {
	if c == nil {
		return
	}
	c.queries.WithLabelValues(query, status).Inc()
	c.queryDuration.WithLabelValues(query).Observe(seconds)
}

// QueryRetried records one retry of a failed query.
func (c *Collector) QueryRetried() {
	if c == nil {
		return
	}
	c.queryRetries.Inc()
}

// SetQueueDepth records the number of queries waiting for a worker.
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

// Package metrics exposes zenomeshd's Prometheus metrics: declaration
// registry occupancy, query tracker throughput, routed sample volume, and
// link byte counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/zenomesh/internal/broker"
)

const namespace = "zenomesh"

var _ broker.MetricsReporter = (*Collector)(nil)

// Label names shared across metric vectors.
const (
	labelKind    = "kind"
	labelLocator = "locator"
	labelDirOut  = "out"
	labelDirIn   = "in"
	labelDir     = "direction"
)

// Collector holds all zenomesh Prometheus metrics.
//
//   - Declarations gauges track live publishers/subscribers/queryables.
//   - samplesRouted counts broker data-path fan-out deliveries.
//   - QueriesOutstanding tracks broker query dispatches still aggregating
//     replies.
//   - unknownReskey/unknownQID count dropped-message conditions the
//     broker and query tracker treat as non-fatal.
//   - LinkBytes counts bytes moved per link in each direction.
type Collector struct {
	// Declarations tracks the number of live declarations, labeled by
	// kind: "publisher", "stream_subscriber", "callback_subscriber",
	// "queryable".
	Declarations *prometheus.GaugeVec

	// QueriesOutstanding gauges the queries the broker has dispatched to at
	// least one queryable and whose reply aggregation has not yet finished
	// (QueryDispatched increments it, QueryResolved decrements it).
	QueriesOutstanding prometheus.Gauge

	// LinkBytes counts bytes moved per link, labeled by locator and
	// direction ("in"/"out").
	LinkBytes *prometheus.CounterVec

	samplesRouted     prometheus.Counter
	queriesDispatched prometheus.Counter
	unknownReskey     prometheus.Counter
	unknownQID        prometheus.Counter
}

// NewCollector creates a Collector with all metrics registered against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Declarations,
		c.QueriesOutstanding,
		c.LinkBytes,
		c.samplesRouted,
		c.queriesDispatched,
		c.unknownReskey,
		c.unknownQID,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		Declarations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "declarations",
			Help:      "Number of live declarations, labeled by kind.",
		}, []string{labelKind}),

		QueriesOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queries_outstanding",
			Help:      "Number of queries awaiting reply_final from at least one route.",
		}),

		LinkBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_bytes_total",
			Help:      "Total bytes moved per link, labeled by locator and direction.",
		}, []string{labelLocator, labelDir}),

		samplesRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_routed_total",
			Help:      "Total samples delivered to matching subscribers by the broker.",
		}),

		queriesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_dispatched_total",
			Help:      "Total queryable dispatches performed across all queries.",
		}),

		unknownReskey: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_reskey_total",
			Help:      "Total data/query messages referencing an unresolvable resource key.",
		}),

		unknownQID: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_qid_total",
			Help:      "Total reply_data/reply_final messages against an unknown or already-closed qid.",
		}),
	}
}

// -------------------------------------------------------------------------
// Declaration Registry
// -------------------------------------------------------------------------

// Declaration kind labels, matching internal/declare's four registries.
const (
	KindPublisher          = "publisher"
	KindStreamSubscriber   = "stream_subscriber"
	KindCallbackSubscriber = "callback_subscriber"
	KindQueryable          = "queryable"
)

// IncDeclarations increments the live-declaration gauge for kind.
func (c *Collector) IncDeclarations(kind string) {
	c.Declarations.WithLabelValues(kind).Inc()
}

// DecDeclarations decrements the live-declaration gauge for kind.
func (c *Collector) DecDeclarations(kind string) {
	c.Declarations.WithLabelValues(kind).Dec()
}

// -------------------------------------------------------------------------
// Broker / Query Tracker (satisfies internal/broker.MetricsReporter)
// -------------------------------------------------------------------------

// SamplesRouted adds count to the routed-samples counter. Satisfies
// internal/broker.MetricsReporter.
func (c *Collector) SamplesRouted(count int) {
	c.samplesRouted.Add(float64(count))
}

// QueryDispatched adds selectedQueryables to the dispatched-queries counter.
// When selectedQueryables is positive it also increments the
// outstanding-queries gauge, balanced by a later QueryResolved call once
// that query's aggregation finishes; a query matching zero queryables never
// becomes outstanding in the first place. Satisfies
// internal/broker.MetricsReporter.
func (c *Collector) QueryDispatched(selectedQueryables int) {
	c.queriesDispatched.Add(float64(selectedQueryables))
	if selectedQueryables > 0 {
		c.QueriesOutstanding.Inc()
	}
}

// QueryResolved decrements the outstanding-queries gauge when a query
// dispatched to at least one queryable has delivered its last reply_final.
func (c *Collector) QueryResolved() {
	c.QueriesOutstanding.Dec()
}

// UnknownReskey increments the unknown-reskey counter. Satisfies
// internal/broker.MetricsReporter.
func (c *Collector) UnknownReskey() {
	c.unknownReskey.Inc()
}

// UnknownQID increments the unknown-qid counter. Satisfies
// internal/broker.MetricsReporter.
func (c *Collector) UnknownQID() {
	c.unknownQID.Inc()
}

// -------------------------------------------------------------------------
// Link
// -------------------------------------------------------------------------

// AddLinkBytesOut adds n to the outbound byte counter for locator.
func (c *Collector) AddLinkBytesOut(locator string, n int) {
	c.LinkBytes.WithLabelValues(locator, labelDirOut).Add(float64(n))
}

// AddLinkBytesIn adds n to the inbound byte counter for locator.
func (c *Collector) AddLinkBytesIn(locator string, n int) {
	c.LinkBytes.WithLabelValues(locator, labelDirIn).Add(float64(n))
}

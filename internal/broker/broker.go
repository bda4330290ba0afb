// Package broker implements the per-Session routing core described in
// 4.F: fan-out of incoming data to matching local subscribers, and
// dispatch of incoming queries to matching local queryables with reply
// aggregation and termination.
package broker

import (
	"log/slog"
	"sync"

	"github.com/dantte-lp/zenomesh/internal/declare"
	"github.com/dantte-lp/zenomesh/internal/key"
	"github.com/dantte-lp/zenomesh/internal/model"
	"github.com/dantte-lp/zenomesh/internal/primitives"
	"github.com/dantte-lp/zenomesh/internal/resource"
)

// DefaultReplyAggregationChannelCapacity is
// API_REPLY_EMISSION_CHANNEL_SIZE (4.F step 3).
const DefaultReplyAggregationChannelCapacity = 256

// perQueryableReplyBuffer bounds the channel handed to each individual
// selected queryable; small since the aggregation channel is the real
// backpressure point.
const perQueryableReplyBuffer = 16

// MetricsReporter records routing activity. Never nil on a constructed
// Broker — use noopMetrics when none is configured, following the
// teacher's always-non-nil MetricsReporter convention.
type MetricsReporter interface {
	SamplesRouted(count int)
	QueryDispatched(selectedQueryables int)
	QueryResolved()
	UnknownReskey()
	UnknownQID()
}

type noopMetrics struct{}

func (noopMetrics) SamplesRouted(int)   {}
func (noopMetrics) QueryDispatched(int) {}
func (noopMetrics) QueryResolved()      {}
func (noopMetrics) UnknownReskey()      {}
func (noopMetrics) UnknownQID()         {}

// Option configures an optional Broker parameter.
type Option func(*Broker)

// WithMetrics attaches a MetricsReporter to the Broker. If mr is nil, the
// no-op reporter is used.
func WithMetrics(mr MetricsReporter) Option {
	return func(b *Broker) {
		if mr != nil {
			b.metrics = mr
		}
	}
}

// WithLogger attaches a *slog.Logger to the Broker. If logger is nil,
// slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Broker routes data and query traffic for one Session using that
// Session's resource table and declaration registries. It holds no query
// tracker: query replies go to the replyTo handle given to HandleQuery.
//
// Broker holds no lock of its own over session state — the resource.Table
// and declare.Registry it is given are already safe for concurrent use, and
// each exposes its own snapshot-under-lock-then-release discipline (Design
// Notes: "Callback subscribers under a lock").
type Broker struct {
	resources *resource.Table
	registry  *declare.Registry

	metrics MetricsReporter
	logger  *slog.Logger
}

// New creates a Broker over the given resource table and declaration
// registry.
func New(resources *resource.Table, registry *declare.Registry, opts ...Option) *Broker {
	b := &Broker{
		resources: resources,
		registry:  registry,
		metrics:   noopMetrics{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleData fans an incoming sample out to every matching local
// subscriber (4.F "Data path"). local selects which of the resource
// table's two id spaces k resolves against.
//
// Unknown reskeys are logged and dropped; they never propagate as errors
// (7: "broker internal errors... are logged and absorbed").
func (b *Broker) HandleData(local bool, k resource.Key, reliable bool, info *model.DataInfo, payload []byte) {
	dir := resource.Remote
	if local {
		dir = resource.Local
	}

	name, err := b.resources.Resolve(k, dir)
	if err != nil {
		b.logger.Warn("handle_data: unknown reskey", slog.Any("error", err))
		b.metrics.UnknownReskey()
		return
	}

	sampleKey, err := key.Parse(name)
	if err != nil {
		b.logger.Error("handle_data: resolved name is not a valid key expression",
			slog.String("name", name), slog.Any("error", err))
		return
	}

	sample := model.Sample{KeyName: name, Payload: payload, Info: info}

	// Step 2: invoke callback subscribers inline, under no lock beyond the
	// registry's own read-lock taken while snapshotting (Design Notes:
	// "snapshot the callback reference set under the read-lock, release
	// the lock, then invoke callbacks").
	for _, sub := range b.registry.CallbackSubscribers() {
		if key.Intersect(sampleKey, sub.Key) {
			sub.Callback(sample)
		}
	}

	// Step 3: collect matching stream-subscriber senders, then emit after
	// the registry snapshot lock has been released. Each send may suspend
	// the routing task under backpressure (7: "Sender-full on subscriber
	// delivery -> suspend until capacity (no drop)").
	var targets []chan<- model.Sample
	for _, sub := range b.registry.StreamSubscribers() {
		if key.Intersect(sampleKey, sub.Key) {
			targets = append(targets, sub.Samples)
		}
	}
	for _, ch := range targets {
		ch <- sample
	}

	b.metrics.SamplesRouted(len(targets))
}

// HandleQuery dispatches an incoming query to every matching, kind-compatible
// local queryable and aggregates their replies, forwarding each to replyTo
// and finishing with exactly one ReplyFinal call once all replies have been
// drained (4.F "Query path").
//
// replyTo is the Primitives implementation this route's replies and
// reply_final belong to — the Session's own inbound Primitives for a
// local-origin query, the remote peer's outbound Primitives for a
// remote-origin one.
func (b *Broker) HandleQuery(local bool, k resource.Key, predicate string, qid uint64, target model.QueryTarget, consolidation model.Consolidation, replyTo primitives.Primitives) {
	dir := resource.Remote
	if local {
		dir = resource.Local
	}

	name, err := b.resources.Resolve(k, dir)
	if err != nil {
		b.logger.Warn("handle_query: unknown reskey", slog.Any("error", err))
		b.metrics.UnknownReskey()
		replyTo.ReplyFinal(qid)
		return
	}

	queryKey, err := key.Parse(name)
	if err != nil {
		b.logger.Error("handle_query: resolved name is not a valid key expression",
			slog.String("name", name), slog.Any("error", err))
		replyTo.ReplyFinal(qid)
		return
	}

	selected := selectQueryables(b.registry.Queryables(), queryKey, target)
	b.metrics.QueryDispatched(len(selected))

	if len(selected) == 0 {
		replyTo.ReplyFinal(qid)
		return
	}

	agg := make(chan model.Reply, DefaultReplyAggregationChannelCapacity)

	var wg sync.WaitGroup
	wg.Add(len(selected))

	for _, qy := range selected {
		perQuery := make(chan model.Reply, perQueryableReplyBuffer)
		q := model.Query{
			QID:           qid,
			KeyName:       name,
			Predicate:     predicate,
			Target:        target,
			Consolidation: consolidation,
			Replies:       perQuery,
		}

		go func(qy *declare.Queryable, perQuery chan model.Reply) {
			defer wg.Done()
			qy.Queries <- q
			for r := range perQuery {
				agg <- r
			}
		}(qy, perQuery)
	}

	go func() {
		wg.Wait()
		close(agg)
	}()

	go func() {
		for r := range agg {
			replyTo.ReplyData(qid, r.SourceKind, r.ReplierID, resource.NewName(r.Data.KeyName), r.Data.Info, r.Data.Payload)
		}
		replyTo.ReplyFinal(qid)
		b.metrics.QueryResolved()
	}()
}

// selectQueryables returns the queryables whose key intersects queryKey and
// whose kind is compatible with target.Kind (4.F step 2). TargetSelection
// beyond TargetAll is accepted but has no effect here — see DESIGN.md.
func selectQueryables(all []*declare.Queryable, queryKey key.Expr, target model.QueryTarget) []*declare.Queryable {
	var selected []*declare.Queryable
	for _, qy := range all {
		if !key.Intersect(queryKey, qy.Key) {
			continue
		}
		if qy.Kind == model.AllKinds || target.Kind == model.AllKinds || (qy.Kind&target.Kind) != 0 {
			selected = append(selected, qy)
		}
	}
	return selected
}

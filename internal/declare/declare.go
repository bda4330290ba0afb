// Package declare implements the per-Session declaration registries
// described in 4.C: local tables of publishers, stream subscribers,
// callback subscribers, and queryables, each assigned a local id from one
// shared monotonically increasing counter.
//
// The registry itself never invokes the outbound Primitives calls — it
// only reports, on each declare/undeclare, whether this was the first (or
// last) declaration sharing a given resolved key. The caller (the Session)
// uses that signal to decide whether to emit `subscriber`/`forget_subscriber`
// and friends, keeping the declare-once-per-distinct-key invariant in one
// place without coupling this package to the Primitives interface.
package declare

import (
	"sync"
	"sync/atomic"

	"github.com/dantte-lp/zenomesh/internal/key"
	"github.com/dantte-lp/zenomesh/internal/model"
)

// ID is a local declaration id, distinct from a resource.ID: declarations
// and resource bindings are allocated from separate counters
// (3: "Publisher/Subscriber/Queryable declaration... each holds a local
// numerical Id").
type ID uint64

// Publisher is a registered local publisher declaration.
type Publisher struct {
	ID  ID
	Key key.Expr
}

// StreamSubscriber is a registered local subscriber that receives samples
// on a Go channel.
type StreamSubscriber struct {
	ID      ID
	Key     key.Expr
	Info    model.SubInfo
	Samples chan<- model.Sample
}

// CallbackSubscriber is a registered local subscriber that receives samples
// via a synchronous callback invocation (4.F step 2).
type CallbackSubscriber struct {
	ID       ID
	Key      key.Expr
	Info     model.SubInfo
	Callback func(model.Sample)
}

// Queryable is a registered local queryable declaration.
type Queryable struct {
	ID      ID
	Key     key.Expr
	Kind    uint64
	Queries chan<- model.Query
}

// Registry holds the four declaration tables for one Session.
//
// All methods are safe for concurrent use. The zero value is not usable;
// construct with New.
type Registry struct {
	counter atomic.Uint64

	mu sync.RWMutex

	publishers map[ID]*Publisher
	pubRefs    map[string]int

	streamSubs    map[ID]*StreamSubscriber
	streamSubRefs map[string]int

	callbackSubs    map[ID]*CallbackSubscriber
	callbackSubRefs map[string]int

	queryables    map[ID]*Queryable
	queryableRefs map[string]int
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		publishers:      make(map[ID]*Publisher),
		pubRefs:         make(map[string]int),
		streamSubs:      make(map[ID]*StreamSubscriber),
		streamSubRefs:   make(map[string]int),
		callbackSubs:    make(map[ID]*CallbackSubscriber),
		callbackSubRefs: make(map[string]int),
		queryables:      make(map[ID]*Queryable),
		queryableRefs:   make(map[string]int),
	}
}

func (r *Registry) allocID() ID {
	return ID(r.counter.Add(1))
}

// DeclarePublisher registers a publisher targeting k and returns its id
// and whether this is the first publisher declared on k.
func (r *Registry) DeclarePublisher(k key.Expr) (id ID, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id = r.allocID()
	r.publishers[id] = &Publisher{ID: id, Key: k}

	r.pubRefs[k.String()]++
	first = r.pubRefs[k.String()] == 1

	return id, first
}

// UndeclarePublisher removes the publisher with id. last reports whether
// this was the last publisher declared on that key (the caller should emit
// forget_publisher iff last is true). ok is false if id was not declared.
func (r *Registry) UndeclarePublisher(id ID) (k key.Expr, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.publishers[id]
	if !ok {
		return key.Expr{}, false, false
	}
	delete(r.publishers, id)

	name := p.Key.String()
	r.pubRefs[name]--
	last = r.pubRefs[name] <= 0
	if last {
		delete(r.pubRefs, name)
	}

	return p.Key, last, true
}

// DeclareStreamSubscriber registers a channel-backed subscriber on k.
func (r *Registry) DeclareStreamSubscriber(k key.Expr, info model.SubInfo, samples chan<- model.Sample) (id ID, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id = r.allocID()
	r.streamSubs[id] = &StreamSubscriber{ID: id, Key: k, Info: info, Samples: samples}

	r.streamSubRefs[k.String()]++
	first = r.streamSubRefs[k.String()] == 1

	return id, first
}

// UndeclareStreamSubscriber removes the stream subscriber with id.
func (r *Registry) UndeclareStreamSubscriber(id ID) (k key.Expr, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.streamSubs[id]
	if !ok {
		return key.Expr{}, false, false
	}
	delete(r.streamSubs, id)

	name := s.Key.String()
	r.streamSubRefs[name]--
	last = r.streamSubRefs[name] <= 0
	if last {
		delete(r.streamSubRefs, name)
	}

	return s.Key, last, true
}

// DeclareCallbackSubscriber registers a callback-backed subscriber on k.
func (r *Registry) DeclareCallbackSubscriber(k key.Expr, info model.SubInfo, cb func(model.Sample)) (id ID, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id = r.allocID()
	r.callbackSubs[id] = &CallbackSubscriber{ID: id, Key: k, Info: info, Callback: cb}

	r.callbackSubRefs[k.String()]++
	first = r.callbackSubRefs[k.String()] == 1

	return id, first
}

// UndeclareCallbackSubscriber removes the callback subscriber with id.
func (r *Registry) UndeclareCallbackSubscriber(id ID) (k key.Expr, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.callbackSubs[id]
	if !ok {
		return key.Expr{}, false, false
	}
	delete(r.callbackSubs, id)

	name := s.Key.String()
	r.callbackSubRefs[name]--
	last = r.callbackSubRefs[name] <= 0
	if last {
		delete(r.callbackSubRefs, name)
	}

	return s.Key, last, true
}

// DeclareQueryable registers a queryable on k, responding to queries whose
// target kind is compatible with kind.
func (r *Registry) DeclareQueryable(k key.Expr, kind uint64, queries chan<- model.Query) (id ID, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id = r.allocID()
	r.queryables[id] = &Queryable{ID: id, Key: k, Kind: kind, Queries: queries}

	r.queryableRefs[k.String()]++
	first = r.queryableRefs[k.String()] == 1

	return id, first
}

// UndeclareQueryable removes the queryable with id.
func (r *Registry) UndeclareQueryable(id ID) (k key.Expr, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queryables[id]
	if !ok {
		return key.Expr{}, false, false
	}
	delete(r.queryables, id)

	name := q.Key.String()
	r.queryableRefs[name]--
	last = r.queryableRefs[name] <= 0
	if last {
		delete(r.queryableRefs, name)
	}

	return q.Key, last, true
}

// StreamSubscribers returns a point-in-time snapshot of all registered
// stream subscribers, safe to range over after the caller's lock (if any)
// is released (Design Notes "Callback subscribers under a lock": snapshot
// then release then invoke/send).
func (r *Registry) StreamSubscribers() []*StreamSubscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*StreamSubscriber, 0, len(r.streamSubs))
	for _, s := range r.streamSubs {
		out = append(out, s)
	}
	return out
}

// CallbackSubscribers returns a point-in-time snapshot of all registered
// callback subscribers.
func (r *Registry) CallbackSubscribers() []*CallbackSubscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*CallbackSubscriber, 0, len(r.callbackSubs))
	for _, s := range r.callbackSubs {
		out = append(out, s)
	}
	return out
}

// Queryables returns a point-in-time snapshot of all registered queryables.
func (r *Registry) Queryables() []*Queryable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Queryable, 0, len(r.queryables))
	for _, q := range r.queryables {
		out = append(out, q)
	}
	return out
}

// Publishers returns a point-in-time snapshot of all registered publishers.
func (r *Registry) Publishers() []*Publisher {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Publisher, 0, len(r.publishers))
	for _, p := range r.publishers {
		out = append(out, p)
	}
	return out
}

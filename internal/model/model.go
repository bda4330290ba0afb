// Package model holds the data-model types shared across the declaration
// registries, query tracker, primitives interface, and broker: the wire-
// independent shapes of samples, replies, and queries described in 3 and
// 4.E.
package model

import "time"

// SubMode distinguishes push delivery (the default) from pull delivery,
// where the subscriber paces consumption explicitly (4.E's `pull` call;
// SUPPLEMENTED FEATURES "Pull mode").
type SubMode uint8

const (
	// Push delivers samples to the subscriber as they are routed.
	Push SubMode = iota
	// Pull withholds delivery until the subscriber issues a pull.
	Pull
)

// String returns the human-readable mode name.
func (m SubMode) String() string {
	if m == Pull {
		return "pull"
	}
	return "push"
}

// SubInfo describes a subscriber's delivery preferences, carried in the
// outbound `subscriber(reskey, subinfo)` primitive.
type SubInfo struct {
	Mode     SubMode
	Reliable bool
}

// DataInfo carries the optional metadata attached to a Sample (3: "DataInfo
// carries optional source id, source sequence number, first-hop id+sn,
// timestamp, kind, encoding").
type DataInfo struct {
	SourceID      []byte
	SourceSN      uint64
	FirstRouterID []byte
	FirstRouterSN uint64
	Timestamp     time.Time
	Kind          uint64
	Encoding      string
}

// Sample is the unit of routed data (3: "(key_name, payload, data_info?)").
type Sample struct {
	KeyName string
	Payload []byte
	Info    *DataInfo
}

// Reply is a single response item on a query's reply stream
// (3: "(data, source_kind, replier_id)").
type Reply struct {
	Data       Sample
	SourceKind uint64
	ReplierID  []byte
}

// Consolidation selects how duplicate replies across routes should be
// treated (SUPPLEMENTED FEATURES "Consolidation modes on Query"). This core
// does not itself de-duplicate; the mode is threaded through so a
// caller-side consolidator can act on it.
type Consolidation uint8

const (
	// ConsolidationNone forwards every reply without de-duplication.
	ConsolidationNone Consolidation = iota
	// ConsolidationLastHop asks only the last hop to de-duplicate.
	ConsolidationLastHop
	// ConsolidationIncremental asks for incremental, as-available consolidation.
	ConsolidationIncremental
)

// String returns the human-readable consolidation mode name.
func (c Consolidation) String() string {
	switch c {
	case ConsolidationNone:
		return "none"
	case ConsolidationLastHop:
		return "last_hop"
	case ConsolidationIncremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// AllKinds is the queryable/query kind bitmask that matches any kind
// (4.F step 2: "queryable.kind == ALL_KINDS || target.kind == ALL_KINDS").
const AllKinds uint64 = ^uint64(0)

// TargetSelection selects how many kind-compatible queryables a query is
// actually dispatched to (SUPPLEMENTED FEATURES "QueryTarget selection
// policy"). Only TargetAll is load-bearing in this core; the others are
// accepted and parsed but behave identically here — see DESIGN.md.
type TargetSelection uint8

const (
	// TargetAll dispatches to every kind-compatible queryable.
	TargetAll TargetSelection = iota
	// TargetBestMatching dispatches to the best-matching queryable only,
	// in topologies with routing-table awareness this core lacks.
	TargetBestMatching
	// TargetComplete dispatches until a complete reply set is gathered,
	// in topologies with routing-table awareness this core lacks.
	TargetComplete
)

// String returns the human-readable target selection name.
func (s TargetSelection) String() string {
	switch s {
	case TargetAll:
		return "all"
	case TargetBestMatching:
		return "best_matching"
	case TargetComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// QueryTarget bundles the kind-compatibility bitmask and selection policy
// passed to `query()`.
type QueryTarget struct {
	Kind      uint64
	Selection TargetSelection
}

// Query is delivered to a selected queryable, carrying a replies sink
// scoped to that queryable's kind (4.F step 4).
type Query struct {
	QID           uint64
	KeyName       string
	Predicate     string
	Target        QueryTarget
	Consolidation Consolidation
	Replies       chan<- Reply
}

// Package query implements the outstanding-query tracker described in
// 4.D: a map from query id to its reply sink and replier countdown.
package query

import (
	"sync"
	"sync/atomic"

	"github.com/dantte-lp/zenomesh/internal/model"
)

// DefaultReplyChannelCapacity is API_REPLY_RECEPTION_CHANNEL_SIZE (4.D).
const DefaultReplyChannelCapacity = 256

// entry is the OutstandingQuery state machine from 3 and 4.F:
// Open{n>0} --reply_final--> Open{n-1} if n>1 else Closed. Closed is
// modeled by removing the entry from Tracker.outstanding rather than by an
// explicit state field, so that a reply arriving after closure takes the
// same "unknown qid" path as a genuinely unknown one.
type entry struct {
	remaining int
	sink      chan model.Reply
}

// Tracker owns the outstanding-query table for one Session.
//
// All methods are safe for concurrent use. The zero value is not usable;
// construct with New.
type Tracker struct {
	nextQID atomic.Uint64

	mu          sync.Mutex
	outstanding map[uint64]*entry
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{outstanding: make(map[uint64]*entry)}
}

// Open allocates the next query id and an outstanding entry with the given
// replier countdown, returning the id and a channel the caller reads
// replies from until it closes (4.D: "insert with remaining_repliers = 2,
// emit protocol query to both the remote broker and to self"; Design Notes
// flags the hard-coded 2 as a bug — callers here pass the actual number of
// distinct routes the query was dispatched on).
//
// replierCount must be positive; a query dispatched on zero routes should
// not be opened at all (the caller can synthesize an already-closed empty
// reply stream instead).
func (t *Tracker) Open(replierCount int) (qid uint64, replies <-chan model.Reply) {
	qid = t.nextQID.Add(1)
	sink := make(chan model.Reply, DefaultReplyChannelCapacity)

	t.mu.Lock()
	t.outstanding[qid] = &entry{remaining: replierCount, sink: sink}
	t.mu.Unlock()

	return qid, sink
}

// ReplyData forwards a reply to the query's sink. An unknown qid (never
// opened, or already closed) is silently dropped — the caller should log a
// warning, per 4.F's failure semantics ("unknown qid on incoming reply ->
// warn, drop"). A full sink is also dropped rather than blocking the
// routing task, per 4.D ("dropping if sender closed is not an error — log
// only").
func (t *Tracker) ReplyData(qid uint64, reply model.Reply) (delivered bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.outstanding[qid]
	if !ok {
		return false
	}

	select {
	case e.sink <- reply:
		return true
	default:
		return false
	}
}

// ReplyFinal decrements qid's replier countdown. When it reaches zero the
// entry is removed and its reply channel closed, signaling end-of-replies
// to the caller (4.D: "remove entry iff it reaches zero; dropping the
// entry closes the channel"). closed reports whether this call closed the
// stream; ok reports whether qid was a known, still-open query.
func (t *Tracker) ReplyFinal(qid uint64) (closed, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.outstanding[qid]
	if !ok {
		return false, false
	}

	e.remaining--
	if e.remaining <= 0 {
		delete(t.outstanding, qid)
		close(e.sink)
		return true, true
	}

	return false, true
}

// CloseAll force-closes every outstanding query's reply channel without
// waiting for reply_final, used on Session shutdown (5: "Outstanding
// queries resolve to empty reply streams").
func (t *Tracker) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for qid, e := range t.outstanding {
		close(e.sink)
		delete(t.outstanding, qid)
	}
}

// Outstanding reports the number of currently open queries, for metrics.
func (t *Tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.outstanding)
}

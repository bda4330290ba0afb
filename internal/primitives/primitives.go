// Package primitives defines the abstract bidirectional message surface
// between a Session and its Broker described in 4.E. It is a plain Go
// interface, not a wire protocol: the on-the-wire binary framing that
// would carry these calls between processes is an explicit Non-goal
// collaborator (1).
package primitives

import (
	"github.com/dantte-lp/zenomesh/internal/model"
	"github.com/dantte-lp/zenomesh/internal/resource"
)

// Primitives is the symmetric capability set implemented by both the
// Session (for inbound calls arriving from the Broker) and the Broker (for
// outbound calls issued by the Session). Every method is fire-and-forget:
// responses, if any, arrive later as separate inbound invocations, not as
// return values (4.E: "Each is a fire-and-forget asynchronous operation;
// responses arrive via later inbound invocations").
type Primitives interface {
	// Resource declares id -> key (the resolved resource binding).
	Resource(id resource.ID, key resource.Key)
	// ForgetResource undeclares a previously declared resource id.
	ForgetResource(id resource.ID)

	// Publisher declares a publisher targeting key.
	Publisher(key resource.Key)
	// ForgetPublisher undeclares the publisher targeting key.
	ForgetPublisher(key resource.Key)

	// Subscriber declares a subscriber targeting key with the given
	// delivery preferences.
	Subscriber(key resource.Key, info model.SubInfo)
	// ForgetSubscriber undeclares the subscriber targeting key.
	ForgetSubscriber(key resource.Key)

	// Queryable declares a queryable targeting key.
	Queryable(key resource.Key)
	// ForgetQueryable undeclares the queryable targeting key.
	ForgetQueryable(key resource.Key)

	// Data delivers a sample under key. reliable requests reliable
	// delivery over the underlying link; info carries optional metadata.
	Data(key resource.Key, reliable bool, info *model.DataInfo, payload []byte)

	// Query issues a query under key, identified by qid, to be answered
	// by matching queryables subject to target and consolidation.
	Query(key resource.Key, predicate string, qid uint64, target model.QueryTarget, consolidation model.Consolidation)

	// ReplyData delivers one reply item for qid.
	ReplyData(qid uint64, sourceKind uint64, replierID []byte, key resource.Key, info *model.DataInfo, payload []byte)
	// ReplyFinal signals that one replier route for qid has no more
	// replies to send.
	ReplyFinal(qid uint64)

	// Pull requests delivery of up to maxSamples buffered samples for a
	// pull-mode subscription identified by pullID; isFinal marks the last
	// pull request in a sequence. maxSamples of nil means unbounded.
	Pull(isFinal bool, key resource.Key, pullID uint64, maxSamples *uint64)

	// Close tears down the peer relationship this Primitives handle
	// represents. Idempotent.
	Close()
}

// NoOp implements Primitives with methods that do nothing. It is a base
// for partial implementations (embed it and override only the methods of
// interest, as test doubles do). Session holds no Primitives slot of its
// own: Broker.HandleQuery receives its replyTo handle per call.
type NoOp struct{}

var _ Primitives = NoOp{}

func (NoOp) Resource(resource.ID, resource.Key)                                        {}
func (NoOp) ForgetResource(resource.ID)                                                {}
func (NoOp) Publisher(resource.Key)                                                    {}
func (NoOp) ForgetPublisher(resource.Key)                                              {}
func (NoOp) Subscriber(resource.Key, model.SubInfo)                                     {}
func (NoOp) ForgetSubscriber(resource.Key)                                             {}
func (NoOp) Queryable(resource.Key)                                                     {}
func (NoOp) ForgetQueryable(resource.Key)                                               {}
func (NoOp) Data(resource.Key, bool, *model.DataInfo, []byte)                           {}
func (NoOp) Query(resource.Key, string, uint64, model.QueryTarget, model.Consolidation) {}
func (NoOp) ReplyData(uint64, uint64, []byte, resource.Key, *model.DataInfo, []byte)    {}
func (NoOp) ReplyFinal(uint64)                                                          {}
func (NoOp) Pull(bool, resource.Key, uint64, *uint64)                                   {}
func (NoOp) Close()                                                                     {}

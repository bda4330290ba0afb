package session

import (
	"log/slog"

	"github.com/dantte-lp/zenomesh/internal/link"
	"github.com/dantte-lp/zenomesh/internal/model"
	"github.com/dantte-lp/zenomesh/internal/primitives"
	"github.com/dantte-lp/zenomesh/internal/resource"
)

// Face is the per-Link Primitives endpoint representing one remote peer
// relationship (4.E: "a symmetric capability set implemented by both Session
// and Broker"). Toward its Link, a Face plays the Broker's outbound role;
// Data and Query play the inbound dispatch role a decoded wire message would
// take once received, routing straight into this Session's Broker with this
// Face installed as the replyTo for anything the query path sends back.
//
// Encoding a call onto the wire and decoding one off it is the excluded
// framing layer (1: Non-goal "on-the-wire binary framing"). Every method
// that would need that layer logs its intent instead of writing bytes.
type Face struct {
	link    link.Link
	session *Session
	logger  *slog.Logger
}

var _ primitives.Primitives = (*Face)(nil)

// NewFace wraps l as the Primitives endpoint for s's relationship with the
// peer at the other end of l.
func NewFace(l link.Link, s *Session, logger *slog.Logger) *Face {
	if logger == nil {
		logger = slog.Default()
	}
	return &Face{
		link:    l,
		session: s,
		logger:  logger.With(slog.String("component", "session.face"), slog.String("peer", l.Dst().String())),
	}
}

// Link returns the underlying transport link.
func (f *Face) Link() link.Link { return f.link }

// The declare/forget/reply/pull methods below only ever need to cross the
// wire toward the peer; absent the framing layer there is nothing to decode
// on the way in, so each logs its outbound intent at debug level.

func (f *Face) Resource(id resource.ID, key resource.Key) {
	f.logger.Debug("resource", slog.Uint64("id", uint64(id)), slog.String("key", key.Name))
}

func (f *Face) ForgetResource(id resource.ID) {
	f.logger.Debug("forget_resource", slog.Uint64("id", uint64(id)))
}

func (f *Face) Publisher(key resource.Key) {
	f.logger.Debug("publisher", slog.String("key", key.Name))
}

func (f *Face) ForgetPublisher(key resource.Key) {
	f.logger.Debug("forget_publisher", slog.String("key", key.Name))
}

func (f *Face) Subscriber(key resource.Key, info model.SubInfo) {
	f.logger.Debug("subscriber", slog.String("key", key.Name), slog.String("mode", info.Mode.String()))
}

func (f *Face) ForgetSubscriber(key resource.Key) {
	f.logger.Debug("forget_subscriber", slog.String("key", key.Name))
}

func (f *Face) Queryable(key resource.Key) {
	f.logger.Debug("queryable", slog.String("key", key.Name))
}

func (f *Face) ForgetQueryable(key resource.Key) {
	f.logger.Debug("forget_queryable", slog.String("key", key.Name))
}

// Data is the inbound dispatch point for a sample arriving over this Face's
// Link: it routes into the session's Broker as a remote-origin write.
func (f *Face) Data(key resource.Key, reliable bool, info *model.DataInfo, payload []byte) {
	f.session.broker.HandleData(false, key, reliable, info, payload)
}

// Query is the inbound dispatch point for a query arriving over this Face's
// Link. f is installed as replyTo so replies route back out over the same
// Link they arrived on.
func (f *Face) Query(key resource.Key, predicate string, qid uint64, target model.QueryTarget, consolidation model.Consolidation) {
	f.session.broker.HandleQuery(false, key, predicate, qid, target, consolidation, f)
}

func (f *Face) ReplyData(qid uint64, sourceKind uint64, replierID []byte, key resource.Key, info *model.DataInfo, payload []byte) {
	f.logger.Debug("reply_data", slog.Uint64("qid", qid), slog.String("key", key.Name))
}

func (f *Face) ReplyFinal(qid uint64) {
	f.logger.Debug("reply_final", slog.Uint64("qid", qid))
}

func (f *Face) Pull(isFinal bool, key resource.Key, pullID uint64, maxSamples *uint64) {
	f.logger.Debug("pull", slog.Uint64("pull_id", pullID), slog.Bool("final", isFinal))
}

// Close tears down the underlying Link. Idempotent, since link.Link.Close is
// required to be.
func (f *Face) Close() {
	if err := f.link.Close(); err != nil {
		f.logger.Warn("close link", slog.Any("error", err))
	}
}

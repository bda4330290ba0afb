package session_test

import (
	"net"
	"testing"
	"time"

	"github.com/dantte-lp/zenomesh/internal/link"
	"github.com/dantte-lp/zenomesh/internal/model"
	"github.com/dantte-lp/zenomesh/internal/resource"
	"github.com/dantte-lp/zenomesh/internal/session"
)

func pipeFace(t *testing.T, s *session.Session) *session.Face {
	t.Helper()

	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	src := link.MustParseLocator("tcp/a:1")
	dst := link.MustParseLocator("tcp/b:1")
	lk := link.NewStreamLink(a, src, dst)

	return session.NewFace(lk, s, nil)
}

// TestFaceDataRoutesIntoSessionBroker verifies that a Data call arriving
// on a Face (standing in for a decoded inbound wire message) is routed as
// a remote-origin write through the owning Session's Broker.
func TestFaceDataRoutesIntoSessionBroker(t *testing.T) {
	t.Parallel()

	s := session.New(session.Peer)
	defer s.Close()

	_, samples, err := s.DeclareStreamSubscriber(resource.NewName("a/*"), model.SubInfo{}, 0)
	if err != nil {
		t.Fatalf("DeclareStreamSubscriber: %v", err)
	}

	f := pipeFace(t, s)
	f.Data(resource.NewName("a/b"), true, nil, []byte("from-peer"))

	select {
	case sample := <-samples:
		if sample.KeyName != "a/b" || string(sample.Payload) != "from-peer" {
			t.Errorf("got Sample %+v, want KeyName=a/b Payload=from-peer", sample)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sample delivery via Face.Data")
	}
}

// TestFaceQueryRoutesRepliesBackToSameFace drives a Query call arriving on
// a Face, which passes that Face as replyTo to the Broker, and checks only
// that the call neither panics nor blocks; the replies themselves are not
// observed.
func TestFaceQueryRoutesRepliesBackToSameFace(t *testing.T) {
	t.Parallel()

	s := session.New(session.Peer)
	defer s.Close()

	qy, err := s.DeclareQueryable(resource.NewName("q/*"), model.AllKinds)
	if err != nil {
		t.Fatalf("DeclareQueryable: %v", err)
	}

	go func() {
		q := <-qy.Queries
		q.Replies <- model.Reply{Data: model.Sample{KeyName: q.KeyName, Payload: []byte("r")}}
		close(q.Replies)
	}()

	f := pipeFace(t, s)
	// Face's ReplyData/ReplyFinal only log; this call should simply not
	// panic or block, proving HandleQuery accepted f as a valid
	// primitives.Primitives target in its own right.
	f.Query(resource.NewName("q/x"), "", 77, model.QueryTarget{Kind: model.AllKinds}, model.ConsolidationNone)

	time.Sleep(50 * time.Millisecond)
}

func TestFaceCloseClosesUnderlyingLink(t *testing.T) {
	t.Parallel()

	s := session.New(session.Peer)
	defer s.Close()

	a, b := net.Pipe()
	defer b.Close()

	src := link.MustParseLocator("tcp/a:1")
	dst := link.MustParseLocator("tcp/b:1")
	lk := link.NewStreamLink(a, src, dst)
	f := session.NewFace(lk, s, nil)

	f.Close()
	f.Close() // idempotent, matching link.Link.Close

	buf := make([]byte, 1)
	if _, err := lk.Read(buf); err == nil {
		t.Error("expected Read on a closed link to fail")
	}
}

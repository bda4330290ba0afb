package session_test

import (
	"testing"
	"time"

	"github.com/dantte-lp/zenomesh/internal/model"
	"github.com/dantte-lp/zenomesh/internal/resource"
	"github.com/dantte-lp/zenomesh/internal/session"
)

// TestWriteDeliversToStreamSubscriber mirrors spec scenario 1 at the
// Session level: a local write reaches a matching stream subscriber.
func TestWriteDeliversToStreamSubscriber(t *testing.T) {
	t.Parallel()

	s := session.New(session.Client)
	defer s.Close()

	_, samples, err := s.DeclareStreamSubscriber(resource.NewName("a/*"), model.SubInfo{}, 0)
	if err != nil {
		t.Fatalf("DeclareStreamSubscriber: %v", err)
	}

	if err := s.Write(resource.NewName("a/b"), []byte("hi"), true); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case sample := <-samples:
		if sample.KeyName != "a/b" || string(sample.Payload) != "hi" {
			t.Errorf("got Sample %+v, want KeyName=a/b Payload=hi", sample)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sample delivery")
	}
}

// TestWriteWildcardMiss mirrors spec scenario 2.
func TestWriteWildcardMiss(t *testing.T) {
	t.Parallel()

	s := session.New(session.Client)
	defer s.Close()

	_, samples, err := s.DeclareStreamSubscriber(resource.NewName("a/*"), model.SubInfo{}, 0)
	if err != nil {
		t.Fatalf("DeclareStreamSubscriber: %v", err)
	}

	if err := s.Write(resource.NewName("a/b/c"), []byte("hi"), true); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case sample := <-samples:
		t.Fatalf("unexpected delivery: %+v", sample)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestResourceIDIndirection mirrors spec scenario 3.
func TestResourceIDIndirection(t *testing.T) {
	t.Parallel()

	s := session.New(session.Client)
	defer s.Close()

	id, err := s.DeclareResource("x/y")
	if err != nil {
		t.Fatalf("DeclareResource: %v", err)
	}

	_, samples, err := s.DeclareStreamSubscriber(resource.NewName("x/*"), model.SubInfo{}, 0)
	if err != nil {
		t.Fatalf("DeclareStreamSubscriber: %v", err)
	}

	if err := s.Write(resource.NewID(id), []byte("p"), true); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case sample := <-samples:
		if sample.KeyName != "x/y" || string(sample.Payload) != "p" {
			t.Errorf("got Sample %+v, want KeyName=x/y Payload=p", sample)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sample delivery")
	}
}

// TestUndeclareLastInvariant follows spec scenario 4 at the Session level:
// two subscriptions on the same key both undeclare cleanly, and a repeated
// Undeclare reports an unknown declaration. Which Undeclare emits the forget
// is checked in internal/declare's TestForgetLastInvariant.
func TestUndeclareLastInvariant(t *testing.T) {
	t.Parallel()

	s := session.New(session.Client)
	defer s.Close()

	sub1, _, err := s.DeclareStreamSubscriber(resource.NewName("k"), model.SubInfo{}, 0)
	if err != nil {
		t.Fatalf("DeclareStreamSubscriber 1: %v", err)
	}
	sub2, _, err := s.DeclareStreamSubscriber(resource.NewName("k"), model.SubInfo{}, 0)
	if err != nil {
		t.Fatalf("DeclareStreamSubscriber 2: %v", err)
	}

	if err := sub1.Undeclare(); err != nil {
		t.Fatalf("Undeclare sub1: %v", err)
	}
	if err := sub2.Undeclare(); err != nil {
		t.Fatalf("Undeclare sub2: %v", err)
	}

	if err := sub1.Undeclare(); err == nil {
		t.Error("second Undeclare of sub1 should report an unknown declaration")
	}
}

// TestGetAggregatesLocalQueryable mirrors spec scenario 5: a query with one
// matching local queryable yields exactly one reply, then closes once the
// local route and the synthetic upstream route have both finished.
func TestGetAggregatesLocalQueryable(t *testing.T) {
	t.Parallel()

	s := session.New(session.Client)
	defer s.Close()

	qy, err := s.DeclareQueryable(resource.NewName("q/*"), model.AllKinds)
	if err != nil {
		t.Fatalf("DeclareQueryable: %v", err)
	}

	go func() {
		q := <-qy.Queries
		q.Replies <- model.Reply{Data: model.Sample{KeyName: q.KeyName, Payload: []byte("r1")}}
		close(q.Replies)
	}()

	replies, err := s.Get(resource.NewName("q/x"), "", model.QueryTarget{Kind: model.AllKinds}, model.ConsolidationNone)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var got []model.Reply
	timeout := time.After(time.Second)
loop:
	for {
		select {
		case r, ok := <-replies:
			if !ok {
				break loop
			}
			got = append(got, r)
		case <-timeout:
			t.Fatal("timed out waiting for reply stream to close")
		}
	}

	if len(got) != 1 || string(got[0].Data.Payload) != "r1" {
		t.Errorf("got replies %+v, want exactly one reply with payload r1", got)
	}
}

// TestGetNoQueryableClosesImmediately covers a Get with no matching local
// queryable and no remote peers: the reply stream closes with zero replies.
func TestGetNoQueryableClosesImmediately(t *testing.T) {
	t.Parallel()

	s := session.New(session.Client)
	defer s.Close()

	replies, err := s.Get(resource.NewName("q/x"), "", model.QueryTarget{Kind: model.AllKinds}, model.ConsolidationNone)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	select {
	case r, ok := <-replies:
		if ok {
			t.Fatalf("unexpected reply: %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply stream to close")
	}
}

// TestCloseClosesSubscriberChannels mirrors the cancellation semantics in
// 5: closing a Session closes every subscriber's delivery channel.
func TestCloseClosesSubscriberChannels(t *testing.T) {
	t.Parallel()

	s := session.New(session.Client)

	_, samples, err := s.DeclareStreamSubscriber(resource.NewName("a/*"), model.SubInfo{}, 0)
	if err != nil {
		t.Fatalf("DeclareStreamSubscriber: %v", err)
	}

	s.Close()
	s.Close() // idempotent

	select {
	case _, ok := <-samples:
		if ok {
			t.Error("expected samples channel to be closed, got a value instead")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for samples channel to close")
	}

	if err := s.Write(resource.NewName("a/b"), []byte("x"), true); err != session.ErrClosed {
		t.Errorf("Write on closed session: err = %v, want ErrClosed", err)
	}
}

// TestCloseClosesQueryableChannelsAndOutstandingQueries verifies that
// closing a Session closes queryable channels and resolves outstanding
// queries to empty streams (5).
func TestCloseClosesQueryableChannelsAndOutstandingQueries(t *testing.T) {
	t.Parallel()

	s := session.New(session.Client)

	qy, err := s.DeclareQueryable(resource.NewName("q/*"), model.AllKinds)
	if err != nil {
		t.Fatalf("DeclareQueryable: %v", err)
	}

	// Open a query whose sole queryable never replies, so it would remain
	// outstanding if Close did not force it shut.
	replies, err := s.Get(resource.NewName("q/x"), "", model.QueryTarget{Kind: model.AllKinds}, model.ConsolidationNone)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	q := <-qy.Queries

	s.Close()
	close(q.Replies) // no replies, but let the broker's dispatch goroutines finish

	select {
	case _, ok := <-qy.Queries:
		if ok {
			t.Error("expected queryable channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queryable channel to close")
	}

	select {
	case _, ok := <-replies:
		if ok {
			t.Error("expected outstanding query's reply stream to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for outstanding query's reply stream to close")
	}
}

// TestRegisteredTwiceReceivesTwice verifies a key declared by two distinct
// stream subscriptions delivers to both.
func TestRegisteredTwiceReceivesTwice(t *testing.T) {
	t.Parallel()

	s := session.New(session.Client)
	defer s.Close()

	_, samplesA, err := s.DeclareStreamSubscriber(resource.NewName("a/b"), model.SubInfo{}, 2)
	if err != nil {
		t.Fatalf("DeclareStreamSubscriber 1: %v", err)
	}
	_, samplesB, err := s.DeclareStreamSubscriber(resource.NewName("a/b"), model.SubInfo{}, 2)
	if err != nil {
		t.Fatalf("DeclareStreamSubscriber 2: %v", err)
	}

	if err := s.Write(resource.NewName("a/b"), []byte("x"), true); err != nil {
		t.Fatalf("Write: %v", err)
	}

	timeout := time.After(time.Second)
	for _, ch := range []<-chan model.Sample{samplesA, samplesB} {
		select {
		case <-ch:
		case <-timeout:
			t.Fatal("timed out waiting for delivery to one of the two subscriptions")
		}
	}
}

func TestDeclarePublisherUndeclareUnknown(t *testing.T) {
	t.Parallel()

	s := session.New(session.Peer)
	defer s.Close()

	pub, err := s.DeclarePublisher(resource.NewName("a/b"))
	if err != nil {
		t.Fatalf("DeclarePublisher: %v", err)
	}
	if err := pub.Undeclare(); err != nil {
		t.Fatalf("Undeclare: %v", err)
	}
	if err := pub.Undeclare(); err == nil {
		t.Error("second Undeclare should fail")
	}
}

func TestWriteOnClosedSessionReturnsErrClosed(t *testing.T) {
	t.Parallel()

	s := session.New(session.Client)
	s.Close()

	if err := s.Write(resource.NewName("a"), []byte("x"), true); err != session.ErrClosed {
		t.Errorf("Write on closed session: err = %v, want ErrClosed", err)
	}
	if _, err := s.DeclarePublisher(resource.NewName("a")); err != session.ErrClosed {
		t.Errorf("DeclarePublisher on closed session: err = %v, want ErrClosed", err)
	}
	if _, err := s.Get(resource.NewName("a"), "", model.QueryTarget{Kind: model.AllKinds}, model.ConsolidationNone); err != session.ErrClosed {
		t.Errorf("Get on closed session: err = %v, want ErrClosed", err)
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/zenomesh/internal/link"
)

// Hello is the discovery response a Scout would collect from a peer
// answering a multicast probe (SUPPLEMENTED FEATURES "Scouting").
type Hello struct {
	PeerID   PeerID
	WhatAmI  WhatAmI
	Locators []string
}

// OrchestratorConfig carries the subset of 6's Session configuration the
// Orchestrator acts on directly.
type OrchestratorConfig struct {
	Peers              []string
	Listeners          []string
	MulticastInterface string
	ScoutingDelay      time.Duration
}

// Orchestrator is the Session's link-facing half (4.G): it binds the
// configured listeners, dials the configured peers, and wires every
// resulting Link into the Session as a Face.
type Orchestrator struct {
	session *Session
	cfg     OrchestratorConfig
	logger  *slog.Logger

	newLinks chan link.Link

	mu        sync.Mutex
	listeners map[string]*link.Listener
	faces     map[string]*Face
}

// NewOrchestrator builds an Orchestrator for s. Call Run to start it.
func NewOrchestrator(s *Session, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		session:   s,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "session.orchestrator")),
		newLinks:  make(chan link.Link, 8),
		listeners: make(map[string]*link.Listener),
		faces:     make(map[string]*Face),
	}
	s.orchestrator = o
	return o
}

// Run binds every configured listener (if the Session's role accepts
// listeners) and dials every configured peer (if the role dials peers),
// blocking until ctx is cancelled or an unrecoverable setup error occurs.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if o.session.whatami.AcceptsListeners() {
		for _, locStr := range o.cfg.Listeners {
			locStr := locStr
			loc, err := link.ParseLocator(locStr)
			if err != nil {
				return fmt.Errorf("orchestrator: listener locator %q: %w", locStr, err)
			}

			ln, err := link.Listen(gctx, loc, o.newLinks, o.logger)
			if err != nil {
				return fmt.Errorf("orchestrator: listen %q: %w", locStr, err)
			}

			o.mu.Lock()
			o.listeners[loc.String()] = ln
			o.mu.Unlock()

			g.Go(func() error {
				ln.Run(gctx)
				return nil
			})
		}
	}

	if o.session.whatami.DialsPeers() {
		for _, locStr := range o.cfg.Peers {
			locStr := locStr
			loc, err := link.ParseLocator(locStr)
			if err != nil {
				return fmt.Errorf("orchestrator: peer locator %q: %w", locStr, err)
			}

			g.Go(func() error { return o.dialPeer(gctx, loc) })
		}
	}

	g.Go(func() error { return o.pumpNewLinks(gctx) })

	return g.Wait()
}

// dialPeer opens a client connection to loc and surfaces it on newLinks.
func (o *Orchestrator) dialPeer(ctx context.Context, loc link.Locator) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", loc.HostPort)
	if err != nil {
		return fmt.Errorf("orchestrator: dial peer %s: %w", loc, err)
	}

	lk := link.NewStreamLink(conn, link.Locator{Scheme: loc.Scheme, HostPort: conn.LocalAddr().String()}, loc)

	select {
	case o.newLinks <- lk:
		return nil
	case <-ctx.Done():
		_ = lk.Close()
		return ctx.Err()
	}
}

// pumpNewLinks wraps every Link surfaced by a listener or dial as a Face
// and installs it on the Session, until ctx is cancelled.
func (o *Orchestrator) pumpNewLinks(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case lk := <-o.newLinks:
			f := NewFace(lk, o.session, o.logger)

			o.mu.Lock()
			o.faces[lk.Dst().String()] = f
			o.mu.Unlock()

			o.session.addFace(f)

			o.logger.Info("link established", slog.String("peer", lk.Dst().String()))

			// A real deployment's excluded wire-framing layer (1) would now
			// start a read loop decoding messages off lk and dispatching
			// them to f's Primitives methods. That decode loop is outside
			// this core's scope; wiring the Link and the Face is as far as
			// this Session goes on its own. watchFaceClosure below only
			// detects transport closure, it never interprets bytes.
			go o.watchFaceClosure(f)
		}
	}
}

// watchFaceClosure loops reading and discarding bytes off f's Link, a
// liveness probe rather than a framing decode: it exists only to learn when
// the transport closes or errors, never to interpret what crosses it. On
// return it unwires f from both the Orchestrator's and the Session's
// bookkeeping.
func (o *Orchestrator) watchFaceClosure(f *Face) {
	var buf [512]byte
	for {
		if _, err := f.Link().Read(buf[:]); err != nil {
			break
		}
	}

	o.mu.Lock()
	delete(o.faces, f.Link().Dst().String())
	o.mu.Unlock()

	o.session.removeFace(f)
	o.logger.Info("link closed", slog.String("peer", f.Link().Dst().String()))
}

// Scout probes for peers reachable over iface within delay
// (SUPPLEMENTED FEATURES "Scouting"). This core models the API surface and
// its configuration (multicast_interface, scouting_delay) without
// implementing the underlying multicast transport, an external-collaborator
// concern akin to the excluded TLS/TCP byte-level I/O; it reports
// ErrScoutingUnsupported, or ctx.Err() if ctx is already done.
func (o *Orchestrator) Scout(ctx context.Context, iface string, delay time.Duration) ([]Hello, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(0):
	}
	return nil, ErrScoutingUnsupported
}

// Close closes every bound listener and active Face. Idempotent: a second
// call observes empty listeners/faces maps and returns nil without
// re-closing anything already torn down by the first call.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs error
	for _, ln := range o.listeners {
		if err := ln.Close(); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	for _, f := range o.faces {
		f.Close()
	}

	o.listeners = make(map[string]*link.Listener)
	o.faces = make(map[string]*Face)

	return errs
}

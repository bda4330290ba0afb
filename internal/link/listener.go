package link

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// AcceptThrottle is TLS_ACCEPT_THROTTLE_TIME (4.H): the pause an accept
// loop takes after an Accept error before retrying, guarding against a
// busy-loop when the process is out of file descriptors (the classic
// EMFILE-guard pattern).
const AcceptThrottle = 100 * time.Millisecond

// AcceptCloser is the subset of net.Listener that Listener depends on;
// satisfied both by *net.TCPListener (via net.ListenConfig.Listen) and by
// fakes in tests that need to inject Accept errors.
type AcceptCloser interface {
	Accept() (net.Conn, error)
	Close() error
}

// Listener runs the accept loop for one bound locator, surfacing each
// accepted connection as a Link on newLinks for the Session Orchestrator to
// wire into the Broker (4.G, 4.H "Listener").
type Listener struct {
	ln      AcceptCloser
	locator Locator

	newLinks chan<- Link
	logger   *slog.Logger

	active atomic.Bool
}

// Listen binds loc and returns a Listener ready to Accept. Every locator is
// bound as a plain TCP socket on loc.HostPort, whatever its scheme; TLS
// byte-level I/O and certificate loading are explicit Non-goal
// collaborators (1), so a tls locator gets no TLS termination here and
// callers needing it wrap the accepted net.Conn themselves.
func Listen(ctx context.Context, loc Locator, newLinks chan<- Link, logger *slog.Logger) (*Listener, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", loc.HostPort)
	if err != nil {
		return nil, &ListenError{Locator: loc, Err: err}
	}

	l := NewListenerFromAcceptCloser(ln, loc, newLinks, logger)
	l.active.Store(true)
	return l, nil
}

// NewListenerFromAcceptCloser builds a Listener over an already-bound
// AcceptCloser. This is useful for testing with mock listeners that inject
// Accept errors on demand.
func NewListenerFromAcceptCloser(ln AcceptCloser, loc Locator, newLinks chan<- Link, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		ln:       ln,
		locator:  loc,
		newLinks: newLinks,
		logger:   logger.With(slog.String("component", "link.listener"), slog.String("locator", loc.String())),
	}
}

// ListenError wraps a bind failure with the locator that failed to bind.
type ListenError struct {
	Locator Locator
	Err     error
}

func (e *ListenError) Error() string {
	return "listen on " + e.Locator.String() + ": " + e.Err.Error()
}

func (e *ListenError) Unwrap() error { return e.Err }

// Run executes the accept loop until ctx is cancelled or the listener is
// closed. On an Accept error it throttles for AcceptThrottle before
// retrying rather than busy-looping (4.H). Active() observes false only
// after Run returns.
func (l *Listener) Run(ctx context.Context) {
	l.active.Store(true)
	defer l.active.Store(false)

	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			l.logger.Warn("accept error, throttling", slog.Any("error", err))
			time.Sleep(AcceptThrottle)
			continue
		}

		lk := NewStreamLink(conn, l.locator, Locator{Scheme: l.locator.Scheme, HostPort: conn.RemoteAddr().String()})

		select {
		case l.newLinks <- lk:
		case <-ctx.Done():
			_ = lk.Close()
			return
		}
	}
}

// Active reports whether the accept loop is currently running
// (8 scenario 6: "verify the listener remains active=true").
func (l *Listener) Active() bool { return l.active.Load() }

// Close stops the accept loop by closing the underlying socket.
func (l *Listener) Close() error { return l.ln.Close() }

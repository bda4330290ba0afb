// Package link implements the uniform byte-stream link contract described
// in 4.H, the accept-loop listener built on it, and the locator syntax
// that addresses both (6: "scheme/host:port[?option=value&...]").
package link

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidLocator indicates a locator string could not be parsed, or
// names an unsupported scheme.
var ErrInvalidLocator = errors.New("invalid locator")

// recognizedSchemes are the transport schemes named in 6. Only "tcp" has a
// concrete Link implementation in this core; the TLS/TCP byte-level I/O and
// the on-the-wire framing for the others are explicit Non-goal collaborators.
var recognizedSchemes = map[string]bool{
	"tcp":  true,
	"tls":  true,
	"udp":  true,
	"quic": true,
}

// Locator identifies a transport endpoint: a scheme, a host:port, and an
// options bag (3/6: "Locator: scheme + endpoint + options string").
type Locator struct {
	Scheme   string
	HostPort string
	Options  map[string]string
}

// ParseLocator parses s into a Locator, validating the scheme against the
// recognized set.
func ParseLocator(s string) (Locator, error) {
	schemeSep := strings.IndexByte(s, '/')
	if schemeSep < 0 {
		return Locator{}, fmt.Errorf("%w: missing scheme separator in %q", ErrInvalidLocator, s)
	}

	scheme := s[:schemeSep]
	if !recognizedSchemes[scheme] {
		return Locator{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocator, scheme)
	}

	rest := s[schemeSep+1:]
	hostPort := rest
	options := make(map[string]string)

	if qIdx := strings.IndexByte(rest, '?'); qIdx >= 0 {
		hostPort = rest[:qIdx]
		for _, kv := range strings.Split(rest[qIdx+1:], "&") {
			if kv == "" {
				continue
			}
			k, v, _ := strings.Cut(kv, "=")
			options[k] = v
		}
	}

	if hostPort == "" {
		return Locator{}, fmt.Errorf("%w: missing host:port in %q", ErrInvalidLocator, s)
	}

	return Locator{Scheme: scheme, HostPort: hostPort, Options: options}, nil
}

// MustParseLocator parses s, panicking on error. Intended for static
// locators known at compile time (tests, constants).
func MustParseLocator(s string) Locator {
	l, err := ParseLocator(s)
	if err != nil {
		panic(fmt.Sprintf("link: MustParseLocator(%q): %v", s, err))
	}
	return l
}

// String reconstructs the locator's canonical text form. Options are
// sorted by key for a deterministic result.
func (l Locator) String() string {
	var b strings.Builder
	b.WriteString(l.Scheme)
	b.WriteByte('/')
	b.WriteString(l.HostPort)

	if len(l.Options) == 0 {
		return b.String()
	}

	keys := make([]string, 0, len(l.Options))
	for k := range l.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(l.Options[k])
	}

	return b.String()
}

// IsTLS reports whether this locator uses the tls scheme, which recognizes
// the certificate/client-auth options enumerated in 6.
func (l Locator) IsTLS() bool { return l.Scheme == "tls" }

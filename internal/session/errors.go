package session

import "errors"

// Sentinel errors surfaced by the Session's public API (7: error kinds
// visible to the API).
var (
	// ErrClosed indicates an operation was attempted on a Session that has
	// already been closed (7: "Closed — operation on a Session that has
	// been closed").
	ErrClosed = errors.New("session: closed")

	// ErrUnknownDeclaration indicates an Undeclare call referenced a local
	// declaration id that is not currently registered.
	ErrUnknownDeclaration = errors.New("session: unknown declaration id")

	// ErrScoutingUnsupported indicates Scout was called without this core
	// implementing the multicast discovery transport it models the API
	// surface for (SUPPLEMENTED FEATURES "Scouting"; the multicast
	// transport itself is an external-collaborator concern, akin to the
	// excluded TLS/TCP byte-level I/O).
	ErrScoutingUnsupported = errors.New("session: scouting multicast transport is not implemented in this core")
)

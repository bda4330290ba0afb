package session

import (
	"github.com/google/uuid"
)

// PeerID is an opaque identifier for a running peer, 1-16 bytes
// (3: "PeerId — opaque byte string, 1…16 bytes... derived from a UUID
// unless provided").
type PeerID []byte

// NewPeerID generates a fresh PeerID derived from a random UUID, truncated
// to its first 16 bytes (the full UUID length).
func NewPeerID() PeerID {
	id := uuid.New()
	return PeerID(id[:])
}

// WhatAmI is the disjoint behavioral role of a Session (3: "Client | Peer |
// Router | Broker. Governs which scouting/listener behaviors are
// permitted").
type WhatAmI uint8

const (
	// Client attaches to exactly one peer and does not accept listeners.
	Client WhatAmI = iota
	// Peer both dials configured peers and accepts listeners.
	Peer
	// Router forwards traffic between peers and accepts listeners.
	Router
	// Broker is a dedicated routing hub; accepts listeners, does not dial.
	Broker
)

// String returns the lower-case role name used in configuration
// (6: "whatami: one of peer | client | router | broker").
func (w WhatAmI) String() string {
	switch w {
	case Client:
		return "client"
	case Peer:
		return "peer"
	case Router:
		return "router"
	case Broker:
		return "broker"
	default:
		return "unknown"
	}
}

// ParseWhatAmI parses the configuration string form of a WhatAmI.
func ParseWhatAmI(s string) (WhatAmI, error) {
	switch s {
	case "client":
		return Client, nil
	case "peer":
		return Peer, nil
	case "router":
		return Router, nil
	case "broker":
		return Broker, nil
	default:
		return 0, &UnsupportedWhatAmIError{Value: s}
	}
}

// UnsupportedWhatAmIError reports an unrecognized whatami configuration value.
type UnsupportedWhatAmIError struct {
	Value string
}

func (e *UnsupportedWhatAmIError) Error() string {
	return "unsupported whatami value: " + e.Value
}

// AcceptsListeners reports whether this role accepts inbound links
// (3: "Governs which scouting/listener behaviors are permitted").
func (w WhatAmI) AcceptsListeners() bool {
	return w == Peer || w == Router || w == Broker
}

// DialsPeers reports whether this role actively dials configured peers.
func (w WhatAmI) DialsPeers() bool {
	return w == Client || w == Peer || w == Router
}

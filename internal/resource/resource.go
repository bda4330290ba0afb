// Package resource implements the per-Session resource id tables described
// in 4.B: a bidirectional mapping between numerical resource ids and string
// key expressions, tracked separately for ids declared locally and ids
// declared by the remote peer.
package resource

import (
	"errors"
	"fmt"
	"sync"
)

// ID is a 64-bit resource identifier. Zero is reserved (NoResource);
// it must never be allocated or installed.
type ID uint64

// NoResource is the reserved zero id (3: "0 is reserved (NO_RESOURCE)").
const NoResource ID = 0

// Direction selects which side's id space a Key's Id/IdWithSuffix form is
// resolved against.
type Direction uint8

const (
	// Local resolves against ids this Session declared.
	Local Direction = iota
	// Remote resolves against ids the peer declared.
	Remote
)

// String returns the human-readable direction name.
func (d Direction) String() string {
	switch d {
	case Local:
		return "local"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// Sentinel errors for resource resolution.
var (
	// ErrUnknownResourceId indicates the id is present in neither table
	// (4.B: "Fails with UnknownResourceId when lookup misses both tables").
	ErrUnknownResourceId = errors.New("unknown resource id")

	// ErrReservedID indicates an attempt to declare or install the
	// reserved NoResource id.
	ErrReservedID = errors.New("resource id 0 is reserved")
)

// KeyKind tags which form a Key takes.
type KeyKind uint8

const (
	// KeyName addresses a key expression directly by its string form.
	KeyName KeyKind = iota
	// KeyID addresses a key expression indirectly via a declared resource id.
	KeyID
	// KeyIDWithSuffix addresses a key expression via a declared resource id
	// plus a literal suffix appended to the resolved name.
	KeyIDWithSuffix
)

// Key is the tagged union described in 3 ("ResKey"): either a literal Name,
// an Id, or an Id with an appended Suffix.
type Key struct {
	Kind   KeyKind
	ID     ID
	Name   string
	Suffix string
}

// NewName builds a Name-form Key.
func NewName(name string) Key { return Key{Kind: KeyName, Name: name} }

// NewID builds an Id-form Key.
func NewID(id ID) Key { return Key{Kind: KeyID, ID: id} }

// NewIDWithSuffix builds an IdWithSuffix-form Key.
func NewIDWithSuffix(id ID, suffix string) Key {
	return Key{Kind: KeyIDWithSuffix, ID: id, Suffix: suffix}
}

// Table holds the local and remote id->name maps for a single Session.
//
// All methods are safe for concurrent use. The zero value is not usable;
// construct with New.
type Table struct {
	mu sync.RWMutex

	nextLocalID ID
	local       map[ID]string
	remote      map[ID]string
}

// New creates an empty resource Table. Local id allocation starts at 1
// (0 is reserved).
func New() *Table {
	return &Table{
		nextLocalID: 1,
		local:       make(map[ID]string),
		remote:      make(map[ID]string),
	}
}

// DeclareLocal allocates the next local id, binds it to name, and returns
// the allocated id (4.B: "declare_local(name) -> id (allocates next id,
// inserts, returns id)"). Ids are monotonically increasing and never reused
// even after UndeclareLocal (8: "returned ids are distinct and
// monotonically increasing").
func (t *Table) DeclareLocal(name string) ID {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextLocalID
	t.nextLocalID++
	t.local[id] = name

	return id
}

// UndeclareLocal removes a previously declared local id. Undeclaring an id
// that was never declared, or was already undeclared, is a no-op.
func (t *Table) UndeclareLocal(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.local, id)
}

// InstallRemote records the peer's declaration of id->name
// (4.B: "install_remote(id, name)").
func (t *Table) InstallRemote(id ID, name string) error {
	if id == NoResource {
		return ErrReservedID
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.remote[id] = name

	return nil
}

// UninstallRemote removes a previously installed remote id.
func (t *Table) UninstallRemote(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.remote, id)
}

// Resolve maps a Key to its full key-expression string, using dir to select
// which id space an Id/IdWithSuffix form resolves against.
//
// Resolution rules (4.B):
//   - Name(s): returns s verbatim.
//   - Id(i): looks up i in the dir table, falling back to Local if absent
//     from dir (only meaningful when dir is Remote; Local already is the
//     fallback).
//   - IdWithSuffix(i, s): same lookup as Id, with s appended.
//
// Returns ErrUnknownResourceId if the id is present in neither table.
func (t *Table) Resolve(k Key, dir Direction) (string, error) {
	switch k.Kind {
	case KeyName:
		return k.Name, nil
	case KeyID:
		return t.resolveID(k.ID, dir)
	case KeyIDWithSuffix:
		base, err := t.resolveID(k.ID, dir)
		if err != nil {
			return "", err
		}
		return base + k.Suffix, nil
	default:
		return "", fmt.Errorf("resolve: %w: unrecognized key kind %d", ErrUnknownResourceId, k.Kind)
	}
}

func (t *Table) resolveID(id ID, dir Direction) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if dir == Remote {
		if name, ok := t.remote[id]; ok {
			return name, nil
		}
	}
	if name, ok := t.local[id]; ok {
		return name, nil
	}

	return "", fmt.Errorf("resolve id %d (dir=%s): %w", id, dir, ErrUnknownResourceId)
}

// LocalName returns the name bound to a local id, for diagnostics and
// declaration-registry bookkeeping that need the resolved string without
// going through a full Key.
func (t *Table) LocalName(id ID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	name, ok := t.local[id]
	return name, ok
}

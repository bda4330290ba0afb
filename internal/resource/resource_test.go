package resource_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dantte-lp/zenomesh/internal/resource"
)

func TestDeclareLocalMonotonic(t *testing.T) {
	t.Parallel()

	tbl := resource.New()

	var ids []resource.ID
	for i := range 5 {
		id := tbl.DeclareLocal(fmt.Sprintf("key/%d", i))
		ids = append(ids, id)
	}

	for i, id := range ids {
		if id == resource.NoResource {
			t.Fatalf("id %d: got reserved NoResource", i)
		}
		if i > 0 && id <= ids[i-1] {
			t.Errorf("id %d: got %d, want strictly greater than previous %d", i, id, ids[i-1])
		}
	}
}

func TestDeclareLocalSameNameDistinctIDs(t *testing.T) {
	t.Parallel()

	tbl := resource.New()

	idA := tbl.DeclareLocal("a/b")
	idB := tbl.DeclareLocal("a/b")

	if idA == idB {
		t.Errorf("two DeclareLocal calls for the same name returned the same id %d; each declaration should allocate a fresh id", idA)
	}
}

func TestResolveName(t *testing.T) {
	t.Parallel()

	tbl := resource.New()

	got, err := tbl.Resolve(resource.NewName("a/b/c"), resource.Local)
	if err != nil {
		t.Fatalf("Resolve: unexpected error: %v", err)
	}
	if got != "a/b/c" {
		t.Errorf("Resolve(Name) = %q, want %q", got, "a/b/c")
	}
}

func TestResolveLocalID(t *testing.T) {
	t.Parallel()

	tbl := resource.New()
	id := tbl.DeclareLocal("a/b")

	got, err := tbl.Resolve(resource.NewID(id), resource.Local)
	if err != nil {
		t.Fatalf("Resolve: unexpected error: %v", err)
	}
	if got != "a/b" {
		t.Errorf("Resolve(Id) = %q, want %q", got, "a/b")
	}
}

func TestResolveRemoteID(t *testing.T) {
	t.Parallel()

	tbl := resource.New()
	if err := tbl.InstallRemote(42, "x/y"); err != nil {
		t.Fatalf("InstallRemote: unexpected error: %v", err)
	}

	got, err := tbl.Resolve(resource.NewID(42), resource.Remote)
	if err != nil {
		t.Fatalf("Resolve: unexpected error: %v", err)
	}
	if got != "x/y" {
		t.Errorf("Resolve(Id, Remote) = %q, want %q", got, "x/y")
	}
}

func TestResolveIDWithSuffix(t *testing.T) {
	t.Parallel()

	tbl := resource.New()
	id := tbl.DeclareLocal("a/b")

	got, err := tbl.Resolve(resource.NewIDWithSuffix(id, "/c"), resource.Local)
	if err != nil {
		t.Fatalf("Resolve: unexpected error: %v", err)
	}
	if got != "a/b/c" {
		t.Errorf("Resolve(IdWithSuffix) = %q, want %q", got, "a/b/c")
	}
}

func TestResolveUnknownID(t *testing.T) {
	t.Parallel()

	tbl := resource.New()

	_, err := tbl.Resolve(resource.NewID(999), resource.Local)
	if !errors.Is(err, resource.ErrUnknownResourceId) {
		t.Fatalf("Resolve(unknown id): got error %v, want %v", err, resource.ErrUnknownResourceId)
	}
}

func TestUndeclareLocalThenResolveFails(t *testing.T) {
	t.Parallel()

	tbl := resource.New()
	id := tbl.DeclareLocal("a/b")

	tbl.UndeclareLocal(id)

	_, err := tbl.Resolve(resource.NewID(id), resource.Local)
	if !errors.Is(err, resource.ErrUnknownResourceId) {
		t.Fatalf("Resolve(undeclared id): got error %v, want %v", err, resource.ErrUnknownResourceId)
	}
}

func TestUninstallRemoteThenResolveFails(t *testing.T) {
	t.Parallel()

	tbl := resource.New()
	if err := tbl.InstallRemote(7, "x/y"); err != nil {
		t.Fatalf("InstallRemote: unexpected error: %v", err)
	}

	tbl.UninstallRemote(7)

	_, err := tbl.Resolve(resource.NewID(7), resource.Remote)
	if !errors.Is(err, resource.ErrUnknownResourceId) {
		t.Fatalf("Resolve(uninstalled id): got error %v, want %v", err, resource.ErrUnknownResourceId)
	}
}

func TestInstallRemoteRejectsReservedID(t *testing.T) {
	t.Parallel()

	tbl := resource.New()

	err := tbl.InstallRemote(resource.NoResource, "a/b")
	if !errors.Is(err, resource.ErrReservedID) {
		t.Fatalf("InstallRemote(0): got error %v, want %v", err, resource.ErrReservedID)
	}
}

func TestUndeclareUnknownIsNoop(t *testing.T) {
	t.Parallel()

	tbl := resource.New()
	tbl.UndeclareLocal(123) // must not panic
}

func TestConcurrentDeclareLocal(t *testing.T) {
	t.Parallel()

	tbl := resource.New()

	const (
		goroutines = 10
		perRoutine = 100
	)

	results := make([][]resource.ID, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for g := range goroutines {
		results[g] = make([]resource.ID, 0, perRoutine)
		go func(idx int) {
			defer wg.Done()
			for range perRoutine {
				id := tbl.DeclareLocal("a/b")
				results[idx] = append(results[idx], id)
			}
		}(g)
	}

	wg.Wait()

	seen := make(map[resource.ID]struct{}, goroutines*perRoutine)
	for g, ids := range results {
		for i, id := range ids {
			if _, exists := seen[id]; exists {
				t.Errorf("goroutine %d, allocation %d: duplicate id %d", g, i, id)
			}
			seen[id] = struct{}{}
		}
	}

	if len(seen) != goroutines*perRoutine {
		t.Errorf("expected %d unique ids, got %d", goroutines*perRoutine, len(seen))
	}
}

func TestLocalName(t *testing.T) {
	t.Parallel()

	tbl := resource.New()
	id := tbl.DeclareLocal("a/b")

	name, ok := tbl.LocalName(id)
	if !ok {
		t.Fatalf("LocalName(%d): not found", id)
	}
	if name != "a/b" {
		t.Errorf("LocalName(%d) = %q, want %q", id, name, "a/b")
	}

	if _, ok := tbl.LocalName(999); ok {
		t.Errorf("LocalName(999): expected not found")
	}
}

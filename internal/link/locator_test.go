package link_test

import (
	"errors"
	"testing"

	"github.com/dantte-lp/zenomesh/internal/link"
)

func TestParseLocatorRoundTrip(t *testing.T) {
	t.Parallel()

	loc, err := link.ParseLocator("tcp/127.0.0.1:7447")
	if err != nil {
		t.Fatalf("ParseLocator: %v", err)
	}
	if loc.Scheme != "tcp" || loc.HostPort != "127.0.0.1:7447" {
		t.Errorf("got %+v, want scheme=tcp hostport=127.0.0.1:7447", loc)
	}
	if got, want := loc.String(), "tcp/127.0.0.1:7447"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseLocatorOptionsSortedDeterministic(t *testing.T) {
	t.Parallel()

	loc, err := link.ParseLocator("tls/host:1234?verify_client=true&cert=/a/b")
	if err != nil {
		t.Fatalf("ParseLocator: %v", err)
	}
	if loc.Options["verify_client"] != "true" || loc.Options["cert"] != "/a/b" {
		t.Errorf("options = %+v, want verify_client=true cert=/a/b", loc.Options)
	}

	// Regardless of input order, String() sorts keys alphabetically.
	if got, want := loc.String(), "tls/host:1234?cert=/a/b&verify_client=true"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if !loc.IsTLS() {
		t.Error("IsTLS() = false for tls scheme")
	}
}

func TestParseLocatorMissingSeparator(t *testing.T) {
	t.Parallel()

	if _, err := link.ParseLocator("tcp127.0.0.1:7447"); !errors.Is(err, link.ErrInvalidLocator) {
		t.Errorf("err = %v, want ErrInvalidLocator", err)
	}
}

func TestParseLocatorUnsupportedScheme(t *testing.T) {
	t.Parallel()

	if _, err := link.ParseLocator("carrier-pigeon/host:1"); !errors.Is(err, link.ErrInvalidLocator) {
		t.Errorf("err = %v, want ErrInvalidLocator", err)
	}
}

func TestParseLocatorMissingHostPort(t *testing.T) {
	t.Parallel()

	if _, err := link.ParseLocator("tcp/"); !errors.Is(err, link.ErrInvalidLocator) {
		t.Errorf("err = %v, want ErrInvalidLocator", err)
	}
}

func TestMustParseLocatorPanicsOnError(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("MustParseLocator did not panic on invalid input")
		}
	}()
	link.MustParseLocator("nope")
}

package key_test

import (
	"errors"
	"testing"

	"github.com/dantte-lp/zenomesh/internal/key"
)

func TestParseNormalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "a/b/c", "a/b/c"},
		{"leading slash", "/a/b", "a/b"},
		{"trailing slash", "a/b/", "a/b"},
		{"both slashes", "/a/b/", "a/b"},
		{"collapse multi", "a/**/**/b", "a/**/b"},
		{"single segment", "a", "a"},
		{"wildcard segment", "a/*/c", "a/*/c"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e, err := key.Parse(tc.in)
			if err != nil {
				t.Fatalf("Parse(%q): unexpected error: %v", tc.in, err)
			}
			if got := e.String(); got != tc.want {
				t.Errorf("Parse(%q).String() = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", key.ErrEmpty},
		{"only slashes", "///", key.ErrEmpty},
		{"empty segment", "a//b", key.ErrEmptySegment},
		{"mixed wildcard", "a*b", key.ErrInvalidWildcard},
		{"partial wildcard", "*b", key.ErrInvalidWildcard},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := key.Parse(tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Parse(%q): got error %v, want %v", tc.in, err, tc.want)
			}
		})
	}
}

func TestIntersectSymmetric(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"a/b", "a/*"},
		{"a/b/c", "a/**"},
		{"a/b/c", "**"},
		{"a/b", "a/b"},
		{"a/b", "a/c"},
		{"a/*/c", "a/b/*"},
		{"a/**/c", "a/x/y/c"},
		{"a/**", "**/a"},
		{"a/b/**", "a/**/c"},
	}

	for _, p := range pairs {
		a := key.MustParse(p[0])
		b := key.MustParse(p[1])

		if key.Intersect(a, b) != key.Intersect(b, a) {
			t.Errorf("intersect(%q, %q) not symmetric", p[0], p[1])
		}
	}
}

func TestIntersectCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want bool
	}{
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"a/*", "a/b", true},
		{"a/*", "a/b/c", false},
		{"a/**", "a/b/c", true},
		{"a/**", "a", true},
		{"**", "a/b/c", true},
		{"**", "**", true},
		{"a/**/d", "a/b/c/d", true},
		{"a/**/d", "a/d", true},
		{"a/**/d", "a/b/c/e", false},
		{"a/*/c", "a/b/c", true},
		{"a/*/c", "a/b/x", false},
		{"x/**", "y/**", false},
		{"a/b/**", "a/**/c", true},
	}

	for _, tc := range tests {
		a := key.MustParse(tc.a)
		b := key.MustParse(tc.b)

		if got := key.Intersect(a, b); got != tc.want {
			t.Errorf("Intersect(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestIntersectReflexive(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"a", "a/b", "a/b/c", "*/b", "a/**", "**"} {
		e := key.MustParse(s)
		if !key.Intersect(e, e) {
			t.Errorf("Intersect(%q, %q) = false, want true", s, s)
		}
	}
}

func TestIntersectAlwaysMatchesDoubleWildcard(t *testing.T) {
	t.Parallel()

	all := key.MustParse("**")
	for _, s := range []string{"a", "a/b/c", "x/y/*", "**"} {
		e := key.MustParse(s)
		if !key.Intersect(e, all) {
			t.Errorf("Intersect(%q, \"**\") = false, want true", s)
		}
	}
}

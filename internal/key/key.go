// Package key implements hierarchical key expressions and the wildcard
// intersection test used to route samples and queries between publishers,
// subscribers, and queryables.
package key

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for key expression parsing.
var (
	// ErrEmpty indicates the key expression has no segments after normalization.
	ErrEmpty = errors.New("key expression must not be empty")

	// ErrEmptySegment indicates a `//`-style empty segment was found.
	ErrEmptySegment = errors.New("key expression segment must not be empty")

	// ErrInvalidWildcard indicates a segment mixes `*`/`**` with other characters
	// (e.g. "a*b"), which this design does not support.
	ErrInvalidWildcard = errors.New("wildcard segment must be exactly * or **")
)

const (
	singleWildcard = "*"
	multiWildcard  = "**"
	sep            = "/"
)

// Expr is a parsed, validated key expression: a `/`-separated sequence of
// literal, single-segment (`*`), or multi-segment (`**`) wildcard tokens.
//
// Expr is immutable after construction and safe for concurrent use.
type Expr struct {
	raw      string
	segments []string
}

// Parse validates and normalizes s into an Expr.
//
// Normalization: leading and trailing `/` are stripped, and any run of
// consecutive `**` segments collapses to a single `**` (3: "`**/**`
// simplifies to `**`"). Empty segments (from `//`) are rejected rather than
// silently dropped, since they almost always indicate a caller bug.
func Parse(s string) (Expr, error) {
	trimmed := strings.Trim(s, sep)
	if trimmed == "" {
		return Expr{}, ErrEmpty
	}

	raw := strings.Split(trimmed, sep)
	segments := make([]string, 0, len(raw))

	for _, seg := range raw {
		if seg == "" {
			return Expr{}, ErrEmptySegment
		}
		if err := validateSegment(seg); err != nil {
			return Expr{}, err
		}

		// Collapse consecutive "**" into a single "**".
		if seg == multiWildcard && len(segments) > 0 && segments[len(segments)-1] == multiWildcard {
			continue
		}
		segments = append(segments, seg)
	}

	return Expr{
		raw:      strings.Join(segments, sep),
		segments: segments,
	}, nil
}

// MustParse parses s, panicking on error. Intended for static key
// expressions known at compile time (tests, constants), never for
// caller-supplied strings.
func MustParse(s string) Expr {
	e, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("key: MustParse(%q): %v", s, err))
	}
	return e
}

// validateSegment rejects segments that mix wildcard markers with literal
// text (e.g. "a*", "**b"), which this design's matcher does not support.
func validateSegment(seg string) error {
	if seg == singleWildcard || seg == multiWildcard {
		return nil
	}
	if strings.Contains(seg, singleWildcard) {
		return fmt.Errorf("segment %q: %w", seg, ErrInvalidWildcard)
	}
	return nil
}

// String returns the normalized key expression text.
func (e Expr) String() string { return e.raw }

// IsZero reports whether e is the zero value (never produced by Parse).
func (e Expr) IsZero() bool { return len(e.segments) == 0 }

// Intersect reports whether there exists at least one concrete key matching
// both a and b (8: "intersect(a, b) == intersect(b, a)").
//
// The algorithm walks both segment slices together; a "*" consumes exactly
// one opposing segment of any value, and a "**" may consume zero or more
// opposing segments, backtracking over the choice when a later mismatch is
// found. Two purely literal expressions intersect iff they are segment-wise
// (and therefore byte-) equal.
func Intersect(a, b Expr) bool {
	return intersect(a.segments, b.segments)
}

func intersect(a, b []string) bool {
	for len(a) > 0 && len(b) > 0 {
		switch {
		case a[0] == multiWildcard:
			return intersectMulti(a[1:], b)
		case b[0] == multiWildcard:
			return intersectMulti(b[1:], a)
		case a[0] == singleWildcard || b[0] == singleWildcard || a[0] == b[0]:
			a, b = a[1:], b[1:]
		default:
			return false
		}
	}

	// Remaining segments on either side are only acceptable if they are a
	// trailing "**", which matches the empty remainder (3: "`**` at either
	// end matches empty").
	return onlyTrailingMulti(a) && onlyTrailingMulti(b)
}

// intersectMulti matches a "**" (whose remaining pattern is rest) against
// every possible split point of other, backtracking over the choice: a "**"
// tries consuming zero segments first, then one segment, two segments, and
// so on.
func intersectMulti(rest, other []string) bool {
	for i := 0; i <= len(other); i++ {
		if intersect(rest, other[i:]) {
			return true
		}
	}
	return false
}

// onlyTrailingMulti reports whether segs is empty or is exactly ["**"].
func onlyTrailingMulti(segs []string) bool {
	if len(segs) == 0 {
		return true
	}
	return len(segs) == 1 && segs[0] == multiWildcard
}

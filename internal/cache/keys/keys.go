package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// Prefix namespaces every cache key written by this module.
const Prefix = "water-intersect:result:v1"

// GeometryKey hashes the WKT encoding of g. Geometries with identical
// coordinates in identical order hash the same.
func GeometryKey(g orb.Geometry) uint64 {
	if g == nil {
		return xxhash.Sum64String("")
	}
	return xxhash.Sum64String(wkt.MarshalString(g))
}

// Fingerprint hashes a collection member by member; order matters.
func Fingerprint(c orb.Collection) uint64 {
	d := xxhash.New()
	for _, g := range c {
		if g != nil {
			_, _ = d.WriteString(wkt.MarshalString(g))
		}
		_, _ = d.WriteString("\n")
	}
	return d.Sum64()
}

// ResultKey identifies the intersection of two collections under a dedup mode.
func ResultKey(water, targets uint64, dedup string) string {
	mode := sanitizeForKey(strings.ToLower(strings.TrimSpace(dedup)))
	return fmt.Sprintf("%s:w=%016x:t=%016x:dedup=%s", Prefix, water, targets, mode)
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// Any other rune (including non-ASCII and ':') becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}

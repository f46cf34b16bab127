// Package geom turns tagged boundary rings from shapefile records into polygons.
package geom

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Tag marks a ring as an exterior boundary or a hole.
type Tag int

const (
	Outer Tag = iota
	Inner
)

func (t Tag) String() string {
	if t == Inner {
		return "inner"
	}
	return "outer"
}

// TaggedRing is a ring with its role in the record.
type TaggedRing struct {
	Tag    Tag
	Points orb.Ring
}

// Mode selects how records with several outer rings are assembled.
type Mode string

const (
	// ModeMerge concatenates every outer ring into a single exterior.
	ModeMerge Mode = "merge"
	// ModeSplit emits one exterior per outer ring and a MultiPolygon when there are several.
	ModeSplit Mode = "split"
)

// ParseMode maps a flag or env value to a Mode. Empty means merge.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMerge, "":
		return ModeMerge, nil
	case ModeSplit:
		return ModeSplit, nil
	default:
		return "", fmt.Errorf("invalid ring mode %q (want merge|split)", s)
	}
}

// Build assembles rings according to the mode.
func (m Mode) Build(rings []TaggedRing) orb.Geometry {
	if m == ModeMerge {
		return Assemble(rings)
	}
	return AssembleParts(rings)
}

// TagRings classifies shapefile parts by winding: clockwise rings are
// exteriors, counter-clockwise rings are holes.
func TagRings(parts []orb.Ring) []TaggedRing {
	out := make([]TaggedRing, 0, len(parts))
	for _, r := range parts {
		tag := Outer
		if len(r) > 0 && r.Orientation() == orb.CCW {
			tag = Inner
		}
		out = append(out, TaggedRing{Tag: tag, Points: r})
	}
	return out
}

// Assemble concatenates all outer rings, in order, into one exterior and keeps
// each inner ring as a hole. Closure, winding and validity are not checked.
func Assemble(rings []TaggedRing) orb.Polygon {
	var exterior orb.Ring
	var holes []orb.Ring
	for _, r := range rings {
		switch r.Tag {
		case Outer:
			exterior = append(exterior, r.Points...)
		case Inner:
			hole := make(orb.Ring, len(r.Points))
			copy(hole, r.Points)
			holes = append(holes, hole)
		}
	}

	poly := make(orb.Polygon, 0, 1+len(holes))
	poly = append(poly, exterior)
	return append(poly, holes...)
}

// AssembleParts builds one polygon per outer ring. Each hole goes to the
// smallest exterior containing its first point, or to the last exterior seen
// before it when none contains it.
func AssembleParts(rings []TaggedRing) orb.Geometry {
	var polys []orb.Polygon
	var areas []float64
	for _, r := range rings {
		if r.Tag != Outer {
			continue
		}
		ext := make(orb.Ring, len(r.Points))
		copy(ext, r.Points)
		polys = append(polys, orb.Polygon{ext})
		areas = append(areas, math.Abs(planar.Area(ext)))
	}
	if len(polys) == 0 {
		return Assemble(rings)
	}

	last := -1
	for _, r := range rings {
		if r.Tag == Outer {
			last++
			continue
		}
		owner := enclosing(polys, areas, r.Points)
		if owner < 0 {
			owner = max(last, 0)
		}
		hole := make(orb.Ring, len(r.Points))
		copy(hole, r.Points)
		polys[owner] = append(polys[owner], hole)
	}

	if len(polys) == 1 {
		return polys[0]
	}
	return orb.MultiPolygon(polys)
}

func enclosing(polys []orb.Polygon, areas []float64, hole orb.Ring) int {
	if len(hole) == 0 {
		return -1
	}
	best := -1
	for i, p := range polys {
		if len(p[0]) < 3 || !planar.RingContains(p[0], hole[0]) {
			continue
		}
		if best < 0 || areas[i] < areas[best] {
			best = i
		}
	}
	return best
}

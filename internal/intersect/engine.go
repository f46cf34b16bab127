// Package intersect selects the water geometries that intersect a set of
// target polygons.
package intersect

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"

	"github.com/mohammed-shakir/water-intersect/internal/cache/keys"
	"github.com/mohammed-shakir/water-intersect/internal/core/observability"
)

// Dedup controls how repeated matches are collapsed.
type Dedup string

const (
	// DedupAdjacent drops a match equal to the one appended just before it.
	DedupAdjacent Dedup = "adjacent"
	// DedupDistinct keeps only the first occurrence of every geometry.
	DedupDistinct Dedup = "distinct"
)

// ParseDedup maps a flag or env value to a Dedup. Empty means adjacent.
func ParseDedup(s string) (Dedup, error) {
	switch Dedup(strings.ToLower(strings.TrimSpace(s))) {
	case DedupAdjacent, "":
		return DedupAdjacent, nil
	case DedupDistinct:
		return DedupDistinct, nil
	default:
		return "", fmt.Errorf("invalid dedup mode %q (want adjacent|distinct)", s)
	}
}

// Engine matches water geometries against target polygons.
type Engine struct {
	dedup Dedup
	log   *slog.Logger
}

// New returns an Engine. An empty dedup means DedupAdjacent.
func New(dedup Dedup, log *slog.Logger) *Engine {
	if dedup == "" {
		dedup = DedupAdjacent
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{dedup: dedup, log: log}
}

func (e *Engine) Dedup() Dedup { return e.dedup }

// Intersect returns, in water order, every water geometry that intersects a
// Polygon or MultiPolygon target. A water geometry is appended once per
// matching target before deduplication. Targets of other types are ignored,
// as are geometries GEOS rejects. The result is never nil.
func (e *Engine) Intersect(water, targets orb.Collection) orb.Collection {
	out := orb.Collection{}
	var seen map[uint64]struct{}
	if e.dedup == DedupDistinct {
		seen = make(map[uint64]struct{})
	}

	prepared, rejected := e.prepareTargets(targets)
	defer func() {
		for _, parts := range prepared {
			for _, p := range parts {
				if p.geom != nil {
					p.geom.Destroy()
				}
			}
		}
	}()

	var comparisons, matches, unusable int
	for i, w := range water {
		if w == nil {
			continue
		}
		wb := w.Bound()
		var wg *geos.Geom
		var werr error
		for _, parts := range prepared {
			hit := false
			for _, p := range parts {
				comparisons++
				if p.geom == nil || !wb.Intersects(p.bound) {
					continue
				}
				if wg == nil && werr == nil {
					if wg, werr = toGEOS(w); werr != nil {
						unusable++
						e.log.Warn("skipping water geometry", "index", i, "err", werr)
					}
				}
				if werr != nil {
					break
				}
				ok, err := intersects(wg, p.geom)
				if err != nil {
					e.log.Warn("intersection test failed", "index", i, "err", err)
					continue
				}
				if ok {
					hit = true
					break
				}
			}
			if werr != nil {
				break
			}
			if !hit {
				continue
			}
			matches++
			out = e.add(out, w, seen)
		}
		if wg != nil {
			wg.Destroy()
		}
	}

	observability.AddComparisons(comparisons)
	observability.AddMatches(matches)
	e.log.Debug("intersection complete",
		"water", len(water),
		"targets", len(targets),
		"comparisons", comparisons,
		"matches", matches,
		"kept", len(out),
		"ignored_targets", len(targets)-len(prepared),
		"rejected_targets", rejected,
		"unusable_water", unusable,
		"dedup", string(e.dedup),
	)
	return out
}

// part is one polygon of a target. geom is nil when GEOS rejected it.
type part struct {
	bound orb.Bound
	geom  *geos.Geom
}

// prepareTargets converts every Polygon and MultiPolygon target to GEOS once,
// keeping target order. Other geometry types are dropped.
func (e *Engine) prepareTargets(targets orb.Collection) ([][]part, int) {
	out := make([][]part, 0, len(targets))
	rejected := 0
	for i, t := range targets {
		var polys []orb.Polygon
		switch t := t.(type) {
		case orb.Polygon:
			polys = []orb.Polygon{t}
		case orb.MultiPolygon:
			polys = t
		default:
			continue
		}
		parts := make([]part, 0, len(polys))
		for _, p := range polys {
			if len(p) == 0 || len(p[0]) == 0 {
				continue
			}
			g, err := toGEOS(p)
			if err != nil {
				rejected++
				e.log.Warn("skipping target polygon", "index", i, "err", err)
			}
			parts = append(parts, part{bound: p.Bound(), geom: g})
		}
		out = append(out, parts)
	}
	return out, rejected
}

func (e *Engine) add(out orb.Collection, g orb.Geometry, seen map[uint64]struct{}) orb.Collection {
	switch e.dedup {
	case DedupDistinct:
		k := keys.GeometryKey(g)
		if _, dup := seen[k]; dup {
			return out
		}
		seen[k] = struct{}{}
	default:
		if n := len(out); n > 0 && orb.Equal(out[n-1], g) {
			return out
		}
	}
	return append(out, g)
}

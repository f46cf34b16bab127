package intersect

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"
)

var errEmpty = errors.New("empty geometry")

// Intersects reports whether g and polygon p share at least one point.
// Boundaries count, so geometries that only touch intersect. An error means
// one side could not be handed to GEOS, for example a ring with fewer than
// three distinct points.
func Intersects(g orb.Geometry, p orb.Polygon) (bool, error) {
	if g == nil || len(p) == 0 || len(p[0]) == 0 {
		return false, nil
	}
	if !g.Bound().Intersects(p.Bound()) {
		return false, nil
	}
	a, err := toGEOS(g)
	if err != nil {
		return false, err
	}
	defer a.Destroy()
	b, err := toGEOS(p)
	if err != nil {
		return false, err
	}
	defer b.Destroy()
	return intersects(a, b)
}

// intersects converts a GEOS exception, which go-geos raises as a panic, into
// an error.
func intersects(a, b *geos.Geom) (hit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("geos intersects: %v", r)
		}
	}()
	return a.Intersects(b), nil
}

// toGEOS hands g to GEOS through WKB. Rings are closed first; GEOS rejects
// open linear rings that the readers otherwise accept.
func toGEOS(g orb.Geometry) (*geos.Geom, error) {
	if g == nil {
		return nil, errEmpty
	}
	b, err := wkb.Marshal(closeRings(g))
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}
	if len(b) == 0 {
		return nil, errEmpty
	}
	gg, err := geos.NewGeomFromWKB(b)
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}
	return gg, nil
}

func closeRings(g orb.Geometry) orb.Geometry {
	switch g := g.(type) {
	case orb.Ring:
		return closeRing(g)
	case orb.Polygon:
		return closePolygon(g)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(g))
		for i, p := range g {
			out[i] = closePolygon(p)
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, len(g))
		for i, m := range g {
			out[i] = closeRings(m)
		}
		return out
	default:
		return g
	}
}

func closePolygon(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		out[i] = closeRing(r)
	}
	return out
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) == 0 || r.Closed() {
		return r
	}
	out := make(orb.Ring, len(r), len(r)+1)
	copy(out, r)
	return append(out, r[0])
}

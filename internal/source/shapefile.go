package source

import (
	"context"
	"fmt"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/water-intersect/internal/core/observability"
	"github.com/mohammed-shakir/water-intersect/internal/fault"
	"github.com/mohammed-shakir/water-intersect/internal/geom"
)

// readShapefile keeps every polygon record and skips the rest. A broken
// record ends the scan but keeps what was read before it.
func (r *Reader) readShapefile(ctx context.Context, path string) (orb.Collection, error) {
	sf, err := shp.Open(path)
	if err != nil {
		return nil, fault.IOError("open shapefile", path, err)
	}
	defer func() { _ = sf.Close() }()

	out := orb.Collection{}
	skipped := 0
	for {
		shape, ok, err := next(sf)
		if err != nil {
			r.log.WarnContext(ctx, "shapefile read stopped early", "path", path, "read", len(out), "err", err)
			skipped++
			break
		}
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fault.IOError("read shapefile", path, err)
		}
		parts, ok := polygonParts(shape)
		if !ok {
			skipped++
			continue
		}
		out = append(out, r.mode.Build(geom.TagRings(parts)))
	}

	observability.AddSourceRecords("shapefile", "ok", len(out))
	observability.AddSourceRecords("shapefile", "skipped", skipped)
	r.log.DebugContext(ctx, "shapefile read", "path", path, "polygons", len(out), "skipped", skipped)
	return out, nil
}

// next advances to the following record. go-shp panics on some corrupt record
// headers, such as a negative part count; that is reported as an error like any
// other read failure.
func next(sf *shp.Reader) (shape shp.Shape, ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			shape, ok, err = nil, false, fmt.Errorf("corrupt record: %v", rec)
		}
	}()
	if !sf.Next() {
		return nil, false, sf.Err()
	}
	_, shape = sf.Shape()
	return shape, true, nil
}

// polygonParts splits a polygon record's flat point list into rings. Z and M
// values are dropped.
func polygonParts(s shp.Shape) ([]orb.Ring, bool) {
	switch p := s.(type) {
	case *shp.Polygon:
		return splitParts(p.Parts, p.Points), true
	case *shp.PolygonZ:
		return splitParts(p.Parts, p.Points), true
	case *shp.PolygonM:
		return splitParts(p.Parts, p.Points), true
	default:
		return nil, false
	}
}

func splitParts(parts []int32, points []shp.Point) []orb.Ring {
	rings := make([]orb.Ring, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for _, pt := range points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		rings = append(rings, ring)
	}
	return rings
}

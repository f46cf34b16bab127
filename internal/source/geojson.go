package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/water-intersect/internal/core/observability"
	"github.com/mohammed-shakir/water-intersect/internal/fault"
)

func (r *Reader) readGeoJSON(path string) (orb.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.IOError("read geojson", path, err)
	}
	c, err := DecodeGeoJSON(data)
	if err != nil {
		return nil, fault.ParseError("decode geojson", path, err)
	}
	observability.AddSourceRecords("geojson", "ok", len(c))
	return c, nil
}

// DecodeGeoJSON accepts a FeatureCollection, a Feature or a bare geometry.
// Features without geometry are dropped and a top-level GeometryCollection is
// flattened into its members.
func DecodeGeoJSON(data []byte) (orb.Collection, error) {
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	out := orb.Collection{}
	switch hdr.Type {
	case "":
		return nil, errors.New(`missing required member "type"`)
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("feature collection: %w", err)
		}
		for _, f := range fc.Features {
			if f.Geometry != nil {
				out = append(out, f.Geometry)
			}
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("feature: %w", err)
		}
		if f.Geometry != nil {
			out = append(out, f.Geometry)
		}
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("geometry: %w", err)
		}
		switch v := g.Geometry().(type) {
		case nil:
			return nil, fmt.Errorf("unsupported geometry type %q", hdr.Type)
		case orb.Collection:
			out = append(out, v...)
		default:
			out = append(out, v)
		}
	}
	return out, nil
}

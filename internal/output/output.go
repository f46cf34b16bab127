// Package output encodes intersection results as GeoJSON.
package output

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/water-intersect/internal/fault"
)

const Ext = ".geojson"

// CheckPath rejects output paths without a .geojson extension.
func CheckPath(path string) error {
	if !strings.EqualFold(filepath.Ext(path), Ext) {
		return fault.Configf("output", "output %q must have a %s extension", path, Ext)
	}
	return nil
}

// Encode renders c as a FeatureCollection with one Feature per geometry, in
// order, each carrying a null "name" property.
func Encode(c orb.Collection) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, g := range c {
		f := geojson.NewFeature(g)
		f.Properties = geojson.Properties{"name": nil}
		fc.Append(f)
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		return nil, fault.ParseError("encode geojson", "", err)
	}
	return b, nil
}

// WriteFile encodes c and writes it to path, replacing any existing file.
func WriteFile(path string, c orb.Collection) error {
	if err := CheckPath(path); err != nil {
		return err
	}
	b, err := Encode(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fault.IOError("write output", path, err)
	}
	return nil
}

// Package surface is a headless map: an ordered list of layers, vector
// sources that load GeoJSON features for the current view, and the load
// lifecycle events observers subscribe to.
//
// A Map and everything attached to it belongs to one goroutine. Loads run
// elsewhere and post their results back through the map's Dispatcher.
package surface

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeometryProperty is the reserved property name of the geometry.
const GeometryProperty = "geometry"

// Feature is one loaded record: id, geometry and raw attributes.
type Feature struct {
	ID         string
	Geometry   orb.Geometry
	Properties geojson.Properties
}

// Get returns a raw property value.
func (f *Feature) Get(key string) any {
	if f.Properties == nil {
		return nil
	}
	return f.Properties[key]
}

// Set stores a property value.
func (f *Feature) Set(key string, v any) {
	if f.Properties == nil {
		f.Properties = geojson.Properties{}
	}
	f.Properties[key] = v
}

// FromGeoJSON converts a GeoJSON feature. Features without an id get a
// generated one so every loaded feature has a stable identifier.
func FromGeoJSON(gf *geojson.Feature) *Feature {
	props := make(geojson.Properties, len(gf.Properties))
	for k, v := range gf.Properties {
		props[k] = v
	}
	return &Feature{
		ID:         featureID(gf.ID),
		Geometry:   gf.Geometry,
		Properties: props,
	}
}

func featureID(id any) string {
	switch v := id.(type) {
	case nil:
		return uuid.NewString()
	case string:
		if v == "" {
			return uuid.NewString()
		}
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

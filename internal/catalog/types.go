// Package catalog holds the layer configuration model: categories of
// vector layers, their active flags, and the base raster layers.
package catalog

import "strings"

// Format is the data-source format of a vector layer.
type Format string

const (
	// FormatWFS layers are queried per viewport with a bbox GetFeature request.
	FormatWFS Format = "wfs"
	// FormatGeoJSON layers are fetched once from a static URL.
	FormatGeoJSON Format = "geojson"
)

// ParseFormat normalizes a format tag. Empty defaults to geojson.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wfs":
		return FormatWFS, true
	case "", "geojson", "json", "vector":
		return FormatGeoJSON, true
	}
	return "", false
}

// GeometryKind is the geometry family rendered by a layer.
type GeometryKind string

const (
	GeometryPoint   GeometryKind = "point"
	GeometryLine    GeometryKind = "line"
	GeometryPolygon GeometryKind = "polygon"
)

// ParseGeometryKind accepts GeoJSON geometry names in any case.
func ParseGeometryKind(s string) (GeometryKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "point", "multipoint":
		return GeometryPoint, true
	case "line", "linestring", "multilinestring":
		return GeometryLine, true
	case "", "polygon", "multipolygon":
		return GeometryPolygon, true
	}
	return "", false
}

// Columns maps column roles to raw attribute keys of the source data.
type Columns struct {
	ID       string `yaml:"column_id" json:"id,omitempty" doc:"Attribute holding the feature id" example:"ID"`
	Text     string `yaml:"column_text" json:"text,omitempty" doc:"Attribute holding the display label" example:"NOMBRE"`
	Owner    string `yaml:"column_owner" json:"owner,omitempty" doc:"Attribute holding the owner or holder" example:"TITULAR"`
	Identity string `yaml:"column_identity" json:"identity,omitempty" doc:"Attribute holding the identity number" example:"RUC"`
	Date     string `yaml:"column_date" json:"date,omitempty" doc:"Attribute holding the reference date" example:"FECHA"`
	Status   string `yaml:"column_status" json:"status,omitempty" doc:"Attribute holding the status" example:"ESTADO"`
}

// Layer is the static definition of one vector layer.
type Layer struct {
	Key          string            `yaml:"key" json:"key" doc:"Unique layer key" example:"concesiones_forestales"`
	Title        string            `yaml:"title" json:"title" doc:"Display title" example:"Concesiones forestales"`
	Description  string            `yaml:"description" json:"description,omitempty" doc:"Display description"`
	Abbreviation string            `yaml:"abbreviation" json:"abbreviation,omitempty" doc:"Short code" example:"CONFORFINMAD"`
	Format       Format            `yaml:"format" json:"format" enum:"wfs,geojson" doc:"Data-source format" example:"wfs"`
	URL          string            `yaml:"url" json:"url" doc:"Source URL" format:"uri"`
	CRS          string            `yaml:"srs" json:"srs,omitempty" doc:"Source coordinate reference system" example:"EPSG:32719"`
	Geometry     GeometryKind      `yaml:"geometry" json:"geometry" enum:"point,line,polygon" doc:"Geometry kind" example:"polygon"`
	Color        string            `yaml:"color" json:"color,omitempty" doc:"Display color as r,g,b or hex" example:"14,165,233"`
	Columns      Columns           `yaml:",inline" json:"columns" doc:"Column roles"`
	Search       []string          `yaml:"columns_search" json:"columnsSearch,omitempty" doc:"Attributes included in text search"`
	Labels       map[string]string `yaml:"labels" json:"labels,omitempty" doc:"Human labels by raw attribute key"`
	Active       bool              `yaml:"active" json:"active" doc:"Whether the layer is shown"`
}

// Category groups layers under one toggle.
type Category struct {
	Key         string  `yaml:"key" json:"key" doc:"Unique category key" example:"concesiones"`
	Title       string  `yaml:"title" json:"title" doc:"Display title" example:"Concesiones"`
	Description string  `yaml:"description" json:"description,omitempty" doc:"Display description"`
	Layers      []Layer `yaml:"layers" json:"layers" doc:"Layers in display order"`
	Active      bool    `yaml:"active" json:"active" doc:"True when every layer is active"`
}

// BaseLayer is an unmanaged raster tile layer shown under the vector layers.
type BaseLayer struct {
	Key         string `yaml:"key" json:"key" doc:"Base layer key" example:"aerea"`
	Title       string `yaml:"title" json:"title" doc:"Display title" example:"Aérea"`
	Description string `yaml:"description" json:"description,omitempty" doc:"Display description"`
	URL         string `yaml:"url" json:"url" doc:"XYZ tile URL template"`
}

// View is the initial map view.
type View struct {
	CRS    string     `yaml:"crs" json:"crs" doc:"Map working CRS" example:"EPSG:4326"`
	Extent [4]float64 `yaml:"extent" json:"extent" doc:"Initial extent minX,minY,maxX,maxY"`
	Base   string     `yaml:"base" json:"base,omitempty" doc:"Initial base layer key" example:"aerea"`
}

// State is the derived tri-state of a category.
type State int

const (
	StateOff State = iota
	StateOn
	StateMixed
)

func (s State) String() string {
	switch s {
	case StateOn:
		return "on"
	case StateMixed:
		return "mixed"
	default:
		return "off"
	}
}

// MarshalText encodes the state as off, on or mixed.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

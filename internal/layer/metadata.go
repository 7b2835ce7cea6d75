// Package layer turns catalog layer definitions into rendered map layers
// and owns the per-feature metadata tag that links a loaded feature back
// to the definition it came from.
package layer

import (
	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/surface"
)

const (
	// KeyProperty is the map-layer property holding the definition key.
	KeyProperty = "layerKey"
	// MetadataKey is the reserved feature property holding *Metadata.
	MetadataKey = "__layer"
)

// Metadata is the tag stamped on every feature a rendered layer loads.
type Metadata struct {
	Key      string               `json:"key"`
	Title    string               `json:"title"`
	Format   catalog.Format       `json:"format"`
	CRS      string               `json:"srs,omitempty"`
	Geometry catalog.GeometryKind `json:"geometry"`
	Color    string               `json:"color,omitempty"`
	Columns  catalog.Columns      `json:"columns"`
	Labels   map[string]string    `json:"labels,omitempty"`
}

// NewMetadata captures the parts of def that travel with its features.
func NewMetadata(def catalog.Layer) *Metadata {
	return &Metadata{
		Key:      def.Key,
		Title:    def.Title,
		Format:   def.Format,
		CRS:      def.CRS,
		Geometry: def.Geometry,
		Color:    def.Color,
		Columns:  def.Columns,
		Labels:   def.Labels,
	}
}

// Label returns the human label of a raw attribute key, or the key itself.
func (m *Metadata) Label(column string) string {
	if l, ok := m.Labels[column]; ok && l != "" {
		return l
	}
	return column
}

// MetadataOf returns the tag stamped on f.
func MetadataOf(f *surface.Feature) (*Metadata, bool) {
	if f == nil {
		return nil, false
	}
	md, ok := f.Get(MetadataKey).(*Metadata)
	return md, ok && md != nil
}

// Stamp tags f with md. A feature is tagged once: Stamp reports false and
// leaves the feature alone if it already carries a tag.
func Stamp(f *surface.Feature, md *Metadata) bool {
	if _, tagged := MetadataOf(f); tagged {
		return false
	}
	f.Set(MetadataKey, md)
	return true
}

// Tag marks a map layer as managed under key.
func Tag(l surface.Layer, key string) {
	l.Set(KeyProperty, key)
}

// KeyOf returns the managed key of a map layer. Base layers have none.
func KeyOf(l surface.Layer) (string, bool) {
	key, ok := l.Get(KeyProperty).(string)
	return key, ok && key != ""
}

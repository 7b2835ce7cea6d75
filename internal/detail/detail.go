// Package detail turns a selected feature into a labeled, display-ready
// record using the column roles of the layer it was loaded by.
package detail

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/layer"
	"github.com/joeblew999/plat-visor/internal/surface"
)

// DefaultDateLayout renders dates as day/month/year.
const DefaultDateLayout = "02/01/2006"

// ErrUntaggedFeature is returned for features no rendered layer loaded.
var ErrUntaggedFeature = errors.New("feature carries no layer metadata")

// Attribute is one labeled attribute of a feature.
type Attribute struct {
	Key   string `json:"key" doc:"Raw attribute key"`
	Label string `json:"label" doc:"Human label"`
	Value string `json:"value" doc:"Display value"`
}

// Detail is the display record of one feature.
type Detail struct {
	LayerKey   string               `json:"layerKey" doc:"Layer key"`
	LayerTitle string               `json:"layerTitle" doc:"Layer title"`
	Geometry   catalog.GeometryKind `json:"geometry" doc:"Layer geometry kind"`
	Color      string               `json:"color,omitempty" doc:"Layer color"`
	layer.Roles
	Attributes []Attribute `json:"attributes" doc:"Attributes, role columns first"`
}

// Extractor builds details. The zero value formats dates with
// DefaultDateLayout in UTC.
type Extractor struct {
	DateLayout string
	Location   *time.Location
}

// Extract builds the detail record of f from its layer metadata.
func (e Extractor) Extract(f *surface.Feature) (Detail, error) {
	md, ok := layer.MetadataOf(f)
	if !ok {
		return Detail{}, ErrUntaggedFeature
	}

	d := Detail{
		LayerKey:   md.Key,
		LayerTitle: md.Title,
		Geometry:   md.Geometry,
		Color:      md.Color,
		Roles:      layer.ResolveRoles(f, md.Columns),
	}
	d.Date = e.FormatDate(d.Date)

	cols := md.Columns
	roles := []string{cols.ID, cols.Text, cols.Owner, cols.Identity, cols.Date, cols.Status}
	seen := make(map[string]bool, len(f.Properties))
	for _, key := range roles {
		if key == "" || seen[key] {
			continue
		}
		if _, ok := f.Properties[key]; !ok {
			continue
		}
		seen[key] = true
		d.Attributes = append(d.Attributes, e.attribute(md, key, f.Properties[key]))
	}

	rest := make([]string, 0, len(f.Properties))
	for key := range f.Properties {
		if seen[key] || key == surface.GeometryProperty || key == layer.MetadataKey {
			continue
		}
		rest = append(rest, key)
	}
	sort.Strings(rest)
	for _, key := range rest {
		d.Attributes = append(d.Attributes, e.attribute(md, key, f.Properties[key]))
	}
	return d, nil
}

func (e Extractor) attribute(md *layer.Metadata, key string, v any) Attribute {
	value := layer.Text(v)
	if key == md.Columns.Date {
		if n, ok := v.(float64); ok {
			value = e.formatEpoch(n)
		} else {
			value = e.FormatDate(value)
		}
	}
	return Attribute{Key: key, Label: md.Label(key), Value: value}
}

var layouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DefaultDateLayout,
}

// FormatDate reformats a date string. Zone-less values are read in the
// extractor's location; values that do not parse as a date are returned
// unchanged.
func (e Extractor) FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if isDigits(s) {
		// 10 digits are epoch seconds, 12 or 13 epoch milliseconds
		n, err := strconv.ParseInt(s, 10, 64)
		switch {
		case err != nil:
		case len(s) == 10:
			return e.format(time.Unix(n, 0))
		case len(s) == 12 || len(s) == 13:
			return e.format(time.UnixMilli(n))
		}
		return s
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, e.location()); err == nil {
			return e.format(t)
		}
	}
	return s
}

// formatEpoch reads numbers below 1e11 as epoch seconds and the rest as
// epoch milliseconds.
func (e Extractor) formatEpoch(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return layer.Text(n)
	}
	if math.Abs(n) < 1e11 {
		return e.format(time.Unix(int64(n), 0))
	}
	return e.format(time.UnixMilli(int64(n)))
}

func (e Extractor) format(t time.Time) string {
	layout := e.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	return t.In(e.location()).Format(layout)
}

func (e Extractor) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

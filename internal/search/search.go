// Package search matches text against the features already loaded on the
// map, using each layer's configured searchable columns.
package search

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/layer"
	"github.com/joeblew999/plat-visor/internal/surface"
)

// MinQueryLength is the shortest accepted query, in characters.
const MinQueryLength = 3

// ErrInvalidQuery is returned for queries shorter than MinQueryLength.
var ErrInvalidQuery = errors.New("search query must be at least 3 characters")

// Definitions resolves layer keys to their definitions.
type Definitions interface {
	Layer(key string) (catalog.Layer, bool)
}

// Result is one matching feature.
type Result struct {
	LayerKey   string               `json:"layerKey" doc:"Layer key"`
	LayerTitle string               `json:"layerTitle" doc:"Layer title"`
	Format     catalog.Format       `json:"format" doc:"Layer source format"`
	CRS        string               `json:"srs,omitempty" doc:"Layer source CRS"`
	Geometry   catalog.GeometryKind `json:"geometry" doc:"Layer geometry kind"`
	Color      string               `json:"color,omitempty" doc:"Layer color"`
	layer.Roles
}

// Search scans the vector layers of layers, in order, for features whose
// searchable columns contain text. Matching ignores case and accents.
// Layers without a tag or without a definition are skipped.
func Search(text string, layers []surface.Layer, defs Definitions) ([]Result, error) {
	q := strings.TrimSpace(text)
	if utf8.RuneCountInString(q) < MinQueryLength {
		return nil, ErrInvalidQuery
	}
	needle := Fold(q)

	results := []Result{}
	for _, l := range layers {
		vl, ok := l.(*surface.VectorLayer)
		if !ok {
			continue
		}
		key, ok := layer.KeyOf(vl)
		if !ok {
			continue
		}
		def, ok := defs.Layer(key)
		if !ok || len(def.Search) == 0 {
			continue
		}

		for _, f := range vl.Source().Features() {
			if !strings.Contains(Fold(haystack(f, def.Search)), needle) {
				continue
			}
			results = append(results, Result{
				LayerKey:   def.Key,
				LayerTitle: def.Title,
				Format:     def.Format,
				CRS:        def.CRS,
				Geometry:   def.Geometry,
				Color:      def.Color,
				Roles:      layer.ResolveRoles(f, def.Columns),
			})
		}
	}
	return results, nil
}

func haystack(f *surface.Feature, columns []string) string {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		if v := layer.Text(f.Get(c)); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// Fold lowers case and strips combining marks, so "Pérez" folds to "perez".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

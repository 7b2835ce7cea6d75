package surface

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Layer is anything a Map can display. Layers carry free-form properties,
// which is how callers tag the layers they own.
type Layer interface {
	Get(key string) any
	Set(key string, v any)
}

type properties struct {
	values map[string]any
}

func (p *properties) Get(key string) any {
	return p.values[key]
}

func (p *properties) Set(key string, v any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	p.values[key] = v
}

// VectorLayer draws the features of a VectorSource with one style.
type VectorLayer struct {
	properties
	source *VectorSource
	style  Style
}

// NewVectorLayer wraps src.
func NewVectorLayer(src *VectorSource, style Style) *VectorLayer {
	return &VectorLayer{source: src, style: style}
}

// Source returns the layer's source.
func (l *VectorLayer) Source() *VectorSource { return l.source }

// Style returns the layer's style.
func (l *VectorLayer) Style() Style { return l.style }

// TileLayer is a raster base layer served from an XYZ tile URL template.
type TileLayer struct {
	properties
	url string
}

// NewTileLayer creates a tile layer for a {z}/{x}/{y} URL template.
func NewTileLayer(url string) *TileLayer {
	return &TileLayer{url: url}
}

// URL returns the tile URL template.
func (l *TileLayer) URL() string { return l.url }

// MaxTiles caps the tiles Tiles returns for one bound.
const MaxTiles = 256

// Tiles expands the URL template for every tile covering b (lon/lat) at
// zoom z, row by row from the north-west corner. Bounds reaching the
// antimeridian or the poles are clamped to the tile grid.
func (l *TileLayer) Tiles(b orb.Bound, z maptile.Zoom) []string {
	nw := maptile.At(orb.Point{clampLon(b.Min[0]), b.Max[1]}, z)
	se := maptile.At(orb.Point{clampLon(b.Max[0]), b.Min[1]}, z)
	last := uint32(1)<<uint32(z) - 1
	nw.X, nw.Y = min(nw.X, last), min(nw.Y, last)
	se.X, se.Y = min(se.X, last), min(se.Y, last)

	var urls []string
	for y := nw.Y; y <= se.Y; y++ {
		for x := nw.X; x <= se.X; x++ {
			if len(urls) == MaxTiles {
				return urls
			}
			r := strings.NewReplacer(
				"{z}", strconv.Itoa(int(z)),
				"{x}", strconv.FormatUint(uint64(x), 10),
				"{y}", strconv.FormatUint(uint64(y), 10),
			)
			urls = append(urls, r.Replace(l.url))
		}
	}
	return urls
}

func clampLon(lon float64) float64 {
	return max(-180, min(180, lon))
}

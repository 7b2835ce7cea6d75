// Package wfs builds WFS GetFeature request URLs for viewport (bbox) loading.
package wfs

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/logger"
	"github.com/joeblew999/plat-visor/internal/proj"
)

// Static GetFeature parameters, set only when the stored URL lacks them.
var defaults = []struct{ key, value string }{
	{"service", "WFS"},
	{"request", "GetFeature"},
	{"version", "2.0.0"},
	{"outputFormat", "application/json"},
}

// Builder derives request URLs for layers against a map working CRS.
type Builder struct {
	MapCRS string
}

// NewBuilder returns a builder for the given map CRS (EPSG:4326 when empty).
func NewBuilder(mapCRS string) *Builder {
	if mapCRS == "" {
		mapCRS = proj.WGS84
	}
	return &Builder{MapCRS: mapCRS}
}

// TargetCRS is the layer CRS, or the map CRS when the layer declares none.
func (b *Builder) TargetCRS(def catalog.Layer) string {
	if def.CRS != "" {
		return def.CRS
	}
	return b.MapCRS
}

// RequestURL returns the GetFeature URL for def covering extent, which is
// given in the map CRS. It never fails: an unknown CRS keeps the extent
// untransformed and an unparseable base URL gets the bbox appended as text.
func (b *Builder) RequestURL(def catalog.Layer, extent orb.Bound) string {
	target := b.TargetCRS(def)

	if !proj.Same(target, b.MapCRS) {
		transformed, err := proj.TransformBound(extent, b.MapCRS, target)
		if err != nil {
			logger.L().Warn("wfs_transform_skipped", "layer", def.Key, "crs", target, "err", err)
		} else {
			extent = transformed
		}
	}
	bbox := BBox(extent, target)

	u, err := url.Parse(def.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		logger.L().Debug("wfs_url_fallback", "layer", def.Key, "url", def.URL)
		sep := "?"
		if strings.Contains(def.URL, "?") {
			sep = "&"
		}
		return def.URL + sep + "bbox=" + bbox + "&srsname=" + target
	}

	q := u.Query()
	for _, d := range defaults {
		if !has(q, d.key) {
			q.Set(d.key, d.value)
		}
	}
	del(q, "bbox")
	del(q, "srsname")
	q.Set("bbox", bbox)
	q.Set("srsname", target)

	u.RawQuery = q.Encode()
	return u.String()
}

// BBox serializes an extent as minX,minY,maxX,maxY,<crs>.
func BBox(extent orb.Bound, crs string) string {
	parts := []string{
		formatFloat(extent.Min[0]),
		formatFloat(extent.Min[1]),
		formatFloat(extent.Max[0]),
		formatFloat(extent.Max[1]),
		crs,
	}
	return strings.Join(parts, ",")
}

// ParseBBox reads minX,minY,maxX,maxY with an optional trailing CRS.
func ParseBBox(s string) (orb.Bound, string, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return orb.Bound{}, "", false
	}
	var v [4]float64
	for i := 0; i < 4; i++ {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return orb.Bound{}, "", false
		}
		v[i] = f
	}
	crs := ""
	if len(parts) == 5 {
		crs = strings.TrimSpace(parts[4])
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, crs, true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// has matches parameter names case-insensitively, as WFS servers do.
func has(q url.Values, key string) bool {
	for k := range q {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func del(q url.Values, key string) {
	for k := range q {
		if strings.EqualFold(k, key) {
			delete(q, k)
		}
	}
}

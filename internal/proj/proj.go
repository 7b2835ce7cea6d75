// Package proj transforms coordinates between the reference systems the
// visor understands: geographic WGS84, web mercator and the projected
// systems of the wgs84 EPSG repository (UTM zones on their datums and more).
package proj

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/wroge/wgs84"
)

const (
	WGS84       = "EPSG:4326"
	WebMercator = "EPSG:3857"
)

// ErrUnknownCRS is returned for identifiers with no known projection.
type ErrUnknownCRS struct {
	Code string
}

func (e *ErrUnknownCRS) Error() string {
	return fmt.Sprintf("unknown coordinate reference system %q", e.Code)
}

// CRS pairs the forward (from WGS84) and inverse (to WGS84) projections.
type CRS struct {
	Code    string
	Forward orb.Projection
	Inverse orb.Projection
}

func identity(p orb.Point) orb.Point { return p }

var epsg = wgs84.EPSG()

func projection(fn wgs84.Func) orb.Projection {
	return func(p orb.Point) orb.Point {
		x, y, _ := fn(p[0], p[1], 0)
		return orb.Point{x, y}
	}
}

// Normalize maps the common spellings of an EPSG identifier to EPSG:<code>.
// Unrecognized strings are returned trimmed and upper-cased.
func Normalize(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch {
	case c == "CRS:84", c == "OGC:CRS84", strings.HasSuffix(c, "OGC:1.3:CRS84"):
		return WGS84
	case strings.HasPrefix(c, "URN:OGC:DEF:CRS:EPSG:"):
		c = "EPSG:" + c[strings.LastIndex(c, ":")+1:]
	case strings.Contains(c, "/DEF/CRS/EPSG/"):
		c = "EPSG:" + c[strings.LastIndex(c, "/")+1:]
	}
	switch c {
	case "EPSG:900913", "EPSG:3785", "EPSG:102100", "EPSG:102113":
		return WebMercator
	}
	return c
}

// Same reports whether two identifiers name the same system.
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Lookup resolves an identifier to its projections.
func Lookup(code string) (CRS, error) {
	c := Normalize(code)
	switch c {
	case WGS84:
		return CRS{Code: c, Forward: identity, Inverse: identity}, nil
	case WebMercator:
		return CRS{Code: c, Forward: project.WGS84.ToMercator, Inverse: project.Mercator.ToWGS84}, nil
	}

	n, ok := strings.CutPrefix(c, "EPSG:")
	if !ok {
		return CRS{}, &ErrUnknownCRS{Code: code}
	}
	id, err := strconv.Atoi(n)
	if err != nil {
		return CRS{}, &ErrUnknownCRS{Code: code}
	}
	fwd, err := epsg.SafeTransform(4326, id)
	if err != nil {
		return CRS{}, &ErrUnknownCRS{Code: code}
	}
	inv, err := epsg.SafeTransform(id, 4326)
	if err != nil {
		return CRS{}, &ErrUnknownCRS{Code: code}
	}
	return CRS{Code: c, Forward: projection(fwd), Inverse: projection(inv)}, nil
}

// Transformer returns the projection from one system to another.
func Transformer(from, to string) (orb.Projection, error) {
	if Same(from, to) {
		return identity, nil
	}
	src, err := Lookup(from)
	if err != nil {
		return nil, err
	}
	dst, err := Lookup(to)
	if err != nil {
		return nil, err
	}
	return func(p orb.Point) orb.Point {
		return dst.Forward(src.Inverse(p))
	}, nil
}

// TransformBound transforms the four corners of b and returns their bounding box.
func TransformBound(b orb.Bound, from, to string) (orb.Bound, error) {
	if Same(from, to) {
		return b, nil
	}
	tr, err := Transformer(from, to)
	if err != nil {
		return b, err
	}

	corners := []orb.Point{
		b.Min,
		{b.Max[0], b.Min[1]},
		b.Max,
		{b.Min[0], b.Max[1]},
	}
	out := orb.Bound{Min: tr(corners[0]), Max: tr(corners[0])}
	for _, c := range corners[1:] {
		out = out.Extend(tr(c))
	}
	return out, nil
}

// TransformGeometry reprojects g in place.
func TransformGeometry(g orb.Geometry, tr orb.Projection) orb.Geometry {
	if g == nil || tr == nil {
		return g
	}
	return project.Geometry(g, tr)
}

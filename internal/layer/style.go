package layer

import (
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/joeblew999/plat-visor/internal/catalog"
	"github.com/joeblew999/plat-visor/internal/surface"
)

const (
	FillAlpha   = 0.30
	StrokeAlpha = 0.50
	StrokeWidth = 1.25
	PointRadius = 5
)

var white = colorful.Color{R: 1, G: 1, B: 1}

// ParseColor reads "r,g,b", "rgb(r,g,b)", "#rgb" or "#rrggbb".
func ParseColor(s string) (colorful.Color, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return colorful.Color{}, false
	}

	if strings.Contains(s, ",") {
		s = strings.TrimSuffix(strings.TrimPrefix(strings.ToLower(s), "rgb("), ")")
		parts := strings.Split(s, ",")
		if len(parts) != 3 {
			return colorful.Color{}, false
		}
		var rgb [3]float64
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 0 || n > 255 {
				return colorful.Color{}, false
			}
			rgb[i] = float64(n) / 255
		}
		return colorful.Color{R: rgb[0], G: rgb[1], B: rgb[2]}, true
	}

	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(strings.ToLower(s))
	if err != nil {
		return colorful.Color{}, false
	}
	return c, true
}

// StyleFor derives the style of a layer from its color and geometry kind.
// Unparseable colors render white.
func StyleFor(color string, kind catalog.GeometryKind) surface.Style {
	c, ok := ParseColor(color)
	if !ok {
		c = white
	}
	r, g, b := c.RGB255()

	st := surface.Style{
		Stroke:      surface.Color{R: r, G: g, B: b, A: StrokeAlpha},
		StrokeWidth: StrokeWidth,
	}
	switch kind {
	case catalog.GeometryLine:
	case catalog.GeometryPoint:
		st.Fill = &surface.Color{R: r, G: g, B: b, A: FillAlpha}
		st.Radius = PointRadius
	default:
		st.Fill = &surface.Color{R: r, G: g, B: b, A: FillAlpha}
	}
	return st
}

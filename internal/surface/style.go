package surface

import "fmt"

// Color is an RGB color with alpha in [0,1].
type Color struct {
	R, G, B uint8
	A       float64
}

// CSS renders the color as an rgba() string.
func (c Color) CSS() string {
	return fmt.Sprintf("rgba(%d, %d, %d, %.2f)", c.R, c.G, c.B, c.A)
}

// Style is the visual style of a vector layer. A nil Fill draws outlines only.
type Style struct {
	Fill        *Color
	Stroke      Color
	StrokeWidth float64
	// Radius is the circle radius used for point geometries, 0 otherwise.
	Radius float64
}

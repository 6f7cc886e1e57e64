package render

import (
	"image/color"
)

// colormap anchors, viridis-inspired. Values between anchors are linearly
// interpolated, which keeps the mapping smooth and deterministic.
var colormapAnchors = []struct {
	pos float64
	r   float64
	g   float64
	b   float64
}{
	{0.00, 68, 1, 84},
	{0.25, 59, 82, 139},
	{0.50, 33, 145, 140},
	{0.75, 94, 201, 98},
	{1.00, 253, 231, 37},
}

// mapColor maps a normalized magnitude in [0, 1] to a color
func mapColor(v float64) color.RGBA {
	if v <= 0 {
		a := colormapAnchors[0]
		return color.RGBA{uint8(a.r), uint8(a.g), uint8(a.b), 255}
	}
	if v >= 1 {
		a := colormapAnchors[len(colormapAnchors)-1]
		return color.RGBA{uint8(a.r), uint8(a.g), uint8(a.b), 255}
	}

	for i := 1; i < len(colormapAnchors); i++ {
		lo, hi := colormapAnchors[i-1], colormapAnchors[i]
		if v <= hi.pos {
			t := (v - lo.pos) / (hi.pos - lo.pos)
			return color.RGBA{
				R: uint8(lo.r + t*(hi.r-lo.r) + 0.5),
				G: uint8(lo.g + t*(hi.g-lo.g) + 0.5),
				B: uint8(lo.b + t*(hi.b-lo.b) + 0.5),
				A: 255,
			}
		}
	}

	a := colormapAnchors[len(colormapAnchors)-1]
	return color.RGBA{uint8(a.r), uint8(a.g), uint8(a.b), 255}
}

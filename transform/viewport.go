package transform

import (
	"image"

	"github.com/paulmach/orb"
)

// Viewport is the visible rectangle of the viewport reference frame and the
// display size it is shown at. It is supplied by the caller once per frame.
type Viewport struct {
	World orb.Bound
	Size  image.Point
}

// Empty reports whether the viewport shows nothing.
func (v Viewport) Empty() bool {
	return v.Size.X <= 0 || v.Size.Y <= 0 || v.World.Max.X() <= v.World.Min.X() || v.World.Max.Y() <= v.World.Min.Y()
}

// UnitsPerPixel returns the viewport distance covered by one display pixel,
// the larger of the two axes.
func (v Viewport) UnitsPerPixel() float64 {
	ux := (v.World.Max.X() - v.World.Min.X()) / float64(v.Size.X)
	uy := (v.World.Max.Y() - v.World.Min.Y()) / float64(v.Size.Y)
	return max(ux, uy)
}

// Density returns display pixels per viewport unit.
func (v Viewport) Density() float64 {
	return 1 / v.UnitsPerPixel()
}

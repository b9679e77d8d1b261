// Package transform maps between image pixel space, dataset world space and
// the viewport reference frame.
package transform

import (
	"image"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/eak1mov/go-rasterview/gfx"
	"github.com/eak1mov/go-rasterview/raster"
	"github.com/paulmach/orb"
)

// Projection relates the dataset world coordinates to the viewport reference
// frame, for example a cartographic reprojection. Implementations are provided
// by the embedding application.
type Projection interface {
	Forward(p orb.Point) (orb.Point, error) // dataset world -> viewport
	Inverse(p orb.Point) (orb.Point, error) // viewport -> dataset world
}

// Transformer performs the pixel <-> viewport mappings for one dataset.
//
// When the dataset has no usable georeferencing the mapping degrades to the
// identity from level 0 pixels to viewport units, and Approximate reports true.
// A projection failing on a point also degrades that point to the unprojected
// world position.
type Transformer struct {
	desc   raster.Descriptor
	geo    raster.GeoTransform
	proj   Projection
	logger *slog.Logger

	approximate atomic.Bool
	warned      atomic.Bool
}

type config struct {
	Logger *slog.Logger
}

type Option func(*config)

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.Logger = logger }
}

// New returns a transformer for desc. proj may be nil when the dataset world
// coordinates already are the viewport reference frame.
func New(desc raster.Descriptor, proj Projection, opts ...Option) *Transformer {
	config := config{Logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&config)
	}

	t := &Transformer{desc: desc, geo: desc.GeoTransform, proj: proj, logger: config.Logger}
	if !t.geo.Valid() {
		t.geo = raster.IdentityGeoTransform
		t.proj = nil
		t.degrade("dataset has no usable georeferencing")
	}
	return t
}

func (t *Transformer) degrade(reason string, args ...any) {
	t.approximate.Store(true)
	if !t.warned.Swap(true) {
		t.logger.Warn("rasterview: coordinate mapping is approximate: "+reason, args...)
	}
}

// Approximate reports whether any mapping fell back to the identity.
func (t *Transformer) Approximate() bool {
	return t.approximate.Load()
}

// ImageToViewport maps a point of level pixel space to the viewport frame.
func (t *Transformer) ImageToViewport(level int, x, y float64) orb.Point {
	fx, fy := t.desc.Factor(level)
	wx, wy := t.geo.Apply(x*fx, y*fy)
	p := orb.Point{wx, wy}
	if t.proj == nil {
		return p
	}
	q, err := t.proj.Forward(p)
	if err != nil {
		t.degrade("forward projection failed", "point", p, "error", err)
		return p
	}
	return q
}

// ViewportToImage maps a viewport point to level pixel space.
func (t *Transformer) ViewportToImage(level int, p orb.Point) (x, y float64) {
	if t.proj != nil {
		q, err := t.proj.Inverse(p)
		if err != nil {
			t.degrade("inverse projection failed", "point", p, "error", err)
		} else {
			p = q
		}
	}
	col, row := t.geo.Invert(p.X(), p.Y())
	fx, fy := t.desc.Factor(level)
	return col / fx, row / fy
}

// ImageRegionToViewportQuad maps the corners of an image rectangle at level.
func (t *Transformer) ImageRegionToViewportQuad(level int, region image.Rectangle) gfx.Quad {
	x0, y0 := float64(region.Min.X), float64(region.Min.Y)
	x1, y1 := float64(region.Max.X), float64(region.Max.Y)
	return gfx.Quad{
		UL: t.ImageToViewport(level, x0, y0),
		UR: t.ImageToViewport(level, x1, y0),
		LL: t.ImageToViewport(level, x0, y1),
		LR: t.ImageToViewport(level, x1, y1),
	}
}

// ImageRegionToViewportExtent returns the viewport bound of an image rectangle.
func (t *Transformer) ImageRegionToViewportExtent(level int, region image.Rectangle) orb.Bound {
	return t.ImageRegionToViewportQuad(level, region).Bound()
}

// ViewportExtentToImageRegion returns the smallest pixel rectangle of level
// containing the inverse mapping of the corners, edge midpoints and centre of
// extent. The result is not clipped to the level bounds.
func (t *Transformer) ViewportExtentToImageRegion(level int, extent orb.Bound) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, fx := range []float64{0, 0.5, 1} {
		for _, fy := range []float64{0, 0.5, 1} {
			p := orb.Point{
				extent.Min.X() + fx*(extent.Max.X()-extent.Min.X()),
				extent.Min.Y() + fy*(extent.Max.Y()-extent.Min.Y()),
			}
			x, y := t.ViewportToImage(level, p)
			minX, maxX = math.Min(minX, x), math.Max(maxX, x)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		}
	}
	return image.Rect(floor(minX), floor(minY), ceil(maxX), ceil(maxY))
}

// PixelSpacing returns the viewport distance covered by one pixel of level,
// averaged over both axes and measured at the dataset centre.
func (t *Transformer) PixelSpacing(level int) float64 {
	size := t.desc.Levels[level]
	cx, cy := float64(size.X)/2, float64(size.Y)/2
	p0 := t.ImageToViewport(level, cx, cy)
	px := t.ImageToViewport(level, cx+1, cy)
	py := t.ImageToViewport(level, cx, cy+1)
	return (distance(p0, px) + distance(p0, py)) / 2
}

// YUp reports whether moving down the image rows moves up in the viewport frame.
func (t *Transformer) YUp() bool {
	size := t.desc.Levels[0]
	cx, cy := float64(size.X)/2, float64(size.Y)/2
	return t.ImageToViewport(0, cx, cy+1).Y() < t.ImageToViewport(0, cx, cy).Y()
}

// DatasetExtent returns the viewport bound of the whole dataset.
func (t *Transformer) DatasetExtent() orb.Bound {
	return t.ImageRegionToViewportExtent(0, image.Rectangle{Max: t.desc.Levels[0]})
}

func distance(a, b orb.Point) float64 {
	return math.Hypot(b.X()-a.X(), b.Y()-a.Y())
}

// floor and ceil snap values within 1e-9 of an integer to it, so exact pixel
// edges do not grow by one pixel through rounding noise.
func floor(v float64) int {
	if r := math.Round(v); math.Abs(v-r) < 1e-9 {
		return int(r)
	}
	return int(math.Floor(v))
}

func ceil(v float64) int {
	if r := math.Round(v); math.Abs(v-r) < 1e-9 {
		return int(r)
	}
	return int(math.Ceil(v))
}

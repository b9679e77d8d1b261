// Package coverage records which image regions of a level were drawn.
package coverage

import (
	"image"

	"github.com/dhconnelly/rtreego"
)

// Set is a union of non-overlapping image rectangles of one level,
// indexed with an R-tree for point and region queries.
type Set struct {
	level   int
	tree    *rtreego.Rtree
	regions []image.Rectangle
	bounds  image.Rectangle
	area    int64
}

type region struct {
	rect image.Rectangle
}

func (r *region) Bounds() rtreego.Rect {
	return toRect(r.rect, 0)
}

// toRect converts an image rectangle, shrunk by inset on every side, to an R-tree rectangle.
func toRect(r image.Rectangle, inset float64) rtreego.Rect {
	point := rtreego.Point{float64(r.Min.X) + inset, float64(r.Min.Y) + inset}
	lengths := []float64{float64(r.Dx()) - 2*inset, float64(r.Dy()) - 2*inset}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}

func New(level int) *Set {
	return &Set{level: level, tree: rtreego.NewTree(2, 4, 16)}
}

func (s *Set) Level() int { return s.level }

// Add records a drawn region. Empty rectangles are ignored.
func (s *Set) Add(r image.Rectangle) {
	if r.Empty() {
		return
	}
	s.regions = append(s.regions, r)
	s.tree.Insert(&region{rect: r})
	s.bounds = s.bounds.Union(r)
	s.area += int64(r.Dx()) * int64(r.Dy())
}

// Regions returns the recorded regions in insertion order.
func (s *Set) Regions() []image.Rectangle { return s.regions }

func (s *Set) Len() int { return len(s.regions) }

// Bounds returns the bounding box of the union.
func (s *Set) Bounds() image.Rectangle { return s.bounds }

// Area returns the number of covered pixels.
func (s *Set) Area() int64 { return s.area }

// Contains reports whether pixel p is covered.
func (s *Set) Contains(p image.Point) bool {
	if len(s.regions) == 0 {
		return false
	}
	return len(s.tree.SearchIntersect(toRect(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))}, 0.25))) > 0
}

// CoveredArea returns the number of pixels of r that are covered.
func (s *Set) CoveredArea(r image.Rectangle) int64 {
	if r.Empty() || len(s.regions) == 0 {
		return 0
	}
	var area int64
	for _, spatial := range s.tree.SearchIntersect(toRect(r, 0)) {
		overlap := spatial.(*region).rect.Intersect(r)
		area += int64(overlap.Dx()) * int64(overlap.Dy())
	}
	return area
}

// Covers reports whether every pixel of r is covered.
func (s *Set) Covers(r image.Rectangle) bool {
	return s.CoveredArea(r) == int64(r.Dx())*int64(r.Dy())
}

// Fraction returns the covered share of r in [0, 1].
func (s *Set) Fraction(r image.Rectangle) float64 {
	if r.Empty() {
		return 1
	}
	return float64(s.CoveredArea(r)) / (float64(r.Dx()) * float64(r.Dy()))
}

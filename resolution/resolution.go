// Package resolution picks the pyramid level matching a viewport density.
package resolution

import (
	"github.com/eak1mov/go-rasterview/raster"
	"github.com/eak1mov/go-rasterview/transform"
)

const tolerance = 1e-9

// Selector chooses a level for each viewport. Level spacings are computed once.
type Selector struct {
	spacings []float64 // viewport units per pixel, by level
}

func New(desc raster.Descriptor, tr *transform.Transformer) *Selector {
	spacings := make([]float64, desc.NumLevels())
	for level := range spacings {
		spacings[level] = tr.PixelSpacing(level)
	}
	return &Selector{spacings: spacings}
}

// Spacing returns the viewport units covered by one pixel of level.
func (s *Selector) Spacing(level int) float64 {
	return s.spacings[level]
}

// SelectLevel returns the coarsest level whose pixels are not larger than a
// display pixel of vp, or level 0 when even full resolution is magnified.
// An empty viewport selects the coarsest level.
func (s *Selector) SelectLevel(vp transform.Viewport) int {
	coarsest := len(s.spacings) - 1
	if vp.Empty() {
		return coarsest
	}
	target := vp.UnitsPerPixel()
	for level := coarsest; level > 0; level-- {
		if s.spacings[level] <= target*(1+tolerance) {
			return level
		}
	}
	return 0
}

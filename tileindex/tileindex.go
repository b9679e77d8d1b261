// Package tileindex partitions pyramid levels into fixed-size tiles and
// enumerates the tiles covering a viewport extent.
package tileindex

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"math"
	"math/bits"
	"slices"

	"github.com/eak1mov/go-rasterview/raster"
	"github.com/eak1mov/go-rasterview/tile"
	"github.com/eak1mov/go-rasterview/transform"
	"github.com/google/hilbert"
	"github.com/paulmach/orb"
)

const DefaultTileSize = 256

var (
	ErrInvalidLevel    = errors.New("rasterview: invalid tile level")
	ErrOutOfRange      = errors.New("rasterview: tile out of range")
	ErrInvalidTileSize = errors.New("rasterview: invalid tile size")
)

// Grid is the tile layout of a dataset: square tiles of Size pixels at every
// level, edge tiles clipped to the level bounds.
type Grid struct {
	desc raster.Descriptor
	size int
}

func NewGrid(desc raster.Descriptor, tileSize int) (*Grid, error) {
	if tileSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTileSize, tileSize)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &Grid{desc: desc, size: tileSize}, nil
}

func (g *Grid) TileSize() int { return g.size }

func (g *Grid) Descriptor() raster.Descriptor { return g.desc }

func (g *Grid) NumLevels() int { return g.desc.NumLevels() }

func (g *Grid) checkLevel(level int) error {
	if level < 0 || level >= g.desc.NumLevels() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidLevel, level, g.desc.NumLevels())
	}
	return nil
}

// Rows returns the number of tile rows of a valid level.
func (g *Grid) Rows(level int) int {
	return (g.desc.Levels[level].Y + g.size - 1) / g.size
}

// Cols returns the number of tile columns of a valid level.
func (g *Grid) Cols(level int) int {
	return (g.desc.Levels[level].X + g.size - 1) / g.size
}

// Region returns the image space rectangle of a tile, clipped to its level.
func (g *Grid) Region(key tile.Key) (image.Rectangle, error) {
	if err := g.checkLevel(key.Level); err != nil {
		return image.Rectangle{}, err
	}
	if !key.Valid() || key.Row >= g.Rows(key.Level) || key.Col >= g.Cols(key.Level) {
		return image.Rectangle{}, fmt.Errorf("%w: %v (%dx%d tiles)", ErrOutOfRange, key, g.Rows(key.Level), g.Cols(key.Level))
	}
	s := g.size
	r := image.Rect(key.Col*s, key.Row*s, (key.Col+1)*s, (key.Row+1)*s)
	return r.Intersect(image.Rectangle{Max: g.desc.Levels[key.Level]}), nil
}

// EnumerateTiles returns the tiles of level intersecting the image space
// projection of extent, grown by margin times its size on every side.
// Tiles are returned in row-major order.
func (g *Grid) EnumerateTiles(level int, extent orb.Bound, tr *transform.Transformer, margin float64) ([]tile.Key, error) {
	if err := g.checkLevel(level); err != nil {
		return nil, err
	}
	if margin < 0 || math.IsNaN(margin) {
		margin = 0
	}

	region := tr.ViewportExtentToImageRegion(level, extent)
	if margin > 0 {
		mx := int(math.Ceil(margin * float64(region.Dx())))
		my := int(math.Ceil(margin * float64(region.Dy())))
		region = image.Rect(region.Min.X-mx, region.Min.Y-my, region.Max.X+mx, region.Max.Y+my)
	}
	region = region.Intersect(image.Rectangle{Max: g.desc.Levels[level]})
	if region.Empty() {
		return []tile.Key{}, nil
	}

	s := g.size
	rowMin, rowMax := region.Min.Y/s, (region.Max.Y-1)/s
	colMin, colMax := region.Min.X/s, (region.Max.X-1)/s
	keys := make([]tile.Key, 0, (rowMax-rowMin+1)*(colMax-colMin+1))
	for row := rowMin; row <= rowMax; row++ {
		for col := colMin; col <= colMax; col++ {
			keys = append(keys, tile.Key{Level: level, Row: row, Col: col})
		}
	}
	return keys, nil
}

// LoadOrder returns keys sorted along a Hilbert curve over each level's
// tile grid, coarsest level first, so that consecutive reads stay close on
// disk. Keys outside the grid keep their relative order at the end.
func (g *Grid) LoadOrder(keys []tile.Key) []tile.Key {
	type coded struct {
		key     tile.Key
		code    int
		pos     int
		invalid int
	}
	items := make([]coded, len(keys))
	curves := make(map[int]*hilbert.Hilbert)
	for i, key := range keys {
		items[i] = coded{key: key, pos: i}
		if _, err := g.Region(key); err != nil {
			items[i].invalid = 1
			continue
		}
		h, ok := curves[key.Level]
		if !ok {
			side := max(g.Rows(key.Level), g.Cols(key.Level))
			h, _ = hilbert.NewHilbert(1 << bits.Len(uint(side-1)))
			curves[key.Level] = h
		}
		items[i].code, _ = h.MapInverse(key.Col, key.Row)
	}

	slices.SortFunc(items, func(a, b coded) int {
		if a.invalid != b.invalid {
			return cmp.Compare(a.invalid, b.invalid)
		}
		if a.invalid == 1 {
			return cmp.Compare(a.pos, b.pos)
		}
		return cmp.Or(
			cmp.Compare(b.key.Level, a.key.Level),
			cmp.Compare(a.code, b.code),
			cmp.Compare(a.pos, b.pos),
		)
	})

	result := make([]tile.Key, len(items))
	for i, item := range items {
		result[i] = item.key
	}
	return result
}

// Package internal holds test fixtures shared by the package tests.
package internal

import (
	"fmt"
	"image"

	"github.com/eak1mov/go-rasterview/block"
	"github.com/eak1mov/go-rasterview/raster"
)

// Gradient returns a buffer of the given size whose channel c at (x, y)
// holds Sample(x, y, c).
func Gradient(width, height, channels int) *raster.Buffer {
	b := raster.NewBuffer(image.Rect(0, 0, width, height), channels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				b.Set(x, y, c, Sample(x, y, c))
			}
		}
	}
	return b
}

// Sample is the value Gradient stores, always within [0, 255].
func Sample(x, y, c int) float32 {
	return float32((x + 3*y + 85*c) % 256)
}

// Pyramid returns an in-memory dataset with a Gradient level 0 and box
// downsampled levels until numLevels levels exist.
func Pyramid(width, height, channels, numLevels int, geoTransform raster.GeoTransform) *raster.Memory {
	levels := raster.BuildPyramid(Gradient(width, height, channels), 0, numLevels)
	m, err := raster.NewMemory(levels, geoTransform, raster.Uint8)
	if err != nil {
		panic(err)
	}
	return m
}

// Blocks returns encoded-looking payloads for a small three level pyramid.
// Payloads repeat so that deduplicating stores are exercised.
func Blocks() map[block.ID][]byte {
	blocks := make(map[block.ID][]byte)
	for level := range 3 {
		side := 4 >> level
		for row := range side {
			for col := range side {
				id := block.ID{Level: uint32(level), Row: uint32(row), Col: uint32(col)}
				blocks[id] = fmt.Appendf(nil, "block-%d-%d", level, (row+col)%3)
			}
		}
	}
	return blocks
}

package raster

import (
	"context"
	"image"
	"image/color"
	"strconv"

	"github.com/eak1mov/go-rasterview/block"
)

// Downsample halves b on both axes with a 2x2 box filter.
// Odd edges average the available pixels only.
func Downsample(b *Buffer) *Buffer {
	w, h := b.Rect.Dx(), b.Rect.Dy()
	out := NewBuffer(image.Rect(0, 0, (w+1)/2, (h+1)/2), b.Channels)
	for y := 0; y < out.Rect.Dy(); y++ {
		for x := 0; x < out.Rect.Dx(); x++ {
			for c := 0; c < b.Channels; c++ {
				var sum float32
				n := 0
				for dy := 0; dy < 2; dy++ {
					for dx := 0; dx < 2; dx++ {
						sx, sy := 2*x+dx, 2*y+dy
						if sx < w && sy < h {
							sum += b.At(b.Rect.Min.X+sx, b.Rect.Min.Y+sy, c)
							n++
						}
					}
				}
				out.Set(x, y, c, sum/float32(n))
			}
		}
	}
	return out
}

// BuildPyramid returns base followed by successive Downsample levels,
// stopping once both sides fit in minSize or maxLevels are built (0 = no limit).
func BuildPyramid(base *Buffer, minSize, maxLevels int) []*Buffer {
	levels := []*Buffer{base}
	for {
		last := levels[len(levels)-1]
		if last.Rect.Dx() <= minSize && last.Rect.Dy() <= minSize {
			break
		}
		if maxLevels > 0 && len(levels) >= maxLevels {
			break
		}
		if last.Rect.Dx() == 1 && last.Rect.Dy() == 1 {
			break
		}
		levels = append(levels, Downsample(last))
	}
	return levels
}

// FromImage converts an image to a buffer at the origin. Grey images give one
// channel, others three (alpha is dropped). 16-bit images keep their full range.
func FromImage(img image.Image) (*Buffer, DataType) {
	bounds := img.Bounds()
	rect := image.Rectangle{Max: bounds.Size()}

	dataType := Uint8
	shift := uint(8)
	switch img.ColorModel() {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model:
		dataType = Uint16
		shift = 0
	}

	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		b := NewBuffer(rect, 1)
		for y := 0; y < rect.Dy(); y++ {
			for x := 0; x < rect.Dx(); x++ {
				g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				b.Set(x, y, 0, float32(g.Y>>shift))
			}
		}
		return b, dataType
	}

	b := NewBuffer(rect, 3)
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			c := color.NRGBA64Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
			b.Set(x, y, 0, float32(c.R>>shift))
			b.Set(x, y, 1, float32(c.G>>shift))
			b.Set(x, y, 2, float32(c.B>>shift))
		}
	}
	return b, dataType
}

// WritePyramid writes the levels of a dataset as blocks of blockSize pixels.
// progress, if not nil, is called after every block.
func WritePyramid(ctx context.Context, w block.Writer, levels []*Buffer, desc Descriptor, blockSize int, compression Compression, progress func()) error {
	metadata := desc.Metadata()
	metadata["blocksize"] = strconv.Itoa(blockSize)
	if err := w.WriteMetadata(metadata); err != nil {
		return err
	}

	for level, b := range levels {
		size := b.Rect.Size()
		for row := 0; row*blockSize < size.Y; row++ {
			for col := 0; col*blockSize < size.X; col++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				r := image.Rect(col*blockSize, row*blockSize, (col+1)*blockSize, (row+1)*blockSize).Intersect(b.Rect)
				sub, err := b.SubBuffer(r)
				if err != nil {
					return err
				}
				data, err := EncodeBlock(sub, desc.DataType, compression)
				if err != nil {
					return err
				}
				blockID := block.ID{Level: uint32(level), Row: uint32(row), Col: uint32(col)}
				if err := w.WriteBlock(blockID, data); err != nil {
					return err
				}
				if progress != nil {
					progress()
				}
			}
		}
	}

	return w.Finalize()
}

// CountBlocks returns the number of blocks WritePyramid writes for levels.
func CountBlocks(levels []*Buffer, blockSize int) int {
	n := 0
	for _, b := range levels {
		size := b.Rect.Size()
		n += ((size.X + blockSize - 1) / blockSize) * ((size.Y + blockSize - 1) / blockSize)
	}
	return n
}

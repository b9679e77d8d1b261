package raster

import (
	"fmt"
	"image"
)

// Buffer holds interleaved samples of a region. Coordinates passed to At and Set
// are in the pixel space of the level the buffer was read from.
type Buffer struct {
	Rect     image.Rectangle
	Channels int
	Samples  []float32
}

func NewBuffer(rect image.Rectangle, channels int) *Buffer {
	return &Buffer{
		Rect:     rect,
		Channels: channels,
		Samples:  make([]float32, rect.Dx()*rect.Dy()*channels),
	}
}

func (b *Buffer) offset(x, y int) int {
	return ((y-b.Rect.Min.Y)*b.Rect.Dx() + (x - b.Rect.Min.X)) * b.Channels
}

func (b *Buffer) At(x, y, c int) float32 {
	return b.Samples[b.offset(x, y)+c]
}

func (b *Buffer) Set(x, y, c int, v float32) {
	b.Samples[b.offset(x, y)+c] = v
}

// Pixel returns the samples of one pixel. The slice aliases the buffer.
func (b *Buffer) Pixel(x, y int) []float32 {
	i := b.offset(x, y)
	return b.Samples[i : i+b.Channels : i+b.Channels]
}

// Size returns the memory held by the samples in bytes.
func (b *Buffer) Size() int64 {
	return int64(len(b.Samples)) * 4
}

// Copy copies the intersection of src and b into b and returns it.
func (b *Buffer) Copy(src *Buffer) image.Rectangle {
	r := b.Rect.Intersect(src.Rect)
	if r.Empty() {
		return r
	}
	n := r.Dx() * b.Channels
	for y := r.Min.Y; y < r.Max.Y; y++ {
		copy(b.Samples[b.offset(r.Min.X, y):][:n], src.Samples[src.offset(r.Min.X, y):][:n])
	}
	return r
}

// SubBuffer returns a copy of the region r, which must lie within b.Rect.
func (b *Buffer) SubBuffer(r image.Rectangle) (*Buffer, error) {
	if !r.In(b.Rect) {
		return nil, fmt.Errorf("%w: %v not in %v", ErrOutOfBounds, r, b.Rect)
	}
	sub := NewBuffer(r, b.Channels)
	sub.Copy(b)
	return sub, nil
}

func (b *Buffer) validate() error {
	if b.Channels <= 0 || len(b.Samples) != b.Rect.Dx()*b.Rect.Dy()*b.Channels {
		return fmt.Errorf("%w: %d samples for %v with %d channels", ErrInvalidBlock, len(b.Samples), b.Rect, b.Channels)
	}
	return nil
}

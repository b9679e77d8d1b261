// Package gfx defines the graphics device layer consumed by the tile cache.
//
// Device handles are opaque: callers never interpret them, they only pass
// them back to the device that issued them.
package gfx

import (
	"errors"
	"fmt"
	"image"

	"github.com/paulmach/orb"
)

var (
	ErrOutOfMemory   = errors.New("rasterview: device out of memory")
	ErrInvalidHandle = errors.New("rasterview: invalid device handle")
	ErrInvalidBuffer = errors.New("rasterview: invalid pixel buffer")
)

// Handle identifies a resource uploaded to a device.
type Handle uint32

// NoHandle is never returned by a successful Upload.
const NoHandle Handle = 0

// Quad holds the viewport space positions of the four corners of a texture.
type Quad struct {
	UL orb.Point
	UR orb.Point
	LL orb.Point
	LR orb.Point
}

// Bound returns the bounding box of the quad corners.
func (q Quad) Bound() orb.Bound {
	return orb.MultiPoint{q.UL, q.UR, q.LL, q.LR}.Bound()
}

type Layout uint8

const (
	LayoutRGBA8 Layout = iota
	LayoutRGB32F
)

func (l Layout) String() string {
	switch l {
	case LayoutRGBA8:
		return "rgba8"
	case LayoutRGB32F:
		return "rgb32f"
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

// BytesPerPixel returns the device memory used by one texel.
func (l Layout) BytesPerPixel() int {
	switch l {
	case LayoutRGBA8:
		return 4
	case LayoutRGB32F:
		return 12
	}
	return 0
}

// PixelBuffer is a renderable buffer. Pix holds RGBA8 texels,
// Float holds interleaved RGB float texels; only the one matching
// Layout is used.
type PixelBuffer struct {
	Width  int
	Height int
	Layout Layout
	Pix    []byte
	Float  []float32
}

// Bytes returns the device memory the buffer needs once uploaded.
func (b PixelBuffer) Bytes() int64 {
	return int64(b.Width) * int64(b.Height) * int64(b.Layout.BytesPerPixel())
}

// Validate checks the buffer dimensions against its data.
func (b PixelBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidBuffer, b.Width, b.Height)
	}
	n := b.Width * b.Height
	switch b.Layout {
	case LayoutRGBA8:
		if len(b.Pix) != 4*n {
			return fmt.Errorf("%w: %d bytes for %dx%d rgba8", ErrInvalidBuffer, len(b.Pix), b.Width, b.Height)
		}
	case LayoutRGB32F:
		if len(b.Float) != 3*n {
			return fmt.Errorf("%w: %d floats for %dx%d rgb32f", ErrInvalidBuffer, len(b.Float), b.Width, b.Height)
		}
	default:
		return fmt.Errorf("%w: layout %v", ErrInvalidBuffer, b.Layout)
	}
	return nil
}

// DrawParams carries the per-draw state of a quad. When Shader is set the
// device maps each channel from [Min, Max] to [0, 1] while drawing.
type DrawParams struct {
	Shader bool
	Min    [3]float32
	Max    [3]float32
}

// Frame describes the viewport a device projects quads onto.
type Frame struct {
	World orb.Bound   // visible viewport space rectangle
	Size  image.Point // display size in pixels
	YUp   bool        // world Y grows towards the top of the display
}

// Device uploads pixel buffers and draws textured quads.
type Device interface {
	Upload(buf PixelBuffer) (Handle, error)
	Release(handle Handle)
	BeginFrame(frame Frame) error
	DrawQuad(handle Handle, quad Quad, params DrawParams) error
	EndFrame() error
}

// Initializer is implemented by devices that need one-time setup,
// such as compiling the stretch shader, before the first upload or draw.
type Initializer interface {
	Init() error
}

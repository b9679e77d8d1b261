// Package soft implements gfx.Device in software, compositing quads into an image.RGBA.
package soft

import (
	"fmt"
	"image"
	"image/color"

	"github.com/eak1mov/go-rasterview/gfx"
	"github.com/eak1mov/go-rasterview/stretch"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

type texture struct {
	width  int
	height int
	layout gfx.Layout
	rgba   *image.RGBA
	float  []float32
	bytes  int64
}

// Device keeps uploaded textures in memory and draws them with an affine
// resampling of each quad. Capacity bounds the total texture bytes.
type Device struct {
	capacity     int64
	interpolator draw.Interpolator
	background   color.Color

	textures    map[gfx.Handle]*texture
	next        gfx.Handle
	used        int64
	initialized bool

	frame  gfx.Frame
	canvas *image.RGBA
	drawn  int
}

type Option func(*Device)

// WithCapacity limits the texture memory; uploads beyond it fail with gfx.ErrOutOfMemory.
func WithCapacity(bytes int64) Option {
	return func(d *Device) { d.capacity = bytes }
}

func WithInterpolator(interpolator draw.Interpolator) Option {
	return func(d *Device) { d.interpolator = interpolator }
}

func WithBackground(c color.Color) Option {
	return func(d *Device) { d.background = c }
}

func New(opts ...Option) *Device {
	d := &Device{
		interpolator: draw.ApproxBiLinear,
		background:   color.Transparent,
		textures:     make(map[gfx.Handle]*texture),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init stands in for the shader setup of a hardware device.
func (d *Device) Init() error {
	d.initialized = true
	return nil
}

func (d *Device) Initialized() bool { return d.initialized }

// Used returns the texture memory currently allocated.
func (d *Device) Used() int64 { return d.used }

// Textures returns the number of live textures.
func (d *Device) Textures() int { return len(d.textures) }

// Canvas returns the image of the last frame.
func (d *Device) Canvas() *image.RGBA { return d.canvas }

// Drawn returns the number of quads drawn since the last BeginFrame.
func (d *Device) Drawn() int { return d.drawn }

func (d *Device) Upload(buf gfx.PixelBuffer) (gfx.Handle, error) {
	bytes := buf.Bytes()
	if d.capacity > 0 && d.used+bytes > d.capacity {
		return gfx.NoHandle, fmt.Errorf("%w: %d bytes requested, %d of %d in use", gfx.ErrOutOfMemory, bytes, d.used, d.capacity)
	}

	tex := &texture{width: buf.Width, height: buf.Height, layout: buf.Layout, bytes: bytes}
	switch buf.Layout {
	case gfx.LayoutRGBA8:
		tex.rgba = &image.RGBA{
			Pix:    append([]byte(nil), buf.Pix...),
			Stride: 4 * buf.Width,
			Rect:   image.Rect(0, 0, buf.Width, buf.Height),
		}
	case gfx.LayoutRGB32F:
		tex.float = append([]float32(nil), buf.Float...)
	default:
		return gfx.NoHandle, fmt.Errorf("%w: layout %v", gfx.ErrInvalidBuffer, buf.Layout)
	}

	d.next++
	d.textures[d.next] = tex
	d.used += bytes
	return d.next, nil
}

func (d *Device) Release(handle gfx.Handle) {
	tex, ok := d.textures[handle]
	if !ok {
		return
	}
	d.used -= tex.bytes
	delete(d.textures, handle)
}

func (d *Device) BeginFrame(frame gfx.Frame) error {
	if frame.Size.X <= 0 || frame.Size.Y <= 0 {
		return fmt.Errorf("rasterview: invalid frame size %v", frame.Size)
	}
	d.frame = frame
	d.canvas = image.NewRGBA(image.Rectangle{Max: frame.Size})
	draw.Draw(d.canvas, d.canvas.Bounds(), image.NewUniform(d.background), image.Point{}, draw.Src)
	d.drawn = 0
	return nil
}

func (d *Device) EndFrame() error {
	return nil
}

func (d *Device) DrawQuad(handle gfx.Handle, quad gfx.Quad, params gfx.DrawParams) error {
	tex, ok := d.textures[handle]
	if !ok {
		return fmt.Errorf("%w: %d", gfx.ErrInvalidHandle, handle)
	}
	if d.canvas == nil {
		return fmt.Errorf("rasterview: DrawQuad outside of a frame")
	}

	var src *image.RGBA
	switch {
	case params.Shader && tex.layout == gfx.LayoutRGB32F:
		src = stretchFloat(tex, params)
	case !params.Shader && tex.layout == gfx.LayoutRGBA8:
		src = tex.rgba
	default:
		return fmt.Errorf("rasterview: texture layout %v cannot be drawn with shader=%v", tex.layout, params.Shader)
	}

	ul := d.project(quad.UL.X(), quad.UL.Y())
	ur := d.project(quad.UR.X(), quad.UR.Y())
	ll := d.project(quad.LL.X(), quad.LL.Y())

	w, h := float64(tex.width), float64(tex.height)
	s2d := f64.Aff3{
		(ur[0] - ul[0]) / w, (ll[0] - ul[0]) / h, ul[0],
		(ur[1] - ul[1]) / w, (ll[1] - ul[1]) / h, ul[1],
	}
	d.interpolator.Transform(d.canvas, s2d, src, src.Bounds(), draw.Over, nil)
	d.drawn++
	return nil
}

// project maps a viewport space point to canvas pixel coordinates.
func (d *Device) project(x, y float64) [2]float64 {
	world := d.frame.World
	sx := float64(d.frame.Size.X) / (world.Max.X() - world.Min.X())
	sy := float64(d.frame.Size.Y) / (world.Max.Y() - world.Min.Y())
	px := (x - world.Min.X()) * sx
	py := (y - world.Min.Y()) * sy
	if d.frame.YUp {
		py = (world.Max.Y() - y) * sy
	}
	return [2]float64{px, py}
}

// stretchFloat emulates the stretch shader on an RGB float texture.
func stretchFloat(tex *texture, params gfx.DrawParams) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, tex.width, tex.height))
	for i := 0; i < tex.width*tex.height; i++ {
		for c := 0; c < 3; c++ {
			img.Pix[4*i+c] = stretch.Byte(tex.float[3*i+c], float64(params.Min[c]), float64(params.Max[c]))
		}
		img.Pix[4*i+3] = 0xff
	}
	return img
}

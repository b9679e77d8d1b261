// Package stretch converts source samples into renderable pixel buffers
// according to tile display parameters.
package stretch

import (
	"fmt"
	"math"
	"slices"

	"github.com/eak1mov/go-rasterview/gfx"
	"github.com/eak1mov/go-rasterview/raster"
	"github.com/eak1mov/go-rasterview/tile"
)

// Convert builds the pixel buffer uploaded for a tile. In direct mode the
// selected channels are stretched to RGBA8; in shader mode they are copied
// as float RGB and the stretch is left to the device.
func Convert(buf *raster.Buffer, p tile.DisplayParams) (gfx.PixelBuffer, error) {
	if err := p.Validate(buf.Channels); err != nil {
		return gfx.PixelBuffer{}, err
	}
	w, h := buf.Rect.Dx(), buf.Rect.Dy()
	n := w * h

	switch p.Mode {
	case tile.ModeDirect:
		pix := make([]byte, 4*n)
		for i := 0; i < n; i++ {
			px := buf.Samples[i*buf.Channels:]
			for c := 0; c < 3; c++ {
				pix[4*i+c] = Byte(px[p.Channels[c]], p.Min[c], p.Max[c])
			}
			pix[4*i+3] = 0xff
		}
		return gfx.PixelBuffer{Width: w, Height: h, Layout: gfx.LayoutRGBA8, Pix: pix}, nil

	case tile.ModeShader:
		float := make([]float32, 3*n)
		for i := 0; i < n; i++ {
			px := buf.Samples[i*buf.Channels:]
			for c := 0; c < 3; c++ {
				float[3*i+c] = px[p.Channels[c]]
			}
		}
		return gfx.PixelBuffer{Width: w, Height: h, Layout: gfx.LayoutRGB32F, Float: float}, nil
	}

	return gfx.PixelBuffer{}, fmt.Errorf("rasterview: unknown display mode %v", p.Mode)
}

// Uniforms returns the draw state of a tile loaded with p.
func Uniforms(p tile.DisplayParams) gfx.DrawParams {
	switch p.Mode {
	case tile.ModeShader:
		d := gfx.DrawParams{Shader: true}
		for c := 0; c < 3; c++ {
			d.Min[c] = float32(p.Min[c])
			d.Max[c] = float32(p.Max[c])
		}
		return d
	}
	return gfx.DrawParams{}
}

// Byte maps v from [lo, hi] to [0, 255], clamping outside values.
func Byte(v float32, lo, hi float64) uint8 {
	if hi <= lo {
		if float64(v) >= hi {
			return 0xff
		}
		return 0
	}
	t := (float64(v) - lo) / (hi - lo)
	if math.IsNaN(t) || t <= 0 {
		return 0
	}
	if t >= 1 {
		return 0xff
	}
	return uint8(t*255 + 0.5)
}

// Estimate returns display parameters stretching each selected channel between
// the given quantiles of buf, e.g. 0.02 and 0.98. NaN samples are ignored.
func Estimate(buf *raster.Buffer, p tile.DisplayParams, low, high float64) (tile.DisplayParams, error) {
	if err := p.Validate(buf.Channels); err != nil {
		return p, err
	}
	if low < 0 || high > 1 || low >= high {
		return p, fmt.Errorf("rasterview: invalid quantiles [%v, %v]", low, high)
	}

	n := buf.Rect.Dx() * buf.Rect.Dy()
	values := make([]float32, 0, n)
	for c := 0; c < 3; c++ {
		values = values[:0]
		for i := 0; i < n; i++ {
			v := buf.Samples[i*buf.Channels+p.Channels[c]]
			if !math.IsNaN(float64(v)) {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		slices.Sort(values)
		p.Min[c] = float64(values[int(low*float64(len(values)-1))])
		p.Max[c] = float64(values[int(high*float64(len(values)-1))])
	}
	return p, nil
}

package raster_test

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/eak1mov/go-rasterview/internal"
	"github.com/eak1mov/go-rasterview/raster"
	"github.com/google/go-cmp/cmp"
)

func TestDownsample(t *testing.T) {
	b := raster.NewBuffer(image.Rect(0, 0, 3, 3), 1)
	for i := range b.Samples {
		b.Samples[i] = float32(i)
	}

	got := raster.Downsample(b)
	if want := image.Rect(0, 0, 2, 2); got.Rect != want {
		t.Errorf("Downsample rect = %v, want = %v", got.Rect, want)
	}
	if diff := cmp.Diff([]float32{2, 3.5, 6.5, 8}, got.Samples); diff != "" {
		t.Errorf("Downsample samples mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPyramid(t *testing.T) {
	sizes := func(levels []*raster.Buffer) []image.Point {
		var result []image.Point
		for _, b := range levels {
			result = append(result, b.Rect.Size())
		}
		return result
	}

	base := internal.Gradient(1000, 600, 1)
	if diff := cmp.Diff([]image.Point{{1000, 600}, {500, 300}, {250, 150}}, sizes(raster.BuildPyramid(base, 256, 0))); diff != "" {
		t.Errorf("BuildPyramid mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]image.Point{{1000, 600}, {500, 300}}, sizes(raster.BuildPyramid(base, 256, 2))); diff != "" {
		t.Errorf("BuildPyramid(maxLevels = 2) mismatch (-want +got):\n%s", diff)
	}
	if got, want := len(raster.BuildPyramid(internal.Gradient(5, 3, 1), 0, 0)), 4; got != want {
		t.Errorf("BuildPyramid(5x3) levels = %v, want = %v", got, want)
	}
}

func TestFromImage(t *testing.T) {
	gray := image.NewGray(image.Rect(10, 20, 13, 22))
	gray.SetGray(11, 21, color.Gray{Y: 200})
	b, dataType := raster.FromImage(gray)
	if b.Channels != 1 || dataType != raster.Uint8 {
		t.Errorf("FromImage(gray) = %d channels %v, want 1 channel uint8", b.Channels, dataType)
	}
	if got, want := b.At(1, 1, 0), float32(200); got != want {
		t.Errorf("FromImage(gray) At(1, 1) = %v, want = %v", got, want)
	}

	gray16 := image.NewGray16(image.Rect(0, 0, 2, 2))
	gray16.SetGray16(1, 0, color.Gray16{Y: 40000})
	b, dataType = raster.FromImage(gray16)
	if got, want := b.At(1, 0, 0), float32(40000); got != want || dataType != raster.Uint16 {
		t.Errorf("FromImage(gray16) At(1, 0) = %v %v, want = %v uint16", got, dataType, want)
	}

	rgba := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	rgba.SetNRGBA(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	b, dataType = raster.FromImage(rgba)
	if b.Channels != 3 || dataType != raster.Uint8 {
		t.Errorf("FromImage(nrgba) = %d channels %v, want 3 channels uint8", b.Channels, dataType)
	}
	if diff := cmp.Diff([]float32{10, 20, 30}, b.Pixel(1, 0)); diff != "" {
		t.Errorf("FromImage(nrgba) Pixel mismatch (-want +got):\n%s", diff)
	}
}

func TestMemory(t *testing.T) {
	m := internal.Pyramid(64, 32, 2, 3, raster.IdentityGeoTransform)
	if diff := cmp.Diff([]image.Point{{64, 32}, {32, 16}, {16, 8}}, m.Descriptor().Levels); diff != "" {
		t.Errorf("Levels mismatch (-want +got):\n%s", diff)
	}

	region := image.Rect(10, 5, 20, 9)
	b, err := m.ReadRegion(context.Background(), 0, region)
	if err != nil {
		t.Fatalf("ReadRegion failed: %v", err)
	}
	if got, want := b.At(12, 7, 1), internal.Sample(12, 7, 1); got != want {
		t.Errorf("At(12, 7, 1) = %v, want = %v", got, want)
	}

	if _, err := m.ReadRegion(context.Background(), 0, image.Rect(60, 0, 70, 4)); err == nil {
		t.Errorf("ReadRegion outside the level succeeded")
	}
	if _, err := m.ReadRegion(context.Background(), 3, region); err == nil {
		t.Errorf("ReadRegion of a missing level succeeded")
	}

	offset := raster.NewBuffer(image.Rect(1, 1, 4, 4), 1)
	if _, err := raster.NewMemory([]*raster.Buffer{offset}, raster.GeoTransform{}, raster.Uint8); err == nil {
		t.Errorf("NewMemory accepted a level away from the origin")
	}
}

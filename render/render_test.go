package render_test

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/eak1mov/go-rasterview/gfx/soft"
	"github.com/eak1mov/go-rasterview/internal"
	"github.com/eak1mov/go-rasterview/raster"
	"github.com/eak1mov/go-rasterview/render"
	"github.com/eak1mov/go-rasterview/store"
	"github.com/eak1mov/go-rasterview/tile"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
)

func descriptor(sizes ...int) raster.Descriptor {
	desc := raster.Descriptor{
		GeoTransform: raster.IdentityGeoTransform,
		Channels:     1,
		DataType:     raster.Uint8,
	}
	for _, size := range sizes {
		desc.Levels = append(desc.Levels, image.Pt(size, size))
	}
	return desc
}

// pixels returns the viewport of an identity georeferenced dataset showing
// the level 0 region r at one display pixel per image pixel.
func pixels(r image.Rectangle) render.Viewport {
	return render.Viewport{
		World: orb.Bound{Min: orb.Point{float64(r.Min.X), float64(r.Min.Y)}, Max: orb.Point{float64(r.Max.X), float64(r.Max.Y)}},
		Size:  r.Size(),
	}
}

func keys(level int, rowcols ...[2]int) []tile.Key {
	var result []tile.Key
	for _, rc := range rowcols {
		result = append(result, tile.Key{Level: level, Row: rc[0], Col: rc[1]})
	}
	return result
}

func TestRenderFrameSelectsFullResolution(t *testing.T) {
	desc := descriptor(4096, 2048)
	device := internal.NewDevice()
	r, err := render.New(&internal.Synthetic{Desc: desc}, desc, device)
	require.NoError(t, err)
	defer r.Close()

	frame, err := r.RenderFrame(context.Background(), pixels(image.Rect(0, 0, 512, 512)))
	require.NoError(t, err)

	if got, want := frame.Level, 0; got != want {
		t.Errorf("Level = %v, want = %v", got, want)
	}
	want := keys(0, [2]int{0, 0}, [2]int{0, 1}, [2]int{1, 0}, [2]int{1, 1})
	if diff := cmp.Diff(want, frame.Required); diff != "" {
		t.Errorf("Required mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, frame.Drawn); diff != "" {
		t.Errorf("Drawn mismatch (-want +got):\n%s", diff)
	}
	if !frame.Complete {
		t.Errorf("Complete = false, want = true")
	}
	if got, want := frame.Coverage.Bounds(), image.Rect(0, 0, 512, 512); got != want {
		t.Errorf("Coverage.Bounds = %v, want = %v", got, want)
	}
	if got, want := device.Inits(), 1; got != want {
		t.Errorf("device inits = %v, want = %v", got, want)
	}
}

func TestRenderFrameDrawsInTileOrder(t *testing.T) {
	desc := descriptor(4096, 2048)
	device := internal.NewDevice()
	r, err := render.New(&internal.Synthetic{Desc: desc}, desc, device)
	require.NoError(t, err)
	defer r.Close()

	frame, err := r.RenderFrame(context.Background(), pixels(image.Rect(100, 100, 700, 400)))
	require.NoError(t, err)

	draws := device.Draws()
	require.Len(t, draws, len(frame.Drawn))
	for i, key := range frame.Drawn {
		if i > 0 {
			prev := frame.Drawn[i-1]
			if key.Row < prev.Row || (key.Row == prev.Row && key.Col <= prev.Col) {
				t.Errorf("draw %d: %v after %v is not row-major", i, key, prev)
			}
		}
	}
	events := device.Events()
	if got, want := events[len(events)-1], "end"; got != want {
		t.Errorf("last device call = %v, want = %v", got, want)
	}
}

func TestRenderFramePartialCoverage(t *testing.T) {
	desc := descriptor(1024, 512)
	reader := internal.NewReader(&internal.Synthetic{Desc: desc})
	reader.Fail(0, image.Rect(768, 0, 1024, 256), internal.ErrInjected)

	r, err := render.New(reader, desc, internal.NewDevice(), render.WithBudget(store.Budget{MaxTiles: 3}))
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	frame, err := r.RenderFrame(ctx, pixels(image.Rect(0, 0, 768, 256)))
	require.NoError(t, err)
	if diff := cmp.Diff(keys(0, [2]int{0, 0}, [2]int{0, 1}, [2]int{0, 2}), frame.Drawn); diff != "" {
		t.Errorf("frame 1 Drawn mismatch (-want +got):\n%s", diff)
	}

	frame, err = r.RenderFrame(ctx, pixels(image.Rect(512, 0, 1024, 256)))
	require.NoError(t, err)

	if diff := cmp.Diff(keys(0, [2]int{0, 2}), frame.Drawn); diff != "" {
		t.Errorf("Drawn mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(keys(0, [2]int{0, 0}, [2]int{0, 1}), frame.Evicted); diff != "" {
		t.Errorf("Evicted mismatch (-want +got):\n%s", diff)
	}
	if frame.Complete {
		t.Errorf("Complete = true with a failed tile")
	}
	if diff := cmp.Diff([]image.Rectangle{image.Rect(512, 0, 768, 256)}, frame.Coverage.Regions()); diff != "" {
		t.Errorf("Coverage mismatch (-want +got):\n%s", diff)
	}
	if got, want := frame.Coverage.Fraction(image.Rect(512, 0, 1024, 256)), 0.5; got != want {
		t.Errorf("Coverage.Fraction = %v, want = %v", got, want)
	}
	wantExtent := orb.Bound{Min: orb.Point{512, 0}, Max: orb.Point{768, 256}}
	if got := frame.Extent; !got.Equal(wantExtent) {
		t.Errorf("Extent = %v, want = %v", got, wantExtent)
	}
}

func TestRenderFrameApproximate(t *testing.T) {
	desc := descriptor(1024)
	desc.GeoTransform = raster.GeoTransform{}
	r, err := render.New(&internal.Synthetic{Desc: desc}, desc, internal.NewDevice())
	require.NoError(t, err)
	defer r.Close()

	frame, err := r.RenderFrame(context.Background(), pixels(image.Rect(0, 0, 256, 256)))
	require.NoError(t, err)
	if !frame.Approximate {
		t.Errorf("Approximate = false for a dataset without georeferencing")
	}
	if diff := cmp.Diff(keys(0, [2]int{0, 0}), frame.Drawn); diff != "" {
		t.Errorf("Drawn mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderFrameInvalidViewport(t *testing.T) {
	desc := descriptor(1024)
	r, err := render.New(&internal.Synthetic{Desc: desc}, desc, internal.NewDevice())
	require.NoError(t, err)
	defer r.Close()

	_, err = r.RenderFrame(context.Background(), render.Viewport{World: orb.Bound{Max: orb.Point{1, 1}}})
	if !errors.Is(err, render.ErrInvalidViewport) {
		t.Errorf("RenderFrame error = %v, want %v", err, render.ErrInvalidViewport)
	}
}

func TestRenderFrameCoarseLevel(t *testing.T) {
	desc := descriptor(4096, 2048, 1024)
	r, err := render.New(&internal.Synthetic{Desc: desc}, desc, internal.NewDevice())
	require.NoError(t, err)
	defer r.Close()

	frame, err := r.RenderFrame(context.Background(), render.Viewport{
		World: orb.Bound{Max: orb.Point{4096, 4096}},
		Size:  image.Pt(1024, 1024),
	})
	require.NoError(t, err)
	if got, want := frame.Level, 2; got != want {
		t.Errorf("Level = %v, want = %v", got, want)
	}
	if got, want := len(frame.Drawn), 16; got != want {
		t.Errorf("drawn tiles = %v, want = %v", got, want)
	}
	if !frame.Complete {
		t.Errorf("Complete = false, want = true")
	}
}

func TestShaderMode(t *testing.T) {
	desc := descriptor(512)
	device := internal.NewDevice()
	params := tile.DefaultParams(1)
	params.Mode = tile.ModeShader
	params.Max = [3]float64{100, 100, 100}

	r, err := render.New(&internal.Synthetic{Desc: desc}, desc, device, render.WithDisplayParams(params))
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	vp := pixels(image.Rect(0, 0, 256, 256))
	_, err = r.RenderFrame(ctx, vp)
	require.NoError(t, err)

	params.Min = [3]float64{10, 20, 30}
	require.NoError(t, r.SetDisplayParams(params))
	_, err = r.RenderFrame(ctx, vp)
	require.NoError(t, err)

	if got, want := len(device.Uploads()), 1; got != want {
		t.Errorf("uploads = %v, want = %v", got, want)
	}
	draws := device.Draws()
	require.Len(t, draws, 2)
	last := draws[1].Params
	if !last.Shader || last.Min != [3]float32{10, 20, 30} || last.Max != [3]float32{100, 100, 100} {
		t.Errorf("draw params = %+v, want shader stretch [10 20 30]-[100 100 100]", last)
	}
}

func TestSetDisplayParamsValidates(t *testing.T) {
	desc := descriptor(512)
	r, err := render.New(&internal.Synthetic{Desc: desc}, desc, internal.NewDevice())
	require.NoError(t, err)
	defer r.Close()

	params := tile.DefaultParams(1)
	params.Channels = [3]int{0, 0, 3}
	if err := r.SetDisplayParams(params); err == nil {
		t.Errorf("SetDisplayParams accepted channel 3 of a single channel dataset")
	}
}

func TestPickAndExtent(t *testing.T) {
	desc := descriptor(1024, 512)
	desc.GeoTransform = raster.GeoTransform{OriginX: 1000, XSpacing: 10, OriginY: 5000, YSpacing: -10}
	r, err := render.New(&internal.Synthetic{Desc: desc}, desc, internal.NewDevice())
	require.NoError(t, err)
	defer r.Close()

	wantExtent := orb.Bound{Min: orb.Point{1000, 5000 - 10240}, Max: orb.Point{11240, 5000}}
	if got := r.Extent(); !got.Equal(wantExtent) {
		t.Errorf("Extent = %v, want = %v", got, wantExtent)
	}

	ctx := context.Background()
	res, err := r.Pick(ctx, orb.Point{1000 + 10*10.5, 5000 - 10*20.5})
	require.NoError(t, err)
	want := render.PickResult{Level: 0, Pixel: image.Pt(10, 20), Inside: true, Values: []float32{internal.Sample(10, 20, 0)}}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("Pick mismatch (-want +got):\n%s", diff)
	}

	res, err = r.Pick(ctx, orb.Point{0, 0})
	require.NoError(t, err)
	if res.Inside {
		t.Errorf("Pick outside the dataset = %+v, want not Inside", res)
	}
}

func TestAsyncFramesComplete(t *testing.T) {
	desc := descriptor(1024, 512)
	reader := internal.NewReader(&internal.Synthetic{Desc: desc})
	reader.SetLatency(5 * time.Millisecond)

	r, err := render.New(reader, desc, internal.NewDevice(), render.WithAsync(2))
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	vp := pixels(image.Rect(0, 0, 512, 512))
	frame, err := r.RenderFrame(ctx, vp)
	require.NoError(t, err)
	if frame.Complete || len(frame.Drawn) != 0 {
		t.Errorf("first async frame drew %v, want nothing", frame.Drawn)
	}

	require.Eventually(t, func() bool {
		frame, err := r.RenderFrame(ctx, vp)
		return err == nil && frame.Complete
	}, 5*time.Second, 10*time.Millisecond)
	if got, want := r.Stats().Loads, 4; got != want {
		t.Errorf("Loads = %v, want = %v", got, want)
	}
}

func TestSoftDeviceImage(t *testing.T) {
	desc := descriptor(512)
	device := soft.New(soft.WithInterpolator(draw.NearestNeighbor))
	r, err := render.New(&internal.Synthetic{Desc: desc}, desc, device)
	require.NoError(t, err)
	defer r.Close()

	frame, err := r.RenderFrame(context.Background(), pixels(image.Rect(200, 100, 400, 300)))
	require.NoError(t, err)
	require.True(t, frame.Complete)

	canvas := device.Canvas()
	for _, p := range []image.Point{{0, 0}, {55, 155}, {56, 156}, {199, 199}} {
		x, y := p.X+200, p.Y+100
		v := uint8(internal.Sample(x, y, 0))
		if got, want := canvas.RGBAAt(p.X, p.Y).R, v; got != want {
			t.Errorf("canvas %v = %v, want sample of %v,%v = %v", p, got, x, y, want)
		}
	}

	r.Reset()
	if got := device.Textures(); got != 0 {
		t.Errorf("textures after Reset = %v, want = 0", got)
	}
}

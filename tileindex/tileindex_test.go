package tileindex_test

import (
	"errors"
	"image"
	"slices"
	"testing"

	"github.com/eak1mov/go-rasterview/raster"
	"github.com/eak1mov/go-rasterview/resolution"
	"github.com/eak1mov/go-rasterview/tile"
	"github.com/eak1mov/go-rasterview/tileindex"
	"github.com/eak1mov/go-rasterview/transform"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

func newGrid(t *testing.T, tileSize int, levels ...image.Point) (*tileindex.Grid, *transform.Transformer) {
	t.Helper()
	desc := raster.Descriptor{Levels: levels, GeoTransform: raster.IdentityGeoTransform, Channels: 1}
	grid, err := tileindex.NewGrid(desc, tileSize)
	require.NoError(t, err)
	return grid, transform.New(desc, nil)
}

func bound(x0, y0, x1, y1 float64) orb.Bound {
	return orb.Bound{Min: orb.Point{x0, y0}, Max: orb.Point{x1, y1}}
}

func TestRegion(t *testing.T) {
	grid, _ := newGrid(t, 256, image.Pt(1000, 600), image.Pt(500, 300))

	if got, want := grid.Rows(0), 3; got != want {
		t.Errorf("Rows(0) = %v, want = %v", got, want)
	}
	if got, want := grid.Cols(0), 4; got != want {
		t.Errorf("Cols(0) = %v, want = %v", got, want)
	}

	for _, tc := range []struct {
		key  tile.Key
		want image.Rectangle
	}{
		{tile.Key{Level: 0, Row: 0, Col: 0}, image.Rect(0, 0, 256, 256)},
		{tile.Key{Level: 0, Row: 2, Col: 3}, image.Rect(768, 512, 1000, 600)},
		{tile.Key{Level: 1, Row: 1, Col: 1}, image.Rect(256, 256, 500, 300)},
	} {
		got, err := grid.Region(tc.key)
		if err != nil {
			t.Fatalf("Region(%v) failed: %v", tc.key, err)
		}
		if got != tc.want {
			t.Errorf("Region(%v) = %v, want = %v", tc.key, got, tc.want)
		}
	}

	for _, key := range []tile.Key{{Level: 0, Row: 3}, {Level: 0, Col: 4}, {Level: 0, Row: -1}} {
		if _, err := grid.Region(key); !errors.Is(err, tileindex.ErrOutOfRange) {
			t.Errorf("Region(%v) error = %v, want %v", key, err, tileindex.ErrOutOfRange)
		}
	}
	if _, err := grid.Region(tile.Key{Level: 2}); !errors.Is(err, tileindex.ErrInvalidLevel) {
		t.Errorf("Region(level 2) error = %v, want %v", err, tileindex.ErrInvalidLevel)
	}
}

func TestNewGridErrors(t *testing.T) {
	desc := raster.Descriptor{Levels: []image.Point{{100, 100}}, Channels: 1}
	if _, err := tileindex.NewGrid(desc, 0); !errors.Is(err, tileindex.ErrInvalidTileSize) {
		t.Errorf("NewGrid(tile size 0) error = %v, want %v", err, tileindex.ErrInvalidTileSize)
	}
	if _, err := tileindex.NewGrid(raster.Descriptor{Channels: 1}, 256); !errors.Is(err, raster.ErrInvalidDescriptor) {
		t.Errorf("NewGrid(no levels) error = %v, want %v", err, raster.ErrInvalidDescriptor)
	}
}

func TestEnumerateTiles(t *testing.T) {
	grid, tr := newGrid(t, 256, image.Pt(1000, 600), image.Pt(500, 300))

	for _, tc := range []struct {
		name   string
		level  int
		extent orb.Bound
		margin float64
		want   []tile.Key
	}{
		{"four tiles", 0, bound(0, 0, 300, 300), 0, []tile.Key{
			{Level: 0, Row: 0, Col: 0}, {Level: 0, Row: 0, Col: 1},
			{Level: 0, Row: 1, Col: 0}, {Level: 0, Row: 1, Col: 1},
		}},
		{"inside one tile", 0, bound(300, 300, 400, 400), 0, []tile.Key{{Level: 0, Row: 1, Col: 1}}},
		{"margin", 0, bound(300, 300, 400, 400), 1, []tile.Key{
			{Level: 0, Row: 0, Col: 0}, {Level: 0, Row: 0, Col: 1},
			{Level: 0, Row: 1, Col: 0}, {Level: 0, Row: 1, Col: 1},
		}},
		{"negative margin", 0, bound(300, 300, 400, 400), -1, []tile.Key{{Level: 0, Row: 1, Col: 1}}},
		{"edge aligned", 0, bound(256, 0, 512, 256), 0, []tile.Key{{Level: 0, Row: 0, Col: 1}}},
		{"clipped", 1, bound(-500, -500, 5000, 5000), 0, []tile.Key{
			{Level: 1, Row: 0, Col: 0}, {Level: 1, Row: 0, Col: 1},
			{Level: 1, Row: 1, Col: 0}, {Level: 1, Row: 1, Col: 1},
		}},
		{"outside", 0, bound(2000, 2000, 3000, 3000), 0, []tile.Key{}},
	} {
		got, err := grid.EnumerateTiles(tc.level, tc.extent, tr, tc.margin)
		if err != nil {
			t.Fatalf("EnumerateTiles(%s) failed: %v", tc.name, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("EnumerateTiles(%s) mismatch (-want +got):\n%s", tc.name, diff)
		}
	}

	if _, err := grid.EnumerateTiles(5, bound(0, 0, 1, 1), tr, 0); !errors.Is(err, tileindex.ErrInvalidLevel) {
		t.Errorf("EnumerateTiles(level 5) error = %v, want %v", err, tileindex.ErrInvalidLevel)
	}
}

func TestEnumerateTilesFullResolution(t *testing.T) {
	grid, tr := newGrid(t, 256, image.Pt(4096, 4096), image.Pt(2048, 2048))
	vp := transform.Viewport{World: bound(0, 0, 512, 512), Size: image.Pt(512, 512)}

	level := resolution.New(grid.Descriptor(), tr).SelectLevel(vp)
	if got, want := level, 0; got != want {
		t.Fatalf("SelectLevel = %v, want = %v", got, want)
	}

	got, err := grid.EnumerateTiles(level, vp.World, tr, 0)
	require.NoError(t, err)
	want := []tile.Key{
		{Level: 0, Row: 0, Col: 0}, {Level: 0, Row: 0, Col: 1},
		{Level: 0, Row: 1, Col: 0}, {Level: 0, Row: 1, Col: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EnumerateTiles mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOrder(t *testing.T) {
	grid, tr := newGrid(t, 256, image.Pt(1024, 1024), image.Pt(512, 512))

	keys, err := grid.EnumerateTiles(0, bound(0, 0, 1024, 1024), tr, 0)
	require.NoError(t, err)
	coarse := tile.Key{Level: 1, Row: 1, Col: 0}
	invalid := []tile.Key{{Level: 0, Row: 9}, {Level: 7}}
	input := append(append([]tile.Key{invalid[0]}, keys...), coarse, invalid[1])

	got := grid.LoadOrder(input)
	if len(got) != len(input) {
		t.Fatalf("LoadOrder returned %d keys, want %d", len(got), len(input))
	}
	if got[0] != coarse {
		t.Errorf("LoadOrder first = %v, want the coarse tile %v", got[0], coarse)
	}
	if diff := cmp.Diff(invalid, got[len(got)-2:]); diff != "" {
		t.Errorf("LoadOrder tail mismatch (-want +got):\n%s", diff)
	}

	curve := got[1 : len(got)-2]
	for i := 1; i < len(curve); i++ {
		a, b := curve[i-1], curve[i]
		if abs(a.Row-b.Row)+abs(a.Col-b.Col) != 1 {
			t.Errorf("LoadOrder steps from %v to %v, want adjacent tiles", a, b)
		}
	}
	sorted := slices.Clone(curve)
	slices.SortFunc(sorted, func(a, b tile.Key) int { return (a.Row*4 + a.Col) - (b.Row*4 + b.Col) })
	if diff := cmp.Diff(keys, sorted); diff != "" {
		t.Errorf("LoadOrder lost keys (-want +got):\n%s", diff)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Package render draws the tiles of a raster dataset covering a viewport.
//
// A Renderer owns the tile store and the graphics context of one dataset and
// is driven by the embedding application, once per viewport change or display
// refresh:
//
//	r, err := render.New(reader, reader.Descriptor(), device)
//	...
//	frame, err := r.RenderFrame(ctx, render.Viewport{World: bound, Size: size})
//	if !frame.Complete {
//		// some tiles are still missing, render again later
//	}
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/eak1mov/go-rasterview/coverage"
	"github.com/eak1mov/go-rasterview/gfx"
	"github.com/eak1mov/go-rasterview/raster"
	"github.com/eak1mov/go-rasterview/resolution"
	"github.com/eak1mov/go-rasterview/store"
	"github.com/eak1mov/go-rasterview/stretch"
	"github.com/eak1mov/go-rasterview/tile"
	"github.com/eak1mov/go-rasterview/tileindex"
	"github.com/eak1mov/go-rasterview/transform"
	"github.com/paulmach/orb"
)

var ErrInvalidViewport = errors.New("rasterview: invalid viewport")

type Viewport = transform.Viewport

// Frame reports what a RenderFrame call drew.
type Frame struct {
	Level    int
	Required []tile.Key // tiles enumerated for the viewport, row-major
	Drawn    []tile.Key // tiles drawn, in draw order
	Evicted  []tile.Key

	// Visible is the part of Level inside the viewport.
	Visible image.Rectangle
	// Coverage holds the image regions of the drawn tiles at Level.
	Coverage *coverage.Set
	// Extent is the viewport space bound of the drawn tiles.
	Extent orb.Bound
	// Complete is set when the drawn tiles cover the whole visible part of
	// the dataset.
	Complete bool
	// Approximate is set when a coordinate mapping fell back to the identity.
	Approximate bool
}

// PickResult holds the samples of the pixel under a viewport point.
type PickResult struct {
	Level  int
	Pixel  image.Point // in the pixel space of Level
	Inside bool
	Values []float32 // one per channel, nil when not Inside
}

type Renderer struct {
	reader   raster.Reader
	desc     raster.Descriptor
	gc       *gfx.Context
	tr       *transform.Transformer
	selector *resolution.Selector
	grid     *tileindex.Grid
	store    *store.Store
	prefetch *store.Prefetcher
	margin   float64
	logger   *slog.Logger

	level int
}

type config struct {
	TileSize     int
	Budget       store.Budget
	Margin       float64
	Params       *tile.DisplayParams
	Projection   transform.Projection
	RetainFrames int
	Workers      int
	Logger       *slog.Logger
}

type Option func(*config)

func WithTileSize(size int) Option {
	return func(c *config) { c.TileSize = size }
}

func WithBudget(budget store.Budget) Option {
	return func(c *config) { c.Budget = budget }
}

// WithMargin grows the tile enumeration area by margin times the viewport
// size on every side.
func WithMargin(margin float64) Option {
	return func(c *config) { c.Margin = margin }
}

func WithDisplayParams(params tile.DisplayParams) Option {
	return func(c *config) { c.Params = &params }
}

// WithProjection maps dataset world coordinates to the viewport frame.
func WithProjection(proj transform.Projection) Option {
	return func(c *config) { c.Projection = proj }
}

func WithRetainFrames(n int) Option {
	return func(c *config) { c.RetainFrames = n }
}

// WithAsync reads tiles on the given number of background workers.
// Frames then draw the tiles available and report themselves incomplete
// until the reads finish.
func WithAsync(workers int) Option {
	return func(c *config) { c.Workers = workers }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.Logger = logger }
}

func New(reader raster.Reader, desc raster.Descriptor, device gfx.Device, opts ...Option) (*Renderer, error) {
	config := config{
		TileSize: tileindex.DefaultTileSize,
		Logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}

	grid, err := tileindex.NewGrid(desc, config.TileSize)
	if err != nil {
		return nil, err
	}
	tr := transform.New(desc, config.Projection, transform.WithLogger(config.Logger))

	storeOpts := []store.Option{
		store.WithBudget(config.Budget),
		store.WithRetainFrames(config.RetainFrames),
		store.WithLogger(config.Logger),
	}
	if config.Params != nil {
		storeOpts = append(storeOpts, store.WithDisplayParams(*config.Params))
	}
	var prefetch *store.Prefetcher
	if config.Workers > 0 {
		prefetch = store.NewPrefetcher(reader, config.Workers, store.WithPrefetchLogger(config.Logger))
		storeOpts = append(storeOpts, store.WithPrefetcher(prefetch))
	}
	s, err := store.New(reader, grid, tr, storeOpts...)
	if err != nil {
		if prefetch != nil {
			prefetch.Close()
		}
		return nil, err
	}

	return &Renderer{
		reader:   reader,
		desc:     desc,
		gc:       gfx.NewContext(device, config.Logger),
		tr:       tr,
		selector: resolution.New(desc, tr),
		grid:     grid,
		store:    s,
		prefetch: prefetch,
		margin:   config.Margin,
		logger:   config.Logger,
	}, nil
}

// RenderFrame draws the Loaded tiles covering vp. Tiles that cannot be loaded
// are left out of the frame and reported through Frame.Complete.
func (r *Renderer) RenderFrame(ctx context.Context, vp Viewport) (Frame, error) {
	if vp.Size.X <= 0 || vp.Size.Y <= 0 {
		return Frame{}, fmt.Errorf("%w: display size %v", ErrInvalidViewport, vp.Size)
	}

	level := r.selector.SelectLevel(vp)
	keys, err := r.grid.EnumerateTiles(level, vp.World, r.tr, r.margin)
	if err != nil {
		return Frame{}, err
	}
	r.level = level

	loaded := r.store.EnsureResident(ctx, r.gc, keys)
	frame := Frame{
		Level:    level,
		Required: keys,
		Evicted:  r.store.Evict(r.gc),
		Coverage: coverage.New(level),
	}

	if err := r.gc.BeginFrame(gfx.Frame{World: vp.World, Size: vp.Size, YUp: r.tr.YUp()}); err != nil {
		return frame, err
	}
	current := r.store.DisplayParams()
	for _, t := range loaded {
		if err := r.gc.DrawQuad(t.Handle(), t.Quad, drawParams(t, current)); err != nil {
			r.logger.Warn("rasterview: draw failed", "tile", t.Key, "error", err)
			continue
		}
		frame.Drawn = append(frame.Drawn, t.Key)
		frame.Coverage.Add(t.Region)
		frame.Extent = extend(frame.Extent, len(frame.Drawn) == 1, t.Quad.Bound())
	}
	if err := r.gc.EndFrame(); err != nil {
		return frame, err
	}

	bounds, _ := r.desc.Bounds(level)
	frame.Visible = r.tr.ViewportExtentToImageRegion(level, vp.World).Intersect(bounds)
	frame.Complete = frame.Coverage.Covers(frame.Visible)
	frame.Approximate = r.tr.Approximate()

	r.logger.Debug("rasterview: frame rendered",
		"level", level,
		"required", len(frame.Required),
		"drawn", len(frame.Drawn),
		"evicted", len(frame.Evicted),
		"complete", frame.Complete)
	return frame, nil
}

func extend(b orb.Bound, first bool, o orb.Bound) orb.Bound {
	if first {
		return o
	}
	return b.Union(o)
}

// drawParams returns the draw state of a tile. Shader tiles take the current
// stretch since it is applied at draw time; direct tiles carry theirs in the
// uploaded pixels.
func drawParams(t *tile.Tile, current tile.DisplayParams) gfx.DrawParams {
	p := t.Params()
	switch p.Mode {
	case tile.ModeShader:
		if current.Mode == tile.ModeShader {
			p.Min, p.Max = current.Min, current.Max
		}
		return stretch.Uniforms(p)
	default:
		return gfx.DrawParams{}
	}
}

// Pick returns the samples of the pixel under p at the level of the last
// rendered frame.
func (r *Renderer) Pick(ctx context.Context, p orb.Point) (PickResult, error) {
	x, y := r.tr.ViewportToImage(r.level, p)
	res := PickResult{
		Level: r.level,
		Pixel: image.Pt(int(math.Floor(x)), int(math.Floor(y))),
	}
	bounds, err := r.desc.Bounds(r.level)
	if err != nil {
		return res, err
	}
	if !res.Pixel.In(bounds) {
		return res, nil
	}

	buf, err := r.reader.ReadRegion(ctx, r.level, image.Rectangle{Min: res.Pixel, Max: res.Pixel.Add(image.Pt(1, 1))})
	if err != nil {
		return res, err
	}
	res.Inside = true
	res.Values = append([]float32(nil), buf.Pixel(res.Pixel.X, res.Pixel.Y)...)
	return res, nil
}

// Extent returns the viewport space bound of the whole dataset.
func (r *Renderer) Extent() orb.Bound {
	return r.tr.DatasetExtent()
}

// Level returns the level of the last rendered frame.
func (r *Renderer) Level() int { return r.level }

func (r *Renderer) Stats() store.Stats { return r.store.Stats() }

func (r *Renderer) DisplayParams() tile.DisplayParams { return r.store.DisplayParams() }

// SetDisplayParams applies new display parameters from the next frame on.
func (r *Renderer) SetDisplayParams(params tile.DisplayParams) error {
	if err := params.Validate(r.desc.Channels); err != nil {
		return err
	}
	r.store.SetDisplayParams(params)
	return nil
}

// AutoStretch sets the stretch of the current channels to the low and high
// quantiles of the coarsest level and returns the new parameters.
func (r *Renderer) AutoStretch(ctx context.Context, low, high float64) (tile.DisplayParams, error) {
	level := r.desc.NumLevels() - 1
	bounds, err := r.desc.Bounds(level)
	if err != nil {
		return tile.DisplayParams{}, err
	}
	buf, err := r.reader.ReadRegion(ctx, level, bounds)
	if err != nil {
		return tile.DisplayParams{}, err
	}
	params, err := stretch.Estimate(buf, r.store.DisplayParams(), low, high)
	if err != nil {
		return tile.DisplayParams{}, err
	}
	r.store.SetDisplayParams(params)
	return params, nil
}

// Reset releases every resident tile.
func (r *Renderer) Reset() {
	r.store.Clear(r.gc)
}

// Close releases every resident tile and stops background reads.
func (r *Renderer) Close() {
	if r.prefetch != nil {
		r.prefetch.Close()
	}
	r.store.Clear(r.gc)
}

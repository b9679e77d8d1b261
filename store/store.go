// Package store keeps the tiles resident on the display device between frames.
//
// Every frame is a call to EnsureResident followed by a call to Evict: the new
// working set is loaded first, and only then are tiles the frame did not use
// released. A Store is not safe for concurrent use; with a Prefetcher the
// reads run in the background but uploads and evictions still happen on the
// goroutine calling the Store.
package store

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/eak1mov/go-rasterview/gfx"
	"github.com/eak1mov/go-rasterview/raster"
	"github.com/eak1mov/go-rasterview/stretch"
	"github.com/eak1mov/go-rasterview/tile"
	"github.com/eak1mov/go-rasterview/tileindex"
	"github.com/eak1mov/go-rasterview/transform"
)

// Budget limits the device memory held by Loaded tiles.
// A zero field leaves that dimension unlimited.
type Budget struct {
	MaxTiles int
	MaxBytes int64
}

// Fits reports whether the given tile count and byte total stay within b.
func (b Budget) Fits(tiles int, bytes int64) bool {
	if b.MaxTiles > 0 && tiles > b.MaxTiles {
		return false
	}
	if b.MaxBytes > 0 && bytes > b.MaxBytes {
		return false
	}
	return true
}

// Stats holds counters over the lifetime of a Store.
type Stats struct {
	Frames        uint64
	Loads         int
	LoadFailures  int
	Evictions     int
	Resident      int
	ResidentBytes int64
}

type entry struct {
	tile     *tile.Tile
	lastUsed uint64 // frame of the last request
	pos      int    // position in that request
}

// Store holds the tiles of one dataset and their device textures.
type Store struct {
	reader   raster.Reader
	grid     *tileindex.Grid
	tr       *transform.Transformer
	budget   Budget
	params   tile.DisplayParams
	retain   uint64
	prefetch *Prefetcher
	logger   *slog.Logger

	entries map[tile.Key]*entry
	frame   uint64
	evicted []tile.Key // evicted during the current frame before Evict
	stats   Stats
}

type config struct {
	Budget       Budget
	Params       *tile.DisplayParams
	RetainFrames int
	Prefetcher   *Prefetcher
	Logger       *slog.Logger
}

type Option func(*config)

func WithBudget(budget Budget) Option {
	return func(c *config) { c.Budget = budget }
}

// WithDisplayParams sets the parameters tiles are converted with.
// The default is tile.DefaultParams for the dataset channel count.
func WithDisplayParams(params tile.DisplayParams) Option {
	return func(c *config) { c.Params = &params }
}

// WithRetainFrames keeps tiles unused for up to n frames resident as long as
// the budget allows. With the default of 0 a tile not requested in the current
// frame is evicted.
func WithRetainFrames(n int) Option {
	return func(c *config) { c.RetainFrames = max(n, 0) }
}

// WithPrefetcher makes reads asynchronous: a tile whose read is not finished
// is skipped for the frame and picked up by a later EnsureResident.
func WithPrefetcher(p *Prefetcher) Option {
	return func(c *config) { c.Prefetcher = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.Logger = logger }
}

// New creates an empty Store reading tiles of grid from reader.
// It fails if the display params do not fit the dataset channels.
func New(reader raster.Reader, grid *tileindex.Grid, tr *transform.Transformer, opts ...Option) (*Store, error) {
	config := config{Logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&config)
	}

	channels := grid.Descriptor().Channels
	params := tile.DefaultParams(channels)
	if config.Params != nil {
		params = *config.Params
	}
	if err := params.Validate(channels); err != nil {
		return nil, err
	}

	return &Store{
		reader:   reader,
		grid:     grid,
		tr:       tr,
		budget:   config.Budget,
		params:   params,
		retain:   uint64(config.RetainFrames),
		prefetch: config.Prefetcher,
		logger:   config.Logger,
		entries:  make(map[tile.Key]*entry),
	}, nil
}

func (s *Store) Budget() Budget { return s.budget }

func (s *Store) DisplayParams() tile.DisplayParams { return s.params }

// SetDisplayParams changes the parameters of future loads. Loaded tiles whose
// pixels depend on the change are reloaded when next requested.
func (s *Store) SetDisplayParams(params tile.DisplayParams) {
	s.params = params
}

// Tile returns the tile of key, if the store holds one.
func (s *Store) Tile(key tile.Key) (*tile.Tile, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.tile, true
}

// Len returns the number of tiles held, Loaded or not.
func (s *Store) Len() int { return len(s.entries) }

// Resident returns the keys of the Loaded tiles in key order.
func (s *Store) Resident() []tile.Key {
	keys := make([]tile.Key, 0, s.stats.Resident)
	for key, e := range s.entries {
		if e.tile.Loaded() {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

func (s *Store) Stats() Stats { return s.stats }

type usage struct {
	tiles int
	bytes int64
}

// EnsureResident runs the load phase of a frame and returns the Loaded tiles
// among keys, in the order of keys. Tiles are loaded in tileindex load order
// while the tiles of this frame fit the budget. A tile that fails to load
// stays Unloaded and is tried again by the next call requesting it.
func (s *Store) EnsureResident(ctx context.Context, gc *gfx.Context, keys []tile.Key) []*tile.Tile {
	s.frame++
	s.stats.Frames = s.frame

	required := make([]*entry, 0, len(keys))
	for _, key := range keys {
		e := s.entries[key]
		if e != nil && e.lastUsed == s.frame {
			continue
		}
		if e == nil {
			region, err := s.grid.Region(key)
			if err != nil {
				s.logger.Debug("rasterview: skipping tile", "tile", key, "error", err)
				continue
			}
			quad := s.tr.ImageRegionToViewportQuad(key.Level, region)
			e = &entry{tile: tile.New(key, region, quad)}
			s.entries[key] = e
		}
		e.lastUsed = s.frame
		e.pos = len(required)
		required = append(required, e)
	}

	var used usage
	var pending []tile.Key
	for _, e := range required {
		t := e.tile
		if t.Loaded() {
			used.tiles++
			used.bytes += t.Bytes()
		}
		if !t.Loaded() || t.Params().NeedsReload(s.params) {
			pending = append(pending, t.Key)
		}
	}

	if s.prefetch != nil {
		wanted := make(map[tile.Key]struct{}, len(pending))
		for _, key := range pending {
			wanted[key] = struct{}{}
		}
		s.prefetch.Retain(func(key tile.Key) bool {
			_, ok := wanted[key]
			return ok
		})
	}

	for _, key := range s.grid.LoadOrder(pending) {
		if ctx.Err() != nil {
			break
		}
		s.load(ctx, gc, s.entries[key], &used)
	}

	loaded := make([]*tile.Tile, 0, len(required))
	for _, e := range required {
		if e.tile.Loaded() {
			loaded = append(loaded, e.tile)
		}
	}
	return loaded
}

func layout(mode tile.Mode) gfx.Layout {
	if mode == tile.ModeShader {
		return gfx.LayoutRGB32F
	}
	return gfx.LayoutRGBA8
}

func (s *Store) load(ctx context.Context, gc *gfx.Context, e *entry, used *usage) {
	t := e.tile
	reload := t.Loaded()

	bytes := int64(t.Region.Dx()) * int64(t.Region.Dy()) * int64(layout(s.params.Mode).BytesPerPixel())
	next := usage{tiles: used.tiles + 1, bytes: used.bytes + bytes}
	if reload {
		next = usage{tiles: used.tiles, bytes: used.bytes - t.Bytes() + bytes}
	}
	if !s.budget.Fits(next.tiles, next.bytes) {
		s.logger.Debug("rasterview: budget exhausted", "tile", t.Key)
		s.dropStale(gc, t, used)
		return
	}

	buf, err := s.read(ctx, t)
	if buf == nil && err == nil {
		s.dropStale(gc, t, used)
		return // read still in flight
	}
	if err != nil {
		s.fail(t, "read", err)
		s.dropStale(gc, t, used)
		return
	}

	pix, err := stretch.Convert(buf, s.params)
	if err != nil {
		s.fail(t, "convert", err)
		s.dropStale(gc, t, used)
		return
	}
	handle, err := s.upload(gc, pix)
	if err != nil {
		s.fail(t, "upload", err)
		s.dropStale(gc, t, used)
		return
	}

	if reload {
		s.unbind(gc, t)
	}
	t.Bind(handle, s.params, pix.Bytes())
	s.stats.Loads++
	s.stats.Resident++
	s.stats.ResidentBytes += t.Bytes()
	*used = next
	s.logger.Debug("rasterview: loaded tile", "tile", t.Key, "bytes", t.Bytes(), "reload", reload)
}

// dropStale unloads a tile still bound with display params that no longer
// apply, so that it is not drawn until its reload succeeds.
func (s *Store) dropStale(gc *gfx.Context, t *tile.Tile, used *usage) {
	if !t.Loaded() {
		return
	}
	used.tiles--
	used.bytes -= t.Bytes()
	s.unbind(gc, t)
	s.logger.Debug("rasterview: unloaded stale tile", "tile", t.Key)
}

// read returns nil, nil when an asynchronous read is not finished yet.
func (s *Store) read(ctx context.Context, t *tile.Tile) (*raster.Buffer, error) {
	if s.prefetch == nil {
		return s.reader.ReadRegion(ctx, t.Key.Level, t.Region)
	}
	res, ok := s.prefetch.Take(t.Key)
	if !ok {
		s.prefetch.Request(t.Key, t.Region)
		return nil, nil
	}
	return res.Buffer, res.Err
}

// upload retries a failed upload after each eviction of a tile unused in the
// current frame, as long as the device reports being out of memory.
func (s *Store) upload(gc *gfx.Context, pix gfx.PixelBuffer) (gfx.Handle, error) {
	handle, err := gc.Upload(pix)
	for errors.Is(err, gfx.ErrOutOfMemory) {
		candidates := s.candidates()
		if len(candidates) == 0 {
			break
		}
		s.evict(gc, candidates[0])
		handle, err = gc.Upload(pix)
	}
	return handle, err
}

func (s *Store) fail(t *tile.Tile, op string, err error) {
	s.stats.LoadFailures++
	s.logger.Debug("rasterview: tile load failed", "tile", t.Key, "op", op, "error", err)
}

func (s *Store) unbind(gc *gfx.Context, t *tile.Tile) {
	s.stats.Resident--
	s.stats.ResidentBytes -= t.Bytes()
	gc.Release(t.Unbind())
}

// candidates returns the Loaded entries not used in the current frame in
// eviction order: least recently used first, then coarsest level, then
// earliest in the request that last used them.
func (s *Store) candidates() []*entry {
	var candidates []*entry
	for _, e := range s.entries {
		if e.tile.Loaded() && e.lastUsed < s.frame {
			candidates = append(candidates, e)
		}
	}
	slices.SortFunc(candidates, func(a, b *entry) int {
		return cmp.Or(
			cmp.Compare(a.lastUsed, b.lastUsed),
			cmp.Compare(b.tile.Key.Level, a.tile.Key.Level),
			cmp.Compare(a.pos, b.pos),
		)
	})
	return candidates
}

func (s *Store) evict(gc *gfx.Context, e *entry) {
	key := e.tile.Key
	s.unbind(gc, e.tile)
	delete(s.entries, key)
	s.evicted = append(s.evicted, key)
	s.stats.Evictions++
	s.logger.Debug("rasterview: evicted tile", "tile", key)
}

// Evict runs the eviction phase of a frame. It releases the Loaded tiles not
// used within the retained frames, then more unused tiles while the budget is
// exceeded, and forgets Unloaded tiles the frame did not request. It returns
// every key evicted since the last EnsureResident, in eviction order.
func (s *Store) Evict(gc *gfx.Context) []tile.Key {
	for _, e := range s.candidates() {
		if e.lastUsed+s.retain < s.frame || !s.budget.Fits(s.stats.Resident, s.stats.ResidentBytes) {
			s.evict(gc, e)
		}
	}
	for key, e := range s.entries {
		if !e.tile.Loaded() && e.lastUsed < s.frame {
			delete(s.entries, key)
		}
	}

	evicted := s.evicted
	s.evicted = nil
	return evicted
}

// Clear releases every Loaded tile and empties the store.
func (s *Store) Clear(gc *gfx.Context) {
	if s.prefetch != nil {
		s.prefetch.Retain(nil)
	}
	keys := slices.SortedFunc(maps.Keys(s.entries), compareKeys)
	for _, key := range keys {
		if t := s.entries[key].tile; t.Loaded() {
			s.unbind(gc, t)
		}
	}
	clear(s.entries)
	s.evicted = nil
	s.logger.Debug("rasterview: store cleared", "tiles", len(keys))
}

func compareKeys(a, b tile.Key) int {
	return cmp.Or(
		cmp.Compare(a.Level, b.Level),
		cmp.Compare(a.Row, b.Row),
		cmp.Compare(a.Col, b.Col),
	)
}

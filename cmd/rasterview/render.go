package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/eak1mov/go-rasterview/gfx/soft"
	"github.com/eak1mov/go-rasterview/raster"
	"github.com/eak1mov/go-rasterview/render"
	"github.com/eak1mov/go-rasterview/store"
	"github.com/eak1mov/go-rasterview/tile"
	"github.com/google/subcommands"
	"github.com/paulmach/orb"
)

const frameInterval = 50 * time.Millisecond

type renderCmd struct {
	inputFormat string
	inputPath   string
	outputPath  string

	x, y, w, h    float64
	width, height int

	tileSize  int
	budget    int
	memory    int64
	workers   int
	frames    int
	bands     string
	min, max  float64
	auto      bool
	shader    bool
	cacheSize int64
}

func (c *renderCmd) Name() string     { return "render" }
func (c *renderCmd) Synopsis() string { return "render a viewport of a block pyramid to a png file" }
func (c *renderCmd) Usage() string {
	return "rasterview render -i <path> -o <png> [-x -y -w -h <world window>] [-width -height <pixels>]\n"
}
func (c *renderCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input path")
	f.StringVar(&c.inputFormat, "if", "", "Input format (sqlite, pack, dir)")
	f.StringVar(&c.outputPath, "o", "frame.png", "Output png path")
	f.Float64Var(&c.x, "x", 0, "Window min x in viewport units")
	f.Float64Var(&c.y, "y", 0, "Window min y in viewport units")
	f.Float64Var(&c.w, "w", 0, "Window width in viewport units (0 = whole dataset)")
	f.Float64Var(&c.h, "h", 0, "Window height in viewport units")
	f.IntVar(&c.width, "width", 1024, "Display width in pixels")
	f.IntVar(&c.height, "height", 0, "Display height in pixels (0 = keep aspect)")
	f.IntVar(&c.tileSize, "tile", 256, "Tile size in pixels")
	f.IntVar(&c.budget, "budget", 0, "Maximum resident tiles (0 = unlimited)")
	f.Int64Var(&c.memory, "memory", 0, "Texture memory of the software device in bytes (0 = unlimited)")
	f.IntVar(&c.workers, "workers", 0, "Background read workers (0 = read during the frame)")
	f.IntVar(&c.frames, "frames", 8, "Frames to render at most while tiles are missing")
	f.StringVar(&c.bands, "bands", "", "Displayed channels as r,g,b")
	f.Float64Var(&c.min, "min", 0, "Stretch minimum")
	f.Float64Var(&c.max, "max", 255, "Stretch maximum")
	f.BoolVar(&c.auto, "auto", false, "Stretch to the 2%-98% quantiles")
	f.BoolVar(&c.shader, "shader", false, "Apply the stretch at draw time")
	f.Int64Var(&c.cacheSize, "cache", 64<<20, "Decoded block cache in bytes")
}

func (c *renderCmd) params(channels int) (tile.DisplayParams, error) {
	p := tile.DefaultParams(channels)
	if c.bands != "" {
		if _, err := fmt.Sscanf(c.bands, "%d,%d,%d", &p.Channels[0], &p.Channels[1], &p.Channels[2]); err != nil {
			return p, fmt.Errorf("invalid bands %q: %w", c.bands, err)
		}
	}
	for i := range 3 {
		p.Min[i], p.Max[i] = c.min, c.max
	}
	if c.shader {
		p.Mode = tile.ModeShader
	}
	return p, p.Validate(channels)
}

func (c *renderCmd) viewport(extent orb.Bound) render.Viewport {
	world := extent
	if c.w > 0 && c.h > 0 {
		world = orb.Bound{Min: orb.Point{c.x, c.y}, Max: orb.Point{c.x + c.w, c.y + c.h}}
	}
	size := image.Pt(c.width, c.height)
	if size.Y <= 0 {
		aspect := (world.Max.Y() - world.Min.Y()) / (world.Max.X() - world.Min.X())
		size.Y = max(1, int(float64(size.X)*aspect+0.5))
	}
	return render.Viewport{World: world, Size: size}
}

func (c *renderCmd) run(ctx context.Context) error {
	blocks, err := openStore(c.inputFormat, c.inputPath)
	if err != nil {
		return err
	}
	defer closeStore(blocks)

	reader, err := raster.OpenBlockReader(blocks, raster.WithCacheSize(c.cacheSize), raster.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer reader.Close()
	desc := reader.Descriptor()

	params, err := c.params(desc.Channels)
	if err != nil {
		return err
	}

	device := soft.New(soft.WithCapacity(c.memory))
	r, err := render.New(reader, desc, device,
		render.WithTileSize(c.tileSize),
		render.WithBudget(store.Budget{MaxTiles: c.budget}),
		render.WithDisplayParams(params),
		render.WithAsync(c.workers),
		render.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}
	defer r.Close()

	if c.auto {
		if params, err = r.AutoStretch(ctx, 0.02, 0.98); err != nil {
			return err
		}
		log.Printf("stretch: min %v, max %v", params.Min, params.Max)
	}

	vp := c.viewport(r.Extent())
	var frame render.Frame
	for i := 0; i < max(1, c.frames); i++ {
		if frame, err = r.RenderFrame(ctx, vp); err != nil {
			return err
		}
		if frame.Complete {
			break
		}
		if c.workers > 0 {
			time.Sleep(frameInterval)
		}
	}

	fmt.Printf("level %d: %d/%d tiles drawn, coverage %.1f%%, complete %v\n",
		frame.Level, len(frame.Drawn), len(frame.Required),
		100*frame.Coverage.Fraction(frame.Visible), frame.Complete)
	if frame.Approximate {
		fmt.Println("georeferencing unavailable, pixel coordinates used")
	}
	stats := r.Stats()
	fmt.Printf("loads %d, failures %d, evictions %d, resident %d (%d bytes)\n",
		stats.Loads, stats.LoadFailures, stats.Evictions, stats.Resident, stats.ResidentBytes)

	file, err := os.Create(c.outputPath)
	if err != nil {
		return err
	}
	if err := png.Encode(file, device.Canvas()); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (c *renderCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if err := c.run(ctx); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"

	"github.com/eak1mov/go-rasterview/raster"
	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

type importCmd struct {
	inputPath    string
	outputFormat string
	outputPath   string
	blockSize    int
	minSize      int
	maxLevels    int
	gzip         bool
	geoTransform string
	projection   string
}

func (c *importCmd) Name() string     { return "import" }
func (c *importCmd) Synopsis() string { return "build a block pyramid from an image file" }
func (c *importCmd) Usage() string {
	return "rasterview import -i <image> -o <path> [-of <format> -block <size> -gzip]\n"
}
func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input image path (png, jpeg, tiff, bmp)")
	f.StringVar(&c.outputPath, "o", "", "Output path")
	f.StringVar(&c.outputFormat, "of", "", "Output format (sqlite, pack, dir)")
	f.IntVar(&c.blockSize, "block", raster.DefaultBlockSize, "Block size in pixels")
	f.IntVar(&c.minSize, "min", 256, "Stop downsampling once a level fits in this size")
	f.IntVar(&c.maxLevels, "levels", 0, "Maximum number of levels (0 = no limit)")
	f.BoolVar(&c.gzip, "gzip", false, "Compress blocks")
	f.StringVar(&c.geoTransform, "geo", "", "Geotransform: originX,xSpacing,xSkew,originY,ySkew,ySpacing")
	f.StringVar(&c.projection, "proj", "", "Reference system name")
}

func (c *importCmd) descriptor(levels []*raster.Buffer, dataType raster.DataType) (raster.Descriptor, error) {
	desc := raster.Descriptor{
		GeoTransform: raster.IdentityGeoTransform,
		Projection:   c.projection,
		Channels:     levels[0].Channels,
		DataType:     dataType,
	}
	for _, b := range levels {
		desc.Levels = append(desc.Levels, b.Rect.Size())
	}
	if c.geoTransform != "" {
		g := &desc.GeoTransform
		if _, err := fmt.Sscanf(c.geoTransform, "%g,%g,%g,%g,%g,%g",
			&g.OriginX, &g.XSpacing, &g.XSkew, &g.OriginY, &g.YSkew, &g.YSpacing); err != nil {
			return raster.Descriptor{}, fmt.Errorf("invalid geotransform %q: %w", c.geoTransform, err)
		}
	}
	return desc, desc.Validate()
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	file, err := os.Open(c.inputPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	img, format, err := image.Decode(file)
	file.Close()
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	base, dataType := raster.FromImage(img)
	levels := raster.BuildPyramid(base, c.minSize, c.maxLevels)
	desc, err := c.descriptor(levels, dataType)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	log.Printf("%s image %v, %d channels %v, %d levels", format, base.Rect.Size(), desc.Channels, desc.DataType, len(levels))

	writer, err := createStore(c.outputFormat, c.outputPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer closeStore(writer)

	compression := raster.CompressionNone
	if c.gzip {
		compression = raster.CompressionGzip
	}

	bar := progressbar.New(raster.CountBlocks(levels, c.blockSize))
	err = raster.WritePyramid(ctx, writer, levels, desc, c.blockSize, compression, func() { bar.Add(1) })
	bar.Finish()
	fmt.Println()

	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}

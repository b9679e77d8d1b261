package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"maps"
	"slices"

	"github.com/eak1mov/go-rasterview/raster"
	"github.com/google/subcommands"
)

type infoCmd struct {
	inputFormat string
	inputPath   string
	metadata    bool
}

func (c *infoCmd) Name() string     { return "info" }
func (c *infoCmd) Synopsis() string { return "print the description of a block pyramid" }
func (c *infoCmd) Usage() string {
	return "rasterview info -i <path> [-if <format> -metadata]\n"
}
func (c *infoCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input path")
	f.StringVar(&c.inputFormat, "if", "", "Input format (sqlite, pack, dir)")
	f.BoolVar(&c.metadata, "metadata", false, "Also print raw metadata entries")
}

func (c *infoCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	store, err := openStore(c.inputFormat, c.inputPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer closeStore(store)

	metadata, err := store.ReadMetadata()
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	desc, err := raster.ParseMetadata(metadata)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	fmt.Printf("channels:     %d\n", desc.Channels)
	fmt.Printf("data type:    %v\n", desc.DataType)
	fmt.Printf("geotransform: %v\n", desc.GeoTransform)
	if desc.Projection != "" {
		fmt.Printf("projection:   %s\n", desc.Projection)
	}
	for level, size := range desc.Levels {
		fx, fy := desc.Factor(level)
		fmt.Printf("level %2d:     %dx%d (1/%gx1/%g)\n", level, size.X, size.Y, fx, fy)
	}
	if c.metadata {
		for _, name := range slices.Sorted(maps.Keys(metadata)) {
			fmt.Printf("  %s=%s\n", name, metadata[name])
		}
	}

	return subcommands.ExitSuccess
}

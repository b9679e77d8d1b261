package raster

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// GeoTransform maps level 0 pixel coordinates to dataset world coordinates:
//
//	X = OriginX + col*XSpacing + row*XSkew
//	Y = OriginY + col*YSkew + row*YSpacing
//
// The zero value means the dataset is not georeferenced.
type GeoTransform struct {
	OriginX  float64
	XSpacing float64
	XSkew    float64
	OriginY  float64
	YSkew    float64
	YSpacing float64
}

// IdentityGeoTransform maps a pixel to the world point with the same coordinates.
var IdentityGeoTransform = GeoTransform{XSpacing: 1, YSpacing: 1}

func (g GeoTransform) det() float64 {
	return g.XSpacing*g.YSpacing - g.XSkew*g.YSkew
}

// Valid reports whether the transform is invertible.
func (g GeoTransform) Valid() bool {
	return g.det() != 0
}

// Apply maps a level 0 pixel position to world coordinates.
func (g GeoTransform) Apply(col, row float64) (x, y float64) {
	return g.OriginX + col*g.XSpacing + row*g.XSkew, g.OriginY + col*g.YSkew + row*g.YSpacing
}

// Invert maps world coordinates back to a level 0 pixel position.
// The transform must be Valid.
func (g GeoTransform) Invert(x, y float64) (col, row float64) {
	dx, dy := x-g.OriginX, y-g.OriginY
	det := g.det()
	return (dx*g.YSpacing - dy*g.XSkew) / det, (dy*g.XSpacing - dx*g.YSkew) / det
}

func (g GeoTransform) String() string {
	return fmt.Sprintf("%g,%g,%g,%g,%g,%g", g.OriginX, g.XSpacing, g.XSkew, g.OriginY, g.YSkew, g.YSpacing)
}

// Descriptor is the immutable description of a dataset.
type Descriptor struct {
	Levels       []image.Point // pixel size per level, level 0 = full resolution
	GeoTransform GeoTransform
	Projection   string // reference system name, informational
	Channels     int
	DataType     DataType
}

func (d Descriptor) Validate() error {
	if len(d.Levels) == 0 {
		return fmt.Errorf("%w: no resolution levels", ErrInvalidDescriptor)
	}
	for i, size := range d.Levels {
		if size.X <= 0 || size.Y <= 0 {
			return fmt.Errorf("%w: level %d has size %v", ErrInvalidDescriptor, i, size)
		}
		if i > 0 && (size.X > d.Levels[i-1].X || size.Y > d.Levels[i-1].Y) {
			return fmt.Errorf("%w: level %d (%v) is larger than level %d (%v)", ErrInvalidDescriptor, i, size, i-1, d.Levels[i-1])
		}
	}
	if d.Channels <= 0 {
		return fmt.Errorf("%w: %d channels", ErrInvalidDescriptor, d.Channels)
	}
	if !d.DataType.valid() {
		return fmt.Errorf("%w: data type %v", ErrInvalidDescriptor, d.DataType)
	}
	return nil
}

func (d Descriptor) NumLevels() int { return len(d.Levels) }

// Bounds returns the pixel rectangle of a level.
func (d Descriptor) Bounds(level int) (image.Rectangle, error) {
	if level < 0 || level >= len(d.Levels) {
		return image.Rectangle{}, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidLevel, level, len(d.Levels))
	}
	return image.Rectangle{Max: d.Levels[level]}, nil
}

// Factor returns how many level 0 pixels one pixel of level spans on each axis.
func (d Descriptor) Factor(level int) (fx, fy float64) {
	base, size := d.Levels[0], d.Levels[level]
	return float64(base.X) / float64(size.X), float64(base.Y) / float64(size.Y)
}

// Metadata encodes the descriptor as store metadata.
func (d Descriptor) Metadata() map[string]string {
	levels := make([]string, len(d.Levels))
	for i, size := range d.Levels {
		levels[i] = fmt.Sprintf("%dx%d", size.X, size.Y)
	}
	metadata := map[string]string{
		"levels":   strings.Join(levels, ","),
		"channels": strconv.Itoa(d.Channels),
		"datatype": d.DataType.String(),
	}
	if d.GeoTransform != (GeoTransform{}) {
		metadata["geotransform"] = d.GeoTransform.String()
	}
	if d.Projection != "" {
		metadata["projection"] = d.Projection
	}
	return metadata
}

// ParseMetadata decodes a descriptor written with Metadata.
func ParseMetadata(metadata map[string]string) (Descriptor, error) {
	desc := Descriptor{}

	levelsValue, levelsFound := metadata["levels"]
	if !levelsFound {
		return Descriptor{}, fmt.Errorf("%w: missing levels", ErrInvalidDescriptor)
	}
	for _, level := range strings.Split(levelsValue, ",") {
		var size image.Point
		if _, err := fmt.Sscanf(level, "%dx%d", &size.X, &size.Y); err != nil {
			return Descriptor{}, fmt.Errorf("%w: level %q: %w", ErrInvalidDescriptor, level, err)
		}
		desc.Levels = append(desc.Levels, size)
	}

	channelsValue, channelsFound := metadata["channels"]
	if channelsFound {
		if _, err := fmt.Sscanf(channelsValue, "%d", &desc.Channels); err != nil {
			return Descriptor{}, fmt.Errorf("%w: channels: %w", ErrInvalidDescriptor, err)
		}
	}

	dataTypeValue, dataTypeFound := metadata["datatype"]
	if dataTypeFound {
		dataType, err := ParseDataType(dataTypeValue)
		if err != nil {
			return Descriptor{}, err
		}
		desc.DataType = dataType
	}

	geoValue, geoFound := metadata["geotransform"]
	if geoFound {
		g := &desc.GeoTransform
		if _, err := fmt.Sscanf(geoValue, "%g,%g,%g,%g,%g,%g",
			&g.OriginX, &g.XSpacing, &g.XSkew, &g.OriginY, &g.YSkew, &g.YSpacing); err != nil {
			return Descriptor{}, fmt.Errorf("%w: geotransform: %w", ErrInvalidDescriptor, err)
		}
	}

	desc.Projection = metadata["projection"]

	if err := desc.Validate(); err != nil {
		return Descriptor{}, err
	}
	return desc, nil
}

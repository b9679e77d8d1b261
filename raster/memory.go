package raster

import (
	"context"
	"fmt"
	"image"
)

// Memory is a Dataset holding every level in memory.
type Memory struct {
	desc   Descriptor
	levels []*Buffer
}

// NewMemory returns a dataset over the given levels, level 0 first.
// The descriptor is derived from the buffers; geoTransform may be zero.
func NewMemory(levels []*Buffer, geoTransform GeoTransform, dataType DataType) (*Memory, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: no resolution levels", ErrInvalidDescriptor)
	}
	desc := Descriptor{
		GeoTransform: geoTransform,
		Channels:     levels[0].Channels,
		DataType:     dataType,
	}
	for i, b := range levels {
		if b.Rect.Min != (image.Point{}) {
			return nil, fmt.Errorf("%w: level %d does not start at the origin", ErrInvalidDescriptor, i)
		}
		if b.Channels != desc.Channels {
			return nil, fmt.Errorf("%w: level %d has %d channels, want %d", ErrInvalidDescriptor, i, b.Channels, desc.Channels)
		}
		if err := b.validate(); err != nil {
			return nil, err
		}
		desc.Levels = append(desc.Levels, b.Rect.Size())
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &Memory{desc: desc, levels: levels}, nil
}

func (m *Memory) Descriptor() Descriptor { return m.desc }

// Level returns the buffer of a level. It aliases the dataset.
func (m *Memory) Level(level int) *Buffer { return m.levels[level] }

func (m *Memory) ReadRegion(ctx context.Context, level int, region image.Rectangle) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := m.desc.Bounds(level); err != nil {
		return nil, err
	}
	if region.Empty() {
		return nil, fmt.Errorf("%w: empty region %v", ErrOutOfBounds, region)
	}
	return m.levels[level].SubBuffer(region)
}

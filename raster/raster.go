// Package raster describes raster pyramids and provides streaming region readers.
//
// A pyramid is a list of resolution levels: level 0 is full resolution and
// every following level is coarser. Regions are addressed in the pixel space
// of their level.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

var (
	ErrInvalidDescriptor = errors.New("rasterview: invalid dataset descriptor")
	ErrInvalidLevel      = errors.New("rasterview: invalid resolution level")
	ErrOutOfBounds       = errors.New("rasterview: region out of dataset bounds")
	ErrInvalidBlock      = errors.New("rasterview: invalid block data")
)

// Reader reads an arbitrary axis-aligned region of an arbitrary level.
// Calls may come in any order; errors are treated as transient by callers.
type Reader interface {
	ReadRegion(ctx context.Context, level int, region image.Rectangle) (*Buffer, error)
}

// Dataset is a Reader that knows the pyramid it serves.
type Dataset interface {
	Reader
	Descriptor() Descriptor
}

// DataType is the native sample type of a dataset.
type DataType uint8

const (
	Uint8 DataType = iota
	Uint16
	Int16
	Uint32
	Int32
	Float32
	Float64
)

var dataTypeNames = [...]string{
	Uint8:   "uint8",
	Uint16:  "uint16",
	Int16:   "int16",
	Uint32:  "uint32",
	Int32:   "int32",
	Float32: "float32",
	Float64: "float64",
}

func (t DataType) String() string {
	if int(t) < len(dataTypeNames) {
		return dataTypeNames[t]
	}
	return fmt.Sprintf("DataType(%d)", uint8(t))
}

// Size returns the number of bytes of one sample.
func (t DataType) Size() int {
	switch t {
	case Uint8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

func (t DataType) valid() bool {
	return int(t) < len(dataTypeNames)
}

func ParseDataType(s string) (DataType, error) {
	for i, name := range dataTypeNames {
		if strings.EqualFold(s, name) {
			return DataType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown data type %q", ErrInvalidDescriptor, s)
}

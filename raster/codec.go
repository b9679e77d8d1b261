package raster

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
)

type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
)

const blockMagic uint32 = 0x31425652 // "RVB1"

// blockHeader precedes the sample payload of every stored block.
type blockHeader struct {
	Magic       uint32
	Width       uint32
	Height      uint32
	Channels    uint16
	DataType    DataType
	Compression Compression
}

var blockHeaderLength = binary.Size(blockHeader{})

// EncodeBlock serializes b with samples converted to dataType.
func EncodeBlock(b *Buffer, dataType DataType, compression Compression) ([]byte, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if !dataType.valid() {
		return nil, fmt.Errorf("%w: data type %v", ErrInvalidBlock, dataType)
	}

	var buffer bytes.Buffer
	writer := bufio.NewWriter(&buffer)
	header := blockHeader{
		Magic:       blockMagic,
		Width:       uint32(b.Rect.Dx()),
		Height:      uint32(b.Rect.Dy()),
		Channels:    uint16(b.Channels),
		DataType:    dataType,
		Compression: compression,
	}
	if err := binary.Write(writer, binary.LittleEndian, header); err != nil {
		return nil, err
	}

	var payload bytes.Buffer
	if err := binary.Write(&payload, binary.LittleEndian, convertSamples(b.Samples, dataType)); err != nil {
		return nil, err
	}
	compressed, err := compress(payload.Bytes(), compression)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(compressed); err != nil {
		return nil, err
	}
	if err := writer.Flush(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// DecodeBlock parses a block written by EncodeBlock and places it at origin.
func DecodeBlock(data []byte, origin image.Point) (*Buffer, error) {
	if len(data) < blockHeaderLength {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBlock, io.ErrUnexpectedEOF)
	}
	var header blockHeader
	if err := binary.Read(bytes.NewReader(data[:blockHeaderLength]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	if header.Magic != blockMagic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrInvalidBlock, header.Magic)
	}
	if !header.DataType.valid() || header.Channels == 0 {
		return nil, fmt.Errorf("%w: data type %v, %d channels", ErrInvalidBlock, header.DataType, header.Channels)
	}

	payload, err := decompress(data[blockHeaderLength:], header.Compression)
	if err != nil {
		return nil, err
	}

	rect := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(int(header.Width), int(header.Height)))}
	b := NewBuffer(rect, int(header.Channels))
	if want := len(b.Samples) * header.DataType.Size(); len(payload) != want {
		return nil, fmt.Errorf("%w: payload has %d bytes, want %d", ErrInvalidBlock, len(payload), want)
	}
	if err := readSamples(bytes.NewReader(payload), header.DataType, b.Samples); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	return b, nil
}

func convertSamples(samples []float32, dataType DataType) any {
	switch dataType {
	case Uint8:
		out := make([]uint8, len(samples))
		for i, v := range samples {
			out[i] = uint8(clampRound(v, 0, math.MaxUint8))
		}
		return out
	case Uint16:
		out := make([]uint16, len(samples))
		for i, v := range samples {
			out[i] = uint16(clampRound(v, 0, math.MaxUint16))
		}
		return out
	case Int16:
		out := make([]int16, len(samples))
		for i, v := range samples {
			out[i] = int16(clampRound(v, math.MinInt16, math.MaxInt16))
		}
		return out
	case Uint32:
		out := make([]uint32, len(samples))
		for i, v := range samples {
			out[i] = uint32(clampRound(v, 0, math.MaxUint32))
		}
		return out
	case Int32:
		out := make([]int32, len(samples))
		for i, v := range samples {
			out[i] = int32(clampRound(v, math.MinInt32, math.MaxInt32))
		}
		return out
	case Float64:
		out := make([]float64, len(samples))
		for i, v := range samples {
			out[i] = float64(v)
		}
		return out
	}
	return samples
}

func readSamples(r io.Reader, dataType DataType, samples []float32) error {
	switch dataType {
	case Uint8:
		in := make([]uint8, len(samples))
		if err := binary.Read(r, binary.LittleEndian, in); err != nil {
			return err
		}
		for i, v := range in {
			samples[i] = float32(v)
		}
	case Uint16:
		in := make([]uint16, len(samples))
		if err := binary.Read(r, binary.LittleEndian, in); err != nil {
			return err
		}
		for i, v := range in {
			samples[i] = float32(v)
		}
	case Int16:
		in := make([]int16, len(samples))
		if err := binary.Read(r, binary.LittleEndian, in); err != nil {
			return err
		}
		for i, v := range in {
			samples[i] = float32(v)
		}
	case Uint32:
		in := make([]uint32, len(samples))
		if err := binary.Read(r, binary.LittleEndian, in); err != nil {
			return err
		}
		for i, v := range in {
			samples[i] = float32(v)
		}
	case Int32:
		in := make([]int32, len(samples))
		if err := binary.Read(r, binary.LittleEndian, in); err != nil {
			return err
		}
		for i, v := range in {
			samples[i] = float32(v)
		}
	case Float32:
		return binary.Read(r, binary.LittleEndian, samples)
	case Float64:
		in := make([]float64, len(samples))
		if err := binary.Read(r, binary.LittleEndian, in); err != nil {
			return err
		}
		for i, v := range in {
			samples[i] = float32(v)
		}
	default:
		return fmt.Errorf("data type %v not supported", dataType)
	}
	return nil
}

func clampRound(v float32, lo, hi float64) float64 {
	f := math.Round(float64(v))
	if math.IsNaN(f) || f < lo {
		return lo
	}
	return min(f, hi)
}

func compress(data []byte, compression Compression) ([]byte, error) {
	if compression == CompressionNone {
		return data, nil
	}

	if compression != CompressionGzip {
		return nil, fmt.Errorf("compression not supported (%v)", compression)
	}

	var buffer bytes.Buffer
	writer, _ := gzip.NewWriterLevel(&buffer, gzip.BestSpeed)

	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}

	return buffer.Bytes(), nil
}

func decompress(data []byte, compression Compression) ([]byte, error) {
	if compression == CompressionNone {
		return data, nil
	}

	if compression != CompressionGzip {
		return nil, fmt.Errorf("%w: compression not supported (%v)", ErrInvalidBlock, compression)
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decompress: %w", ErrInvalidBlock, err)
	}
	defer reader.Close()

	result, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decompress: %w", ErrInvalidBlock, err)
	}

	return result, nil
}

var errEmptyBlock = errors.New("empty block")

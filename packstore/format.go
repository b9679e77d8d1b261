// Package packstore stores a block pyramid in a single file: a fixed header,
// the block payloads, a compressed directory sorted along a Hilbert curve per
// level and the metadata. Identical payloads are stored once.
package packstore

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/eak1mov/go-rasterview/block"
	"github.com/google/hilbert"
)

var (
	ErrInvalidHeader   = errors.New("rasterview: invalid pack header")
	ErrBlockOutOfRange = errors.New("rasterview: block out of pack range")
)

const (
	headerMagic uint64 = 0x014B505652 // "RVPK" version 1

	levelShift = 40
	maxSide    = 1 << 16
)

type header struct {
	Magic           uint64
	DataOffset      uint64
	DataLength      uint64
	DirectoryOffset uint64
	DirectoryLength uint64
	MetadataOffset  uint64
	MetadataLength  uint64
	Blocks          uint64 // addressed blocks
	Contents        uint64 // distinct payloads
}

var headerLength = binary.Size(header{})

func serializeHeader(h *header) []byte {
	var buffer bytes.Buffer
	binary.Write(&buffer, binary.LittleEndian, h)
	return buffer.Bytes()
}

func deserializeHeader(data []byte) (*header, error) {
	h := header{}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if h.Magic != headerMagic {
		return nil, fmt.Errorf("%w: magic %#x", ErrInvalidHeader, h.Magic)
	}
	return &h, nil
}

var curve, _ = hilbert.NewHilbert(maxSide)

func encodeID(id block.ID) (uint64, error) {
	if id.Row >= maxSide || id.Col >= maxSide || id.Level >= 1<<(64-levelShift) {
		return 0, fmt.Errorf("%w: %v", ErrBlockOutOfRange, id)
	}
	d, err := curve.MapInverse(int(id.Col), int(id.Row))
	if err != nil {
		return 0, fmt.Errorf("%w: %v: %w", ErrBlockOutOfRange, id, err)
	}
	return uint64(id.Level)<<levelShift | uint64(d), nil
}

func decodeID(code uint64) block.ID {
	col, row, _ := curve.Map(int(code & (1<<levelShift - 1)))
	return block.ID{Level: uint32(code >> levelShift), Row: uint32(row), Col: uint32(col)}
}

// entry addresses RunLength blocks with consecutive codes sharing one payload.
type entry struct {
	Code      uint64
	Offset    uint64 // relative to the data section
	Length    uint32
	RunLength uint32
}

func serializeDirectory(entries []entry) []byte {
	buffer := binary.AppendUvarint(nil, uint64(len(entries)))

	lastCode := uint64(0)
	for _, e := range entries {
		buffer = binary.AppendUvarint(buffer, e.Code-lastCode)
		lastCode = e.Code
	}
	for _, e := range entries {
		buffer = binary.AppendUvarint(buffer, uint64(e.RunLength))
	}
	for _, e := range entries {
		buffer = binary.AppendUvarint(buffer, uint64(e.Length))
	}
	nextOffset := uint64(0)
	for i, e := range entries {
		if i > 0 && e.Offset == nextOffset {
			buffer = binary.AppendUvarint(buffer, 0)
		} else {
			buffer = binary.AppendUvarint(buffer, e.Offset+1)
		}
		nextOffset = e.Offset + uint64(e.Length)
	}
	return buffer
}

func deserializeDirectory(data []byte) ([]entry, error) {
	r := bytes.NewReader(data)

	var err error
	next := func() uint64 {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = binary.ReadUvarint(r)
		return v
	}

	n := next()
	if err == nil && n > uint64(len(data)) {
		return nil, fmt.Errorf("%w: directory of %d entries in %d bytes", ErrInvalidHeader, n, len(data))
	}
	entries := make([]entry, n)
	lastCode := uint64(0)
	for i := range entries {
		lastCode += next()
		entries[i].Code = lastCode
	}
	for i := range entries {
		entries[i].RunLength = uint32(next())
	}
	for i := range entries {
		entries[i].Length = uint32(next())
	}
	for i := range entries {
		v := next()
		if v == 0 && i > 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = v - 1
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: directory: %w", ErrInvalidHeader, err)
	}
	return entries, nil
}

// compactEntries merges entries of consecutive codes pointing to the same payload.
func compactEntries(entries []entry) []entry {
	if len(entries) == 0 {
		return entries
	}
	wi := 0
	for ri := 1; ri < len(entries); ri++ {
		if entries[ri].Offset == entries[wi].Offset &&
			entries[ri].Code == entries[wi].Code+uint64(entries[wi].RunLength) {
			entries[wi].RunLength++
		} else {
			wi++
			entries[wi] = entries[ri]
		}
	}
	return entries[:wi+1]
}

func findEntry(entries []entry, code uint64) (entry, bool) {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].Code > code
	})
	if i == 0 {
		return entry{}, false
	}
	e := entries[i-1]
	if code < e.Code+uint64(e.RunLength) {
		return e, true
	}
	return entry{}, false
}

func compress(data []byte) ([]byte, error) {
	var buffer bytes.Buffer
	writer, _ := gzip.NewWriterLevel(&buffer, gzip.BestCompression)
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	return buffer.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decompress: %w", ErrInvalidHeader, err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

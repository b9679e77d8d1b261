package packstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/eak1mov/go-rasterview/block"
)

// Reader serves blocks of a pack file. The directory is loaded once, so the
// reader is safe for concurrent use.
type Reader struct {
	file    *os.File
	header  *header
	entries []entry
}

func NewReader(filePath string) (r *Reader, err error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			file.Close()
		}
	}()

	r = &Reader{file: file}
	headerData, err := r.readAt(0, uint64(headerLength))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if r.header, err = deserializeHeader(headerData); err != nil {
		return nil, err
	}

	directory, err := r.readAt(r.header.DirectoryOffset, r.header.DirectoryLength)
	if err != nil {
		return nil, err
	}
	if directory, err = decompress(directory); err != nil {
		return nil, err
	}
	if r.entries, err = deserializeDirectory(directory); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) readAt(offset, length uint64) ([]byte, error) {
	buffer := make([]byte, length)
	if _, err := r.file.ReadAt(buffer, int64(offset)); err != nil {
		return nil, err
	}
	return buffer, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// Blocks returns the number of blocks stored and the number of distinct payloads.
func (r *Reader) Blocks() (blocks, contents uint64) {
	return r.header.Blocks, r.header.Contents
}

func (r *Reader) ReadMetadata() (map[string]string, error) {
	data, err := r.readAt(r.header.MetadataOffset, r.header.MetadataLength)
	if err != nil {
		return nil, err
	}
	metadata := make(map[string]string)
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", ErrInvalidHeader, err)
	}
	return metadata, nil
}

func (r *Reader) ReadBlock(blockID block.ID) ([]byte, error) {
	code, err := encodeID(blockID)
	if err != nil {
		return []byte{}, nil
	}
	e, found := findEntry(r.entries, code)
	if !found {
		return []byte{}, nil
	}
	return r.readAt(r.header.DataOffset+e.Offset, uint64(e.Length))
}

func (r *Reader) VisitBlocks(visitor func(block.ID, []byte) error) error {
	for _, e := range r.entries {
		data, err := r.readAt(r.header.DataOffset+e.Offset, uint64(e.Length))
		if err != nil {
			return err
		}
		for i := range e.RunLength {
			if err := visitor(decodeID(e.Code+uint64(i)), data); err != nil {
				return err
			}
		}
	}
	return nil
}

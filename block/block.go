// Package block provides the storage interfaces for encoded pyramid blocks.
//
// A pyramid is stored as a grid of fixed-size blocks per resolution level.
// Block size is a property of the stored pyramid and is independent from the
// tile size used by the display cache.
package block

import "fmt"

// ID represents block coordinates: resolution level, row and column.
type ID struct {
	Level uint32
	Row   uint32
	Col   uint32
}

func (id ID) String() string {
	return fmt.Sprintf("%d/%d/%d", id.Level, id.Row, id.Col)
}

// Writer defines an interface for writing blocks to a pyramid store.
type Writer interface {
	// WriteBlock writes a single encoded block.
	WriteBlock(blockID ID, blockData []byte) error

	// WriteMetadata stores the pyramid description as key-value pairs.
	WriteMetadata(metadata map[string]string) error

	// Finalize completes the writing process: flushes buffers, writes indices.
	// It must be called before closing the Writer.
	Finalize() error
}

type Reader interface {
	// ReadBlock reads a single encoded block.
	// If the block does not exist, it returns an empty slice with no error.
	ReadBlock(blockID ID) ([]byte, error)

	// ReadMetadata returns the key-value pairs stored with WriteMetadata.
	ReadMetadata() (map[string]string, error)
}

type Visitor interface {
	// VisitBlocks visits all blocks in the store, calling the visitor for each.
	// Order of blocks is implementation-defined.
	VisitBlocks(visitor func(ID, []byte) error) error
}

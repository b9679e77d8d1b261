// Package sqlstore provides API for reading and writing pyramid blocks in a sqlite file.
//
// Note: User must properly initialize the sqlite3 library generic driver
// (e.g. import _ "github.com/mattn/go-sqlite3") before using this package.
package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/eak1mov/go-rasterview/block"
)

var ErrNoBlocksTable = errors.New("rasterview: sqlite file has no blocks table")

// Reader implements block.Reader and block.Visitor interfaces for sqlite pyramids.
type Reader struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// NewReader creates a new Reader for the given sqlite file path.
//
// The returned Reader must be closed after use to release database resources.
// It is safe for concurrent use.
func NewReader(filePath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", filePath))
	if err != nil {
		return nil, err
	}

	var tables int
	if err := db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'blocks'").Scan(&tables); err != nil {
		db.Close()
		return nil, err
	}
	if tables == 0 {
		db.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoBlocksTable, filePath)
	}

	stmt, err := db.Prepare("SELECT block_data FROM blocks WHERE level = ? AND block_row = ? AND block_col = ?")
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Reader{db: db, stmt: stmt}, nil
}

func (r *Reader) Close() error {
	return errors.Join(r.stmt.Close(), r.db.Close())
}

func (r *Reader) ReadMetadata() (map[string]string, error) {
	metadata := make(map[string]string)

	rows, err := r.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		metadata[name] = value
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return metadata, nil
}

// ReadBlock returns an empty slice for blocks not stored, including blocks
// with negative coordinates which no pyramid has.
func (r *Reader) ReadBlock(blockID block.ID) ([]byte, error) {
	if blockID.Level < 0 || blockID.Row < 0 || blockID.Col < 0 {
		return make([]byte, 0), nil
	}
	var blockData []byte
	if err := r.stmt.QueryRow(blockID.Level, blockID.Row, blockID.Col).Scan(&blockData); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return make([]byte, 0), nil
		}
		return nil, err
	}

	return blockData, nil
}

// VisitBlocks visits blocks level by level, each level in row-major order.
func (r *Reader) VisitBlocks(visitor func(block.ID, []byte) error) error {
	rows, err := r.db.Query("SELECT level, block_row, block_col, block_data FROM blocks ORDER BY level, block_row, block_col")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var blockID block.ID
		var blockData []byte

		if err := rows.Scan(&blockID.Level, &blockID.Row, &blockID.Col, &blockData); err != nil {
			return err
		}

		if err := visitor(blockID, blockData); err != nil {
			return err
		}
	}

	return rows.Err()
}

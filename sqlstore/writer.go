package sqlstore

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/eak1mov/go-rasterview/block"
)

// Writer implements block.Writer interface for sqlite pyramids.
type Writer struct {
	db     *sql.DB
	stmt   *sql.Stmt
	logger *slog.Logger
}

type writerConfig struct {
	Logger *slog.Logger
}

type WriterOption func(*writerConfig)

func WithLogger(logger *slog.Logger) WriterOption {
	return func(c *writerConfig) { c.Logger = logger }
}

// NewWriter creates a new Writer for writing to a sqlite file.
// It applies given options and initializes database for writing blocks.
func NewWriter(filePath string, opts ...WriterOption) (*Writer, error) {
	config := writerConfig{
		Logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}

	var err error
	db, err := sql.Open("sqlite3", filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	_, err = db.Exec(`
		CREATE TABLE metadata (name TEXT, value TEXT);
		CREATE TABLE blocks (
			level INTEGER,
			block_row INTEGER,
			block_col INTEGER,
			block_data BLOB
		);
	`)
	if err != nil {
		return nil, err
	}

	stmt, err := db.Prepare("INSERT INTO blocks (level, block_row, block_col, block_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, err
	}

	return &Writer{db, stmt, config.Logger}, nil
}

func (w *Writer) Close() error {
	return errors.Join(w.stmt.Close(), w.db.Close())
}

func (w *Writer) WriteBlock(blockID block.ID, blockData []byte) error {
	_, err := w.stmt.Exec(blockID.Level, blockID.Row, blockID.Col, blockData)
	return err
}

func (w *Writer) WriteMetadata(metadata map[string]string) error {
	for k, v := range metadata {
		if _, err := w.db.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", k, v); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) Finalize() error {
	w.logger.Debug("rasterview: creating block index")
	_, err := w.db.Exec("CREATE UNIQUE INDEX block_index ON blocks (level, block_row, block_col)")
	w.logger.Debug("rasterview: done!")
	return err
}

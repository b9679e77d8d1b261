package packstore

import (
	"bufio"
	"cmp"
	"crypto/md5"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/eak1mov/go-rasterview/block"
)

type Writer struct {
	logger *slog.Logger
	file   *os.File
	header header

	dataWriter *bufio.Writer
	dataOffset uint64
	metadata   map[string]string

	entries   []entry
	locations map[[16]byte]int // payload hash -> entry index
}

type writerConfig struct {
	Logger *slog.Logger
}

type WriterOption func(*writerConfig)

func WithLogger(logger *slog.Logger) WriterOption {
	return func(c *writerConfig) { c.Logger = logger }
}

func NewWriter(filePath string, opts ...WriterOption) (w *Writer, err error) {
	config := writerConfig{Logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&config)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			file.Close()
		}
	}()

	if _, err := file.Seek(int64(headerLength), io.SeekStart); err != nil {
		return nil, err
	}

	return &Writer{
		logger:     config.Logger,
		file:       file,
		header:     header{Magic: headerMagic, DataOffset: uint64(headerLength)},
		dataWriter: bufio.NewWriter(file),
		metadata:   map[string]string{},
		locations:  make(map[[16]byte]int),
	}, nil
}

func (w *Writer) WriteBlock(blockID block.ID, blockData []byte) error {
	if len(blockData) == 0 {
		return nil
	}
	code, err := encodeID(blockID)
	if err != nil {
		return err
	}

	digest := md5.Sum(blockData)
	if i, exists := w.locations[digest]; exists {
		w.entries = append(w.entries, entry{
			Code:      code,
			Offset:    w.entries[i].Offset,
			Length:    w.entries[i].Length,
			RunLength: 1,
		})
		return nil
	}

	if _, err := w.dataWriter.Write(blockData); err != nil {
		return err
	}
	w.locations[digest] = len(w.entries)
	w.entries = append(w.entries, entry{
		Code:      code,
		Offset:    w.dataOffset,
		Length:    uint32(len(blockData)),
		RunLength: 1,
	})
	w.dataOffset += uint64(len(blockData))
	w.header.Contents++
	return nil
}

// WriteMetadata replaces the metadata written by Finalize.
func (w *Writer) WriteMetadata(metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	w.metadata = metadata
	return nil
}

func (w *Writer) Finalize() error {
	if w.dataWriter == nil {
		panic("rasterview: finalize called twice")
	}

	if err := w.dataWriter.Flush(); err != nil {
		return err
	}
	w.dataWriter = nil
	w.header.DataLength = w.dataOffset
	w.header.Blocks = uint64(len(w.entries))

	slices.SortFunc(w.entries, func(a, b entry) int {
		return cmp.Compare(a.Code, b.Code)
	})
	w.entries = compactEntries(w.entries)
	w.logger.Debug("rasterview: pack directory", "blocks", w.header.Blocks, "contents", w.header.Contents, "entries", len(w.entries))

	directory, err := compress(serializeDirectory(w.entries))
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(w.metadata)
	if err != nil {
		return err
	}

	offset := w.header.DataOffset + w.header.DataLength
	w.header.DirectoryOffset, w.header.DirectoryLength = offset, uint64(len(directory))
	offset += w.header.DirectoryLength
	w.header.MetadataOffset, w.header.MetadataLength = offset, uint64(len(metadata))

	for _, data := range [][]byte{directory, metadata} {
		if _, err := w.file.Write(data); err != nil {
			return err
		}
	}
	if _, err := w.file.WriteAt(serializeHeader(&w.header), 0); err != nil {
		return err
	}

	err = w.file.Close()
	w.file = nil
	return err
}

func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

package dirstore

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/eak1mov/go-rasterview/block"
)

// Writer implements block.Writer interface for directory pyramids.
type Writer struct {
	filePattern string
}

// NewWriter creates a new Writer for the given file pattern (e.g. "/data/pyramid/{level}/{row}/{col}.blk").
func NewWriter(filePattern string) (*Writer, error) {
	if err := validatePattern(filePattern); err != nil {
		return nil, err
	}
	return &Writer{filePattern}, nil
}

func (w *Writer) WriteBlock(blockID block.ID, blockData []byte) error {
	filePath := formatPattern(w.filePattern, blockID)

	dirPath := filepath.Dir(filePath)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return err
	}

	return os.WriteFile(filePath, blockData, 0644)
}

func (w *Writer) WriteMetadata(metadata map[string]string) error {
	rootDir := patternRoot(w.filePattern)
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return err
	}

	var sb strings.Builder
	for _, name := range slices.Sorted(maps.Keys(metadata)) {
		value := metadata[name]
		if strings.ContainsAny(name, "=\n") || strings.Contains(value, "\n") {
			return fmt.Errorf("rasterview: metadata entry %q cannot be stored", name)
		}
		fmt.Fprintf(&sb, "%s=%s\n", name, value)
	}
	return os.WriteFile(filepath.Join(rootDir, metadataFile), []byte(sb.String()), 0644)
}

func (w *Writer) Finalize() error {
	return nil
}

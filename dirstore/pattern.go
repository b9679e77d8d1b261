// Package dirstore provides API for reading and writing pyramid blocks in a directory tree,
// where blocks are stored as individual files with paths like "/level/row/col.blk".
package dirstore

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/eak1mov/go-rasterview/block"
)

var ErrInvalidPattern = errors.New("rasterview: invalid file pattern")

const metadataFile = "metadata.txt"

func validatePattern(pattern string) error {
	for _, p := range []string{"{level}", "{row}", "{col}"} {
		if !strings.Contains(pattern, p) {
			return fmt.Errorf("%w: placeholder %v not found", ErrInvalidPattern, p)
		}
	}
	return nil
}

func formatPattern(pattern string, blockID block.ID) string {
	result := pattern
	result = strings.ReplaceAll(result, "{level}", fmt.Sprintf("%d", blockID.Level))
	result = strings.ReplaceAll(result, "{row}", fmt.Sprintf("%d", blockID.Row))
	result = strings.ReplaceAll(result, "{col}", fmt.Sprintf("%d", blockID.Col))
	return result
}

// patternRoot returns the deepest directory shared by all block paths.
func patternRoot(pattern string) string {
	path0 := formatPattern(pattern, block.ID{Level: 0, Row: 0, Col: 0})
	path1 := formatPattern(pattern, block.ID{Level: 1, Row: 1, Col: 1})
	for path0 != path1 {
		path0 = filepath.Dir(path0)
		path1 = filepath.Dir(path1)
	}
	return path0
}

// DefaultPattern returns the block file pattern used under rootDir.
func DefaultPattern(rootDir string) string {
	return filepath.Join(rootDir, "{level}", "{row}", "{col}.blk")
}

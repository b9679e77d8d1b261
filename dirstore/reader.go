package dirstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/eak1mov/go-rasterview/block"
)

// Reader implements block.Reader and block.Visitor interfaces for directory pyramids.
type Reader struct {
	filePattern string
	rootDir     string
	pathRegexp  *regexp.Regexp
}

// NewReader creates a new Reader for the given file pattern (e.g. "/data/pyramid/{level}/{row}/{col}.blk").
func NewReader(filePattern string) (*Reader, error) {
	if err := validatePattern(filePattern); err != nil {
		return nil, err
	}

	regexPattern := regexp.QuoteMeta(filePattern)
	regexPattern = strings.ReplaceAll(regexPattern, regexp.QuoteMeta("{level}"), "(?P<level>\\d+)")
	regexPattern = strings.ReplaceAll(regexPattern, regexp.QuoteMeta("{row}"), "(?P<row>\\d+)")
	regexPattern = strings.ReplaceAll(regexPattern, regexp.QuoteMeta("{col}"), "(?P<col>\\d+)")
	pathRegex, err := regexp.Compile("^" + regexPattern + "$")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	return &Reader{filePattern, patternRoot(filePattern), pathRegex}, nil
}

func (r *Reader) ReadBlock(blockID block.ID) ([]byte, error) {
	filePath := formatPattern(r.filePattern, blockID)
	blockData, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return make([]byte, 0), nil
	}
	if err != nil {
		return nil, err
	}
	return blockData, nil
}

func (r *Reader) ReadMetadata() (map[string]string, error) {
	file, err := os.Open(filepath.Join(r.rootDir, metadataFile))
	if os.IsNotExist(err) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	metadata := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		name, value, found := strings.Cut(scanner.Text(), "=")
		if !found {
			continue
		}
		metadata[name] = value
	}
	return metadata, scanner.Err()
}

func (r *Reader) VisitBlocks(visitor func(block.ID, []byte) error) error {
	return filepath.WalkDir(r.rootDir, func(filePath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		matches := r.pathRegexp.FindStringSubmatch(filePath)
		if matches == nil {
			return nil
		}

		level, _ := strconv.ParseUint(matches[r.pathRegexp.SubexpIndex("level")], 10, 32)
		row, _ := strconv.ParseUint(matches[r.pathRegexp.SubexpIndex("row")], 10, 32)
		col, _ := strconv.ParseUint(matches[r.pathRegexp.SubexpIndex("col")], 10, 32)

		blockData, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}

		return visitor(block.ID{Level: uint32(level), Row: uint32(row), Col: uint32(col)}, blockData)
	})
}

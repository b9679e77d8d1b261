package dirstore_test

import (
	"errors"
	"maps"
	"os"
	"path/filepath"
	"testing"

	"github.com/eak1mov/go-rasterview/block"
	"github.com/eak1mov/go-rasterview/dirstore"
	"github.com/eak1mov/go-rasterview/internal"
	"github.com/google/go-cmp/cmp"
)

func TestWriterReader(t *testing.T) {
	for _, tc := range []struct {
		name    string
		pattern string
	}{
		{"default", dirstore.DefaultPattern("pyramid")},
		{"flat", filepath.Join("flat", "b_{level}_{row}_{col}.bin")},
		{"levels", filepath.Join("deep", "L{level}", "{col}-{row}")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			blocks := internal.Blocks()
			pattern := filepath.Join(t.TempDir(), tc.pattern)
			writerMetadata := map[string]string{"levels": "4x4,2x2,1x1", "geotransform": "0 1 0 0 0 1"}

			writer, err := dirstore.NewWriter(pattern)
			if err != nil {
				t.Fatalf("NewWriter failed: %v", err)
			}
			if err := writer.WriteMetadata(writerMetadata); err != nil {
				t.Fatalf("WriteMetadata failed: %v", err)
			}
			for blockID, blockData := range blocks {
				if err := writer.WriteBlock(blockID, blockData); err != nil {
					t.Fatalf("WriteBlock failed: %v", err)
				}
			}
			if err := writer.Finalize(); err != nil {
				t.Fatalf("Finalize failed: %v", err)
			}

			reader, err := dirstore.NewReader(pattern)
			if err != nil {
				t.Fatalf("NewReader failed: %v", err)
			}

			readerMetadata, err := reader.ReadMetadata()
			if err != nil {
				t.Fatalf("ReadMetadata failed: %v", err)
			}
			if diff := cmp.Diff(writerMetadata, readerMetadata); diff != "" {
				t.Errorf("ReadMetadata mismatch (-want +got):\n%s", diff)
			}

			if diff := cmp.Diff(blocks, maps.Collect(block.IterBlocks(reader))); diff != "" {
				t.Errorf("VisitBlocks mismatch (-want +got):\n%s", diff)
			}

			missing, err := reader.ReadBlock(block.ID{Level: 9, Row: 9, Col: 9})
			if err != nil || len(missing) != 0 {
				t.Errorf("ReadBlock(missing) = %q, %v, want empty", missing, err)
			}
		})
	}
}

func TestInvalidPattern(t *testing.T) {
	for _, pattern := range []string{
		"pyramid/{level}/{row}.blk",
		"pyramid/{row}/{col}.blk",
		"pyramid.blk",
	} {
		if _, err := dirstore.NewWriter(pattern); !errors.Is(err, dirstore.ErrInvalidPattern) {
			t.Errorf("NewWriter(%q) error = %v, want %v", pattern, err, dirstore.ErrInvalidPattern)
		}
		if _, err := dirstore.NewReader(pattern); !errors.Is(err, dirstore.ErrInvalidPattern) {
			t.Errorf("NewReader(%q) error = %v, want %v", pattern, err, dirstore.ErrInvalidPattern)
		}
	}
}

func TestMissingMetadata(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "0", "0"), 0755); err != nil {
		t.Fatal(err)
	}
	reader, err := dirstore.NewReader(dirstore.DefaultPattern(root))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	metadata, err := reader.ReadMetadata()
	if err != nil || len(metadata) != 0 {
		t.Errorf("ReadMetadata = %v, %v, want empty", metadata, err)
	}
}

func TestMetadataRejectsNewlines(t *testing.T) {
	writer, err := dirstore.NewWriter(dirstore.DefaultPattern(t.TempDir()))
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := writer.WriteMetadata(map[string]string{"projection": "a\nb"}); err == nil {
		t.Errorf("WriteMetadata accepted a multi-line value")
	}
}

package raster_test

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"sync"
	"testing"

	"github.com/eak1mov/go-rasterview/block"
	"github.com/eak1mov/go-rasterview/dirstore"
	"github.com/eak1mov/go-rasterview/internal"
	"github.com/eak1mov/go-rasterview/packstore"
	"github.com/eak1mov/go-rasterview/raster"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// mapStore is an in-memory block.Writer and block.Reader counting block reads.
type mapStore struct {
	mu       sync.Mutex
	blocks   map[block.ID][]byte
	metadata map[string]string
	reads    int
}

func newMapStore() *mapStore {
	return &mapStore{blocks: make(map[block.ID][]byte)}
}

func (s *mapStore) WriteBlock(blockID block.ID, blockData []byte) error {
	s.blocks[blockID] = blockData
	return nil
}

func (s *mapStore) WriteMetadata(metadata map[string]string) error {
	s.metadata = metadata
	return nil
}

func (s *mapStore) Finalize() error { return nil }

func (s *mapStore) ReadBlock(blockID block.ID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return s.blocks[blockID], nil
}

func (s *mapStore) ReadMetadata() (map[string]string, error) {
	return s.metadata, nil
}

func (s *mapStore) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func writeGradient(t *testing.T, w block.Writer, blockSize int) (*raster.Memory, int) {
	t.Helper()
	m := internal.Pyramid(600, 400, 2, 4, raster.IdentityGeoTransform)
	levels := make([]*raster.Buffer, m.Descriptor().NumLevels())
	for i := range levels {
		levels[i] = m.Level(i)
	}
	written := 0
	err := raster.WritePyramid(context.Background(), w, levels, m.Descriptor(), blockSize, raster.CompressionGzip, func() { written++ })
	require.NoError(t, err)
	require.Equal(t, raster.CountBlocks(levels, blockSize), written)
	return m, written
}

func TestBlockReaderStores(t *testing.T) {
	for _, tc := range []struct {
		name   string
		create func(dir string) (block.Writer, func() (block.Reader, error))
	}{
		{"pack", func(dir string) (block.Writer, func() (block.Reader, error)) {
			path := filepath.Join(dir, "gradient.rvpk")
			w, err := packstore.NewWriter(path)
			require.NoError(t, err)
			return w, func() (block.Reader, error) { return packstore.NewReader(path) }
		}},
		{"dir", func(dir string) (block.Writer, func() (block.Reader, error)) {
			pattern := dirstore.DefaultPattern(filepath.Join(dir, "gradient"))
			w, err := dirstore.NewWriter(pattern)
			require.NoError(t, err)
			return w, func() (block.Reader, error) { return dirstore.NewReader(pattern) }
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			writer, open := tc.create(t.TempDir())
			m, _ := writeGradient(t, writer, 128)

			blocks, err := open()
			require.NoError(t, err)
			reader, err := raster.OpenBlockReader(blocks)
			require.NoError(t, err)
			defer reader.Close()

			if diff := cmp.Diff(m.Descriptor(), reader.Descriptor()); diff != "" {
				t.Errorf("Descriptor mismatch (-want +got):\n%s", diff)
			}
			if got, want := reader.BlockSize(), 128; got != want {
				t.Errorf("BlockSize = %v, want = %v", got, want)
			}

			region := image.Rect(100, 90, 300, 260)
			got, err := reader.ReadRegion(context.Background(), 0, region)
			require.NoError(t, err)
			want, err := m.ReadRegion(context.Background(), 0, region)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("ReadRegion mismatch (-want +got):\n%s", diff)
			}

			coarse, err := reader.ReadRegion(context.Background(), 3, image.Rect(0, 0, 75, 50))
			require.NoError(t, err)
			if got, want := coarse.Rect.Size(), image.Pt(75, 50); got != want {
				t.Errorf("coarse ReadRegion size = %v, want = %v", got, want)
			}
		})
	}
}

func TestBlockReaderCache(t *testing.T) {
	store := newMapStore()
	writeGradient(t, store, 128)
	reader, err := raster.OpenBlockReader(store)
	require.NoError(t, err)
	defer reader.Close()

	region := image.Rect(0, 0, 256, 256)
	_, err = reader.ReadRegion(context.Background(), 0, region)
	require.NoError(t, err)
	if got, want := store.Reads(), 4; got != want {
		t.Errorf("block reads = %v, want = %v", got, want)
	}

	_, err = reader.ReadRegion(context.Background(), 0, image.Rect(10, 10, 200, 200))
	require.NoError(t, err)
	if got, want := store.Reads(), 4; got != want {
		t.Errorf("block reads after cached read = %v, want = %v", got, want)
	}
}

func TestBlockReaderMissingBlocks(t *testing.T) {
	store := newMapStore()
	writeGradient(t, store, 128)
	delete(store.blocks, block.ID{Level: 0, Row: 0, Col: 1})

	reader, err := raster.OpenBlockReader(store)
	require.NoError(t, err)
	defer reader.Close()

	b, err := reader.ReadRegion(context.Background(), 0, image.Rect(120, 0, 140, 10))
	require.NoError(t, err)
	if got, want := b.At(125, 5, 0), internal.Sample(125, 5, 0); got != want {
		t.Errorf("At(125, 5) = %v, want = %v", got, want)
	}
	if got := b.At(130, 5, 0); got != 0 {
		t.Errorf("At(130, 5) in a missing block = %v, want = 0", got)
	}
}

func TestBlockReaderErrors(t *testing.T) {
	store := newMapStore()
	writeGradient(t, store, 128)
	store.blocks[block.ID{Level: 1, Row: 0, Col: 0}] = []byte("garbage")

	reader, err := raster.OpenBlockReader(store)
	require.NoError(t, err)
	defer reader.Close()

	ctx := context.Background()
	if _, err := reader.ReadRegion(ctx, 0, image.Rect(550, 0, 650, 10)); !errors.Is(err, raster.ErrOutOfBounds) {
		t.Errorf("ReadRegion outside the level error = %v, want %v", err, raster.ErrOutOfBounds)
	}
	if _, err := reader.ReadRegion(ctx, 4, image.Rect(0, 0, 1, 1)); !errors.Is(err, raster.ErrInvalidLevel) {
		t.Errorf("ReadRegion(level 4) error = %v, want %v", err, raster.ErrInvalidLevel)
	}
	if _, err := reader.ReadRegion(ctx, 1, image.Rect(0, 0, 10, 10)); !errors.Is(err, raster.ErrInvalidBlock) {
		t.Errorf("ReadRegion of a corrupt block error = %v, want %v", err, raster.ErrInvalidBlock)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := reader.ReadRegion(canceled, 0, image.Rect(0, 0, 10, 10)); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadRegion(canceled) error = %v, want %v", err, context.Canceled)
	}
}

func TestOpenBlockReaderInvalidMetadata(t *testing.T) {
	store := newMapStore()
	store.metadata = map[string]string{"levels": "64x64", "channels": "1", "blocksize": "large"}
	if _, err := raster.OpenBlockReader(store); !errors.Is(err, raster.ErrInvalidDescriptor) {
		t.Errorf("OpenBlockReader error = %v, want %v", err, raster.ErrInvalidDescriptor)
	}
}

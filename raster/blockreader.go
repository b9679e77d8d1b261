package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"time"

	"github.com/eak1mov/go-rasterview/block"
	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBlockSize = 256
	defaultCacheSize = 64 << 20
	blockCacheTTL    = 10 * time.Minute
)

// BlockReader serves regions of a pyramid stored as encoded blocks.
// Decoded blocks are kept in a size-bounded cache and concurrent reads of the
// same block share one fetch. It is safe for concurrent use if the underlying
// block.Reader is.
type BlockReader struct {
	blocks    block.Reader
	desc      Descriptor
	blockSize int
	logger    *slog.Logger

	cache    *ccache.Cache[*Buffer]
	inflight singleflight.Group
}

type blockReaderConfig struct {
	BlockSize int
	CacheSize int64
	Logger    *slog.Logger
}

type BlockReaderOption func(*blockReaderConfig)

// WithBlockSize overrides the block size recorded in the store metadata.
func WithBlockSize(size int) BlockReaderOption {
	return func(c *blockReaderConfig) { c.BlockSize = size }
}

// WithCacheSize bounds the decoded block cache in bytes.
func WithCacheSize(bytes int64) BlockReaderOption {
	return func(c *blockReaderConfig) { c.CacheSize = bytes }
}

func WithLogger(logger *slog.Logger) BlockReaderOption {
	return func(c *blockReaderConfig) { c.Logger = logger }
}

// OpenBlockReader reads the descriptor from the store metadata and returns a reader for it.
func OpenBlockReader(blocks block.Reader, opts ...BlockReaderOption) (*BlockReader, error) {
	metadata, err := blocks.ReadMetadata()
	if err != nil {
		return nil, err
	}
	desc, err := ParseMetadata(metadata)
	if err != nil {
		return nil, err
	}

	blockSize := DefaultBlockSize
	if value, found := metadata["blocksize"]; found {
		if blockSize, err = strconv.Atoi(value); err != nil {
			return nil, fmt.Errorf("%w: blocksize: %w", ErrInvalidDescriptor, err)
		}
	}
	return NewBlockReader(blocks, desc, append([]BlockReaderOption{WithBlockSize(blockSize)}, opts...)...)
}

func NewBlockReader(blocks block.Reader, desc Descriptor, opts ...BlockReaderOption) (*BlockReader, error) {
	config := blockReaderConfig{
		BlockSize: DefaultBlockSize,
		CacheSize: defaultCacheSize,
		Logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if config.BlockSize <= 0 {
		return nil, fmt.Errorf("%w: block size %d", ErrInvalidDescriptor, config.BlockSize)
	}

	return &BlockReader{
		blocks:    blocks,
		desc:      desc,
		blockSize: config.BlockSize,
		logger:    config.Logger,
		cache:     ccache.New(ccache.Configure[*Buffer]().MaxSize(config.CacheSize).ItemsToPrune(16)),
	}, nil
}

// Close stops the cache maintenance goroutine. It does not close the block store.
func (r *BlockReader) Close() error {
	r.cache.Stop()
	return nil
}

func (r *BlockReader) Descriptor() Descriptor { return r.desc }

func (r *BlockReader) BlockSize() int { return r.blockSize }

func (r *BlockReader) ReadRegion(ctx context.Context, level int, region image.Rectangle) (*Buffer, error) {
	bounds, err := r.desc.Bounds(level)
	if err != nil {
		return nil, err
	}
	if region.Empty() || !region.In(bounds) {
		return nil, fmt.Errorf("%w: %v not in %v at level %d", ErrOutOfBounds, region, bounds, level)
	}

	out := NewBuffer(region, r.desc.Channels)
	bs := r.blockSize
	for row := region.Min.Y / bs; row <= (region.Max.Y-1)/bs; row++ {
		for col := region.Min.X / bs; col <= (region.Max.X-1)/bs; col++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			blockID := block.ID{Level: uint32(level), Row: uint32(row), Col: uint32(col)}
			b, err := r.readBlock(blockID)
			if errors.Is(err, errEmptyBlock) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("read block %v: %w", blockID, err)
			}
			out.Copy(b)
		}
	}
	return out, nil
}

func (r *BlockReader) readBlock(blockID block.ID) (*Buffer, error) {
	key := blockID.String()
	if item := r.cache.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	v, err, _ := r.inflight.Do(key, func() (any, error) {
		data, err := r.blocks.ReadBlock(blockID)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errEmptyBlock
		}
		origin := image.Pt(int(blockID.Col)*r.blockSize, int(blockID.Row)*r.blockSize)
		b, err := DecodeBlock(data, origin)
		if err != nil {
			return nil, err
		}
		if b.Channels != r.desc.Channels {
			return nil, fmt.Errorf("%w: block has %d channels, dataset %d", ErrInvalidBlock, b.Channels, r.desc.Channels)
		}
		r.cache.Set(key, b, blockCacheTTL)
		r.logger.Debug("rasterview: block decoded", "block", key, "bytes", b.Size())
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Buffer), nil
}

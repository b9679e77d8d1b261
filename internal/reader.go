package internal

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/eak1mov/go-rasterview/raster"
)

var ErrInjected = errors.New("injected read failure")

// Synthetic is a dataset of any size whose samples are computed on read.
// Level l holds Sample of the level pixel coordinates.
type Synthetic struct {
	Desc raster.Descriptor
}

func (s *Synthetic) Descriptor() raster.Descriptor { return s.Desc }

func (s *Synthetic) ReadRegion(ctx context.Context, level int, region image.Rectangle) (*raster.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bounds, err := s.Desc.Bounds(level)
	if err != nil {
		return nil, err
	}
	if region.Empty() || !region.In(bounds) {
		return nil, fmt.Errorf("%w: %v not in %v", raster.ErrOutOfBounds, region, bounds)
	}
	b := raster.NewBuffer(region, s.Desc.Channels)
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			for c := 0; c < s.Desc.Channels; c++ {
				b.Set(x, y, c, Sample(x, y, c))
			}
		}
	}
	return b, nil
}

type Read struct {
	Level  int
	Region image.Rectangle
}

type failure struct {
	err  error
	once bool
}

// Reader wraps a raster.Reader with failure injection, latency and a log of
// the reads it served. It is safe for concurrent use.
type Reader struct {
	inner raster.Reader

	mu       sync.Mutex
	failures map[Read]failure
	latency  time.Duration
	gate     chan struct{}
	reads    []Read
}

func NewReader(inner raster.Reader) *Reader {
	return &Reader{inner: inner, failures: make(map[Read]failure)}
}

// Fail makes every read of exactly region at level fail with err until Heal.
func (r *Reader) Fail(level int, region image.Rectangle, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[Read{level, region}] = failure{err: err}
}

// FailOnce makes the next read of region at level fail with err.
func (r *Reader) FailOnce(level int, region image.Rectangle, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[Read{level, region}] = failure{err: err, once: true}
}

func (r *Reader) Heal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.failures)
}

func (r *Reader) SetLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latency = d
}

// Hold blocks reads until Release is called or their context is done.
func (r *Reader) Hold() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate == nil {
		r.gate = make(chan struct{})
	}
}

func (r *Reader) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate != nil {
		close(r.gate)
		r.gate = nil
	}
}

// Reads returns the reads attempted so far, failed ones included.
func (r *Reader) Reads() []Read {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Read(nil), r.reads...)
}

func (r *Reader) ReadRegion(ctx context.Context, level int, region image.Rectangle) (*raster.Buffer, error) {
	read := Read{level, region}

	r.mu.Lock()
	r.reads = append(r.reads, read)
	gate, latency := r.gate, r.latency
	f, failing := r.failures[read]
	if failing && f.once {
		delete(r.failures, read)
	}
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failing {
		return nil, f.err
	}
	return r.inner.ReadRegion(ctx, level, region)
}

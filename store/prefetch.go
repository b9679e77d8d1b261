package store

import (
	"context"
	"image"
	"log/slog"
	"sync"

	"github.com/eak1mov/go-rasterview/raster"
	"github.com/eak1mov/go-rasterview/tile"
)

// Result is a finished background read.
type Result struct {
	Buffer *raster.Buffer
	Err    error
}

type request struct {
	cancel context.CancelFunc
}

// Prefetcher reads tile regions on background goroutines. At most one read
// is in flight per key and at most workers reads run at once. Finished reads
// wait in the prefetcher until Take collects them; nothing is uploaded here.
type Prefetcher struct {
	reader raster.Reader
	slots  chan struct{}
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[tile.Key]*request
	ready    map[tile.Key]Result
}

type PrefetcherOption func(*prefetcherConfig)

type prefetcherConfig struct {
	Logger *slog.Logger
}

func WithPrefetchLogger(logger *slog.Logger) PrefetcherOption {
	return func(c *prefetcherConfig) { c.Logger = logger }
}

func NewPrefetcher(reader raster.Reader, workers int, opts ...PrefetcherOption) *Prefetcher {
	config := prefetcherConfig{Logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&config)
	}
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Prefetcher{
		reader:   reader,
		slots:    make(chan struct{}, workers),
		logger:   config.Logger,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[tile.Key]*request),
		ready:    make(map[tile.Key]Result),
	}
}

// Request starts reading region for key unless a read for key is in flight
// or its result is waiting. It reports whether a new read was started.
func (p *Prefetcher) Request(key tile.Key, region image.Rectangle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return false
	}
	if _, ok := p.inflight[key]; ok {
		return false
	}
	if _, ok := p.ready[key]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(p.ctx)
	req := &request{cancel: cancel}
	p.inflight[key] = req

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()

		select {
		case p.slots <- struct{}{}:
		case <-ctx.Done():
			p.finish(key, req, Result{Err: ctx.Err()})
			return
		}
		buf, err := p.reader.ReadRegion(ctx, key.Level, region)
		<-p.slots
		p.finish(key, req, Result{Buffer: buf, Err: err})
	}()
	return true
}

func (p *Prefetcher) finish(key tile.Key, req *request, res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inflight[key] != req {
		p.logger.Debug("rasterview: discarding superseded read", "tile", key, "error", res.Err)
		return
	}
	delete(p.inflight, key)
	p.ready[key] = res
}

// Take removes and returns the finished read of key.
func (p *Prefetcher) Take(key tile.Key) (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	res, ok := p.ready[key]
	if ok {
		delete(p.ready, key)
	}
	return res, ok
}

// Retain cancels in-flight reads and drops finished reads of every key for
// which keep returns false. A nil keep drops everything.
func (p *Prefetcher) Retain(keep func(tile.Key) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, req := range p.inflight {
		if keep == nil || !keep(key) {
			req.cancel()
			delete(p.inflight, key)
			p.logger.Debug("rasterview: cancelled read", "tile", key)
		}
	}
	for key := range p.ready {
		if keep == nil || !keep(key) {
			delete(p.ready, key)
		}
	}
}

// InFlight returns the number of reads started and not finished.
func (p *Prefetcher) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

// Ready returns the number of finished reads waiting for Take.
func (p *Prefetcher) Ready() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ready)
}

// Wait blocks until every started read goroutine returned.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}

// Close cancels all reads and waits for them.
func (p *Prefetcher) Close() {
	p.cancel()
	p.Retain(nil)
	p.wg.Wait()
}

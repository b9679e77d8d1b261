package internal

import (
	"fmt"
	"sync"

	"github.com/eak1mov/go-rasterview/gfx"
)

type Draw struct {
	Handle gfx.Handle
	Quad   gfx.Quad
	Params gfx.DrawParams
}

// Device is a gfx.Device recording every call. Capacity, when positive,
// limits the bytes of live textures.
type Device struct {
	Capacity int64
	InitErr  error

	mu       sync.Mutex
	next     gfx.Handle
	textures map[gfx.Handle]int64
	used     int64
	inits    int
	uploads  []gfx.Handle
	releases []gfx.Handle
	draws    []Draw
	frames   []gfx.Frame
	events   []string
}

func NewDevice() *Device {
	return &Device{textures: make(map[gfx.Handle]int64)}
}

func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inits++
	d.events = append(d.events, "init")
	return d.InitErr
}

func (d *Device) Upload(buf gfx.PixelBuffer) (gfx.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := buf.Bytes()
	if d.Capacity > 0 && d.used+size > d.Capacity {
		d.events = append(d.events, "upload oom")
		return gfx.NoHandle, gfx.ErrOutOfMemory
	}
	d.next++
	d.textures[d.next] = size
	d.used += size
	d.uploads = append(d.uploads, d.next)
	d.events = append(d.events, fmt.Sprintf("upload %d", d.next))
	return d.next, nil
}

func (d *Device) Release(h gfx.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.used -= d.textures[h]
	delete(d.textures, h)
	d.releases = append(d.releases, h)
	d.events = append(d.events, fmt.Sprintf("release %d", h))
}

func (d *Device) BeginFrame(frame gfx.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, frame)
	d.events = append(d.events, "begin")
	return nil
}

func (d *Device) DrawQuad(h gfx.Handle, quad gfx.Quad, params gfx.DrawParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.textures[h]; !ok {
		return fmt.Errorf("%w: %d", gfx.ErrInvalidHandle, h)
	}
	d.draws = append(d.draws, Draw{Handle: h, Quad: quad, Params: params})
	d.events = append(d.events, fmt.Sprintf("draw %d", h))
	return nil
}

func (d *Device) EndFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, "end")
	return nil
}

func (d *Device) Inits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inits
}

// Live returns the number of textures not released.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures)
}

func (d *Device) Used() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used
}

func (d *Device) Uploads() []gfx.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gfx.Handle(nil), d.uploads...)
}

func (d *Device) Releases() []gfx.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gfx.Handle(nil), d.releases...)
}

// Draws returns the draw calls of all frames.
func (d *Device) Draws() []Draw {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Draw(nil), d.draws...)
}

func (d *Device) Frames() []gfx.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gfx.Frame(nil), d.frames...)
}

func (d *Device) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// Reset forgets the recorded calls, keeping the live textures.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploads, d.releases, d.draws, d.frames, d.events = nil, nil, nil, nil, nil
}

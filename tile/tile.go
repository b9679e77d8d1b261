// Package tile provides the cached tile type and its display parameters.
package tile

import (
	"fmt"
	"image"

	"github.com/eak1mov/go-rasterview/gfx"
)

// Key identifies a tile by resolution level and position in the level's tile grid.
type Key struct {
	Level int
	Row   int
	Col   int
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Level, k.Row, k.Col)
}

// Valid reports whether the key has no negative component.
// Range checks against a dataset are done by tileindex.Grid.
func (k Key) Valid() bool {
	return k.Level >= 0 && k.Row >= 0 && k.Col >= 0
}

type State uint8

const (
	Unloaded State = iota
	Loaded
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Tile is the unit of caching. Region and Quad are fixed at construction,
// only the load state and the device binding change afterwards.
type Tile struct {
	Key    Key
	Region image.Rectangle // image space at Key.Level, clipped to the level bounds
	Quad   gfx.Quad        // viewport space corners of Region

	state  State
	handle gfx.Handle
	params DisplayParams
	bytes  int64
}

// New returns an Unloaded tile.
func New(key Key, region image.Rectangle, quad gfx.Quad) *Tile {
	return &Tile{Key: key, Region: region, Quad: quad}
}

func (t *Tile) State() State { return t.state }

func (t *Tile) Loaded() bool { return t.state == Loaded }

// Handle returns the device handle of a Loaded tile, gfx.NoHandle otherwise.
func (t *Tile) Handle() gfx.Handle { return t.handle }

// Params returns the display parameters captured when the tile was loaded.
func (t *Tile) Params() DisplayParams { return t.params }

// Bytes returns the device memory held by the tile.
func (t *Tile) Bytes() int64 { return t.bytes }

// Bind marks the tile Loaded with the given device resource.
// It panics on an invalid handle since a Loaded tile must own one.
func (t *Tile) Bind(handle gfx.Handle, params DisplayParams, bytes int64) {
	if handle == gfx.NoHandle {
		panic("rasterview: binding tile " + t.Key.String() + " to an invalid handle")
	}
	t.state = Loaded
	t.handle = handle
	t.params = params
	t.bytes = bytes
}

// Unbind reverts the tile to Unloaded and returns the handle it owned.
// The caller is responsible for releasing it.
func (t *Tile) Unbind() gfx.Handle {
	handle := t.handle
	t.state = Unloaded
	t.handle = gfx.NoHandle
	t.params = DisplayParams{}
	t.bytes = 0
	return handle
}

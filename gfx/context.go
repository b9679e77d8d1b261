package gfx

import (
	"fmt"
	"log/slog"
)

// Context wraps a Device and initializes it on first use.
// A failed initialization is retried on the next call.
type Context struct {
	device      Device
	logger      *slog.Logger
	initialized bool
}

func NewContext(device Device, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Context{device: device, logger: logger}
}

func (c *Context) Device() Device { return c.device }

// Initialized reports whether the device setup already ran successfully.
func (c *Context) Initialized() bool { return c.initialized }

func (c *Context) init() error {
	if c.initialized {
		return nil
	}
	if initializer, ok := c.device.(Initializer); ok {
		if err := initializer.Init(); err != nil {
			return fmt.Errorf("rasterview: device init: %w", err)
		}
		c.logger.Debug("rasterview: device initialized")
	}
	c.initialized = true
	return nil
}

func (c *Context) Upload(buf PixelBuffer) (Handle, error) {
	if err := c.init(); err != nil {
		return NoHandle, err
	}
	if err := buf.Validate(); err != nil {
		return NoHandle, err
	}
	return c.device.Upload(buf)
}

func (c *Context) Release(handle Handle) {
	if handle == NoHandle {
		return
	}
	c.device.Release(handle)
}

func (c *Context) BeginFrame(frame Frame) error {
	if err := c.init(); err != nil {
		return err
	}
	return c.device.BeginFrame(frame)
}

func (c *Context) DrawQuad(handle Handle, quad Quad, params DrawParams) error {
	return c.device.DrawQuad(handle, quad, params)
}

func (c *Context) EndFrame() error {
	return c.device.EndFrame()
}

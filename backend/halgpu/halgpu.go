// Package halgpu implements gpu.Context on a gogpu/wgpu HAL device.
//
// Texture names are backed by hal textures that get storage when a decoder
// surface is registered against them. The surface interop reads mapped
// surfaces through the decoder device and uploads each field with
// Queue.WriteTexture. Render passes run the field weave program compiled
// from WGSL with naga.
//
// The context works on any HAL backend, including the noop backend used by
// the tests. It does not own the device: Close releases what the context
// created and leaves the device to its owner.
package halgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hwdec/gpu"
)

// ErrClosed is returned by operations on a closed Context.
var ErrClosed = errors.New("halgpu: context closed")

// Config configures a Context.
type Config struct {
	// Display is the native display connection the decoder device is
	// opened on. Zero means the context has none.
	Display uintptr
	// Label prefixes the labels of every HAL object the context creates.
	Label   string
	Adapter gpucontext.AdapterInfo
	// Interop enables decoder surface interop.
	Interop bool
}

// DefaultConfig returns a configuration without a display and with interop
// enabled.
func DefaultConfig() Config {
	return Config{
		Label:   "hwdec",
		Adapter: gpucontext.AdapterInfo{Name: "hal", Type: gpucontext.AdapterTypeUnknown},
		Interop: true,
	}
}

// texture is the storage behind a texture name. tex and view are nil until
// the name is given storage.
type texture struct {
	target gpu.TextureTarget
	width  int
	height int
	format gpu.Format
	tex    hal.Texture
	view   hal.TextureView
	owner  uint32 // render target id, 0 for plain names
}

// Context is a gpu.Context on a HAL device. All methods are safe for
// concurrent use.
type Context struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue
	cfg    Config
	closed bool

	nextTex  gpu.TextureID
	textures map[gpu.TextureID]*texture
	nextRT   uint32
	targets  map[uint32]gpu.TextureID

	renderers map[*passRenderer]struct{}
	interop   *interop
}

// New returns a context rendering with device and queue.
func New(device hal.Device, queue hal.Queue, cfg Config) (*Context, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("halgpu: nil device or queue")
	}
	c := &Context{
		device:    device,
		queue:     queue,
		cfg:       cfg,
		textures:  make(map[gpu.TextureID]*texture),
		targets:   make(map[uint32]gpu.TextureID),
		renderers: make(map[*passRenderer]struct{}),
	}
	c.interop = &interop{c: c, regs: make(map[gpu.InteropSurface]*registration)}
	return c, nil
}

// NewFromProvider returns a context on the device shared by an external
// provider. The provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue. When it also reports adapter metadata,
// as a gpucontext.DeviceProvider does, that replaces cfg.Adapter so driver
// probing sees the real adapter type.
func NewFromProvider(provider any, cfg Config) (*Context, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("halgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("halgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("halgpu: provider HalQueue is not hal.Queue")
	}
	if ap, ok := provider.(interface{ AdapterInfo() gpucontext.AdapterInfo }); ok {
		cfg.Adapter = ap.AdapterInfo()
	}
	return New(device, queue, cfg)
}

// SetLogger sets the logger of the package. Drivers call it when they are
// created on the context.
func (c *Context) SetLogger(l *slog.Logger) { setLogger(l) }

func (c *Context) label(name string) string {
	if c.cfg.Label == "" {
		return name
	}
	return c.cfg.Label + "_" + name
}

// Display implements gpu.Context.
func (c *Context) Display() uintptr { return c.cfg.Display }

// Caps implements gpu.Context.
func (c *Context) Caps() gpu.Caps {
	if c.cfg.Interop {
		return gpu.CapVideoInterop
	}
	return 0
}

// AdapterInfo implements gpu.Context.
func (c *Context) AdapterInfo() gpucontext.AdapterInfo { return c.cfg.Adapter }

// GenTextures implements gpu.Context.
func (c *Context) GenTextures(target gpu.TextureTarget, n int) ([]gpu.TextureID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	ids := make([]gpu.TextureID, n)
	for i := range ids {
		c.nextTex++
		ids[i] = c.nextTex
		c.textures[c.nextTex] = &texture{target: target}
	}
	return ids, nil
}

// DeleteTextures implements gpu.Context.
func (c *Context) DeleteTextures(ids []gpu.TextureID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		t, ok := c.textures[id]
		if !ok || t.owner != 0 {
			continue
		}
		c.destroyStorage(t)
		delete(c.textures, id)
	}
}

// ensureStorage gives t storage of the given shape, keeping the existing
// storage when the shape matches. Must be called with c.mu held.
func (c *Context) ensureStorage(t *texture, name string, width, height int, format gpu.Format, usage gputypes.TextureUsage) error {
	if t.tex != nil && t.width == width && t.height == height && t.format == format {
		return nil
	}
	c.destroyStorage(t)

	tex, err := c.device.CreateTexture(&hal.TextureDescriptor{
		Label:         c.label(name),
		Size:          hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format.TextureFormat(),
		Usage:         usage,
	})
	if err != nil {
		return fmt.Errorf("create %s texture: %w", name, err)
	}
	view, err := c.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: c.label(name + "_view"),
	})
	if err != nil {
		c.device.DestroyTexture(tex)
		return fmt.Errorf("create %s view: %w", name, err)
	}
	t.tex, t.view = tex, view
	t.width, t.height, t.format = width, height, format
	return nil
}

// destroyStorage releases the storage of t. Must be called with c.mu held.
func (c *Context) destroyStorage(t *texture) {
	if t.view != nil {
		c.device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.tex != nil {
		c.device.DestroyTexture(t.tex)
		t.tex = nil
	}
	t.width, t.height, t.format = 0, 0, 0
}

// NewRenderTarget implements gpu.Context.
func (c *Context) NewRenderTarget(width, height int, format gpu.Format) (gpu.RenderTarget, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return gpu.RenderTarget{}, ErrClosed
	}
	if width <= 0 || height <= 0 || format.BytesPerTexel() == 0 {
		return gpu.RenderTarget{}, fmt.Errorf("halgpu: invalid render target %dx%d %v", width, height, format)
	}
	t := &texture{target: gpu.Target2D}
	usage := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc
	if err := c.ensureStorage(t, "render_target", width, height, format, usage); err != nil {
		return gpu.RenderTarget{}, err
	}
	c.nextRT++
	c.nextTex++
	t.owner = c.nextRT
	c.textures[c.nextTex] = t
	c.targets[c.nextRT] = c.nextTex
	return gpu.RenderTarget{ID: c.nextRT, Texture: c.nextTex, Width: width, Height: height, Format: format}, nil
}

// DeleteRenderTarget implements gpu.Context.
func (c *Context) DeleteRenderTarget(rt gpu.RenderTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.targets[rt.ID]
	if !ok {
		return
	}
	c.destroyStorage(c.textures[id])
	delete(c.targets, rt.ID)
	delete(c.textures, id)
}

// Interop implements gpu.Context.
func (c *Context) Interop() gpu.Interop { return c.interop }

// NewPassRenderer implements gpu.Context.
func (c *Context) NewPassRenderer() (gpu.PassRenderer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	r := &passRenderer{c: c, pipelines: make(map[pipelineKey]hal.RenderPipeline)}
	if err := r.ensureLayouts(); err != nil {
		r.destroy()
		return nil, err
	}
	c.renderers[r] = struct{}{}
	return r, nil
}

// TextureView returns the view of texture id, or nil if the name has no
// storage. Presentation code binds it to sample a reconstructed plane.
func (c *Context) TextureView(id gpu.TextureID) hal.TextureView {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.textures[id]; ok {
		return t.view
	}
	return nil
}

// TextureSize returns the storage size of texture id.
func (c *Context) TextureSize(id gpu.TextureID) (width, height int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.textures[id]
	if !ok {
		return 0, 0, false
	}
	return t.width, t.height, true
}

// Close releases every object the context created. The device and queue
// are left to their owner.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for r := range c.renderers {
		r.destroy()
	}
	clear(c.renderers)
	c.interop.reset()
	for id, t := range c.textures {
		c.destroyStorage(t)
		delete(c.textures, id)
	}
	clear(c.targets)
	slogger().Debug("halgpu: context closed")
}

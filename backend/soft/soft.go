// Package soft implements gpu.Context on the CPU.
//
// Textures are byte slices, render passes are rasterized by evaluating the
// fragment program at every pixel center, and the decoder surface interop
// copies surface contents into the field textures on map. The context counts
// every live object and can fail any operation once on request, which makes
// it the reference backend for driver tests and for cmd/hwdeccheck.
package soft

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/hwdec/gpu"
)

// Op names a context operation for fault injection.
type Op string

const (
	OpGenTextures     Op = "gen_textures"
	OpNewRenderTarget Op = "new_render_target"
	OpNewPassRenderer Op = "new_pass_renderer"
	OpDraw            Op = "draw"
	OpInteropInit     Op = "interop_init"
	OpRegister        Op = "register"
	OpSetAccess       Op = "set_access"
	OpMap             Op = "map"
	OpUnmap           Op = "unmap"
	OpUnregister      Op = "unregister"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("soft: injected fault")

// Config configures a Context.
type Config struct {
	// Display is the native display connection reported by the context.
	// Zero means the context has none.
	Display uintptr
	Caps    gpu.Caps
	Adapter gpucontext.AdapterInfo
}

// DefaultConfig returns a configuration with a display and video interop.
func DefaultConfig() Config {
	return Config{
		Display: 1,
		Caps:    gpu.CapVideoInterop,
		Adapter: gpucontext.AdapterInfo{Name: "hwdec soft", Type: gpucontext.AdapterTypeUnknown},
	}
}

type texture struct {
	target gpu.TextureTarget
	width  int
	height int
	format gpu.Format
	data   []byte
	owner  uint32 // render target id, 0 for plain names
}

// Context is a CPU gpu.Context. All methods are safe for concurrent use.
type Context struct {
	mu sync.Mutex

	cfg       Config
	nextTex   gpu.TextureID
	textures  map[gpu.TextureID]*texture
	nextRT    uint32
	targets   map[uint32]gpu.TextureID
	renderers int
	draws     int
	faults    map[Op]error
	interop   *interop
}

// New returns a context configured by cfg.
func New(cfg Config) *Context {
	c := &Context{
		cfg:      cfg,
		textures: make(map[gpu.TextureID]*texture),
		targets:  make(map[uint32]gpu.TextureID),
		faults:   make(map[Op]error),
	}
	c.interop = &interop{c: c, regs: make(map[gpu.InteropSurface]*registration)}
	return c
}

// FailNext makes the next call of op fail with err, or ErrInjected if err
// is nil.
func (c *Context) FailNext(op Op, err error) {
	if err == nil {
		err = ErrInjected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[op] = err
}

// takeFault must be called with c.mu held.
func (c *Context) takeFault(op Op) error {
	err, ok := c.faults[op]
	if !ok {
		return nil
	}
	delete(c.faults, op)
	return err
}

// Display implements gpu.Context.
func (c *Context) Display() uintptr { return c.cfg.Display }

// Caps implements gpu.Context.
func (c *Context) Caps() gpu.Caps { return c.cfg.Caps }

// AdapterInfo implements gpu.Context.
func (c *Context) AdapterInfo() gpucontext.AdapterInfo { return c.cfg.Adapter }

// GenTextures implements gpu.Context.
func (c *Context) GenTextures(target gpu.TextureTarget, n int) ([]gpu.TextureID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFault(OpGenTextures); err != nil {
		return nil, err
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
		if t, ok := c.textures[id]; ok && t.owner == 0 {
			delete(c.textures, id)
		}
	}
}

// NewRenderTarget implements gpu.Context.
func (c *Context) NewRenderTarget(width, height int, format gpu.Format) (gpu.RenderTarget, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFault(OpNewRenderTarget); err != nil {
		return gpu.RenderTarget{}, err
	}
	if width <= 0 || height <= 0 || format.BytesPerTexel() == 0 {
		return gpu.RenderTarget{}, fmt.Errorf("soft: invalid render target %dx%d %v", width, height, format)
	}
	c.nextRT++
	c.nextTex++
	c.textures[c.nextTex] = &texture{
		target: gpu.Target2D,
		width:  width,
		height: height,
		format: format,
		data:   make([]byte, width*height*format.BytesPerTexel()),
		owner:  c.nextRT,
	}
	c.targets[c.nextRT] = c.nextTex
	return gpu.RenderTarget{ID: c.nextRT, Texture: c.nextTex, Width: width, Height: height, Format: format}, nil
}

// DeleteRenderTarget implements gpu.Context.
func (c *Context) DeleteRenderTarget(rt gpu.RenderTarget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tex, ok := c.targets[rt.ID]
	if !ok {
		return
	}
	delete(c.targets, rt.ID)
	delete(c.textures, tex)
}

// Interop implements gpu.Context.
func (c *Context) Interop() gpu.Interop { return c.interop }

// NewPassRenderer implements gpu.Context.
func (c *Context) NewPassRenderer() (gpu.PassRenderer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFault(OpNewPassRenderer); err != nil {
		return nil, err
	}
	c.renderers++
	return &passRenderer{c: c}, nil
}

// WriteTexture gives texture id storage of the given shape and contents.
// Tests use it to prepare sources for render passes.
func (c *Context) WriteTexture(id gpu.TextureID, width, height int, format gpu.Format, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.textures[id]
	if !ok {
		return fmt.Errorf("%w: %d", gpu.ErrUnknownTexture, id)
	}
	if len(data) != width*height*format.BytesPerTexel() {
		return fmt.Errorf("soft: %d bytes for %dx%d %v", len(data), width, height, format)
	}
	t.width, t.height, t.format = width, height, format
	t.data = append([]byte(nil), data...)
	return nil
}

// ReadTexture returns a copy of the contents of texture id.
func (c *Context) ReadTexture(id gpu.TextureID) (width, height int, format gpu.Format, data []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.textures[id]
	if !ok {
		return 0, 0, 0, nil, fmt.Errorf("%w: %d", gpu.ErrUnknownTexture, id)
	}
	return t.width, t.height, t.format, append([]byte(nil), t.data...), nil
}

// TextureTarget returns the target texture id was generated for.
func (c *Context) TextureTarget(id gpu.TextureID) (gpu.TextureTarget, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.textures[id]
	if !ok {
		return 0, false
	}
	return t.target, true
}

// Stats counts the live objects of a Context.
type Stats struct {
	Textures       int
	RenderTargets  int
	PassRenderers  int
	Registrations  int
	Mapped         int
	InteropActive  bool
	PassesRendered int
}

// Zero reports whether no object is alive.
func (s Stats) Zero() bool {
	return s.Textures == 0 && s.RenderTargets == 0 && s.PassRenderers == 0 &&
		s.Registrations == 0 && s.Mapped == 0 && !s.InteropActive
}

// Live returns the live object counts.
func (c *Context) Live() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Textures:       len(c.textures) - len(c.targets),
		RenderTargets:  len(c.targets),
		PassRenderers:  c.renderers,
		Registrations:  len(c.interop.regs),
		InteropActive:  c.interop.active,
		PassesRendered: c.draws,
	}
	for _, r := range c.interop.regs {
		if r.mapped {
			s.Mapped++
		}
	}
	return s
}

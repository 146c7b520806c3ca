package soft

import (
	"fmt"
	"sort"

	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/gpu"
)

type registration struct {
	surface  device.SurfaceHandle
	params   device.SurfaceParams
	target   gpu.TextureTarget
	textures []gpu.TextureID
	access   gpu.Access
	mapped   bool
}

// Registration describes a registered decoder surface.
type Registration struct {
	Name    gpu.InteropSurface
	Surface device.SurfaceHandle
	Access  gpu.Access
	Mapped  bool
}

// interop copies decoder surfaces into field textures on map.
// All state is guarded by c.mu.
type interop struct {
	c      *Context
	active bool
	dev    device.Handle
	fns    device.Functions
	next   gpu.InteropSurface
	regs   map[gpu.InteropSurface]*registration
}

func (i *interop) Init(dev device.Handle, fns device.Functions) error {
	i.c.mu.Lock()
	defer i.c.mu.Unlock()
	if err := i.c.takeFault(OpInteropInit); err != nil {
		return err
	}
	if i.active {
		return fmt.Errorf("%w: already initialized", gpu.ErrInteropState)
	}
	if fns == nil {
		return fmt.Errorf("soft: interop init without function table")
	}
	i.active = true
	i.dev = dev
	i.fns = fns
	return nil
}

func (i *interop) Fini() error {
	i.c.mu.Lock()
	defer i.c.mu.Unlock()
	if !i.active {
		return fmt.Errorf("%w: not initialized", gpu.ErrInteropState)
	}
	for name, r := range i.regs {
		i.detach(r)
		delete(i.regs, name)
	}
	i.active = false
	i.fns = nil
	return nil
}

func (i *interop) RegisterVideoSurface(s device.SurfaceHandle, target gpu.TextureTarget, textures []gpu.TextureID) (gpu.InteropSurface, error) {
	i.c.mu.Lock()
	defer i.c.mu.Unlock()
	if err := i.c.takeFault(OpRegister); err != nil {
		return 0, err
	}
	if !i.active {
		return 0, fmt.Errorf("%w: register before init", gpu.ErrInteropState)
	}
	if len(textures) != 4 {
		return 0, fmt.Errorf("soft: register needs 4 textures, got %d", len(textures))
	}
	for _, id := range textures {
		t, ok := i.c.textures[id]
		if !ok {
			return 0, fmt.Errorf("%w: %d", gpu.ErrUnknownTexture, id)
		}
		if t.target != target {
			return 0, fmt.Errorf("soft: texture %d is %v, registering as %v", id, t.target, target)
		}
	}
	params, err := i.fns.VideoSurfaceGetParameters(s)
	if err != nil {
		return 0, fmt.Errorf("soft: surface %#x parameters: %w", uint32(s), err)
	}

	layout := gpu.FieldLayout(params)
	for n, id := range textures {
		t := i.c.textures[id]
		t.width, t.height, t.format = layout[n].Width, layout[n].Height, layout[n].Format
		t.data = make([]byte, t.width*t.height*t.format.BytesPerTexel())
	}

	i.next++
	i.regs[i.next] = &registration{
		surface:  s,
		params:   params,
		target:   target,
		textures: append([]gpu.TextureID(nil), textures...),
		access:   gpu.AccessReadWrite,
	}
	return i.next, nil
}

func (i *interop) SetAccess(s gpu.InteropSurface, a gpu.Access) error {
	i.c.mu.Lock()
	defer i.c.mu.Unlock()
	if err := i.c.takeFault(OpSetAccess); err != nil {
		return err
	}
	r, ok := i.regs[s]
	if !ok {
		return fmt.Errorf("%w: unknown surface %d", gpu.ErrInteropState, s)
	}
	if r.mapped {
		return fmt.Errorf("%w: set access while mapped", gpu.ErrInteropState)
	}
	r.access = a
	return nil
}

func (i *interop) Map(s gpu.InteropSurface) error {
	i.c.mu.Lock()
	defer i.c.mu.Unlock()
	if err := i.c.takeFault(OpMap); err != nil {
		return err
	}
	r, ok := i.regs[s]
	if !ok {
		return fmt.Errorf("%w: unknown surface %d", gpu.ErrInteropState, s)
	}
	if r.mapped {
		return fmt.Errorf("%w: surface %d already mapped", gpu.ErrInteropState, s)
	}
	if r.access != gpu.AccessWriteDiscard {
		fields, err := gpu.ReadFields(i.fns, r.surface, r.params)
		if err != nil {
			return err
		}
		for n, id := range r.textures {
			copy(i.c.textures[id].data, fields[n])
		}
	}
	r.mapped = true
	return nil
}

func (i *interop) Unmap(s gpu.InteropSurface) error {
	i.c.mu.Lock()
	defer i.c.mu.Unlock()
	if err := i.c.takeFault(OpUnmap); err != nil {
		return err
	}
	r, ok := i.regs[s]
	if !ok || !r.mapped {
		return fmt.Errorf("%w: unmap of unmapped surface %d", gpu.ErrInteropState, s)
	}
	r.mapped = false
	return nil
}

func (i *interop) Unregister(s gpu.InteropSurface) error {
	i.c.mu.Lock()
	defer i.c.mu.Unlock()
	if err := i.c.takeFault(OpUnregister); err != nil {
		return err
	}
	r, ok := i.regs[s]
	if !ok {
		return fmt.Errorf("%w: unknown surface %d", gpu.ErrInteropState, s)
	}
	if r.mapped {
		return fmt.Errorf("%w: unregister of mapped surface %d", gpu.ErrInteropState, s)
	}
	i.detach(r)
	delete(i.regs, s)
	return nil
}

// detach drops the storage the registration gave its texture names.
func (i *interop) detach(r *registration) {
	for _, id := range r.textures {
		if t, ok := i.c.textures[id]; ok {
			t.width, t.height, t.format, t.data = 0, 0, 0, nil
		}
	}
}

// Registrations returns the registered surfaces ordered by name.
func (c *Context) Registrations() []Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Registration, 0, len(c.interop.regs))
	for name, r := range c.interop.regs {
		out = append(out, Registration{Name: name, Surface: r.surface, Access: r.access, Mapped: r.mapped})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

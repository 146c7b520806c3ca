package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/gpu"
)

// fieldUsage is the usage of textures that hold surface fields.
const fieldUsage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst

type registration struct {
	surface  device.SurfaceHandle
	params   device.SurfaceParams
	target   gpu.TextureTarget
	textures []gpu.TextureID
	access   gpu.Access
	mapped   bool
}

// interop uploads decoder surfaces into field textures on map.
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
	if i.c.closed {
		return ErrClosed
	}
	if !i.c.cfg.Interop {
		return fmt.Errorf("halgpu: interop disabled")
	}
	if i.active {
		return fmt.Errorf("%w: already initialized", gpu.ErrInteropState)
	}
	if fns == nil {
		return fmt.Errorf("halgpu: interop init without function table")
	}
	i.active, i.dev, i.fns = true, dev, fns
	slogger().Debug("halgpu: interop initialized", "device", uint32(dev))
	return nil
}

func (i *interop) Fini() error {
	i.c.mu.Lock()
	defer i.c.mu.Unlock()
	if !i.active {
		return fmt.Errorf("%w: not initialized", gpu.ErrInteropState)
	}
	i.reset()
	return nil
}

// reset drops every registration and deactivates the interop.
// Must be called with c.mu held.
func (i *interop) reset() {
	for name, r := range i.regs {
		i.detach(r)
		delete(i.regs, name)
	}
	i.active = false
	i.fns = nil
}

func (i *interop) RegisterVideoSurface(s device.SurfaceHandle, target gpu.TextureTarget, textures []gpu.TextureID) (gpu.InteropSurface, error) {
	i.c.mu.Lock()
	defer i.c.mu.Unlock()
	if !i.active {
		return 0, fmt.Errorf("%w: register before init", gpu.ErrInteropState)
	}
	if len(textures) != 4 {
		return 0, fmt.Errorf("halgpu: register needs 4 textures, got %d", len(textures))
	}
	for _, id := range textures {
		t, ok := i.c.textures[id]
		if !ok || t.owner != 0 {
			return 0, fmt.Errorf("%w: %d", gpu.ErrUnknownTexture, id)
		}
		if t.target != target {
			return 0, fmt.Errorf("halgpu: texture %d is %v, registering as %v", id, t.target, target)
		}
	}
	params, err := i.fns.VideoSurfaceGetParameters(s)
	if err != nil {
		return 0, fmt.Errorf("halgpu: surface %#x parameters: %w", uint32(s), err)
	}

	layout := gpu.FieldLayout(params)
	for n, id := range textures {
		f := layout[n]
		if f.Width == 0 || f.Height == 0 {
			// Odd field of a one-row plane.
			i.c.destroyStorage(i.c.textures[id])
			continue
		}
		if err := i.c.ensureStorage(i.c.textures[id], fmt.Sprintf("field%d", n), f.Width, f.Height, f.Format, fieldUsage); err != nil {
			for _, prev := range textures[:n] {
				i.c.destroyStorage(i.c.textures[prev])
			}
			return 0, err
		}
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
	r, ok := i.regs[s]
	if !ok {
		return fmt.Errorf("%w: unknown surface %d", gpu.ErrInteropState, s)
	}
	if r.mapped {
		return fmt.Errorf("%w: surface %d already mapped", gpu.ErrInteropState, s)
	}
	if r.access != gpu.AccessWriteDiscard {
		if err := i.upload(r); err != nil {
			return err
		}
	}
	r.mapped = true
	return nil
}

// upload reads the surface fields and writes them into the registered
// textures. Must be called with c.mu held.
func (i *interop) upload(r *registration) error {
	fields, err := gpu.ReadFields(i.fns, r.surface, r.params)
	if err != nil {
		return err
	}
	for n, id := range r.textures {
		t := i.c.textures[id]
		if t.width == 0 || t.height == 0 {
			continue
		}
		rowBytes := uint32(t.width * t.format.BytesPerTexel())
		err := i.c.queue.WriteTexture(
			&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0, Origin: hal.Origin3D{}, Aspect: gputypes.TextureAspectAll},
			fields[n],
			&hal.ImageDataLayout{Offset: 0, BytesPerRow: rowBytes, RowsPerImage: uint32(t.height)},
			&hal.Extent3D{Width: uint32(t.width), Height: uint32(t.height), DepthOrArrayLayers: 1},
		)
		if err != nil {
			return fmt.Errorf("halgpu: upload field %d of surface %#x: %w", n, uint32(r.surface), err)
		}
	}
	return nil
}

func (i *interop) Unmap(s gpu.InteropSurface) error {
	i.c.mu.Lock()
	defer i.c.mu.Unlock()
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

// detach releases the storage the registration gave its texture names.
func (i *interop) detach(r *registration) {
	for _, id := range r.textures {
		if t, ok := i.c.textures[id]; ok {
			i.c.destroyStorage(t)
		}
	}
}

// Registrations returns the number of registered surfaces and how many of
// them are mapped.
func (c *Context) Registrations() (registered, mapped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.interop.regs {
		registered++
		if r.mapped {
			mapped++
		}
	}
	return registered, mapped
}

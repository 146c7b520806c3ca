package hwdec

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/gpu"
	"github.com/gogpu/hwdec/internal/reconstruct"
)

// Map maps the decoder surface carried by img and reconstructs its planes
// at the surface's own size. Any previous mapping is released first. A failure aborts this frame only:
// the objects built by Reinit stay valid, so the next Map can succeed.
func (d *VDPAU) Map(img *HWImage) (*Frame, error) {
	if d.destroyed {
		return nil, ErrDestroyed
	}
	if d.dev == nil {
		return nil, fmt.Errorf("%w: map before create", ErrNotConfigured)
	}
	if err := d.recoverPreemption(); err != nil {
		return nil, err
	}
	if !d.configured {
		return nil, fmt.Errorf("%w: map before reinit", ErrNotConfigured)
	}
	if img == nil {
		return nil, invariantf("map of nil image")
	}

	if err := d.binding.Release(); err != nil {
		d.warnTeardown([]error{err})
	}

	surface := device.SurfaceFromImage(img.Planes[3])
	sp, err := d.fns.VideoSurfaceGetParameters(surface)
	if err != nil {
		return nil, fmt.Errorf("%w: surface %#x parameters: %w", ErrDeviceFatal, uint32(surface), err)
	}

	if err := d.binding.Register(d.gpu.Interop(), surface, gpu.TargetRectangle, d.textures); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceFatal, err)
	}
	if err := d.binding.SetAccess(gpu.AccessReadOnly); err != nil {
		d.abandonBinding()
		return nil, fmt.Errorf("%w: %w", ErrDeviceFatal, err)
	}
	if err := d.binding.Map(); err != nil {
		d.abandonBinding()
		return nil, fmt.Errorf("%w: %w", ErrDeviceFatal, err)
	}

	planes, err := d.strategy.Reconstruct(&reconstruct.Source{
		Textures: d.textures,
		Target:   gpu.TargetRectangle,
		Chroma:   sp.Chroma,
		Width:    int(sp.Width),
		Height:   int(sp.Height),
	})
	if err != nil {
		d.abandonBinding()
		return nil, fmt.Errorf("%w: %w", ErrDeviceFatal, err)
	}

	d.stats.Frames++
	d.log().Debug("hwdec: mapped surface",
		slog.Uint64("surface", uint64(surface)),
		slog.String("chroma", sp.Chroma.String()),
		slog.Int("width", int(sp.Width)),
		slog.Int("height", int(sp.Height)),
		slog.Int("planes", len(planes)))
	return &Frame{Planes: planes, Interlaced: false}, nil
}

// Unmap releases the current mapping: unmap, then unregister. It is a no-op
// when nothing is mapped.
func (d *VDPAU) Unmap() {
	if d.destroyed || d.dev == nil {
		return
	}
	if err := d.binding.Release(); err != nil {
		d.warnTeardown([]error{err})
	}
}

// abandonBinding unregisters a registration whose setup failed part way.
func (d *VDPAU) abandonBinding() {
	if err := d.binding.Release(); err != nil {
		d.warnTeardown([]error{err})
	}
}

// recoverPreemption checks the device's preemption counter. When the device
// was preempted since the last check, everything it owned is gone: the lost
// objects are forgotten and Reinit runs once with the stored parameters.
func (d *VDPAU) recoverPreemption() error {
	state, err := d.tracker.Check(d.dev)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceFatal, err)
	}
	if state == device.Current {
		return nil
	}
	if d.params.Format != FormatVDPAU {
		// Preempted before the first Reinit; there is nothing to rebuild.
		return nil
	}

	d.log().Info("hwdec: decoder device preempted, reinitializing",
		slog.Uint64("counter", d.tracker.Counter()))
	d.markLost()
	params := d.params
	if err := d.Reinit(&params); err != nil {
		return fmt.Errorf("%w: recovery: %w", ErrDeviceLost, err)
	}
	d.stats.Recoveries++
	return nil
}

package hwdec

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/gpu"
	"github.com/gogpu/hwdec/internal/reconstruct"
)

// Create opens the decoder device for the display of the GPU context and
// prepares everything that lives until Destroy. On failure nothing stays
// allocated and Create may be called again.
func (d *VDPAU) Create() error {
	if d.destroyed {
		return ErrDestroyed
	}
	if d.dev != nil {
		return invariantf("create called twice")
	}
	if d.gpu == nil || d.gpu.Display() == 0 {
		return fmt.Errorf("%w: no display connection", ErrCapabilityUnavailable)
	}
	if !d.gpu.Caps().Has(gpu.CapVideoInterop) {
		return fmt.Errorf("%w: GPU context has no video surface interop", ErrCapabilityUnavailable)
	}
	if err := reconstruct.Available(d.opts.strategy); err != nil {
		return fmt.Errorf("%w: %w", ErrCapabilityUnavailable, err)
	}
	if d.opts.opener == nil {
		return fmt.Errorf("%w: no decoder device opener", ErrCapabilityUnavailable)
	}

	dev, err := d.opts.opener(d.gpu.Display())
	if err != nil {
		return fmt.Errorf("%w: open decoder device: %w", ErrCapabilityUnavailable, err)
	}
	d.dev = dev
	d.fns = dev.Functions()

	if err := d.tracker.Reset(dev); err != nil {
		d.release()
		return fmt.Errorf("%w: %w", ErrDeviceFatal, err)
	}

	mixer, err := dev.NewMixer()
	if err != nil {
		d.release()
		return fmt.Errorf("%w: create mixer: %w", ErrDeviceFatal, err)
	}
	d.mixer = mixer

	if d.opts.probing {
		if dev.Emulated() {
			d.release()
			return fmt.Errorf("%w: decoder runs on an emulation layer", ErrCapabilityUnavailable)
		}
		if info := d.gpu.AdapterInfo(); info.Type == gpucontext.AdapterTypeSoftware {
			d.release()
			return fmt.Errorf("%w: software GPU adapter %q", ErrCapabilityUnavailable, info.Name)
		}
	}

	renderer, err := d.gpu.NewPassRenderer()
	if err != nil {
		d.release()
		return fmt.Errorf("%w: create pass renderer: %w", ErrCapabilityUnavailable, err)
	}
	d.renderer = renderer

	propagateLogger(d.gpu, d.log())
	if d.opts.registry != nil {
		d.token = d.opts.registry.Add(device.Entry{Driver: VDPAUName, API: VDPAUAPI, Context: dev})
	}

	info := d.gpu.AdapterInfo()
	d.log().Info("hwdec: decoder device opened",
		slog.String("driver", VDPAUName),
		slog.String("adapter", info.Name),
		slog.String("adapter_type", info.Type.String()),
		slog.Bool("emulated", dev.Emulated()))
	return nil
}

// Reinit rebuilds the per-stream objects for params. It tears down
// everything left from the previous stream first, so it works from any
// state. On success params.Format is rewritten to the format of mapped
// frames.
func (d *VDPAU) Reinit(params *FrameParams) error {
	if d.destroyed {
		return ErrDestroyed
	}
	if d.dev == nil {
		return fmt.Errorf("%w: reinit before create", ErrNotConfigured)
	}

	d.destroyObjects()

	if params == nil || params.Format != FormatVDPAU {
		f := FormatNone
		if params != nil {
			f = params.Format
		}
		return invariantf("reinit with image format %v, want %v", f, FormatVDPAU)
	}
	if params.Width <= 0 || params.Height <= 0 {
		return invariantf("reinit with frame size %dx%d", params.Width, params.Height)
	}
	d.params = *params

	state, err := d.tracker.Check(d.dev)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceFatal, err)
	}
	if state == device.Preempted {
		d.log().Info("hwdec: device preempted before reinit", slog.Uint64("counter", d.tracker.Counter()))
	}

	if err := d.gpu.Interop().Init(d.dev.Handle(), d.fns); err != nil {
		return fmt.Errorf("%w: init interop: %w", ErrDeviceFatal, err)
	}
	d.interopReady = true

	out, err := d.fns.OutputSurfaceCreate(d.dev.Handle(), device.RGBAFormatB8G8R8A8,
		uint32(params.Width), uint32(params.Height))
	if err != nil {
		return fmt.Errorf("%w: create output surface: %w", ErrDeviceFatal, err)
	}
	d.output = out

	textures, err := d.gpu.GenTextures(gpu.TargetRectangle, 4)
	if err != nil {
		return fmt.Errorf("%w: generate field textures: %w", ErrDeviceFatal, err)
	}
	d.textures = textures

	strategy, err := reconstruct.New(d.opts.strategy, d.gpu, d.renderer)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCapabilityUnavailable, err)
	}
	d.strategy = strategy

	d.configured = true
	d.stats.Reinits++
	params.Format = outputFormat(d.opts.strategy)

	d.log().Debug("hwdec: reinit",
		slog.Int("width", params.Width),
		slog.Int("height", params.Height),
		slog.String("strategy", d.opts.strategy.String()))
	return nil
}

// Destroy releases every object of the driver. It tolerates a partially
// created driver and may be called more than once.
func (d *VDPAU) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	d.release()
}

// release tears down everything Create and Reinit built.
func (d *VDPAU) release() {
	d.destroyObjects()

	var errs []error
	if d.renderer != nil {
		d.renderer.Release()
		d.renderer = nil
	}
	if d.mixer != nil {
		if err := d.mixer.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy mixer: %w", err))
		}
		d.mixer = nil
	}
	if d.token.Valid() {
		d.opts.registry.Remove(d.token)
		d.token = device.Token{}
	}
	if d.dev != nil {
		if err := d.dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device: %w", err))
		}
		d.dev = nil
		d.fns = nil
	}
	d.tracker = device.Tracker{}
	d.warnTeardown(errs)
}

// destroyObjects releases the per-stream objects in dependency order:
// mapping, plane targets, field textures, output surface, interop.
func (d *VDPAU) destroyObjects() {
	var errs []error
	if err := d.binding.Release(); err != nil {
		errs = append(errs, err)
	}
	if d.strategy != nil {
		d.strategy.Release()
		d.strategy = nil
	}
	if len(d.textures) > 0 {
		d.gpu.DeleteTextures(d.textures)
		d.textures = nil
	}
	if d.output != device.InvalidOutputSurface {
		if err := d.fns.OutputSurfaceDestroy(d.output); err != nil {
			errs = append(errs, fmt.Errorf("destroy output surface: %w", err))
		}
		d.output = device.InvalidOutputSurface
	}
	if d.interopReady {
		if err := d.gpu.Interop().Fini(); err != nil {
			errs = append(errs, fmt.Errorf("fini interop: %w", err))
		}
		d.interopReady = false
	}
	d.configured = false
	d.warnTeardown(errs)
}

// markLost forgets the objects a preemption destroyed on the decoder side
// without calling into the device.
func (d *VDPAU) markLost() {
	d.binding.Invalidate()
	d.output = device.InvalidOutputSurface
}

func (d *VDPAU) warnTeardown(errs []error) {
	if err := errors.Join(errs...); err != nil {
		d.log().Warn("hwdec: teardown failed", slog.String("error", err.Error()))
	}
}

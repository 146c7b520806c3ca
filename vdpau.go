package hwdec

import (
	"log/slog"

	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/gpu"
	"github.com/gogpu/hwdec/internal/interop"
	"github.com/gogpu/hwdec/internal/reconstruct"
)

// Driver descriptor of the VDPAU driver.
const (
	VDPAUName = "vdpau-gl"
	VDPAUAPI  = "vdpau"
)

// VDPAU maps VDPAU video surfaces through the NV_vdpau_interop model: four
// field textures per surface, woven into planes by render passes.
//
// Objects fall into three lifetimes. The decoder device, mixer, pass
// renderer and registry entry live from Create to Destroy. The output
// surface, interop initialisation, field texture names and plane targets
// live from one Reinit to the next. The binding lives from one Map to the
// next Map or Unmap.
type VDPAU struct {
	gpu  gpu.Context
	opts driverOptions

	// Create to Destroy.
	dev      device.Context
	fns      device.Functions
	mixer    device.Mixer
	tracker  device.Tracker
	token    device.Token
	renderer gpu.PassRenderer

	// Reinit to Reinit.
	params       FrameParams
	configured   bool
	interopReady bool
	output       device.OutputSurface
	textures     []gpu.TextureID
	strategy     reconstruct.Strategy

	// Map to Map.
	binding interop.Binding

	destroyed bool
	stats     Stats
}

// Stats counts driver events.
type Stats struct {
	Reinits    int
	Recoveries int
	Frames     int
}

var _ Driver = (*VDPAU)(nil)

// NewVDPAU returns a driver rendering with g. Call Create before use.
func NewVDPAU(g gpu.Context, opts ...Option) *VDPAU {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &VDPAU{
		gpu:    g,
		opts:   o,
		output: device.InvalidOutputSurface,
	}
}

// Name returns VDPAUName.
func (d *VDPAU) Name() string { return VDPAUName }

// Stats returns the event counters of the driver.
func (d *VDPAU) Stats() Stats { return d.stats }

func (d *VDPAU) log() *slog.Logger {
	if d.opts.logger != nil {
		return d.opts.logger
	}
	return Logger()
}

// Package hwdec maps hardware-decoded video surfaces into GPU textures.
//
// # Overview
//
// A hardware decoder leaves each frame in a surface it owns. The decoder
// stores the surface as two fields, so the GPU interop exposes four
// half-height textures per surface: even and odd rows of the luma plane and
// even and odd rows of the interleaved chroma plane. A [Driver] registers the
// surface against those textures, maps it, and weaves the fields back into
// progressive planes with one render pass per plane. The result is an
// NV12-style frame: an R8 luma plane and an RG8 chroma plane that the
// presentation stage samples as ordinary 2D textures. Planes take the size
// of the decoder surface, which may be the coded size rather than the
// display size of the stream.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/hwdec"
//	    "github.com/gogpu/hwdec/backend/halgpu"
//	)
//
//	cfg := halgpu.DefaultConfig()
//	cfg.Display = display // native display connection of the decoder
//	g, _ := halgpu.NewFromProvider(provider, cfg)
//	d := hwdec.NewVDPAU(g, hwdec.WithOpener(openDecoder))
//	if err := d.Create(); err != nil {
//	    // fall back to software decoding
//	}
//	defer d.Destroy()
//
//	params := hwdec.FrameParams{Width: 1920, Height: 1080, Format: hwdec.FormatVDPAU}
//	_ = d.Reinit(&params) // params.Format is now FormatNV12
//
//	frame, err := d.Map(img)
//	// render frame.Planes
//	d.Unmap()
//
// # Driver Contract
//
// Every driver implements five calls: Create probes and opens the decoder
// device, Reinit rebuilds every per-stream object for new frame parameters,
// Map turns one decoded image into planes, Unmap releases the mapping, and
// Destroy releases everything. At most one surface is mapped at a time; Map
// releases the previous mapping itself.
//
// # Preemption
//
// The decoder device can be preempted, for example on a display mode switch,
// which destroys every object created on it. Map checks the device's
// preemption counter first and, when it moved, forgets the lost objects and
// runs Reinit once with the stored frame parameters before mapping.
//
// # Threading
//
// A driver is not safe for concurrent use. All calls must come from the
// thread that owns the GPU context.
package hwdec

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)

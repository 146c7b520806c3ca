package hwdec

import (
	"fmt"

	"github.com/gogpu/hwdec/gpu"
)

// ImageFormat identifies the pixel format of a frame.
type ImageFormat uint16

const (
	FormatNone ImageFormat = iota
	// FormatVDPAU is an opaque decoder surface; plane 3 of the image holds
	// the surface handle.
	FormatVDPAU
	// FormatNV12 is a luma plane and an interleaved CbCr plane.
	FormatNV12
	// FormatRGB0 is packed 8-bit RGB with an unused fourth byte.
	FormatRGB0
)

// String returns the name of the format.
func (f ImageFormat) String() string {
	switch f {
	case FormatNone:
		return "none"
	case FormatVDPAU:
		return "vdpau"
	case FormatNV12:
		return "nv12"
	case FormatRGB0:
		return "rgb0"
	default:
		return fmt.Sprintf("ImageFormat(%d)", f)
	}
}

// FrameParams describe the frames of a stream.
type FrameParams struct {
	Width  int
	Height int
	Format ImageFormat
}

// HWImage is a decoded hardware image as handed over by the decoder.
// Planes are pointer-sized slots whose meaning depends on Format.
type HWImage struct {
	Format ImageFormat
	Width  int
	Height int
	Planes [4]uintptr
}

// Frame is a mapped image. Its planes stay valid until the next Map, Unmap,
// Reinit or Destroy.
type Frame struct {
	Planes     []gpu.Plane
	Interlaced bool
}

// Driver maps hardware images of one decoder API into GPU textures.
type Driver interface {
	// Name returns the registered driver name.
	Name() string

	// Create opens and probes the decoder device.
	Create() error

	// Reinit rebuilds every per-stream object for params and rewrites
	// params.Format to the format of the mapped frames.
	Reinit(params *FrameParams) error

	// Map maps img and returns its planes.
	Map(img *HWImage) (*Frame, error)

	// Unmap releases the current mapping, if any.
	Unmap()

	// Destroy releases everything. The driver cannot be used afterwards.
	Destroy()
}

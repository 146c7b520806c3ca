// Package device describes the hardware video decoder device that owns
// decoded surfaces, as seen by the GPU interop driver.
//
// The driver never creates a decoder device itself. A [Opener] supplied by
// the embedding player opens a [Context] for a display connection, and the
// driver reaches every decoder entry point through the [Functions] table of
// that context. Decoder entry points report failures as [Status] errors.
package device

import "fmt"

// Handle identifies a decoder device.
type Handle uint32

// SurfaceHandle identifies a decoded video surface. The driver borrows a
// surface for the duration of one mapping and never frees it.
type SurfaceHandle uint32

// OutputSurface identifies a decoder compositing surface.
type OutputSurface uint32

// InvalidOutputSurface marks an output surface slot that holds nothing.
const InvalidOutputSurface OutputSurface = 0xffffffff

// ChromaType is the chroma subsampling of a video surface.
type ChromaType uint8

const (
	// Chroma420 stores chroma at half width and half height.
	Chroma420 ChromaType = iota
	// Chroma422 stores chroma at half width and full height.
	Chroma422
	// Chroma444 stores chroma at full resolution.
	Chroma444
)

// String returns the conventional name of the chroma type.
func (c ChromaType) String() string {
	switch c {
	case Chroma420:
		return "4:2:0"
	case Chroma422:
		return "4:2:2"
	case Chroma444:
		return "4:4:4"
	default:
		return fmt.Sprintf("ChromaType(%d)", c)
	}
}

// Shift returns the horizontal and vertical chroma subsampling as right
// shifts applied to the luma dimensions.
func (c ChromaType) Shift() (sx, sy uint) {
	switch c {
	case Chroma420:
		return 1, 1
	case Chroma422:
		return 1, 0
	default:
		return 0, 0
	}
}

// RGBAFormat is the pixel layout of an output surface.
type RGBAFormat uint8

const (
	RGBAFormatB8G8R8A8 RGBAFormat = iota
	RGBAFormatR8G8B8A8
)

// YCbCrFormat is the plane layout used when reading back a video surface.
type YCbCrFormat uint8

const (
	// YCbCrFormatNV12 is a luma plane followed by an interleaved CbCr plane.
	YCbCrFormatNV12 YCbCrFormat = iota
)

// SurfaceParams are the properties of a video surface.
type SurfaceParams struct {
	Chroma ChromaType
	Width  uint32
	Height uint32
}

// ChromaSize returns the dimensions of the chroma plane of the surface.
func (p SurfaceParams) ChromaSize() (w, h uint32) {
	sx, sy := p.Chroma.Shift()
	return p.Width >> sx, p.Height >> sy
}

// Functions is the decoder entry point table the driver calls through.
// Every method returns nil or a [Status].
type Functions interface {
	// OutputSurfaceCreate allocates an output surface on the device.
	OutputSurfaceCreate(dev Handle, format RGBAFormat, width, height uint32) (OutputSurface, error)

	// OutputSurfaceDestroy releases an output surface.
	OutputSurfaceDestroy(s OutputSurface) error

	// VideoSurfaceGetParameters reports the chroma type and size of a surface.
	VideoSurfaceGetParameters(s SurfaceHandle) (SurfaceParams, error)

	// VideoSurfaceGetBitsYCbCr copies the surface contents into planes using
	// the given layout. pitches holds the row stride of each plane.
	VideoSurfaceGetBitsYCbCr(s SurfaceHandle, format YCbCrFormat, planes [][]byte, pitches []uint32) error
}

// Mixer is the auxiliary video mixer held for the lifetime of a driver.
type Mixer interface {
	Destroy() error
}

// Context is an opened decoder device.
type Context interface {
	// Handle returns the device handle passed to interop initialisation.
	Handle() Handle

	// Functions returns the entry point table of the device.
	Functions() Functions

	// PreemptionCounter returns a counter that increases every time the
	// device is preempted (lost and recreated). An error means the device
	// cannot be used any more.
	PreemptionCounter() (uint64, error)

	// Emulated reports whether decoding runs on a software emulation layer
	// rather than real decoder hardware.
	Emulated() bool

	// NewMixer creates the auxiliary mixer.
	NewMixer() (Mixer, error)

	// Close releases the device.
	Close() error
}

// Opener opens a decoder device for a native display connection.
type Opener func(display uintptr) (Context, error)

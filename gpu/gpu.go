// Package gpu describes the GPU context an interop driver renders with.
//
// A [Context] hands out texture names and offscreen render targets, exposes
// the decoder-surface interop entry points through [Interop], and runs the
// shader passes that turn mapped surface fields into planes through a
// [PassRenderer]. Implementations live under backend/: backend/soft runs on
// the CPU, backend/halgpu on a gogpu/wgpu HAL device.
package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/hwdec/device"
)

// Errors returned by Context implementations.
var (
	// ErrUnknownTexture is returned for texture names the context never
	// generated or already deleted.
	ErrUnknownTexture = errors.New("gpu: unknown texture")

	// ErrInteropState is returned when an interop entry point is called in
	// a state that does not allow it, such as mapping twice.
	ErrInteropState = errors.New("gpu: invalid interop state")

	// ErrInvalidPass is returned for a malformed render pass.
	ErrInvalidPass = errors.New("gpu: invalid pass")
)

// TextureID is a texture name.
type TextureID uint32

// TextureTarget is the binding target of a texture name. It decides how a
// shader addresses the texture.
type TextureTarget uint8

const (
	// Target2D addresses texels with normalized coordinates.
	Target2D TextureTarget = iota
	// TargetRectangle addresses texels with unnormalized texel coordinates.
	TargetRectangle
)

// String returns the name of the target.
func (t TextureTarget) String() string {
	switch t {
	case Target2D:
		return "2d"
	case TargetRectangle:
		return "rectangle"
	default:
		return fmt.Sprintf("TextureTarget(%d)", t)
	}
}

// Format is a texel format.
type Format uint8

const (
	FormatR8 Format = iota + 1
	FormatRG8
	FormatBGRA8
)

// String returns the name of the format.
func (f Format) String() string {
	switch f {
	case FormatR8:
		return "r8"
	case FormatRG8:
		return "rg8"
	case FormatBGRA8:
		return "bgra8"
	default:
		return fmt.Sprintf("Format(%d)", f)
	}
}

// BytesPerTexel returns the size of one texel.
func (f Format) BytesPerTexel() int {
	switch f {
	case FormatR8:
		return 1
	case FormatRG8:
		return 2
	case FormatBGRA8:
		return 4
	default:
		return 0
	}
}

// TextureFormat returns the WebGPU format of f.
func (f Format) TextureFormat() gputypes.TextureFormat {
	switch f {
	case FormatR8:
		return gputypes.TextureFormatR8Unorm
	case FormatRG8:
		return gputypes.TextureFormatRG8Unorm
	case FormatBGRA8:
		return gputypes.TextureFormatBGRA8Unorm
	default:
		return gputypes.TextureFormatUndefined
	}
}

// Caps is a set of optional context capabilities.
type Caps uint32

const (
	// CapVideoInterop means the context can register decoder video
	// surfaces against texture names.
	CapVideoInterop Caps = 1 << iota
)

// Has reports whether c contains all of want.
func (c Caps) Has(want Caps) bool { return c&want == want }

// Access is the access mode of a registered surface.
type Access uint8

const (
	AccessReadOnly Access = iota
	AccessWriteDiscard
	AccessReadWrite
)

// String returns the name of the access mode.
func (a Access) String() string {
	switch a {
	case AccessReadOnly:
		return "read-only"
	case AccessWriteDiscard:
		return "write-discard"
	case AccessReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("Access(%d)", a)
	}
}

// InteropSurface identifies a registration of a decoder surface.
type InteropSurface uintptr

// RenderTarget is an offscreen target backed by a texture that later passes
// and the presentation stage can sample.
type RenderTarget struct {
	ID      uint32
	Texture TextureID
	Width   int
	Height  int
	Format  Format
}

// Valid reports whether rt refers to an allocated target.
func (rt RenderTarget) Valid() bool { return rt.ID != 0 }

// Plane is one reconstructed output plane.
type Plane struct {
	Texture TextureID
	Target  TextureTarget
	Width   int
	Height  int
}

// Interop registers decoder video surfaces against texture names.
//
// A registered surface exposes one texture per field of each plane, in the
// order luma even rows, luma odd rows, chroma even rows, chroma odd rows.
// Unregistering a mapped surface is an error.
type Interop interface {
	// Init binds the interop to a decoder device.
	Init(dev device.Handle, fns device.Functions) error
	// Fini unbinds the interop, releasing every registration.
	Fini() error

	RegisterVideoSurface(s device.SurfaceHandle, target TextureTarget, textures []TextureID) (InteropSurface, error)
	SetAccess(s InteropSurface, a Access) error
	Map(s InteropSurface) error
	Unmap(s InteropSurface) error
	Unregister(s InteropSurface) error
}

// Program selects a fragment program of a PassRenderer.
type Program uint8

const (
	// ProgramFieldWeave writes even output rows from the first source and
	// odd output rows from the second:
	//
	//	fract(fragY/2) < 0.5 ? load(src0, floor(tc)) : load(src1, floor(tc))
	ProgramFieldWeave Program = iota + 1
)

// Vertex is a quad corner in normalized device coordinates with the texel
// coordinate interpolated across the quad.
type Vertex struct {
	Position [2]float32
	TexCoord [2]float32
}

// Pass draws one triangle-strip quad into Target.
type Pass struct {
	Program      Program
	Target       RenderTarget
	Sources      []TextureID
	SourceTarget TextureTarget
	Vertices     []Vertex
}

// PassRenderer runs render passes. It owns the compiled programs and the
// vertex state shared by every pass.
type PassRenderer interface {
	Draw(p *Pass) error
	Release()
}

// Context is the GPU context a driver renders with.
type Context interface {
	// Display returns the native display connection, or 0 if the context
	// is not attached to one.
	Display() uintptr

	// Caps returns the optional capabilities of the context.
	Caps() Caps

	// AdapterInfo describes the adapter the context runs on.
	AdapterInfo() gpucontext.AdapterInfo

	// GenTextures generates n texture names for target with nearest
	// filtering and clamp-to-edge wrapping. Names have no storage until a
	// surface is registered against them.
	GenTextures(target TextureTarget, n int) ([]TextureID, error)

	// DeleteTextures deletes texture names. Unknown names are ignored.
	DeleteTextures(ids []TextureID)

	NewRenderTarget(width, height int, format Format) (RenderTarget, error)
	DeleteRenderTarget(rt RenderTarget)

	Interop() Interop

	NewPassRenderer() (PassRenderer, error)
}

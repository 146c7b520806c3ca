// Package devicetest provides an in-memory decoder device for tests and
// tooling. Surfaces hold known pixel data, and preemption, emulation and
// entry point failures can be triggered on demand.
package devicetest

import (
	"fmt"
	"sync"

	"github.com/gogpu/hwdec/device"
)

// Op names a device entry point for fault injection and call counting.
type Op string

const (
	OpOpen                 Op = "open"
	OpPreemptionCounter    Op = "preemption_counter"
	OpNewMixer             Op = "new_mixer"
	OpOutputSurfaceCreate  Op = "output_surface_create"
	OpOutputSurfaceDestroy Op = "output_surface_destroy"
	OpGetParameters        Op = "video_surface_get_parameters"
	OpGetBits              Op = "video_surface_get_bits"
)

// Surface is a decoded video surface in NV12 layout: a Width×Height luma
// plane followed by an interleaved CbCr plane of the chroma size.
type Surface struct {
	Params device.SurfaceParams
	Luma   []byte
	CbCr   []byte
}

// NewSurface returns a surface filled by fn. fn is called for every luma
// sample with plane 0 and for every chroma byte with plane 1, where x counts
// bytes within the interleaved chroma row.
func NewSurface(chroma device.ChromaType, w, h int, fn func(plane, x, y int) byte) *Surface {
	s := &Surface{Params: device.SurfaceParams{Chroma: chroma, Width: uint32(w), Height: uint32(h)}}
	cw, ch := s.Params.ChromaSize()
	s.Luma = make([]byte, w*h)
	s.CbCr = make([]byte, int(cw)*2*int(ch))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s.Luma[y*w+x] = fn(0, x, y)
		}
	}
	for y := 0; y < int(ch); y++ {
		for x := 0; x < int(cw)*2; x++ {
			s.CbCr[y*int(cw)*2+x] = fn(1, x, y)
		}
	}
	return s
}

// RowPattern fills every sample with a value derived from its row, so the
// row a reconstructed sample came from can be read back from its value.
// Chroma rows start at 128 and Cr bytes are offset by one from Cb.
func RowPattern(plane, x, y int) byte {
	if plane == 0 {
		return byte(y)
	}
	return byte(128 + 2*y + x%2)
}

// Device is a fake decoder device. It implements both [device.Context] and
// [device.Functions]. All methods are safe for concurrent use.
type Device struct {
	mu sync.Mutex

	handle    device.Handle
	counter   uint64
	emulated  bool
	closed    bool
	lost      error
	nextID    uint32
	surfaces  map[device.SurfaceHandle]*Surface
	outputs   map[device.OutputSurface]device.SurfaceParams
	mixers    int
	faults    map[Op]error
	calls     map[Op]int
	openCount int
}

// New returns a device with no surfaces.
func New() *Device {
	return &Device{
		handle:   1,
		nextID:   0x100,
		surfaces: make(map[device.SurfaceHandle]*Surface),
		outputs:  make(map[device.OutputSurface]device.SurfaceParams),
		faults:   make(map[Op]error),
		calls:    make(map[Op]int),
	}
}

// Opener returns an opener that hands out d for any non-zero display.
func (d *Device) Opener() device.Opener {
	return func(display uintptr) (device.Context, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.calls[OpOpen]++
		if err := d.takeFault(OpOpen); err != nil {
			return nil, err
		}
		if display == 0 {
			return nil, device.StatusInvalidPointer
		}
		d.closed = false
		d.openCount++
		return d, nil
	}
}

// AddSurface stores s and returns its handle.
func (d *Device) AddSurface(s *Surface) device.SurfaceHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	h := device.SurfaceHandle(d.nextID)
	d.surfaces[h] = s
	return h
}

// Preempt simulates a display preemption: the counter advances and every
// output surface created so far is lost.
func (d *Device) Preempt() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counter++
	clear(d.outputs)
}

// Lose makes every later preemption counter query fail with err.
func (d *Device) Lose(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = err
}

// SetEmulated marks the device as a software emulation layer.
func (d *Device) SetEmulated(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emulated = v
}

// FailNext makes the next call of op fail with err.
func (d *Device) FailNext(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[op] = err
}

// Calls returns how often op was called.
func (d *Device) Calls(op Op) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// LiveOutputSurfaces returns the number of output surfaces not yet destroyed.
func (d *Device) LiveOutputSurfaces() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.outputs)
}

// LiveMixers returns the number of mixers not yet destroyed.
func (d *Device) LiveMixers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mixers
}

// Closed reports whether the device was closed after its last open.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) takeFault(op Op) error {
	err, ok := d.faults[op]
	if !ok {
		return nil
	}
	delete(d.faults, op)
	return err
}

// Handle implements device.Context.
func (d *Device) Handle() device.Handle { return d.handle }

// Functions implements device.Context.
func (d *Device) Functions() device.Functions { return d }

// PreemptionCounter implements device.Context.
func (d *Device) PreemptionCounter() (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[OpPreemptionCounter]++
	if err := d.takeFault(OpPreemptionCounter); err != nil {
		return 0, err
	}
	if d.lost != nil {
		return 0, d.lost
	}
	return d.counter, nil
}

// Emulated implements device.Context.
func (d *Device) Emulated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.emulated
}

type mixer struct {
	d        *Device
	released bool
}

func (m *mixer) Destroy() error {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	if m.released {
		return device.StatusInvalidHandle
	}
	m.released = true
	m.d.mixers--
	return nil
}

// NewMixer implements device.Context.
func (d *Device) NewMixer() (device.Mixer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[OpNewMixer]++
	if err := d.takeFault(OpNewMixer); err != nil {
		return nil, err
	}
	d.mixers++
	return &mixer{d: d}, nil
}

// Close implements device.Context.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return device.StatusInvalidHandle
	}
	d.closed = true
	return nil
}

// OutputSurfaceCreate implements device.Functions.
func (d *Device) OutputSurfaceCreate(dev device.Handle, format device.RGBAFormat, width, height uint32) (device.OutputSurface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[OpOutputSurfaceCreate]++
	if err := d.takeFault(OpOutputSurfaceCreate); err != nil {
		return device.InvalidOutputSurface, err
	}
	if dev != d.handle {
		return device.InvalidOutputSurface, device.StatusHandleDeviceMismatch
	}
	if format != device.RGBAFormatB8G8R8A8 && format != device.RGBAFormatR8G8B8A8 {
		return device.InvalidOutputSurface, device.StatusInvalidRGBAFormat
	}
	if width == 0 || height == 0 {
		return device.InvalidOutputSurface, device.StatusInvalidSize
	}
	d.nextID++
	s := device.OutputSurface(d.nextID)
	d.outputs[s] = device.SurfaceParams{Width: width, Height: height}
	return s, nil
}

// OutputSurfaceDestroy implements device.Functions.
func (d *Device) OutputSurfaceDestroy(s device.OutputSurface) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[OpOutputSurfaceDestroy]++
	if err := d.takeFault(OpOutputSurfaceDestroy); err != nil {
		return err
	}
	if _, ok := d.outputs[s]; !ok {
		return device.StatusInvalidHandle
	}
	delete(d.outputs, s)
	return nil
}

// VideoSurfaceGetParameters implements device.Functions.
func (d *Device) VideoSurfaceGetParameters(s device.SurfaceHandle) (device.SurfaceParams, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[OpGetParameters]++
	if err := d.takeFault(OpGetParameters); err != nil {
		return device.SurfaceParams{}, err
	}
	surf, ok := d.surfaces[s]
	if !ok {
		return device.SurfaceParams{}, device.StatusInvalidHandle
	}
	return surf.Params, nil
}

// VideoSurfaceGetBitsYCbCr implements device.Functions. Only NV12 is
// supported.
func (d *Device) VideoSurfaceGetBitsYCbCr(s device.SurfaceHandle, format device.YCbCrFormat, planes [][]byte, pitches []uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[OpGetBits]++
	if err := d.takeFault(OpGetBits); err != nil {
		return err
	}
	surf, ok := d.surfaces[s]
	if !ok {
		return device.StatusInvalidHandle
	}
	if format != device.YCbCrFormatNV12 {
		return device.StatusInvalidYCbCrFormat
	}
	if len(planes) != 2 || len(pitches) != 2 {
		return device.StatusInvalidPointer
	}
	w, h := int(surf.Params.Width), int(surf.Params.Height)
	cw, ch := surf.Params.ChromaSize()
	if err := copyRows(planes[0], int(pitches[0]), surf.Luma, w, h); err != nil {
		return err
	}
	return copyRows(planes[1], int(pitches[1]), surf.CbCr, int(cw)*2, int(ch))
}

func copyRows(dst []byte, pitch int, src []byte, rowBytes, rows int) error {
	if pitch < rowBytes || len(dst) < pitch*(rows-1)+rowBytes {
		return fmt.Errorf("devicetest: plane of %d bytes with pitch %d too small for %dx%d: %w",
			len(dst), pitch, rowBytes, rows, device.StatusInvalidSize)
	}
	for y := 0; y < rows; y++ {
		copy(dst[y*pitch:y*pitch+rowBytes], src[y*rowBytes:(y+1)*rowBytes])
	}
	return nil
}

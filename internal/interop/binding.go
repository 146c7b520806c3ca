// Package interop tracks the registration of one decoder surface against
// the driver's texture names.
//
// A Binding moves through Unregistered → Registered → Mapped and back, one
// transition function per direction. Each transition calls exactly one
// interop entry point and only changes state when that call succeeds.
package interop

import (
	"errors"
	"fmt"

	"github.com/gogpu/hwdec/device"
	"github.com/gogpu/hwdec/gpu"
)

// ErrWrongState is returned when a transition is attempted from a state
// that does not allow it.
var ErrWrongState = errors.New("interop: invalid state transition")

// State is the state of a Binding.
type State uint8

const (
	Unregistered State = iota
	Registered
	Mapped
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registered:
		return "registered"
	case Mapped:
		return "mapped"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Binding is the registration of at most one decoder surface.
// The zero value is Unregistered.
type Binding struct {
	api     gpu.Interop
	state   State
	surface gpu.InteropSurface
	handle  device.SurfaceHandle
}

// State returns the current state.
func (b *Binding) State() State { return b.state }

// Surface returns the borrowed decoder surface. ok is false when
// Unregistered.
func (b *Binding) Surface() (h device.SurfaceHandle, ok bool) {
	return b.handle, b.state != Unregistered
}

// Register registers h against textures and moves to Registered.
func (b *Binding) Register(api gpu.Interop, h device.SurfaceHandle, target gpu.TextureTarget, textures []gpu.TextureID) error {
	if b.state != Unregistered {
		return fmt.Errorf("%w: register while %v", ErrWrongState, b.state)
	}
	s, err := api.RegisterVideoSurface(h, target, textures)
	if err != nil {
		return fmt.Errorf("interop: register surface %#x: %w", uint32(h), err)
	}
	b.api = api
	b.surface = s
	b.handle = h
	b.state = Registered
	return nil
}

// SetAccess sets the access mode of the registration.
func (b *Binding) SetAccess(a gpu.Access) error {
	if b.state != Registered {
		return fmt.Errorf("%w: set access while %v", ErrWrongState, b.state)
	}
	if err := b.api.SetAccess(b.surface, a); err != nil {
		return fmt.Errorf("interop: set access %v: %w", a, err)
	}
	return nil
}

// Map moves from Registered to Mapped.
func (b *Binding) Map() error {
	if b.state != Registered {
		return fmt.Errorf("%w: map while %v", ErrWrongState, b.state)
	}
	if err := b.api.Map(b.surface); err != nil {
		return fmt.Errorf("interop: map: %w", err)
	}
	b.state = Mapped
	return nil
}

// Unmap moves from Mapped to Registered.
func (b *Binding) Unmap() error {
	if b.state != Mapped {
		return fmt.Errorf("%w: unmap while %v", ErrWrongState, b.state)
	}
	if err := b.api.Unmap(b.surface); err != nil {
		return fmt.Errorf("interop: unmap: %w", err)
	}
	b.state = Registered
	return nil
}

// Unregister moves from Registered to Unregistered.
func (b *Binding) Unregister() error {
	if b.state != Registered {
		return fmt.Errorf("%w: unregister while %v", ErrWrongState, b.state)
	}
	if err := b.api.Unregister(b.surface); err != nil {
		return fmt.Errorf("interop: unregister: %w", err)
	}
	b.reset()
	return nil
}

// Release walks the binding down to Unregistered from whatever state it is
// in. A failed step still moves the binding down so teardown always
// completes; the failures are returned joined.
func (b *Binding) Release() error {
	var errs []error
	if b.state == Mapped {
		if err := b.Unmap(); err != nil {
			errs = append(errs, err)
			b.state = Registered
		}
	}
	if b.state == Registered {
		if err := b.Unregister(); err != nil {
			errs = append(errs, err)
			b.reset()
		}
	}
	return errors.Join(errs...)
}

// Invalidate forgets the registration without calling the interop. It is
// used after the decoder device was lost, when the registration no longer
// exists on the other side.
func (b *Binding) Invalidate() { b.reset() }

func (b *Binding) reset() {
	b.api = nil
	b.state = Unregistered
	b.surface = 0
	b.handle = 0
}

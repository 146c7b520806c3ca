package hwdec

import "errors"

// Errors returned by drivers. Callers test for them with errors.Is; the
// wrapped cause carries the decoder status or GPU error.
var (
	// ErrCapabilityUnavailable means the environment cannot run the driver:
	// no display, no interop extension, no usable decoder device, or a
	// degraded backend rejected while probing.
	ErrCapabilityUnavailable = errors.New("hwdec: capability unavailable")

	// ErrDeviceLost means the decoder device was preempted and recovering
	// from it failed.
	ErrDeviceLost = errors.New("hwdec: device lost")

	// ErrDeviceFatal means a decoder or interop call failed. The current
	// operation is aborted; state that was valid before it is kept.
	ErrDeviceFatal = errors.New("hwdec: device error")

	// ErrInvariant means the driver was called in a way its contract
	// forbids, such as Reinit with a non-hardware format.
	ErrInvariant = errors.New("hwdec: invariant violated")

	// ErrNotConfigured is returned by Map before a successful Reinit and by
	// Reinit before Create.
	ErrNotConfigured = errors.New("hwdec: driver not configured")

	// ErrDestroyed is returned by calls on a destroyed driver.
	ErrDestroyed = errors.New("hwdec: driver destroyed")
)

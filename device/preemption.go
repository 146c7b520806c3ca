package device

import "fmt"

// PreemptionState is the outcome of a preemption check.
type PreemptionState int

const (
	// Current means the device has not been preempted since the last check.
	Current PreemptionState = iota
	// Preempted means the device was lost and recreated since the last check.
	// Every object created on it before the preemption is gone.
	Preempted
)

// String returns the name of the state.
func (s PreemptionState) String() string {
	if s == Preempted {
		return "preempted"
	}
	return "current"
}

// Tracker remembers the last observed preemption counter of a device.
type Tracker struct {
	counter uint64
	primed  bool
}

// Reset reads the current counter of ctx and makes it the baseline.
func (t *Tracker) Reset(ctx Context) error {
	c, err := ctx.PreemptionCounter()
	if err != nil {
		return fmt.Errorf("device: read preemption counter: %w", err)
	}
	t.counter = c
	t.primed = true
	return nil
}

// Check compares the current counter of ctx against the baseline. A change
// is reported once: the baseline moves to the new value.
// A query failure is returned as an error and leaves the baseline unchanged.
func (t *Tracker) Check(ctx Context) (PreemptionState, error) {
	c, err := ctx.PreemptionCounter()
	if err != nil {
		return Current, fmt.Errorf("device: read preemption counter: %w", err)
	}
	if !t.primed {
		t.counter = c
		t.primed = true
		return Current, nil
	}
	if c == t.counter {
		return Current, nil
	}
	t.counter = c
	return Preempted, nil
}

// Counter returns the baseline counter.
func (t *Tracker) Counter() uint64 { return t.counter }

package device

import "fmt"

// Status is a decoder status code. Non-OK codes are returned as errors.
type Status uint32

// Decoder status codes.
const (
	StatusOK Status = iota
	StatusNoImplementation
	StatusDisplayPreempted
	StatusInvalidHandle
	StatusInvalidPointer
	StatusInvalidChromaType
	StatusInvalidYCbCrFormat
	StatusInvalidRGBAFormat
	StatusInvalidSize
	StatusHandleDeviceMismatch
	StatusResources
	StatusError
)

var statusNames = [...]string{
	StatusOK:                   "OK",
	StatusNoImplementation:     "NO_IMPLEMENTATION",
	StatusDisplayPreempted:     "DISPLAY_PREEMPTED",
	StatusInvalidHandle:        "INVALID_HANDLE",
	StatusInvalidPointer:       "INVALID_POINTER",
	StatusInvalidChromaType:    "INVALID_CHROMA_TYPE",
	StatusInvalidYCbCrFormat:   "INVALID_Y_CB_CR_FORMAT",
	StatusInvalidRGBAFormat:    "INVALID_RGBA_FORMAT",
	StatusInvalidSize:          "INVALID_SIZE",
	StatusHandleDeviceMismatch: "HANDLE_DEVICE_MISMATCH",
	StatusResources:            "RESOURCES",
	StatusError:                "ERROR",
}

// String returns the symbolic name of the status.
func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint32(s))
}

// Error implements the error interface.
func (s Status) Error() string {
	return fmt.Sprintf("device: status %d (%s)", uint32(s), s.String())
}

// Err returns nil for StatusOK and s otherwise.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return s
}

package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrParameterOutOfRange indicates a parameter doesn't fit in the frame
	// or the valid range of the operation.
	ErrParameterOutOfRange = errors.New("parameter out of range")
	// ErrBusy indicates another request is awaiting reply.
	ErrBusy = errors.New("busy")
	// ErrNeedMoreBytes indicates less than a full frame is buffered.
	ErrNeedMoreBytes = errors.New("need more bytes")
	// ErrInvalidFrame indicates bad start/end marker or length byte.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrChecksumMismatch indicates a frame failed checksum validation.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrTimeout indicates no matching reply after all retries.
	ErrTimeout = errors.New("timeout")
	// ErrUnknownCommandCode indicates an inbound frame with a command code
	// which is neither a reply nor a known event.
	ErrUnknownCommandCode = errors.New("unknown command code")
	// ErrClosed indicates the link is not running.
	ErrClosed = errors.New("link closed")
)

// Error codes reported by the device in an error frame.
const (
	DeviceErrBusy       byte = 0x00
	DeviceErrIncomplete byte = 0x01
	DeviceErrCorrupt    byte = 0x02
)

// DeviceError wraps error codes from an error frame.
type DeviceError struct {
	Code byte
}

// Error implements error.
func (e *DeviceError) Error() string {
	switch e.Code {
	case DeviceErrBusy:
		return "device busy"
	case DeviceErrIncomplete:
		return "device received incomplete frame"
	case DeviceErrCorrupt:
		return "device received corrupt frame"
	}
	return fmt.Sprintf("device error 0x%02x", e.Code)
}

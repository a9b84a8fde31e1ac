package comm

import (
	"fmt"
	"io"
)

// Frame layout constants.
const (
	FrameSize      = 10
	StartMarker    = 0x7e
	EndMarker      = 0xef
	DefaultVersion = 0xff
	PayloadLength  = 0x06
)

// Reply codes.
const (
	CodeError byte = 0x40
	CodeAck   byte = 0x41
)

// Unsolicited event codes.
const (
	CodeDeviceInserted byte = 0x3a
	CodeDeviceEjected  byte = 0x3b
	CodeTrackDoneUSB   byte = 0x3c
	CodeTrackDoneSD    byte = 0x3d
	CodeTrackDoneFlash byte = 0x3e
	CodeDevicesReady   byte = 0x3f
)

// IsUnsolicited indicates the code is reserved for device notifications and
// never answers a request.
func IsUnsolicited(code byte) bool {
	return code >= CodeDeviceInserted && code <= CodeDevicesReady
}

// Frame is a decoded frame. It's a value type and never modified after
// construction.
type Frame struct {
	Version  byte
	Command  byte
	Feedback bool
	Param    uint16
}

// NewFrame creates a frame with the default version.
func NewFrame(cmd byte, feedback bool, param uint16) Frame {
	return Frame{Version: DefaultVersion, Command: cmd, Feedback: feedback, Param: param}
}

// ParamHigh returns the high byte of the parameter.
func (f Frame) ParamHigh() byte {
	return byte(f.Param >> 8)
}

// ParamLow returns the low byte of the parameter.
func (f Frame) ParamLow() byte {
	return byte(f.Param)
}

// Checksum computes the checksum of the frame.
func (f Frame) Checksum() uint16 {
	var fb byte
	if f.Feedback {
		fb = 1
	}
	return checksum(f.Version, PayloadLength, f.Command, fb, f.ParamHigh(), f.ParamLow())
}

// Bytes returns encoded bytes for sending.
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameSize)
	b[0], b[1], b[2], b[3] = StartMarker, f.Version, PayloadLength, f.Command
	if f.Feedback {
		b[4] = 1
	}
	b[5], b[6] = f.ParamHigh(), f.ParamLow()
	ck := f.Checksum()
	b[7], b[8], b[9] = byte(ck>>8), byte(ck), EndMarker
	return b
}

// WriteTo writes encoded bytes.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Bytes())
	return int64(n), err
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	return fmt.Sprintf("{cmd=0x%02x fb=%v param=0x%04x}", f.Command, f.Feedback, f.Param)
}

func checksum(bs ...byte) uint16 {
	var sum uint16
	for _, b := range bs {
		sum += uint16(b)
	}
	return -sum
}

// Encode produces the frame bytes for a command with two parameter bytes.
func Encode(cmd byte, feedback bool, param1, param2 int) ([]byte, error) {
	if param1 < 0 || param1 > 0xff || param2 < 0 || param2 > 0xff {
		return nil, ErrParameterOutOfRange
	}
	return NewFrame(cmd, feedback, uint16(param1)<<8|uint16(param2)).Bytes(), nil
}

// Decode validates and decodes the first FrameSize bytes of b.
func Decode(b []byte) (Frame, error) {
	if len(b) < FrameSize {
		return Frame{}, ErrNeedMoreBytes
	}
	if b[0] != StartMarker || b[2] != PayloadLength || b[9] != EndMarker {
		return Frame{}, ErrInvalidFrame
	}
	if checksum(b[1:7]...) != uint16(b[7])<<8|uint16(b[8]) {
		return Frame{}, ErrChecksumMismatch
	}
	return Frame{
		Version:  b[1],
		Command:  b[3],
		Feedback: b[4] != 0,
		Param:    uint16(b[5])<<8 | uint16(b[6]),
	}, nil
}

// Command is a request to be sent to the device.
type Command struct {
	Code     byte
	Param1   int
	Param2   int
	Feedback bool
}

// NewCommand creates a command requesting feedback with a 16-bit parameter
// split into the two parameter bytes.
func NewCommand(code byte, param int) Command {
	return Command{Code: code, Param1: param >> 8, Param2: param & 0xff, Feedback: true}
}

// Encode encodes the command into frame bytes.
func (c Command) Encode() ([]byte, error) {
	return Encode(c.Code, c.Feedback, c.Param1, c.Param2)
}

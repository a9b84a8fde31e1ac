package dfplayer

import (
	"errors"

	"github.com/robotalks/dfplayer.go/pkg/dfplayer/comm"
)

// ErrSuperseded indicates a playback handle was preempted by a newer play
// command.
var ErrSuperseded = errors.New("superseded")

// Errors from the protocol layer, re-exported for convenience.
var (
	ErrParameterOutOfRange = comm.ErrParameterOutOfRange
	ErrBusy                = comm.ErrBusy
	ErrTimeout             = comm.ErrTimeout
	ErrClosed              = comm.ErrClosed
	ErrUnknownCommandCode  = comm.ErrUnknownCommandCode
)

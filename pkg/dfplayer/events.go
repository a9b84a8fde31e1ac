package dfplayer

import (
	"fmt"
	"strings"

	"github.com/robotalks/dfplayer.go/pkg/dfplayer/comm"
)

// Device identifies a storage device. The values are the bits in DeviceSet.
type Device uint8

// Known devices.
const (
	DeviceUSB   Device = 0x01
	DeviceSD    Device = 0x02
	DevicePC    Device = 0x04
	DeviceFlash Device = 0x08
)

var deviceNames = []struct {
	dev  Device
	name string
}{
	{DeviceUSB, "usb"},
	{DeviceSD, "sd"},
	{DevicePC, "pc"},
	{DeviceFlash, "flash"},
}

// String implements fmt.Stringer.
func (d Device) String() string {
	for _, n := range deviceNames {
		if n.dev == d {
			return n.name
		}
	}
	return fmt.Sprintf("device(0x%02x)", uint8(d))
}

// ParseDevice parses a device name.
func ParseDevice(s string) (Device, error) {
	for _, n := range deviceNames {
		if strings.EqualFold(n.name, s) {
			return n.dev, nil
		}
	}
	return 0, fmt.Errorf("unknown device %q", s)
}

// DeviceSet is a bitmask of available devices.
type DeviceSet uint8

// Has indicates d is in the set.
func (s DeviceSet) Has(d Device) bool {
	return s&DeviceSet(d) != 0
}

// With returns the set with d added.
func (s DeviceSet) With(d Device) DeviceSet {
	return s | DeviceSet(d)
}

// Without returns the set with d removed.
func (s DeviceSet) Without(d Device) DeviceSet {
	return s &^ DeviceSet(d)
}

// String implements fmt.Stringer.
func (s DeviceSet) String() string {
	if s == 0 {
		return "none"
	}
	var names []string
	for bit := DeviceSet(1); bit != 0; bit <<= 1 {
		if s&bit != 0 {
			names = append(names, Device(bit).String())
		}
	}
	return strings.Join(names, "|")
}

// EventKind is the kind of an Event.
type EventKind int

// Event kinds.
const (
	EventTrackDone EventKind = iota
	EventDeviceInserted
	EventDeviceEjected
	EventDevicesReady

	numEventKinds int = iota
)

// EventKinds lists all event kinds.
var EventKinds = []EventKind{
	EventTrackDone,
	EventDeviceInserted,
	EventDeviceEjected,
	EventDevicesReady,
}

var eventKindNames = [numEventKinds]string{
	"track-done",
	"device-inserted",
	"device-ejected",
	"devices-ready",
}

// String implements fmt.Stringer.
func (k EventKind) String() string {
	if k >= 0 && int(k) < numEventKinds {
		return eventKindNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is an unsolicited notification from the device.
type Event interface {
	Kind() EventKind
}

// TrackDone is sent when a track finishes on a device.
type TrackDone struct {
	Device Device
	Track  uint16
}

// DeviceInserted is sent when a device is plugged in.
type DeviceInserted struct {
	Device Device
}

// DeviceEjected is sent when a device is removed.
type DeviceEjected struct {
	Device Device
}

// DevicesReady is sent after power on or reset with all available devices.
type DevicesReady struct {
	Devices DeviceSet
}

// Kind implements Event.
func (TrackDone) Kind() EventKind { return EventTrackDone }

// Kind implements Event.
func (DeviceInserted) Kind() EventKind { return EventDeviceInserted }

// Kind implements Event.
func (DeviceEjected) Kind() EventKind { return EventDeviceEjected }

// Kind implements Event.
func (DevicesReady) Kind() EventKind { return EventDevicesReady }

func (e TrackDone) String() string      { return fmt.Sprintf("track %d done on %s", e.Track, e.Device) }
func (e DeviceInserted) String() string { return fmt.Sprintf("%s inserted", e.Device) }
func (e DeviceEjected) String() string  { return fmt.Sprintf("%s ejected", e.Device) }
func (e DevicesReady) String() string   { return fmt.Sprintf("ready with %s", e.Devices) }

// EventFromFrame classifies an unsolicited frame.
func EventFromFrame(f comm.Frame) (Event, error) {
	switch f.Command {
	case comm.CodeDeviceInserted:
		return DeviceInserted{Device: Device(f.ParamLow())}, nil
	case comm.CodeDeviceEjected:
		return DeviceEjected{Device: Device(f.ParamLow())}, nil
	case comm.CodeTrackDoneUSB:
		return TrackDone{Device: DeviceUSB, Track: f.Param}, nil
	case comm.CodeTrackDoneSD:
		return TrackDone{Device: DeviceSD, Track: f.Param}, nil
	case comm.CodeTrackDoneFlash:
		return TrackDone{Device: DeviceFlash, Track: f.Param}, nil
	case comm.CodeDevicesReady:
		return DevicesReady{Devices: DeviceSet(f.ParamLow())}, nil
	}
	return nil, comm.ErrUnknownCommandCode
}

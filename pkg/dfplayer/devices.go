package dfplayer

import (
	"sync"
	"sync/atomic"
)

// deviceTracker maintains the set of available devices.
// apply is called from the Link loop only, the set can be read anywhere.
type deviceTracker struct {
	bits      uint32
	ready     chan struct{}
	readyOnce sync.Once
}

func newDeviceTracker() *deviceTracker {
	return &deviceTracker{ready: make(chan struct{})}
}

func (t *deviceTracker) devices() DeviceSet {
	return DeviceSet(atomic.LoadUint32(&t.bits))
}

func (t *deviceTracker) apply(ev Event) {
	set := t.devices()
	switch e := ev.(type) {
	case DevicesReady:
		set = e.Devices
		defer t.readyOnce.Do(func() { close(t.ready) })
	case DeviceInserted:
		set = set.With(e.Device)
	case DeviceEjected:
		set = set.Without(e.Device)
	default:
		return
	}
	atomic.StoreUint32(&t.bits, uint32(set))
}

package sim

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/dfplayer.go/pkg/dfplayer"
	"github.com/robotalks/dfplayer.go/pkg/dfplayer/comm"
)

// Defaults of a simulated device.
const (
	DefaultFileCount   = 20
	DefaultFolderCount = 5
	DefaultVolume      = 20
)

var doneCodes = map[dfplayer.Device]byte{
	dfplayer.DeviceUSB:   comm.CodeTrackDoneUSB,
	dfplayer.DeviceSD:    comm.CodeTrackDoneSD,
	dfplayer.DeviceFlash: comm.CodeTrackDoneFlash,
}

var selectParams = map[uint16]dfplayer.Device{
	1: dfplayer.DeviceUSB,
	2: dfplayer.DeviceSD,
	5: dfplayer.DeviceFlash,
}

// Device simulates a DFPlayer module on the device side of a link.
type Device struct {
	// PlayDuration is how long a track plays before TrackDone is sent,
	// 0 to only finish on Finish.
	PlayDuration time.Duration
	// Available is announced in DevicesReady on PowerOn and Reset.
	Available dfplayer.DeviceSet

	lock     sync.Mutex
	volume   int
	eq       int
	state    dfplayer.State
	selected dfplayer.Device
	track    uint16
	advert   uint16
	timer    *time.Timer
	gen      int
	silent   bool
	failures int
	received []comm.Frame

	out  chan []byte
	done chan struct{}
	once sync.Once
}

// NewDevice creates a simulated device with SD card available.
func NewDevice() *Device {
	return &Device{
		Available: dfplayer.DeviceSet(dfplayer.DeviceSD),
		volume:    DefaultVolume,
		selected:  dfplayer.DeviceSD,
		out:       make(chan []byte, 64),
		done:      make(chan struct{}),
	}
}

// Pipe serves the device on one end of an in-memory connection and
// returns the other end for the host.
func (d *Device) Pipe(ctx context.Context) io.ReadWriteCloser {
	host, dev := net.Pipe()
	go func() {
		if err := d.Serve(ctx, dev); err != nil && err != context.Canceled {
			glog.V(1).Infof("sim device: %v", err)
		}
	}()
	return host
}

// Serve processes frames from rw until ctx is done or rw fails.
func (d *Device) Serve(ctx context.Context, rw io.ReadWriter) error {
	defer d.stop()
	errCh := make(chan error, 2)
	go d.writeLoop(rw, errCh)
	go d.readLoop(rw, errCh)
	select {
	case <-ctx.Done():
		if c, ok := rw.(io.Closer); ok {
			c.Close()
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (d *Device) writeLoop(w io.Writer, errCh chan<- error) {
	for {
		select {
		case b := <-d.out:
			if _, err := w.Write(b); err != nil {
				errCh <- err
				return
			}
		case <-d.done:
			return
		}
	}
}

func (d *Device) readLoop(r io.Reader, errCh chan<- error) {
	var parser comm.Parser
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		parser.Feed(buf[:n])
		for {
			f, e := parser.Next()
			if e == comm.ErrNeedMoreBytes {
				break
			}
			if e == nil {
				d.handle(f)
			}
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

func (d *Device) stop() {
	d.once.Do(func() { close(d.done) })
	d.lock.Lock()
	d.stopTimerLocked()
	d.lock.Unlock()
}

// Emit sends an arbitrary frame to the host.
func (d *Device) Emit(f comm.Frame) {
	select {
	case d.out <- f.Bytes():
	case <-d.done:
	}
}

func (d *Device) emit(code byte, param uint16) {
	d.Emit(comm.NewFrame(code, false, param))
}

// PowerOn announces the available devices.
func (d *Device) PowerOn() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.emit(comm.CodeDevicesReady, uint16(d.Available))
}

// Insert plugs in a device.
func (d *Device) Insert(dev dfplayer.Device) {
	d.lock.Lock()
	d.Available = d.Available.With(dev)
	d.lock.Unlock()
	d.emit(comm.CodeDeviceInserted, uint16(dev))
}

// Eject removes a device.
func (d *Device) Eject(dev dfplayer.Device) {
	d.lock.Lock()
	d.Available = d.Available.Without(dev)
	d.lock.Unlock()
	d.emit(comm.CodeDeviceEjected, uint16(dev))
}

// Finish ends the current advert or track immediately.
func (d *Device) Finish() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.finishLocked()
}

// SetSilent makes the device ignore all frames.
func (d *Device) SetSilent(silent bool) {
	d.lock.Lock()
	d.silent = silent
	d.lock.Unlock()
}

// FailNext replies the next n frames with a busy error.
func (d *Device) FailNext(n int) {
	d.lock.Lock()
	d.failures = n
	d.lock.Unlock()
}

// Volume returns the current volume.
func (d *Device) Volume() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.volume
}

// State returns the playback state.
func (d *Device) State() dfplayer.State {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.state
}

// Received returns all frames received so far.
func (d *Device) Received() []comm.Frame {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]comm.Frame(nil), d.received...)
}

func (d *Device) handle(f comm.Frame) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.received = append(d.received, f)
	if d.silent {
		return
	}
	if d.failures > 0 {
		d.failures--
		d.emit(comm.CodeError, uint16(comm.DeviceErrBusy))
		return
	}
	if value, ok := d.queryLocked(f); ok {
		if f.Feedback {
			d.emit(comm.CodeAck, 0)
		}
		d.emit(f.Command, value)
		return
	}
	ready := d.commandLocked(f)
	if f.Feedback {
		d.emit(comm.CodeAck, 0)
	}
	if ready {
		d.emit(comm.CodeDevicesReady, uint16(d.Available))
	}
}

func (d *Device) queryLocked(f comm.Frame) (uint16, bool) {
	switch f.Command {
	case dfplayer.QueryState:
		return uint16(d.state), true
	case dfplayer.QueryVolume:
		return uint16(d.volume), true
	case dfplayer.QueryEQ:
		return uint16(d.eq), true
	case dfplayer.QueryFileCountUSB, dfplayer.QueryFileCountSD, dfplayer.QueryFileCountFlash:
		return DefaultFileCount, true
	case dfplayer.QueryTrackUSB, dfplayer.QueryTrackSD, dfplayer.QueryTrackFlash:
		return d.track, true
	case dfplayer.QueryFolderFileCount:
		return DefaultFileCount, true
	case dfplayer.QueryFolderCount:
		return DefaultFolderCount, true
	}
	return 0, false
}

// commandLocked applies a command and reports whether the device rebooted.
func (d *Device) commandLocked(f comm.Frame) bool {
	switch f.Command {
	case dfplayer.CmdNext:
		d.playLocked(d.track + 1)
	case dfplayer.CmdPrevious:
		if d.track > 1 {
			d.playLocked(d.track - 1)
		}
	case dfplayer.CmdPlayTrack, dfplayer.CmdPlayMP3:
		d.playLocked(f.Param)
	case dfplayer.CmdPlayFolder:
		d.playLocked(uint16(f.ParamLow()))
	case dfplayer.CmdPlayAdvert:
		d.advert = f.Param
		d.scheduleLocked()
	case dfplayer.CmdStopAdvert:
		if d.advert != 0 {
			d.advert = 0
			d.scheduleLocked()
		}
	case dfplayer.CmdVolumeUp:
		if d.volume < dfplayer.MaxVolume {
			d.volume++
		}
	case dfplayer.CmdVolumeDown:
		if d.volume > 0 {
			d.volume--
		}
	case dfplayer.CmdSetVolume:
		d.volume = int(f.Param)
	case dfplayer.CmdSetEQ:
		d.eq = int(f.Param)
	case dfplayer.CmdSelectDevice:
		if dev, ok := selectParams[f.Param]; ok {
			d.selected = dev
		}
	case dfplayer.CmdPause:
		if d.state == dfplayer.StatePlaying {
			d.state = dfplayer.StatePaused
			d.stopTimerLocked()
		}
	case dfplayer.CmdResume:
		if d.state == dfplayer.StatePaused {
			d.state = dfplayer.StatePlaying
			d.scheduleLocked()
		}
	case dfplayer.CmdStop:
		d.state, d.advert = dfplayer.StateStopped, 0
		d.stopTimerLocked()
	case dfplayer.CmdReset:
		d.state, d.advert, d.track = dfplayer.StateStopped, 0, 0
		d.volume, d.eq, d.selected = DefaultVolume, dfplayer.EQNormal, dfplayer.DeviceSD
		d.stopTimerLocked()
		return true
	}
	return false
}

func (d *Device) playLocked(track uint16) {
	d.state, d.track, d.advert = dfplayer.StatePlaying, track, 0
	d.scheduleLocked()
}

func (d *Device) scheduleLocked() {
	d.stopTimerLocked()
	if d.PlayDuration > 0 {
		gen := d.gen
		d.timer = time.AfterFunc(d.PlayDuration, func() {
			d.lock.Lock()
			defer d.lock.Unlock()
			if d.gen == gen {
				d.finishLocked()
			}
		})
	}
}

func (d *Device) stopTimerLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Device) finishLocked() {
	code := doneCodes[d.selected]
	switch {
	case d.advert != 0:
		d.emit(code, d.advert)
		d.advert = 0
		d.scheduleLocked()
	case d.state == dfplayer.StatePlaying:
		d.emit(code, d.track)
		d.state = dfplayer.StateStopped
		d.stopTimerLocked()
	}
}

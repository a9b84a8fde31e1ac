package dfplayer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/dfplayer.go/pkg/dfplayer/comm"
)

// Extra reply time for slow commands.
const (
	resumeExtraTimeout = 100 * time.Millisecond
	resetExtraTimeout  = 200 * time.Millisecond
)

// Player is the host side driver of a DFPlayer module.
type Player struct {
	Config Config

	link      *comm.Link
	listeners listenerRegistry
	devices   *deviceTracker

	// owned by the Link loop.
	playback playbackTracker
	selected Device
}

// New creates a Player with the default config.
func New(rw io.ReadWriter) *Player {
	return NewConfig().NewPlayer(rw)
}

// Link exposes the underlying Link, e.g. to set an Observer before Run.
func (p *Player) Link() *comm.Link {
	return p.link
}

// Name implements framework.Named.
func (p *Player) Name() string {
	return "dfplayer"
}

// Run runs the protocol loop until ctx is done or the link fails.
// Outstanding playback handles fail with ErrClosed when it returns.
func (p *Player) Run(ctx context.Context) error {
	err := p.link.Run(ctx)
	p.playback.abort(comm.ErrClosed)
	return err
}

// HandleFrame implements comm.FrameHandler.
func (p *Player) HandleFrame(ctx context.Context, f comm.Frame) {
	ev, err := EventFromFrame(f)
	if err != nil {
		glog.Warningf("drop frame %s: %v", f, err)
		return
	}
	glog.V(2).Infof("EVENT %v", ev)
	if done, ok := ev.(TrackDone); ok {
		p.playback.trackDone(done)
	} else {
		p.devices.apply(ev)
	}
	p.listeners.dispatch(ev)
}

// Listen registers a listener for events of kind.
// The listener runs on the Link loop, see Listener.
func (p *Player) Listen(kind EventKind, l Listener) *Subscription {
	return p.listeners.add(kind, l)
}

// OnTrackDone registers a listener for TrackDone events.
func (p *Player) OnTrackDone(fn func(TrackDone)) *Subscription {
	return p.Listen(EventTrackDone, func(ev Event) { fn(ev.(TrackDone)) })
}

// OnDeviceInserted registers a listener for DeviceInserted events.
func (p *Player) OnDeviceInserted(fn func(Device)) *Subscription {
	return p.Listen(EventDeviceInserted, func(ev Event) { fn(ev.(DeviceInserted).Device) })
}

// OnDeviceEjected registers a listener for DeviceEjected events.
func (p *Player) OnDeviceEjected(fn func(Device)) *Subscription {
	return p.Listen(EventDeviceEjected, func(ev Event) { fn(ev.(DeviceEjected).Device) })
}

// OnDevicesReady registers a listener for DevicesReady events.
func (p *Player) OnDevicesReady(fn func(DeviceSet)) *Subscription {
	return p.Listen(EventDevicesReady, func(ev Event) { fn(ev.(DevicesReady).Devices) })
}

// Devices returns the currently available devices.
func (p *Player) Devices() DeviceSet {
	return p.devices.devices()
}

// WaitAvailable waits until the first DevicesReady event after power on.
// It fails with ErrTimeout if Config.ReadyTimeout elapses first.
func (p *Player) WaitAvailable(ctx context.Context) (DeviceSet, error) {
	if t := p.Config.ReadyTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	select {
	case <-p.devices.ready:
		return p.Devices(), nil
	case <-p.link.Done():
		return 0, ErrClosed
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return 0, ErrTimeout
		}
		return 0, ctx.Err()
	}
}

// Send sends a raw command and waits for the ack.
func (p *Player) Send(ctx context.Context, code byte, param int) error {
	return p.send(ctx, comm.NewCommand(code, param), 0)
}

// Query sends a raw query and returns the parameter of the reply.
func (p *Player) Query(ctx context.Context, code byte, param int) (int, error) {
	v, err := p.link.Query(ctx, comm.NewCommand(code, param))
	return int(v), err
}

func (p *Player) send(ctx context.Context, cmd comm.Command, extra time.Duration) error {
	_, err := p.link.Do(ctx, comm.Request{Command: cmd, ExtraTimeout: extra})
	return err
}

func (p *Player) queryLow(ctx context.Context, code byte) (int, error) {
	v, err := p.Query(ctx, code, 0)
	return v & 0xff, err
}

func checkRange(what string, v, min, max int) error {
	if v < min || v > max {
		return fmt.Errorf("%s %d not in [%d, %d]: %w", what, v, min, max, ErrParameterOutOfRange)
	}
	return nil
}

// Next plays the next track.
func (p *Player) Next(ctx context.Context) error {
	return p.Send(ctx, CmdNext, 0)
}

// Previous plays the previous track.
func (p *Player) Previous(ctx context.Context) error {
	return p.Send(ctx, CmdPrevious, 0)
}

// VolumeUp increases the volume by one step.
func (p *Player) VolumeUp(ctx context.Context) error {
	return p.Send(ctx, CmdVolumeUp, 0)
}

// VolumeDown decreases the volume by one step.
func (p *Player) VolumeDown(ctx context.Context) error {
	return p.Send(ctx, CmdVolumeDown, 0)
}

// SetVolume sets the volume in [0, MaxVolume].
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	if err := checkRange("volume", volume, 0, MaxVolume); err != nil {
		return err
	}
	return p.Send(ctx, CmdSetVolume, volume)
}

// Volume queries the volume.
func (p *Player) Volume(ctx context.Context) (int, error) {
	return p.queryLow(ctx, QueryVolume)
}

// SetEQ selects an EQ preset.
func (p *Player) SetEQ(ctx context.Context, eq int) error {
	if err := checkRange("eq", eq, 0, MaxEQ); err != nil {
		return err
	}
	return p.Send(ctx, CmdSetEQ, eq)
}

// EQ queries the EQ preset.
func (p *Player) EQ(ctx context.Context) (int, error) {
	return p.queryLow(ctx, QueryEQ)
}

// State queries the playback state.
func (p *Player) State(ctx context.Context) (State, error) {
	v, err := p.queryLow(ctx, QueryState)
	return State(v), err
}

// SelectDevice selects the device to play from. TrackDone events are
// matched against the selected device, SD card by default.
func (p *Player) SelectDevice(ctx context.Context, dev Device) error {
	param, ok := selectDeviceParams[dev]
	if !ok {
		return fmt.Errorf("select device %s: %w", dev, ErrParameterOutOfRange)
	}
	_, err := p.link.Do(ctx, comm.Request{
		Command: comm.NewCommand(CmdSelectDevice, param),
		OnReply: func(context.Context, comm.Frame) { p.selected = dev },
	})
	return err
}

// Sleep puts the device into sleep mode.
func (p *Player) Sleep(ctx context.Context) error {
	return p.Send(ctx, CmdSleep, 0)
}

// Wake wakes the device up.
func (p *Player) Wake(ctx context.Context) error {
	return p.Send(ctx, CmdWake, 0)
}

// Reset resets the device. It sends DevicesReady again after reboot.
func (p *Player) Reset(ctx context.Context) error {
	return p.send(ctx, comm.NewCommand(CmdReset, 0), resetExtraTimeout)
}

// Resume resumes playback.
func (p *Player) Resume(ctx context.Context) error {
	return p.send(ctx, comm.NewCommand(CmdResume, 0), resumeExtraTimeout)
}

// Pause pauses playback.
func (p *Player) Pause(ctx context.Context) error {
	return p.Send(ctx, CmdPause, 0)
}

// Stop stops playback.
func (p *Player) Stop(ctx context.Context) error {
	return p.Send(ctx, CmdStop, 0)
}

// StopAdvert stops the advert and resumes the interrupted track.
func (p *Player) StopAdvert(ctx context.Context) error {
	return p.Send(ctx, CmdStopAdvert, 0)
}

// FileCount queries the number of files on a device.
func (p *Player) FileCount(ctx context.Context, dev Device) (int, error) {
	code, ok := fileCountQueries[dev]
	if !ok {
		return 0, fmt.Errorf("file count of %s: %w", dev, ErrParameterOutOfRange)
	}
	return p.Query(ctx, code, 0)
}

// CurrentTrack queries the current track on a device.
func (p *Player) CurrentTrack(ctx context.Context, dev Device) (int, error) {
	code, ok := trackQueries[dev]
	if !ok {
		return 0, fmt.Errorf("current track of %s: %w", dev, ErrParameterOutOfRange)
	}
	return p.Query(ctx, code, 0)
}

// FolderFileCount queries the number of files in a folder.
func (p *Player) FolderFileCount(ctx context.Context, folder int) (int, error) {
	if err := checkRange("folder", folder, 1, MaxFolder); err != nil {
		return 0, err
	}
	return p.Query(ctx, QueryFolderFileCount, folder)
}

// FolderCount queries the number of folders.
func (p *Player) FolderCount(ctx context.Context) (int, error) {
	return p.Query(ctx, QueryFolderCount, 0)
}

// PlayTrack plays a track by its index in the root of the device.
func (p *Player) PlayTrack(ctx context.Context, track int) (*PlaybackHandle, error) {
	if err := checkRange("track", track, 1, MaxRootTrack); err != nil {
		return nil, err
	}
	return p.play(ctx, comm.NewCommand(CmdPlayTrack, track), track, false)
}

// PlayFolder plays track NNN.mp3 in folder NN.
func (p *Player) PlayFolder(ctx context.Context, folder, track int) (*PlaybackHandle, error) {
	if err := checkRange("folder", folder, 1, MaxFolder); err != nil {
		return nil, err
	}
	if err := checkRange("track", track, 1, MaxFolderTrack); err != nil {
		return nil, err
	}
	cmd := comm.Command{Code: CmdPlayFolder, Param1: folder, Param2: track, Feedback: true}
	return p.play(ctx, cmd, track, false)
}

// PlayMP3 plays track NNNN.mp3 in folder MP3.
func (p *Player) PlayMP3(ctx context.Context, track int) (*PlaybackHandle, error) {
	if err := checkRange("track", track, 1, MaxMP3Track); err != nil {
		return nil, err
	}
	return p.play(ctx, comm.NewCommand(CmdPlayMP3, track), track, false)
}

// PlayAdvert interrupts the current track with NNNN.mp3 in folder ADVERT.
// The interrupted track resumes after the advert.
func (p *Player) PlayAdvert(ctx context.Context, track int) (*PlaybackHandle, error) {
	if err := checkRange("track", track, 1, MaxMP3Track); err != nil {
		return nil, err
	}
	return p.play(ctx, comm.NewCommand(CmdPlayAdvert, track), track, true)
}

// Play plays a track from a numbered folder or one of FolderRoot,
// FolderMP3 and FolderAdvert.
func (p *Player) Play(ctx context.Context, folder, track int) (*PlaybackHandle, error) {
	switch folder {
	case FolderRoot:
		return p.PlayTrack(ctx, track)
	case FolderMP3:
		return p.PlayMP3(ctx, track)
	case FolderAdvert:
		return p.PlayAdvert(ctx, track)
	}
	return p.PlayFolder(ctx, folder, track)
}

func (p *Player) play(ctx context.Context, cmd comm.Command, track int, advert bool) (*PlaybackHandle, error) {
	var h *PlaybackHandle
	_, err := p.link.Do(ctx, comm.Request{
		Command: cmd,
		OnSend: func(context.Context) {
			p.playback.supersede(advert)
		},
		OnReply: func(context.Context, comm.Frame) {
			h = newPlaybackHandle(p.selected, uint16(track), advert)
			p.playback.expect(h)
		},
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

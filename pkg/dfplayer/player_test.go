package dfplayer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/dfplayer.go/pkg/dfplayer"
	"github.com/robotalks/dfplayer.go/pkg/dfplayer/comm"
	"github.com/robotalks/dfplayer.go/pkg/sim"
)

const testWait = time.Second

type playerTestEnv struct {
	t      *testing.T
	player *dfplayer.Player
	dev    *sim.Device
	cancel context.CancelFunc
	runErr chan error
}

func newPlayerTestEnv(t *testing.T) *playerTestEnv {
	ctx, cancel := context.WithCancel(context.Background())
	conf := dfplayer.NewConfig()
	conf.Timeout = 30 * time.Millisecond
	conf.Retries = 2
	conf.ReadyTimeout = 100 * time.Millisecond
	env := &playerTestEnv{
		t:      t,
		dev:    sim.NewDevice(),
		cancel: cancel,
		runErr: make(chan error, 1),
	}
	env.player = conf.NewPlayer(env.dev.Pipe(ctx))
	go func() {
		env.runErr <- env.player.Run(ctx)
	}()
	t.Cleanup(env.stop)
	return env
}

func (e *playerTestEnv) stop() {
	e.cancel()
	select {
	case <-e.player.Link().Done():
	case <-time.After(testWait):
		e.t.Fatal("player not stopped")
	}
}

func (e *playerTestEnv) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testWait)
	e.t.Cleanup(cancel)
	return ctx
}

func (e *playerTestEnv) events(kind dfplayer.EventKind) <-chan dfplayer.Event {
	ch := make(chan dfplayer.Event, 16)
	e.player.Listen(kind, func(ev dfplayer.Event) { ch <- ev })
	return ch
}

func expectEvent(t *testing.T, ch <-chan dfplayer.Event) dfplayer.Event {
	select {
	case ev := <-ch:
		return ev
	case <-time.After(testWait):
		t.Fatal("event expected")
	}
	return nil
}

func requireResolved(t *testing.T, h *dfplayer.PlaybackHandle) error {
	select {
	case <-h.Done():
		return h.Err()
	case <-time.After(testWait):
		t.Fatalf("playback of %d not resolved", h.Track)
	}
	return nil
}

func requirePending(t *testing.T, h *dfplayer.PlaybackHandle) {
	select {
	case <-h.Done():
		t.Fatalf("playback of %d unexpectedly resolved: %v", h.Track, h.Err())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPlayFolderUntilTrackDone(t *testing.T) {
	env := newPlayerTestEnv(t)
	ch := env.events(dfplayer.EventTrackDone)
	h, err := env.player.PlayFolder(env.ctx(), 1, 1)
	require.NoError(t, err)
	require.Equal(t, dfplayer.DeviceSD, h.Device)
	require.Equal(t, uint16(1), h.Track)
	requirePending(t, h)

	env.dev.Finish()
	require.NoError(t, requireResolved(t, h))
	require.Equal(t, dfplayer.TrackDone{Device: dfplayer.DeviceSD, Track: 1}, expectEvent(t, ch))
}

func TestSetVolumeThenQuery(t *testing.T) {
	env := newPlayerTestEnv(t)
	require.NoError(t, env.player.SetVolume(env.ctx(), 15))
	vol, err := env.player.Volume(env.ctx())
	require.NoError(t, err)
	require.Equal(t, 15, vol)
	require.Equal(t, 15, env.dev.Volume())
}

func TestParameterOutOfRangeNotSent(t *testing.T) {
	env := newPlayerTestEnv(t)
	ctx := env.ctx()
	require.ErrorIs(t, env.player.SetVolume(ctx, 31), dfplayer.ErrParameterOutOfRange)
	require.ErrorIs(t, env.player.SetEQ(ctx, 6), dfplayer.ErrParameterOutOfRange)
	_, err := env.player.PlayFolder(ctx, 100, 1)
	require.ErrorIs(t, err, dfplayer.ErrParameterOutOfRange)
	_, err = env.player.PlayFolder(ctx, 1, 256)
	require.ErrorIs(t, err, dfplayer.ErrParameterOutOfRange)
	_, err = env.player.PlayTrack(ctx, 0)
	require.ErrorIs(t, err, dfplayer.ErrParameterOutOfRange)
	_, err = env.player.PlayMP3(ctx, 10000)
	require.ErrorIs(t, err, dfplayer.ErrParameterOutOfRange)
	_, err = env.player.FileCount(ctx, dfplayer.DevicePC)
	require.ErrorIs(t, err, dfplayer.ErrParameterOutOfRange)
	require.ErrorIs(t, env.player.SelectDevice(ctx, dfplayer.DevicePC), dfplayer.ErrParameterOutOfRange)
	require.ErrorIs(t, env.player.Send(ctx, dfplayer.CmdSetVolume, 0x10000), dfplayer.ErrParameterOutOfRange)
	require.False(t, env.player.Link().Busy())
	require.Empty(t, env.dev.Received())
}

func TestTrackDoneIsolation(t *testing.T) {
	env := newPlayerTestEnv(t)
	ch := env.events(dfplayer.EventTrackDone)
	h, err := env.player.PlayTrack(env.ctx(), 3)
	require.NoError(t, err)

	env.dev.Emit(comm.NewFrame(comm.CodeTrackDoneSD, false, 4))
	require.Equal(t, dfplayer.TrackDone{Device: dfplayer.DeviceSD, Track: 4}, expectEvent(t, ch))
	requirePending(t, h)

	env.dev.Emit(comm.NewFrame(comm.CodeTrackDoneUSB, false, 3))
	require.Equal(t, dfplayer.TrackDone{Device: dfplayer.DeviceUSB, Track: 3}, expectEvent(t, ch))
	requirePending(t, h)

	env.dev.Emit(comm.NewFrame(comm.CodeTrackDoneSD, false, 3))
	require.NoError(t, requireResolved(t, h))
}

func TestPlaySupersedes(t *testing.T) {
	env := newPlayerTestEnv(t)
	h1, err := env.player.PlayTrack(env.ctx(), 1)
	require.NoError(t, err)
	h2, err := env.player.Play(env.ctx(), dfplayer.FolderMP3, 2)
	require.NoError(t, err)
	require.ErrorIs(t, requireResolved(t, h1), dfplayer.ErrSuperseded)
	requirePending(t, h2)

	env.dev.Finish()
	require.NoError(t, requireResolved(t, h2))
}

func TestPlaySupersedesWhenNextPlayFails(t *testing.T) {
	testCases := []struct {
		name  string
		fail  func(*sim.Device)
		check func(*testing.T, error)
	}{
		{"timeout", func(d *sim.Device) { d.SetSilent(true) }, func(t *testing.T, err error) {
			require.ErrorIs(t, err, dfplayer.ErrTimeout)
		}},
		{"device error", func(d *sim.Device) { d.FailNext(3) }, func(t *testing.T, err error) {
			var devErr *comm.DeviceError
			require.ErrorAs(t, err, &devErr)
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newPlayerTestEnv(t)
			h1, err := env.player.PlayTrack(env.ctx(), 1)
			require.NoError(t, err)

			tc.fail(env.dev)
			h2, err := env.player.PlayTrack(env.ctx(), 2)
			tc.check(t, err)
			require.Nil(t, h2)
			require.ErrorIs(t, requireResolved(t, h1), dfplayer.ErrSuperseded)

			// the old track finishing later doesn't turn it into a success.
			env.dev.SetSilent(false)
			env.dev.Emit(comm.NewFrame(comm.CodeTrackDoneSD, false, 1))
			time.Sleep(20 * time.Millisecond)
			require.ErrorIs(t, h1.Err(), dfplayer.ErrSuperseded)
		})
	}
}

func TestAdvertPlayback(t *testing.T) {
	env := newPlayerTestEnv(t)
	track, err := env.player.PlayTrack(env.ctx(), 1)
	require.NoError(t, err)
	advert, err := env.player.PlayAdvert(env.ctx(), 5)
	require.NoError(t, err)
	require.True(t, advert.Advert)

	env.dev.Finish()
	require.NoError(t, requireResolved(t, advert))
	requirePending(t, track)

	env.dev.Finish()
	require.NoError(t, requireResolved(t, track))
}

func TestAdvertSupersededByTrack(t *testing.T) {
	env := newPlayerTestEnv(t)
	advert, err := env.player.Play(env.ctx(), dfplayer.FolderAdvert, 5)
	require.NoError(t, err)
	track, err := env.player.Play(env.ctx(), dfplayer.FolderRoot, 2)
	require.NoError(t, err)
	require.ErrorIs(t, requireResolved(t, advert), dfplayer.ErrSuperseded)
	requirePending(t, track)
}

func TestSelectDeviceMatchesTrackDone(t *testing.T) {
	env := newPlayerTestEnv(t)
	require.NoError(t, env.player.SelectDevice(env.ctx(), dfplayer.DeviceUSB))
	h, err := env.player.PlayTrack(env.ctx(), 2)
	require.NoError(t, err)
	require.Equal(t, dfplayer.DeviceUSB, h.Device)
	env.dev.Finish()
	require.NoError(t, requireResolved(t, h))
}

func TestDeviceState(t *testing.T) {
	env := newPlayerTestEnv(t)
	require.Equal(t, dfplayer.DeviceSet(0), env.player.Devices())

	env.dev.PowerOn()
	devs, err := env.player.WaitAvailable(env.ctx())
	require.NoError(t, err)
	require.True(t, devs.Has(dfplayer.DeviceSD))

	inserted := env.events(dfplayer.EventDeviceInserted)
	env.dev.Insert(dfplayer.DeviceUSB)
	expectEvent(t, inserted)
	require.Equal(t, dfplayer.DeviceSet(0).With(dfplayer.DeviceSD).With(dfplayer.DeviceUSB), env.player.Devices())

	ejected := make(chan dfplayer.DeviceSet, 1)
	env.player.OnDeviceEjected(func(dfplayer.Device) {
		// trackers are updated before listeners.
		ejected <- env.player.Devices()
	})
	env.dev.Eject(dfplayer.DeviceSD)
	select {
	case set := <-ejected:
		require.Equal(t, dfplayer.DeviceSet(dfplayer.DeviceUSB), set)
	case <-time.After(testWait):
		t.Fatal("ejected expected")
	}
}

func TestWaitAvailableTimeout(t *testing.T) {
	env := newPlayerTestEnv(t)
	_, err := env.player.WaitAvailable(context.Background())
	require.ErrorIs(t, err, dfplayer.ErrTimeout)
}

func TestListenersOrderAndClose(t *testing.T) {
	env := newPlayerTestEnv(t)
	var lock sync.Mutex
	var calls []int
	record := func(n int) dfplayer.Listener {
		return func(dfplayer.Event) {
			lock.Lock()
			calls = append(calls, n)
			lock.Unlock()
		}
	}
	env.player.Listen(dfplayer.EventDevicesReady, record(1))
	sub := env.player.Listen(dfplayer.EventDevicesReady, record(2))
	env.player.Listen(dfplayer.EventDevicesReady, record(3))
	done := env.events(dfplayer.EventDevicesReady)
	insertCalled := make(chan struct{}, 1)
	env.player.OnDeviceInserted(func(dfplayer.Device) { insertCalled <- struct{}{} })

	env.dev.PowerOn()
	expectEvent(t, done)
	lock.Lock()
	require.Equal(t, []int{1, 2, 3}, calls)
	calls = nil
	lock.Unlock()

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	env.dev.PowerOn()
	expectEvent(t, done)
	lock.Lock()
	require.Equal(t, []int{1, 3}, calls)
	lock.Unlock()

	select {
	case <-insertCalled:
		t.Fatal("listener of another kind called")
	default:
	}
}

func TestTimeoutAfterRetries(t *testing.T) {
	env := newPlayerTestEnv(t)
	env.dev.SetSilent(true)
	start := time.Now()
	err := env.player.Next(env.ctx())
	require.ErrorIs(t, err, dfplayer.ErrTimeout)
	require.True(t, time.Since(start) >= 3*env.player.Config.Timeout)
	require.Len(t, env.dev.Received(), 3)
	require.False(t, env.player.Link().Busy())
}

func TestDeviceErrorRetried(t *testing.T) {
	env := newPlayerTestEnv(t)
	env.dev.FailNext(2)
	require.NoError(t, env.player.SetVolume(env.ctx(), 10))
	require.Len(t, env.dev.Received(), 3)

	env.dev.FailNext(10)
	err := env.player.Pause(env.ctx())
	var devErr *comm.DeviceError
	require.True(t, errors.As(err, &devErr))
	require.Equal(t, comm.DeviceErrBusy, devErr.Code)
}

func TestBusy(t *testing.T) {
	env := newPlayerTestEnv(t)
	env.dev.SetSilent(true)
	ctx := env.ctx()
	errCh := make(chan error, 1)
	go func() {
		errCh <- env.player.Stop(ctx)
	}()
	require.Eventually(t, env.player.Link().Busy, testWait, time.Millisecond)
	require.ErrorIs(t, env.player.Pause(ctx), dfplayer.ErrBusy)
	require.ErrorIs(t, <-errCh, dfplayer.ErrTimeout)
	require.False(t, env.player.Link().Busy())
}

func TestQueries(t *testing.T) {
	env := newPlayerTestEnv(t)
	ctx := env.ctx()
	state, err := env.player.State(ctx)
	require.NoError(t, err)
	require.Equal(t, dfplayer.StateStopped, state)

	_, err = env.player.PlayTrack(ctx, 7)
	require.NoError(t, err)
	state, err = env.player.State(ctx)
	require.NoError(t, err)
	require.Equal(t, dfplayer.StatePlaying, state)
	require.NoError(t, env.player.Pause(ctx))
	state, err = env.player.State(ctx)
	require.NoError(t, err)
	require.Equal(t, dfplayer.StatePaused, state)

	track, err := env.player.CurrentTrack(ctx, dfplayer.DeviceSD)
	require.NoError(t, err)
	require.Equal(t, 7, track)

	require.NoError(t, env.player.SetEQ(ctx, dfplayer.EQJazz))
	eq, err := env.player.EQ(ctx)
	require.NoError(t, err)
	require.Equal(t, dfplayer.EQJazz, eq)

	n, err := env.player.FileCount(ctx, dfplayer.DeviceSD)
	require.NoError(t, err)
	require.Equal(t, sim.DefaultFileCount, n)
	n, err = env.player.FolderCount(ctx)
	require.NoError(t, err)
	require.Equal(t, sim.DefaultFolderCount, n)
	n, err = env.player.FolderFileCount(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, sim.DefaultFileCount, n)
}

func TestVolumeSteps(t *testing.T) {
	env := newPlayerTestEnv(t)
	ctx := env.ctx()
	require.NoError(t, env.player.SetVolume(ctx, dfplayer.MaxVolume))
	require.NoError(t, env.player.VolumeUp(ctx))
	require.Equal(t, dfplayer.MaxVolume, env.dev.Volume())
	require.NoError(t, env.player.VolumeDown(ctx))
	require.Equal(t, dfplayer.MaxVolume-1, env.dev.Volume())
}

func TestResetAnnouncesDevices(t *testing.T) {
	env := newPlayerTestEnv(t)
	require.NoError(t, env.player.SetVolume(env.ctx(), 3))
	require.NoError(t, env.player.Reset(env.ctx()))
	devs, err := env.player.WaitAvailable(env.ctx())
	require.NoError(t, err)
	require.True(t, devs.Has(dfplayer.DeviceSD))
	require.Equal(t, sim.DefaultVolume, env.dev.Volume())
}

func TestRunStopAbortsPlayback(t *testing.T) {
	env := newPlayerTestEnv(t)
	h, err := env.player.PlayTrack(env.ctx(), 1)
	require.NoError(t, err)
	env.stop()
	require.ErrorIs(t, requireResolved(t, h), dfplayer.ErrClosed)
	require.ErrorIs(t, env.player.Next(env.ctx()), dfplayer.ErrClosed)
	_, err = env.player.WaitAvailable(env.ctx())
	require.ErrorIs(t, err, dfplayer.ErrClosed)
}

func TestInvoke(t *testing.T) {
	env := newPlayerTestEnv(t)
	ctx := env.ctx()
	_, err := env.player.Invoke(ctx, "volume", []int{12})
	require.NoError(t, err)
	out, err := env.player.Invoke(ctx, "get-volume", nil)
	require.NoError(t, err)
	require.Equal(t, dfplayer.Outcome{Value: 12, HasValue: true}, out)
	require.Equal(t, "12", out.String())

	out, err = env.player.Invoke(ctx, "play-folder", []int{1, 2})
	require.NoError(t, err)
	require.NotNil(t, out.Playback)
	require.Equal(t, uint16(2), out.Playback.Track)

	_, err = env.player.Invoke(ctx, "PREVIOUS", nil)
	require.NoError(t, err)

	sent := len(env.dev.Received())
	_, err = env.player.Invoke(ctx, "files", []int{0x102})
	require.ErrorIs(t, err, dfplayer.ErrParameterOutOfRange)
	_, err = env.player.Invoke(ctx, "select", []int{0x101})
	require.ErrorIs(t, err, dfplayer.ErrParameterOutOfRange)
	_, err = env.player.Invoke(ctx, "current", []int{-1})
	require.ErrorIs(t, err, dfplayer.ErrParameterOutOfRange)
	require.Len(t, env.dev.Received(), sent)

	_, err = env.player.Invoke(ctx, "no-such-op", nil)
	require.Error(t, err)
	_, err = env.player.Invoke(ctx, "volume", nil)
	require.Error(t, err)
}

func TestOps(t *testing.T) {
	ops := dfplayer.Ops()
	require.NotEmpty(t, ops)
	for i := 1; i < len(ops); i++ {
		require.True(t, ops[i-1].Name < ops[i].Name)
	}
	op := dfplayer.LookupOp("play-folder")
	require.NotNil(t, op)
	require.Equal(t, "play-folder <folder> <track>", op.Usage())
	require.Equal(t, dfplayer.LookupOp("prev"), dfplayer.LookupOp("previous"))
	require.Nil(t, dfplayer.LookupOp("unknown"))
}

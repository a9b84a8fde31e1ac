package mqtt

import (
	"context"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/dfplayer.go/pkg/dfplayer"
	"github.com/robotalks/dfplayer.go/pkg/sim"
)

type published struct {
	topic   string
	payload []byte
	retain  bool
}

type fakePublisher struct {
	ch chan published
}

func (p *fakePublisher) PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token {
	p.ch <- published{topic: topic, payload: payload, retain: retain}
	return &paho.DummyToken{}
}

type bridgeTestEnv struct {
	t      *testing.T
	bridge *Bridge
	dev    *sim.Device
	pub    *fakePublisher
}

func newBridgeTestEnv(t *testing.T) *bridgeTestEnv {
	ctx, cancel := context.WithCancel(context.Background())
	dev := sim.NewDevice()
	conf := dfplayer.NewConfig()
	conf.Timeout = 30 * time.Millisecond
	player := conf.NewPlayer(dev.Pipe(ctx))
	pub := &fakePublisher{ch: make(chan published, 64)}
	b := newBridge("test", player, pub)
	detach := b.attach()
	go player.Run(ctx)
	go b.serve(ctx)
	t.Cleanup(func() {
		cancel()
		detach()
	})
	return &bridgeTestEnv{t: t, bridge: b, dev: dev, pub: pub}
}

func (e *bridgeTestEnv) command(id, op string, args ...int32) {
	data, err := proto.Marshal(&Command{Id: id, Op: op, Args: args})
	require.NoError(e.t, err)
	e.bridge.handleCommand(TopicCommand, data)
}

func (e *bridgeTestEnv) expect(topic string) published {
	for {
		select {
		case p := <-e.pub.ch:
			if p.topic == topic {
				return p
			}
		case <-time.After(time.Second):
			e.t.Fatalf("expect publish on %s", topic)
		}
	}
}

func (e *bridgeTestEnv) expectReply() *Reply {
	var r Reply
	require.NoError(e.t, proto.Unmarshal(e.expect(TopicReply).payload, &r))
	return &r
}

func (e *bridgeTestEnv) expectEvent() *Event {
	var ev Event
	require.NoError(e.t, proto.Unmarshal(e.expect(TopicEvent).payload, &ev))
	return &ev
}

func TestBridgeCommandReply(t *testing.T) {
	env := newBridgeTestEnv(t)
	env.command("1", "volume", 12)
	r := env.expectReply()
	require.Equal(t, "1", r.Id)
	require.Empty(t, r.Error)
	require.False(t, r.HasValue)

	env.command("2", "get-volume")
	r = env.expectReply()
	require.Equal(t, "2", r.Id)
	require.True(t, r.HasValue)
	require.Equal(t, int32(12), r.Value)
}

func TestBridgeCommandErrors(t *testing.T) {
	env := newBridgeTestEnv(t)
	env.command("1", "rewind")
	r := env.expectReply()
	require.Equal(t, "1", r.Id)
	require.Contains(t, r.Error, "unknown op")

	env.command("2", "volume", 99)
	r = env.expectReply()
	require.Equal(t, "2", r.Id)
	require.Contains(t, r.Error, dfplayer.ErrParameterOutOfRange.Error())

	env.bridge.handleCommand(TopicCommand, []byte{0xff, 0xff})
	r = env.expectReply()
	require.Empty(t, r.Id)
	require.Contains(t, r.Error, "invalid command")
}

func TestBridgeCommandsSerialized(t *testing.T) {
	env := newBridgeTestEnv(t)
	for i := 1; i <= 5; i++ {
		env.command(string(rune('0'+i)), "volume", int32(i))
	}
	for i := 1; i <= 5; i++ {
		r := env.expectReply()
		require.Equal(t, string(rune('0'+i)), r.Id)
		require.Empty(t, r.Error)
	}
	require.Equal(t, 5, env.dev.Volume())
}

func TestBridgePlayback(t *testing.T) {
	env := newBridgeTestEnv(t)
	env.command("p1", "play-folder", 2, 3)
	r := env.expectReply()
	require.Empty(t, r.Error)

	env.dev.Finish()
	var trackDone, playback *Event
	for trackDone == nil || playback == nil {
		ev := env.expectEvent()
		switch ev.Kind {
		case dfplayer.EventTrackDone.String():
			trackDone = ev
		case EventKindPlayback:
			playback = ev
		}
	}
	require.Equal(t, uint32(dfplayer.DeviceSD), trackDone.Device)
	require.Equal(t, uint32(3), trackDone.Track)
	require.Equal(t, "p1", playback.Request)
	require.Equal(t, "done", playback.Outcome)
	require.Equal(t, uint32(3), playback.Track)
}

func TestBridgePlaybackSuperseded(t *testing.T) {
	env := newBridgeTestEnv(t)
	env.command("p1", "play", 1)
	env.command("p2", "play", 2)
	for {
		ev := env.expectEvent()
		if ev.Kind == EventKindPlayback {
			require.Equal(t, "p1", ev.Request)
			require.Equal(t, "superseded", ev.Outcome)
			return
		}
	}
}

func TestBridgeDeviceEvents(t *testing.T) {
	env := newBridgeTestEnv(t)
	env.dev.PowerOn()
	ev := env.expectEvent()
	require.Equal(t, dfplayer.EventDevicesReady.String(), ev.Kind)
	require.Equal(t, uint32(dfplayer.DeviceSD), ev.Devices)
	p := env.expect(TopicDevices)
	require.True(t, p.retain)
	require.Equal(t, "2", string(p.payload))

	env.dev.Insert(dfplayer.DeviceUSB)
	ev = env.expectEvent()
	require.Equal(t, dfplayer.EventDeviceInserted.String(), ev.Kind)
	require.Equal(t, uint32(dfplayer.DeviceUSB), ev.Device)
	require.Equal(t, uint32(3), ev.Devices)
	require.Equal(t, "3", string(env.expect(TopicDevices).payload))
}

func TestBridgeAnnounce(t *testing.T) {
	env := newBridgeTestEnv(t)
	env.bridge.announce()
	p := env.expect(TopicOnline)
	require.True(t, p.retain)
	require.Equal(t, "1", string(p.payload))
	require.Equal(t, "0", string(env.expect(TopicDevices).payload))
}

package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/dfplayer.go/pkg/dfplayer"
)

// Topics relative to <prefix><name>/.
const (
	TopicCommand = "cmd"
	TopicReply   = "reply"
	TopicEvent   = "event"
	TopicDevices = "devices"
	TopicOnline  = "online"
)

// DefaultBacklog is the number of commands queued before rejecting.
const DefaultBacklog = 16

type publisher interface {
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
}

// Bridge exposes a Player on MQTT.
// Commands are executed one at a time in the order received.
type Bridge struct {
	Name   string
	Player *dfplayer.Player
	Queue  *Queue

	pub   publisher
	cmdCh chan *Command
}

// New creates a Bridge connecting to brokerURL.
func New(brokerURL, name string, player *dfplayer.Player) (*Bridge, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}
	prefix += name + "/"
	opts.SetBinaryWill(prefix+TopicOnline, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("dfplayer:" + name)
	}
	b := newBridge(name, player, nil)
	b.Queue = NewQueue(opts, prefix)
	b.Queue.OnConnect = func(*Queue) { b.announce() }
	b.pub = b.Queue
	return b, nil
}

func newBridge(name string, player *dfplayer.Player, pub publisher) *Bridge {
	return &Bridge{
		Name:   name,
		Player: player,
		pub:    pub,
		cmdCh:  make(chan *Command, DefaultBacklog),
	}
}

// Run implements Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	detach := b.attach()
	defer detach()
	sub := b.Queue.Sub(TopicCommand, b.handleCommand)
	defer sub.Close()
	if err := b.Queue.Connect(); err != nil {
		return fmt.Errorf("connect MQTT: %w", err)
	}
	defer b.Queue.Close()
	err := b.serve(ctx)
	b.pub.PubWith(TopicOnline, nil, 1, true).Wait()
	return err
}

func (b *Bridge) attach() func() {
	subs := make([]*dfplayer.Subscription, 0, len(dfplayer.EventKinds))
	for _, kind := range dfplayer.EventKinds {
		subs = append(subs, b.Player.Listen(kind, b.publishEvent))
	}
	return func() {
		for _, sub := range subs {
			sub.Close()
		}
	}
}

func (b *Bridge) serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-b.cmdCh:
			b.execute(ctx, cmd)
		}
	}
}

func (b *Bridge) announce() {
	b.pub.PubWith(TopicOnline, []byte("1"), 1, true)
	b.publishDevices()
}

func (b *Bridge) handleCommand(_ string, payload []byte) {
	var cmd Command
	if err := proto.Unmarshal(payload, &cmd); err != nil {
		glog.Warningf("invalid command: %v", err)
		b.reply(&Reply{Error: "invalid command: " + err.Error()})
		return
	}
	glog.V(2).Infof("CMD %s", cmd.String())
	select {
	case b.cmdCh <- &cmd:
	default:
		b.reply(&Reply{Id: cmd.Id, Error: "too many pending commands"})
	}
}

func (b *Bridge) execute(ctx context.Context, cmd *Command) {
	args := make([]int, len(cmd.Args))
	for i, arg := range cmd.Args {
		args[i] = int(arg)
	}
	out, err := b.Player.Invoke(ctx, cmd.Op, args)
	r := &Reply{Id: cmd.Id}
	if err != nil {
		r.Error = err.Error()
	} else if out.HasValue {
		r.Value, r.HasValue = int32(out.Value), true
	}
	b.reply(r)
	if h := out.Playback; h != nil {
		go b.watchPlayback(ctx, cmd.Id, h)
	}
}

func (b *Bridge) watchPlayback(ctx context.Context, id string, h *dfplayer.PlaybackHandle) {
	ev := &Event{
		Kind:    EventKindPlayback,
		Device:  uint32(h.Device),
		Track:   uint32(h.Track),
		Request: id,
	}
	switch err := h.Wait(ctx); {
	case err == nil:
		ev.Outcome = "done"
	case errors.Is(err, dfplayer.ErrSuperseded):
		ev.Outcome = "superseded"
	case ctx.Err() != nil:
		return
	default:
		ev.Outcome = err.Error()
	}
	b.publish(TopicEvent, ev, false)
}

func (b *Bridge) publishEvent(e dfplayer.Event) {
	ev := &Event{Kind: e.Kind().String()}
	switch e := e.(type) {
	case dfplayer.TrackDone:
		ev.Device, ev.Track = uint32(e.Device), uint32(e.Track)
	case dfplayer.DeviceInserted:
		ev.Device = uint32(e.Device)
	case dfplayer.DeviceEjected:
		ev.Device = uint32(e.Device)
	}
	// the trackers already applied e.
	ev.Devices = uint32(b.Player.Devices())
	b.publish(TopicEvent, ev, false)
	if e.Kind() != dfplayer.EventTrackDone {
		b.publishDevices()
	}
}

func (b *Bridge) publishDevices() {
	devs := b.Player.Devices()
	b.pub.PubWith(TopicDevices, []byte(strconv.Itoa(int(devs))), 1, true)
}

func (b *Bridge) reply(r *Reply) {
	b.publish(TopicReply, r, false)
}

func (b *Bridge) publish(topic string, msg proto.Message, retain bool) {
	data, err := proto.Marshal(msg)
	if err != nil {
		glog.Errorf("encode %s: %v", topic, err)
		return
	}
	b.pub.PubWith(topic, data, 0, retain)
}

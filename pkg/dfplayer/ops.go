package dfplayer

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Outcome is the result of an Op.
type Outcome struct {
	Value    int
	HasValue bool
	Playback *PlaybackHandle
}

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch {
	case o.HasValue:
		return fmt.Sprintf("%d", o.Value)
	case o.Playback != nil:
		return fmt.Sprintf("playing %d on %s", o.Playback.Track, o.Playback.Device)
	}
	return "ok"
}

// Op is a named player operation taking integer arguments.
// It's the common surface of the shell and the MQTT bridge.
type Op struct {
	Name    string
	Aliases []string
	Args    []string
	Help    string
	Do      func(ctx context.Context, p *Player, args []int) (Outcome, error)
}

func cmdOp(name, help string, fn func(*Player, context.Context) error, aliases ...string) *Op {
	return &Op{
		Name:    name,
		Aliases: aliases,
		Help:    help,
		Do: func(ctx context.Context, p *Player, args []int) (Outcome, error) {
			return Outcome{}, fn(p, ctx)
		},
	}
}

func setOp(name, arg, help string, fn func(*Player, context.Context, int) error) *Op {
	return &Op{
		Name: name,
		Args: []string{arg},
		Help: help,
		Do: func(ctx context.Context, p *Player, args []int) (Outcome, error) {
			return Outcome{}, fn(p, ctx, args[0])
		},
	}
}

func queryOp(name, help string, fn func(*Player, context.Context) (int, error)) *Op {
	return &Op{
		Name: name,
		Help: help,
		Do: func(ctx context.Context, p *Player, args []int) (Outcome, error) {
			v, err := fn(p, ctx)
			return Outcome{Value: v, HasValue: err == nil}, err
		},
	}
}

// deviceArg converts an op argument to a Device without truncation.
func deviceArg(v int) (Device, error) {
	if err := checkRange("device", v, 0, 0xff); err != nil {
		return 0, err
	}
	return Device(v), nil
}

func deviceQueryOp(name, help string, fn func(*Player, context.Context, Device) (int, error)) *Op {
	return &Op{
		Name: name,
		Args: []string{"device"},
		Help: help,
		Do: func(ctx context.Context, p *Player, args []int) (Outcome, error) {
			dev, err := deviceArg(args[0])
			if err != nil {
				return Outcome{}, err
			}
			v, err := fn(p, ctx, dev)
			return Outcome{Value: v, HasValue: err == nil}, err
		},
	}
}

func playOp(name string, args []string, help string, fn func(*Player, context.Context, []int) (*PlaybackHandle, error)) *Op {
	return &Op{
		Name: name,
		Args: args,
		Help: help,
		Do: func(ctx context.Context, p *Player, args []int) (Outcome, error) {
			h, err := fn(p, ctx, args)
			return Outcome{Playback: h}, err
		},
	}
}

var ops = []*Op{
	cmdOp("next", "Play next track", (*Player).Next),
	cmdOp("prev", "Play previous track", (*Player).Previous, "previous"),
	cmdOp("vol-up", "Increase volume", (*Player).VolumeUp),
	cmdOp("vol-down", "Decrease volume", (*Player).VolumeDown),
	cmdOp("sleep", "Enter sleep mode", (*Player).Sleep),
	cmdOp("wake", "Wake up", (*Player).Wake),
	cmdOp("reset", "Reset device", (*Player).Reset),
	cmdOp("resume", "Resume playback", (*Player).Resume),
	cmdOp("pause", "Pause playback", (*Player).Pause),
	cmdOp("stop", "Stop playback", (*Player).Stop),
	cmdOp("stop-advert", "Stop advert and resume", (*Player).StopAdvert),
	setOp("volume", "volume", "Set volume 0-30", (*Player).SetVolume),
	setOp("eq", "eq", "Set EQ 0-5 (normal, pop, rock, jazz, classic, bass)", (*Player).SetEQ),
	setOp("select", "device", "Select device (1 usb, 2 sd, 8 flash)", func(p *Player, ctx context.Context, v int) error {
		dev, err := deviceArg(v)
		if err != nil {
			return err
		}
		return p.SelectDevice(ctx, dev)
	}),
	queryOp("get-volume", "Query volume", (*Player).Volume),
	queryOp("get-eq", "Query EQ", (*Player).EQ),
	queryOp("get-state", "Query state (0 stopped, 1 playing, 2 paused)", func(p *Player, ctx context.Context) (int, error) {
		s, err := p.State(ctx)
		return int(s), err
	}),
	queryOp("folders", "Query number of folders", (*Player).FolderCount),
	deviceQueryOp("files", "Query number of files on device", (*Player).FileCount),
	deviceQueryOp("current", "Query current track on device", (*Player).CurrentTrack),
	{
		Name: "folder-files",
		Args: []string{"folder"},
		Help: "Query number of files in folder",
		Do: func(ctx context.Context, p *Player, args []int) (Outcome, error) {
			v, err := p.FolderFileCount(ctx, args[0])
			return Outcome{Value: v, HasValue: err == nil}, err
		},
	},
	playOp("play", []string{"track"}, "Play track in root", func(p *Player, ctx context.Context, args []int) (*PlaybackHandle, error) {
		return p.PlayTrack(ctx, args[0])
	}),
	playOp("play-folder", []string{"folder", "track"}, "Play track in folder", func(p *Player, ctx context.Context, args []int) (*PlaybackHandle, error) {
		return p.PlayFolder(ctx, args[0], args[1])
	}),
	playOp("play-mp3", []string{"track"}, "Play track in folder MP3", func(p *Player, ctx context.Context, args []int) (*PlaybackHandle, error) {
		return p.PlayMP3(ctx, args[0])
	}),
	playOp("advert", []string{"track"}, "Play advert track", func(p *Player, ctx context.Context, args []int) (*PlaybackHandle, error) {
		return p.PlayAdvert(ctx, args[0])
	}),
}

var opsByName = func() map[string]*Op {
	m := make(map[string]*Op)
	for _, op := range ops {
		m[op.Name] = op
		for _, alias := range op.Aliases {
			m[alias] = op
		}
	}
	return m
}()

// Ops returns all operations sorted by name.
func Ops() []*Op {
	list := make([]*Op, len(ops))
	copy(list, ops)
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// LookupOp finds an operation by name or alias.
func LookupOp(name string) *Op {
	return opsByName[strings.ToLower(name)]
}

// Usage returns the name of the op with its arguments.
func (op *Op) Usage() string {
	if len(op.Args) == 0 {
		return op.Name
	}
	return op.Name + " <" + strings.Join(op.Args, "> <") + ">"
}

// Invoke runs a named operation.
func (p *Player) Invoke(ctx context.Context, name string, args []int) (Outcome, error) {
	op := LookupOp(name)
	if op == nil {
		return Outcome{}, fmt.Errorf("unknown op %q", name)
	}
	if len(args) != len(op.Args) {
		return Outcome{}, fmt.Errorf("%s expects %d arguments, got %d", op.Usage(), len(op.Args), len(args))
	}
	return op.Do(ctx, p, args)
}

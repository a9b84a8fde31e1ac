package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/dfplayer.go/pkg/dfplayer"
	"github.com/robotalks/dfplayer.go/pkg/env"
	"github.com/robotalks/dfplayer.go/pkg/transport"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool
	ShowEvents  bool

	Shell  *ishell.Shell
	Config *env.Config
	Conn   *Conn
}

// Conn is a running Player over an opened transport.
type Conn struct {
	URL    string
	Player *dfplayer.Player

	cancel func()
	done   chan struct{}
}

// CommandTimeout bounds a single operation in the shell.
var CommandTimeout = 3 * time.Second

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&PortsCmd,
		&DevicesCmd,
		&WaitCmd,
		&EventsCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect opens the transport at url and starts a Player.
func (s *Shell) Connect(url string) error {
	conf := *s.Config
	conf.URL = url
	ctx, cancel := context.WithCancel(context.Background())
	player, closer, err := conf.NewPlayer(ctx)
	if err != nil {
		cancel()
		return err
	}
	conn := &Conn{URL: url, Player: player, cancel: cancel, done: make(chan struct{})}
	for _, kind := range dfplayer.EventKinds {
		player.Listen(kind, s.printEvent)
	}
	s.Disconnect()
	s.Conn = conn
	go func() {
		defer close(conn.done)
		defer closer.Close()
		if err := player.Run(ctx); err != nil && err != context.Canceled {
			s.Shell.Printf("\nconnection %s closed: %v\n", url, err)
		}
	}()
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", url))
	return nil
}

// Disconnect stops the current Player.
func (s *Shell) Disconnect() {
	if conn := s.Conn; conn != nil {
		conn.cancel()
		<-conn.done
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

func (s *Shell) printEvent(ev dfplayer.Event) {
	if !s.ShowEvents {
		return
	}
	if s.OutputJSON {
		out, _ := json.Marshal(map[string]interface{}{"event": ev.Kind().String(), "data": ev})
		s.Shell.Println(string(out))
		return
	}
	s.Shell.Printf("\n[%s] %v\n", ev.Kind(), ev)
}

// Context creates a context for a single command.
func (s *Shell) Context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), CommandTimeout)
}

// ParseArgs parses op arguments, device arguments may also be names.
func ParseArgs(op *dfplayer.Op, args []string) ([]int, error) {
	if len(args) != len(op.Args) {
		return nil, fmt.Errorf("usage: %s", op.Usage())
	}
	vals := make([]int, len(args))
	for i, arg := range args {
		if op.Args[i] == "device" {
			if dev, err := dfplayer.ParseDevice(arg); err == nil {
				vals[i] = int(dev)
				continue
			}
		}
		val, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", op.Args[i], arg)
		}
		vals[i] = val
	}
	return vals, nil
}

type jsonOutcome struct {
	Value  *int   `json:"value,omitempty"`
	Device string `json:"device,omitempty"`
	Track  uint16 `json:"track,omitempty"`
	Error  string `json:"error,omitempty"`
}

// DoOp invokes a named operation with the arguments in c and prints the outcome.
func DoOp(c *ishell.Context, op *dfplayer.Op) error {
	s := ShellFrom(c)
	if s.Conn == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return err
	}
	args, err := ParseArgs(op, c.Args)
	if err != nil {
		c.Err(err)
		return err
	}
	ctx, cancel := s.Context()
	defer cancel()
	out, err := s.Conn.Player.Invoke(ctx, op.Name, args)
	c.Println(s.formatOutcome(out, err))
	return err
}

func (s *Shell) formatOutcome(out dfplayer.Outcome, err error) string {
	if s.OutputJSON {
		var o jsonOutcome
		if err != nil {
			o.Error = err.Error()
		} else if out.HasValue {
			o.Value = &out.Value
		} else if h := out.Playback; h != nil {
			o.Device, o.Track = h.Device.String(), h.Track
		}
		data, _ := json.Marshal(&o)
		return string(data)
	}
	if err != nil {
		return "Error: " + err.Error()
	}
	return out.String()
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.Config.URL != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.URL)
		}
		if err := s.Connect(s.Config.URL); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.URL, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// ConnectCmd connects a player.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[URL] connect player, choose a serial port if URL is omitted",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var url string
			if len(c.Args) > 0 {
				url = c.Args[0]
			} else {
				ports, err := transport.Ports()
				if err != nil {
					c.Err(err)
					return
				}
				switch {
				case len(ports) == 0:
					c.Err(fmt.Errorf("no serial port found"))
					return
				case len(ports) == 1 || !s.Interactive:
					url = ports[0].Name
				default:
					items := make([]string, len(ports))
					for n, port := range ports {
						items[n] = port.String()
					}
					url = ports[s.Shell.MultiChoice(items, "Which port to connect?")].Name
				}
			}
			if err := s.Connect(url); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current player.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "disconnect player",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "list serial ports",
		Func: func(c *ishell.Context) {
			ports, err := transport.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			if ShellFrom(c).OutputJSON {
				if ports == nil {
					ports = []transport.Port{}
				}
				out, _ := json.Marshal(ports)
				c.Println(string(out))
				return
			}
			if len(ports) == 0 {
				c.Println("No serial ports found")
			}
			for _, port := range ports {
				c.Println(port.String())
			}
		},
	}

	// DevicesCmd prints available devices.
	DevicesCmd = ishell.Cmd{
		Name: "devices",
		Help: "show available devices",
		Func: MustBeConnected(func(c *ishell.Context) {
			c.Println(ShellFrom(c).Conn.Player.Devices().String())
		}),
	}

	// WaitCmd waits for the device to become available.
	WaitCmd = ishell.Cmd{
		Name: "wait",
		Help: "wait until devices are ready",
		Func: MustBeConnected(func(c *ishell.Context) {
			devs, err := ShellFrom(c).Conn.Player.WaitAvailable(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(devs.String())
		}),
	}

	// EventsCmd toggles printing of events.
	EventsCmd = ishell.Cmd{
		Name: "events",
		Help: "[on|off] print device events",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				s.ShowEvents = c.Args[0] == "on"
			} else {
				s.ShowEvents = !s.ShowEvents
			}
			c.Printf("events %v\n", s.ShowEvents)
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	conf := env.Default()
	if err := conf.Load(); err != nil {
		log.Fatalln(err)
	}
	New(conf).WithAutoConnect(true).Run(flag.Args()...)
}

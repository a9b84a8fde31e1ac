// Package transport opens byte streams to a DFPlayer module.
//
// Supported URLs:
//
//	/dev/ttyUSB0                  serial port, 9600 8N1
//	serial:///dev/ttyS0?baud=9600 serial port with options
//	tcp://host:port               serial-to-TCP bridge
//	ws://host:port/path           serial-to-WebSocket bridge
//	sim://?duration=3s            in-process simulated device
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"golang.org/x/net/websocket"

	"github.com/robotalks/dfplayer.go/pkg/sim"
)

// DefaultBaudRate is the UART speed of a DFPlayer.
const DefaultBaudRate = 9600

// DialTimeout bounds connecting to network transports.
var DialTimeout = 5 * time.Second

// Endpoint is a parsed transport URL.
type Endpoint struct {
	Scheme string
	// Address is the device path for serial, host:port for tcp, and the
	// full URL for websocket.
	Address  string
	BaudRate int
	// PlayDuration applies to sim only.
	PlayDuration time.Duration
}

// Parse parses a transport URL. A string without scheme is a serial device path.
func Parse(rawURL string) (*Endpoint, error) {
	if !strings.Contains(rawURL, "://") {
		if rawURL == "" {
			return nil, fmt.Errorf("empty transport URL")
		}
		return &Endpoint{Scheme: "serial", Address: rawURL, BaudRate: DefaultBaudRate}, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid transport URL: %w", err)
	}
	ep := &Endpoint{Scheme: u.Scheme}
	q := u.Query()
	switch u.Scheme {
	case "serial":
		ep.Address = u.Path
		if u.Host != "" {
			// serial://ttyUSB0 refers to /dev/ttyUSB0.
			ep.Address = "/dev/" + u.Host + u.Path
		}
		if ep.Address == "" {
			return nil, fmt.Errorf("missing serial device in %q", rawURL)
		}
		ep.BaudRate = DefaultBaudRate
		if val := q.Get("baud"); val != "" {
			if ep.BaudRate, err = strconv.Atoi(val); err != nil || ep.BaudRate <= 0 {
				return nil, fmt.Errorf("invalid baud rate %q", val)
			}
		}
	case "tcp":
		if u.Host == "" {
			return nil, fmt.Errorf("missing host in %q", rawURL)
		}
		ep.Address = u.Host
	case "ws", "wss":
		if u.Host == "" {
			return nil, fmt.Errorf("missing host in %q", rawURL)
		}
		ep.Address = rawURL
	case "sim":
		if val := q.Get("duration"); val != "" {
			if ep.PlayDuration, err = time.ParseDuration(val); err != nil {
				return nil, fmt.Errorf("invalid duration %q: %w", val, err)
			}
		}
	default:
		return nil, fmt.Errorf("unknown transport URL scheme: %q", u.Scheme)
	}
	return ep, nil
}

// Open opens the stream described by rawURL.
func Open(ctx context.Context, rawURL string) (io.ReadWriteCloser, error) {
	ep, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return ep.Open(ctx)
}

// Open opens the stream.
func (ep *Endpoint) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	switch ep.Scheme {
	case "serial":
		port, err := serial.Open(ep.Address, &serial.Mode{
			BaudRate: ep.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", ep.Address, err)
		}
		return port, nil
	case "tcp":
		dialer := net.Dialer{Timeout: DialTimeout}
		return dialer.DialContext(ctx, "tcp", ep.Address)
	case "ws", "wss":
		origin := "http://localhost/"
		conf, err := websocket.NewConfig(ep.Address, origin)
		if err != nil {
			return nil, err
		}
		conf.Dialer = &net.Dialer{Timeout: DialTimeout}
		conn, err := conf.DialContext(ctx)
		if err != nil {
			return nil, err
		}
		conn.PayloadType = websocket.BinaryFrame
		return conn, nil
	case "sim":
		dev := sim.NewDevice()
		dev.PlayDuration = ep.PlayDuration
		conn := dev.Pipe(context.Background())
		dev.PowerOn()
		return conn, nil
	}
	return nil, fmt.Errorf("unknown transport scheme: %q", ep.Scheme)
}

// Port describes a serial port.
type Port struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// String implements fmt.Stringer.
func (p Port) String() string {
	if !p.USB {
		return p.Name
	}
	return fmt.Sprintf("%s [%s:%s] %s %s", p.Name, p.VID, p.PID, p.Product, p.Serial)
}

// Ports lists serial ports on the machine.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]Port, 0, len(details))
	for _, d := range details {
		ports = append(ports, Port{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return ports, nil
}

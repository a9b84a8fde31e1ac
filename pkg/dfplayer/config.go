package dfplayer

import (
	"flag"
	"io"
	"time"

	"github.com/robotalks/dfplayer.go/pkg/dfplayer/comm"
)

// Config defines the configurations for the player.
type Config struct {
	// Timeout is the reply deadline of a single attempt.
	Timeout time.Duration
	// Retries is the maximum number of retransmissions.
	Retries int
	// ReadyTimeout bounds WaitAvailable, 0 for no limit.
	ReadyTimeout time.Duration
}

var defaultConfig = Config{
	Timeout:      comm.DefaultTimeout,
	Retries:      comm.DefaultRetries,
	ReadyTimeout: 3 * time.Second,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Reply timeout of a single attempt.")
	flag.IntVar(&defaultConfig.Retries, "retries", defaultConfig.Retries, "Maximum retransmissions of a command.")
	flag.DurationVar(&defaultConfig.ReadyTimeout, "ready-timeout", defaultConfig.ReadyTimeout, "Maximum time waiting for the device to become available.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewPlayer creates a Player over rw using the config.
func (c *Config) NewPlayer(rw io.ReadWriter) *Player {
	p := &Player{
		Config:   *c,
		link:     comm.NewLink(rw),
		devices:  newDeviceTracker(),
		selected: DeviceSD,
	}
	p.link.Timeout, p.link.Retries = c.Timeout, c.Retries
	p.link.Handler = p
	return p
}

package env

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/dfplayer.go/pkg/dfplayer"
	"github.com/robotalks/dfplayer.go/pkg/transport"
)

// Config provides common options of the binaries.
type Config struct {
	// Name identifies the player on MQTT, default derived from machine ID.
	Name string
	// URL of the transport, see package transport.
	URL string
	// MQTTURL is the broker, e.g. mqtt://host:port/topic-prefix/
	MQTTURL string
	// MetricsAddr is the listen address of Prometheus metrics.
	MetricsAddr string
	// File is an optional TOML config file.
	File string

	Player *dfplayer.Config
}

var defaultConfig = Config{
	URL:    "/dev/ttyS0",
	Player: dfplayer.Default(),
}

// names of options set from environment variables, using flag names.
var fromEnv = make(map[string]bool)

func init() {
	lookup := func(key, name string) (string, bool) {
		val := os.Getenv(key)
		if val != "" {
			fromEnv[name] = true
		}
		return val, val != ""
	}
	if val, ok := lookup("DFPLAYER_NAME", "name"); ok {
		defaultConfig.Name = val
	}
	if val, ok := lookup("DFPLAYER_URL", "url"); ok {
		defaultConfig.URL = val
	}
	if val, ok := lookup("DFPLAYER_MQTT_URL", "mqtt"); ok {
		defaultConfig.MQTTURL = val
	}
	if val, ok := lookup("DFPLAYER_METRICS_ADDR", "metrics"); ok {
		defaultConfig.MetricsAddr = val
	}
	if val, ok := lookup("DFPLAYER_CONFIG", "config"); ok {
		defaultConfig.File = val
	}
	if val, ok := lookup("DFPLAYER_TIMEOUT", "timeout"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			defaultConfig.Player.Timeout = d
		} else {
			glog.Warningf("invalid DFPLAYER_TIMEOUT %q: %v", val, err)
		}
	}
	if val, ok := lookup("DFPLAYER_RETRIES", "retries"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			defaultConfig.Player.Retries = n
		} else {
			glog.Warningf("invalid DFPLAYER_RETRIES %q: %v", val, err)
		}
	}
}

// SetupFlags sets up command line flags, including the player's.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Name, "name", defaultConfig.Name, "Player name, default from machine ID.")
	flag.StringVar(&defaultConfig.URL, "url", defaultConfig.URL, "Transport URL: device path, serial://, tcp://, ws:// or sim://.")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL, e.g. mqtt://localhost:1883/dfplayer/.")
	flag.StringVar(&defaultConfig.MetricsAddr, "metrics", defaultConfig.MetricsAddr, "Listen address of Prometheus metrics.")
	flag.StringVar(&defaultConfig.File, "config", defaultConfig.File, "TOML config file.")
	dfplayer.SetupFlags()
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	player := *defaultConfig.Player
	conf.Player = &player
	return &conf
}

// Load applies the config file for options not set by flags or
// environment variables. It must be called after flag.Parse.
func (c *Config) Load() error {
	if c.File == "" {
		return nil
	}
	fc, err := LoadFile(c.File)
	if err != nil {
		return fmt.Errorf("load %s: %w", c.File, err)
	}
	changed := make(map[string]bool)
	for name := range fromEnv {
		changed[name] = true
	}
	flag.Visit(func(f *flag.Flag) { changed[f.Name] = true })
	return c.Apply(fc, changed)
}

// DeviceName returns Name or the default derived from machine ID.
func (c *Config) DeviceName() string {
	if c.Name != "" {
		return c.Name
	}
	return "dfplayer-" + MachineID()
}

// Open opens the transport.
func (c *Config) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	return transport.Open(ctx, c.URL)
}

// NewPlayer opens the transport and creates a Player over it.
func (c *Config) NewPlayer(ctx context.Context) (*dfplayer.Player, io.Closer, error) {
	conn, err := c.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	return c.Player.NewPlayer(conn), conn, nil
}

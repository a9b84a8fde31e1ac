package env

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig is the TOML form of Config, durations are strings.
type FileConfig struct {
	Name         string `toml:"name"`
	URL          string `toml:"url"`
	MQTTURL      string `toml:"mqtt_url"`
	MetricsAddr  string `toml:"metrics_addr"`
	Timeout      string `toml:"timeout"`
	Retries      *int   `toml:"retries"`
	ReadyTimeout string `toml:"ready_timeout"`
}

// LoadFile reads and parses a TOML config file.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	err = toml.Unmarshal(b, &fc)
	return fc, err
}

// Apply applies values in fc except the options in changed, keyed by
// flag names.
func (c *Config) Apply(fc FileConfig, changed map[string]bool) error {
	setString := func(name, val string, dst *string) {
		if val != "" && !changed[name] {
			*dst = val
		}
	}
	setDuration := func(name, val string, dst *time.Duration) error {
		if val == "" || changed[name] {
			return nil
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, val, err)
		}
		*dst = d
		return nil
	}

	setString("name", fc.Name, &c.Name)
	setString("url", fc.URL, &c.URL)
	setString("mqtt", fc.MQTTURL, &c.MQTTURL)
	setString("metrics", fc.MetricsAddr, &c.MetricsAddr)
	if err := setDuration("timeout", fc.Timeout, &c.Player.Timeout); err != nil {
		return err
	}
	if err := setDuration("ready-timeout", fc.ReadyTimeout, &c.Player.ReadyTimeout); err != nil {
		return err
	}
	if fc.Retries != nil && !changed["retries"] {
		c.Player.Retries = *fc.Retries
	}
	return nil
}

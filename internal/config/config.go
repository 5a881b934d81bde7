package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"epdctl/internal/epd"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// ControllerConfig describes the attached panel.
type ControllerConfig struct {
	// Variant is "flash_lut" or "no_flash_register_lut".
	Variant string `yaml:"variant" json:"variant"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
	// BusyActive is the busy line level that means "busy": "high" or "low".
	// The two controller families differ, so there is no default.
	BusyActive string `yaml:"busy_active" json:"busy_active"`
	// Mode is the refresh mode the session is initialized with.
	Mode string `yaml:"mode" json:"mode"`
}

// PinsConfig names the control lines. All four are required.
type PinsConfig struct {
	Reset string `yaml:"reset" json:"reset"`
	DC    string `yaml:"dc" json:"dc"`
	CS    string `yaml:"cs" json:"cs"`
	Busy  string `yaml:"busy" json:"busy"`
}

// SPIConfig selects the SPI port and transfer limits.
type SPIConfig struct {
	Port     string `yaml:"port" json:"port"`
	MaxHz    int64  `yaml:"max_hz" json:"max_hz"`
	MaxChunk int    `yaml:"max_chunk" json:"max_chunk"`
}

// TimingConfig holds the protocol delays in milliseconds.
type TimingConfig struct {
	BusyTimeoutMS   int `yaml:"busy_timeout_ms" json:"busy_timeout_ms"`
	PollIntervalMS  int `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	IdleSettleMS    int `yaml:"idle_settle_ms" json:"idle_settle_ms"`
	CommandSettleMS int `yaml:"command_settle_ms" json:"command_settle_ms"`
	ResetHoldMS     int `yaml:"reset_hold_ms" json:"reset_hold_ms"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the control API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Controller ControllerConfig `yaml:"controller" json:"controller"`
	Pins       PinsConfig       `yaml:"pins" json:"pins"`
	SPI        SPIConfig        `yaml:"spi" json:"spi"`
	Timing     TimingConfig     `yaml:"timing" json:"timing"`

	// Maintenance is a cron spec (e.g. "0 */6 * * *") for periodic full
	// refreshes that clear ghosting. Empty disables it.
	Maintenance string `yaml:"maintenance" json:"maintenance"`

	// Listen is the HTTP listen address for the control API. Empty disables
	// the server.
	Listen string `yaml:"listen" json:"listen"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns the template written on first run. Pins are left
// empty on purpose; Validate refuses the template until they are filled in.
func DefaultConfig() *Config {
	c := &Config{
		Controller: ControllerConfig{
			Variant:    "flash_lut",
			Width:      416,
			Height:     240,
			BusyActive: "high",
			Mode:       "full_1bit",
		},
		Maintenance: "0 */6 * * *",
		Listen:      "127.0.0.1:8080",
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave.
func (c *Config) Normalize() {
	if c.Controller.Mode == "" {
		c.Controller.Mode = "full_1bit"
	}
	if c.SPI.MaxHz <= 0 {
		c.SPI.MaxHz = 2_000_000
	}
	if c.SPI.MaxChunk <= 0 {
		c.SPI.MaxChunk = 512
	}
	t := &c.Timing
	if t.BusyTimeoutMS <= 0 {
		t.BusyTimeoutMS = 5000
	}
	if t.PollIntervalMS <= 0 {
		t.PollIntervalMS = 10
	}
	if t.IdleSettleMS <= 0 {
		t.IdleSettleMS = 200
	}
	if t.CommandSettleMS <= 0 {
		t.CommandSettleMS = 1
	}
	if t.ResetHoldMS < 200 {
		t.ResetHoldMS = 200
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that the config describes a usable panel.
func (c *Config) Validate() error {
	var errs []error
	if _, err := epd.ParseVariant(c.Controller.Variant); err != nil {
		errs = append(errs, err)
	}
	if _, err := epd.ParseBusyPolarity(c.Controller.BusyActive); err != nil {
		errs = append(errs, err)
	}
	if _, err := epd.ParseRefreshMode(c.Controller.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.Controller.Width <= 0 || c.Controller.Height <= 0 {
		errs = append(errs, fmt.Errorf("geometry %dx%d", c.Controller.Width, c.Controller.Height))
	}
	for _, p := range []struct{ key, v string }{
		{"pins.reset", c.Pins.Reset},
		{"pins.dc", c.Pins.DC},
		{"pins.cs", c.Pins.CS},
		{"pins.busy", c.Pins.Busy},
	} {
		if p.v == "" {
			errs = append(errs, fmt.Errorf("%s is required", p.key))
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		errs = append(errs, errors.New("basic_auth.username is empty"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// DriverOptions converts the panel sections into driver options. Call
// Validate first.
func (c *Config) DriverOptions() (*epd.Opts, error) {
	v, err := epd.ParseVariant(c.Controller.Variant)
	if err != nil {
		return nil, err
	}
	p, err := epd.ParseBusyPolarity(c.Controller.BusyActive)
	if err != nil {
		return nil, err
	}
	return &epd.Opts{
		Variant:    v,
		Geometry:   epd.Geometry{Width: c.Controller.Width, Height: c.Controller.Height},
		BusyActive: p,
		MaxChunk:   c.SPI.MaxChunk,
		Timing: epd.Timing{
			CommandSettle: ms(c.Timing.CommandSettleMS),
			PollInterval:  ms(c.Timing.PollIntervalMS),
			IdleSettle:    ms(c.Timing.IdleSettleMS),
			BusyTimeout:   ms(c.Timing.BusyTimeoutMS),
			ResetHold:     ms(c.Timing.ResetHoldMS),
		},
	}, nil
}

// HostConfig returns the host wiring for epd.Open.
func (c *Config) HostConfig() epd.HostConfig {
	return epd.HostConfig{
		SPIPort: c.SPI.Port,
		MaxHz:   physic.Frequency(c.SPI.MaxHz) * physic.Hertz,
		Reset:   c.Pins.Reset,
		DC:      c.Pins.DC,
		CS:      c.Pins.CS,
		Busy:    c.Pins.Busy,
	}
}

// InitMode is the parsed controller.mode.
func (c *Config) InitMode() (epd.RefreshMode, error) {
	return epd.ParseRefreshMode(c.Controller.Mode)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write the default template with 0600 perms
//   - return the template (which does not Validate until pins are set)
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".epdctl-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

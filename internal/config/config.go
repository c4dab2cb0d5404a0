package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/herocrab/HeroCrabPlugin-sub000/logging"
)

const (
	EnvListen     = "CRAB_LISTEN"
	EnvTickRate   = "CRAB_TICK_RATE"
	EnvPacketRate = "CRAB_PACKET_RATE"
	EnvRecord     = "CRAB_RECORD"
)

// Config is the crabserver configuration file.
type Config struct {
	// Listen is the HTTP address serving the websocket endpoint and the API.
	Listen    string          `yaml:"listen" json:"listen"`
	Settings  Settings        `yaml:"settings" json:"settings"`
	Logging   logging.Config  `yaml:"logging" json:"logging"`
	Record    RecordConfig    `yaml:"record" json:"record"`
	Handshake HandshakeConfig `yaml:"handshake" json:"handshake"`
}

// RecordConfig controls recording of the live stream into the recordings database.
type RecordConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Database string `yaml:"database" json:"database"`
	// Name labels recordings saved on shutdown.
	Name string `yaml:"name" json:"name"`
	// Group is the visibility group of the recorder session.
	Group uint32 `yaml:"group" json:"group"`
}

// HandshakeConfig throttles websocket upgrades per remote address.
type HandshakeConfig struct {
	PerSecond float64 `yaml:"perSecond" json:"perSecond"`
	Burst     int     `yaml:"burst" json:"burst"`
	// WriteTimeout bounds a single frame write to a peer.
	WriteTimeout time.Duration `yaml:"writeTimeout" json:"writeTimeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:   ":7777",
		Settings: DefaultSettings(),
		Logging:  logging.DefaultConfig(),
		Record: RecordConfig{
			Database: "recordings.db",
			Name:     "session",
			Group:    0xffffffff,
		},
		Handshake: HandshakeConfig{
			PerSecond:    2,
			Burst:        4,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment through lookup, usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	if raw, ok := lookup(EnvListen); ok && raw != "" {
		c.Listen = raw
	}
	if raw, ok := lookup(EnvTickRate); ok && raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			c.Settings.TickRate = value
		} else {
			errs = append(errs, fmt.Errorf("invalid %s=%q: %w", EnvTickRate, raw, err))
		}
	}
	if raw, ok := lookup(EnvPacketRate); ok && raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			c.Settings.PacketRate = value
		} else {
			errs = append(errs, fmt.Errorf("invalid %s=%q: %w", EnvPacketRate, raw, err))
		}
	}
	if raw, ok := lookup(EnvRecord); ok && raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			c.Record.Enabled = value
		} else {
			errs = append(errs, fmt.Errorf("invalid %s=%q: %w", EnvRecord, raw, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks the whole configuration and resolves the logging level.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if err := c.Settings.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("settings: %w", err))
	}
	if severity, ok := logging.ParseSeverity(c.Logging.Level); ok {
		c.Logging.MinimumSeverity = severity
	} else {
		errs = append(errs, fmt.Errorf("logging: unknown level %q", c.Logging.Level))
	}
	for _, name := range c.Logging.EnabledSinks {
		switch name {
		case "console", "json", "memory":
		default:
			errs = append(errs, fmt.Errorf("logging: unknown sink %q", name))
		}
	}
	if c.Logging.HasSink("json") && c.Logging.JSON.FilePath == "" {
		errs = append(errs, errors.New("logging: json sink needs json.path"))
	}
	if c.Record.Enabled && c.Record.Database == "" {
		errs = append(errs, errors.New("record: database is required when recording"))
	}
	if c.Handshake.PerSecond <= 0 || c.Handshake.Burst <= 0 {
		errs = append(errs, fmt.Errorf("handshake: perSecond and burst must be positive, got %v/%d", c.Handshake.PerSecond, c.Handshake.Burst))
	}
	if c.Handshake.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("handshake: writeTimeout must be positive, got %s", c.Handshake.WriteTimeout))
	}
	return errors.Join(errs...)
}

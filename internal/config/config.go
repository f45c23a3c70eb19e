// Package config loads the bootbench YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tinyrange/bootbench/internal/guest"
	"github.com/tinyrange/bootbench/internal/phase"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDebugSocket   = "/tmp/ovmf_output.sock"
	DefaultQMPSocket     = "/tmp/ovmf_qmp.sock"
	DefaultConsoleSocket = "/tmp/chardev.sock"
	DefaultOutputDir     = "output"

	DefaultWindow        = 10 * time.Second
	DefaultAcceptTimeout = 30 * time.Second
	DefaultDrainTimeout  = 5 * time.Second
)

// Config describes the artifacts, endpoints and charts of a benchmark session.
type Config struct {
	Version int `yaml:"version"`

	Hypervisor string `yaml:"hypervisor"`
	Kernel     string `yaml:"kernel"`
	Initrd     string `yaml:"initrd"`
	Firmware   string `yaml:"firmware"`
	UseSudo    bool   `yaml:"useSudo,omitempty"`

	DebugSocket   string `yaml:"debugSocket,omitempty"`
	QMPSocket     string `yaml:"qmpSocket,omitempty"`
	ConsoleSocket string `yaml:"consoleSocket,omitempty"`
	SerialLog     string `yaml:"serialLog,omitempty"`

	Window        time.Duration `yaml:"window,omitempty"`
	AcceptTimeout time.Duration `yaml:"acceptTimeout,omitempty"`
	DrainTimeout  time.Duration `yaml:"drainTimeout,omitempty"`

	OutputDir string          `yaml:"outputDir,omitempty"`
	AxisMax   uint64          `yaml:"axisMax,omitempty"`
	Keypoints phase.Keypoints `yaml:"keypoints,omitempty"`

	// Guests overrides the chart title or output path per guest type.
	Guests map[guest.Type]GuestConfig `yaml:"guests,omitempty"`
}

type GuestConfig struct {
	Title  string `yaml:"title,omitempty"`
	Output string `yaml:"output,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Hypervisor == "" {
		c.Hypervisor = "qemu-system-x86_64"
	}
	if c.DebugSocket == "" {
		c.DebugSocket = DefaultDebugSocket
	}
	if c.QMPSocket == "" {
		c.QMPSocket = DefaultQMPSocket
	}
	if c.ConsoleSocket == "" {
		c.ConsoleSocket = DefaultConsoleSocket
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.AcceptTimeout == 0 {
		c.AcceptTimeout = DefaultAcceptTimeout
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.AxisMax == 0 {
		c.AxisMax = guest.DefaultAxisMax
	}
	if len(c.Keypoints) == 0 {
		c.Keypoints = append(phase.Keypoints(nil), phase.DefaultKeypoints...)
	}
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	if err := c.Keypoints.Validate(); err != nil {
		return fmt.Errorf("keypoints: %w", err)
	}
	if c.Window < 0 || c.AcceptTimeout < 0 || c.DrainTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	for t := range c.Guests {
		if _, err := guest.ParseType(string(t)); err != nil {
			return fmt.Errorf("guests: %w", err)
		}
	}
	return nil
}

// Load reads and normalizes a configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Write stores cfg as YAML at path.
func Write(path string, cfg Config) error {
	cfg.normalize()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// Paths returns the launch paths for the guest launcher.
func (c Config) Paths() guest.Paths {
	return guest.Paths{
		Hypervisor:    c.Hypervisor,
		Kernel:        c.Kernel,
		Initrd:        c.Initrd,
		Firmware:      c.Firmware,
		DebugSocket:   c.DebugSocket,
		QMPSocket:     c.QMPSocket,
		ConsoleSocket: c.ConsoleSocket,
		SerialLog:     c.SerialLog,
		UseSudo:       c.UseSudo,
	}
}

// Table builds the chart table, applying per-guest overrides.
func (c Config) Table() guest.Table {
	tbl := guest.DefaultTable(c.OutputDir)
	for t, p := range tbl {
		p.AxisMax = c.AxisMax
		if o, ok := c.Guests[t]; ok {
			if o.Title != "" {
				p.Title = o.Title
			}
			if o.Output != "" {
				p.Output = o.Output
			}
		}
		tbl[t] = p
	}
	return tbl
}

// Package config loads the YAML run configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the run configuration. Zero values are filled by Default.
type Config struct {
	InputDir  string `yaml:"input_dir"`
	OutputDir string `yaml:"output_dir"`
	// WorkDir holds the prepared and sorted intermediate trees. Defaults to
	// <output_dir>.work.
	WorkDir string `yaml:"work_dir"`
	Workers int    `yaml:"workers"`

	ReadTimeout time.Duration `yaml:"read_timeout"`

	Identity   Identity   `yaml:"identity"`
	Convert    Convert    `yaml:"convert"`
	Decompress Decompress `yaml:"decompress"`
	Log        Log        `yaml:"log"`
	Ledger     Ledger     `yaml:"ledger"`
}

// Identity selects how subjects are named.
type Identity struct {
	FromHeader      bool `yaml:"from_header"`
	SubjectPosition int  `yaml:"subject_position"`
}

// Convert configures MR/OT volume conversion.
type Convert struct {
	Enabled bool          `yaml:"enabled"`
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// Decompress configures the pixel data decompressor.
type Decompress struct {
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Ledger configures the run ledger.
type Ledger struct {
	// Path of the sqlite database. Defaults to <output_dir>.db next to the
	// output tree; "off" disables the ledger.
	Path string `yaml:"path"`
}

// LedgerDisabled is the Ledger.Path value that turns the ledger off.
const LedgerDisabled = "off"

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Workers:     runtime.NumCPU(),
		ReadTimeout: 30 * time.Second,
		Identity:    Identity{SubjectPosition: -3},
		Convert: Convert{
			Enabled: true,
			Command: "dcm2niix",
			Timeout: 10 * time.Minute,
		},
		Decompress: Decompress{
			Command: "gdcmconv",
			Timeout: 2 * time.Minute,
			Retries: 1,
		},
		Log: Log{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML to path.
func Save(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Normalize fills derived paths and trims string values.
func (c *Config) Normalize() {
	c.InputDir = strings.TrimSpace(c.InputDir)
	c.OutputDir = strings.TrimSpace(c.OutputDir)
	c.WorkDir = strings.TrimSpace(c.WorkDir)
	if c.WorkDir == "" && c.OutputDir != "" {
		c.WorkDir = strings.TrimRight(c.OutputDir, `/\`) + ".work"
	}
	c.Convert.Command = strings.TrimSpace(c.Convert.Command)
	c.Decompress.Command = strings.TrimSpace(c.Decompress.Command)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// LedgerPath returns the ledger database path, or "" when disabled.
func (c *Config) LedgerPath() string {
	switch p := strings.TrimSpace(c.Ledger.Path); {
	case strings.EqualFold(p, LedgerDisabled):
		return ""
	case p != "":
		return p
	case c.OutputDir != "":
		return strings.TrimRight(c.OutputDir, `/\`) + ".db"
	}
	return ""
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return errors.New("input_dir must be set")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir must be set")
	}
	if sameDir(c.InputDir, c.OutputDir) {
		return errors.New("output_dir must differ from input_dir")
	}
	if c.WorkDir != "" && (sameDir(c.WorkDir, c.OutputDir) || sameDir(c.WorkDir, c.InputDir)) {
		return errors.New("work_dir must differ from input_dir and output_dir")
	}
	if c.Convert.Enabled && c.Convert.Command == "" {
		return errors.New("convert.command must be set when convert.enabled is true")
	}
	if c.Decompress.Command == "" {
		return errors.New("decompress.command must be set")
	}
	if c.Decompress.Retries < 0 {
		return errors.New("decompress.retries must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"read_timeout":       c.ReadTimeout,
		"convert.timeout":    c.Convert.Timeout,
		"decompress.timeout": c.Decompress.Timeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unsupported value %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format: unsupported value %q", c.Log.Format)
	}
	return nil
}

func sameDir(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

package dup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML scalars like "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds the optional on-disk defaults. Command-line flags always win
// over values loaded from here.
type Config struct {
	Source       string   `yaml:"source"`
	ThresholdMiB uint64   `yaml:"threshold_mib"`
	Verify       bool     `yaml:"verify"`
	Eject        bool     `yaml:"eject"`
	PollInterval Duration `yaml:"poll_interval"`
	Journal      string   `yaml:"journal"`
	Excludes     []string `yaml:"exclude"`
}

func DefaultConfig() Config {
	return Config{
		ThresholdMiB: DefaultThresholdMiB,
		PollInterval: Duration(DefaultPollInterval),
	}
}

// DefaultConfigPath returns the conventional location of the defaults file,
// or "" when no user config directory is available.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "usbdup", "usbdup.yaml")
}

// LoadConfig reads and parses the YAML defaults file at path on top of the
// built-in defaults. A missing file surfaces as an fs.ErrNotExist error; the
// caller decides whether that is fatal (explicit --config) or fine (default
// location).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("cannot parse config %s: %w", path, err)
	}
	if cfg.ThresholdMiB == 0 {
		cfg.ThresholdMiB = DefaultThresholdMiB
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = Duration(DefaultPollInterval)
	}
	return cfg, nil
}

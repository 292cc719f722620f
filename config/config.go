// Package config is the settings store for the launcher: a small yaml
// file holding the executable path, debug port, destination address and
// poll interval. Read failures fall back to defaults; an empty
// executable path means the launcher is not configured yet.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDebugPort           = 9222
	DefaultDestinationAddress  = "127.0.0.1"
	DefaultPollIntervalSeconds = 60
	MinPollIntervalSeconds     = 5
)

type Config struct {
	ExecutablePath      string `yaml:"executablePath" json:"executablePath"`
	DebugPort           int    `yaml:"debugPort" json:"debugPort"`
	DestinationAddress  string `yaml:"destinationAddress" json:"destinationAddress"`
	PollIntervalSeconds int    `yaml:"pollIntervalSeconds" json:"pollIntervalSeconds"`
}

// Default returns the built-in configuration. The executable path stays
// empty; FirstLaunch fills it in when a known install is present.
func Default() Config {
	return Config{
		DebugPort:           DefaultDebugPort,
		DestinationAddress:  DefaultDestinationAddress,
		PollIntervalSeconds: DefaultPollIntervalSeconds,
	}
}

// Configured reports whether the launcher has an executable to supervise.
func (c Config) Configured() bool {
	return c.ExecutablePath != ""
}

// Validate normalizes defaults for empty optional fields and rejects
// out-of-range values.
func (c *Config) Validate() error {
	if c.DebugPort < 1 || c.DebugPort > 65535 {
		return fmt.Errorf("debug port %d out of range 1-65535", c.DebugPort)
	}
	if c.PollIntervalSeconds < MinPollIntervalSeconds {
		return fmt.Errorf("poll interval %ds below minimum %ds", c.PollIntervalSeconds, MinPollIntervalSeconds)
	}
	if c.DestinationAddress == "" {
		c.DestinationAddress = DefaultDestinationAddress
	}
	return nil
}

// NeedsRestart reports whether switching from c to next changes a field
// the running process or the rule set depends on. The poll interval only
// re-arms the status timer.
func (c Config) NeedsRestart(next Config) bool {
	return c.ExecutablePath != next.ExecutablePath ||
		c.DebugPort != next.DebugPort ||
		c.DestinationAddress != next.DestinationAddress
}

// Store loads and saves the configuration file.
type Store struct {
	path string
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		path = filepath.Join(dir, "ChromeDevLauncher", "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

// Load reads the stored configuration. Any read or parse failure yields
// the defaults; the store is treated as always-available.
func (s *Store) Load() Config {
	cfg := Default()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default()
	}
	if err := cfg.Validate(); err != nil {
		return Default()
	}
	return cfg
}

// Save writes the configuration with a temp-file rename so a crash never
// leaves a half-written file behind.
func (s *Store) Save(cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Exists reports whether a configuration file has been saved before.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// FirstLaunch pre-fills the executable path from the platform's known
// install locations when no configuration exists yet, then persists the
// result so the probe runs once.
func (s *Store) FirstLaunch() Config {
	cfg := Default()
	for _, p := range defaultExecutablePaths() {
		if _, err := os.Stat(p); err == nil {
			cfg.ExecutablePath = p
			break
		}
	}
	if err := s.Save(cfg); err == nil {
		return cfg
	}
	return cfg
}

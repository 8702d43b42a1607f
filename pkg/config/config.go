// Package config loads the saved-server list and per-server settings from a
// YAML file, and daemon options from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration: named servers plus audio defaults.
type Config struct {
	Audio   AudioConfig    `yaml:"audio,omitempty"`
	Servers []ServerConfig `yaml:"servers,omitempty"`
}

type AudioConfig struct {
	InputVolume  *float32 `yaml:"input_volume,omitempty"`
	OutputVolume *float32 `yaml:"output_volume,omitempty"`
	InputDevice  string   `yaml:"input_device,omitempty"`
	OutputDevice string   `yaml:"output_device,omitempty"`
}

// ServerConfig is one saved server. Port and Username may be omitted;
// Resolve applies the defaults.
type ServerConfig struct {
	Name     string            `yaml:"name"`
	Host     string            `yaml:"host"`
	Port     uint16            `yaml:"port,omitempty"`
	Username string            `yaml:"username,omitempty"`
	Password string            `yaml:"password,omitempty"`
	Settings map[string]string `yaml:"settings,omitempty"`
}

// DefaultPort is the voice server port used when a saved server omits one.
const DefaultPort = 64738

// Target is a resolved connection tuple.
type Target struct {
	Host     string
	Port     uint16
	Username string
	Password string
	Settings map[string]string
}

// DefaultPath returns the config file location, honoring XDG_CONFIG_HOME.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "mumd", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "mumd", "config.yaml")
}

// Load reads the config file. A missing file is not an error; it loads as
// an empty config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config file, creating parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Resolve looks up a saved server by name and fills in defaults. The
// fallback username is used when the entry has none.
func (c *Config) Resolve(name, fallbackUsername string) (Target, error) {
	for _, s := range c.Servers {
		if s.Name != name {
			continue
		}
		t := Target{
			Host:     s.Host,
			Port:     s.Port,
			Username: s.Username,
			Password: s.Password,
			Settings: s.Settings,
		}
		if t.Port == 0 {
			t.Port = DefaultPort
		}
		if t.Username == "" {
			t.Username = fallbackUsername
		}
		return t, nil
	}
	return Target{}, fmt.Errorf("config: no saved server named %q", name)
}

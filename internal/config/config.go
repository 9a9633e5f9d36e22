package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// NetworkPolicy controls whether installs may reach the network.
type NetworkPolicy string

const (
	PolicyAuto  NetworkPolicy = "auto"
	PolicyNever NetworkPolicy = "never"
)

// Config captures the toolchain configuration for a project.
type Config struct {
	Project ProjectConfig `json:"project" yaml:"project"`
	Typst   TypstConfig   `json:"typst" yaml:"typst"`
	Tools   ToolsConfig   `json:"tools" yaml:"tools"`
	Network NetworkConfig `json:"network" yaml:"network"`
	Install InstallConfig `json:"install" yaml:"install"`
}

// ProjectConfig names the project.
type ProjectConfig struct {
	Name string `json:"name" yaml:"name"`
}

// TypstConfig pins the Typst compiler.
type TypstConfig struct {
	Version string `json:"version" yaml:"version"`
}

// ToolsConfig groups auxiliary tool requirements.
type ToolsConfig struct {
	UV UVConfig `json:"uv" yaml:"uv"`
}

// UVConfig pins uv when the project needs it.
type UVConfig struct {
	Required bool   `json:"required" yaml:"required"`
	Version  string `json:"version,omitempty" yaml:"version,omitempty"`
}

// NetworkConfig holds the network policy.
type NetworkConfig struct {
	Policy NetworkPolicy `json:"policy" yaml:"policy"`
}

// InstallConfig bounds installer waits.
type InstallConfig struct {
	LockTimeout     time.Duration `json:"lock_timeout" yaml:"lock_timeout"`
	DownloadTimeout time.Duration `json:"download_timeout" yaml:"download_timeout"`
}

// fileConfig mirrors typstlab.toml. Durations stay strings until Load
// parses them so errors can name the key.
type fileConfig struct {
	Project struct {
		Name string `toml:"name"`
	} `toml:"project"`
	Typst struct {
		Version string `toml:"version"`
	} `toml:"typst"`
	Tools struct {
		UV struct {
			Required bool   `toml:"required"`
			Version  string `toml:"version"`
		} `toml:"uv"`
	} `toml:"tools"`
	Network struct {
		Policy string `toml:"policy"`
	} `toml:"network"`
	Install struct {
		LockTimeout     string `toml:"lock_timeout"`
		DownloadTimeout string `toml:"download_timeout"`
	} `toml:"install"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Network: NetworkConfig{Policy: PolicyAuto},
		Install: InstallConfig{
			LockTimeout:     5 * time.Minute,
			DownloadTimeout: 10 * time.Minute,
		},
	}
}

// Load reads typstlab.toml from disk if it exists, otherwise returns the
// default configuration. Keys absent from the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("project", "name") {
		cfg.Project.Name = strings.TrimSpace(raw.Project.Name)
	}
	if meta.IsDefined("typst", "version") {
		cfg.Typst.Version = strings.TrimSpace(raw.Typst.Version)
	}
	if meta.IsDefined("tools", "uv", "required") {
		cfg.Tools.UV.Required = raw.Tools.UV.Required
	}
	if meta.IsDefined("tools", "uv", "version") {
		cfg.Tools.UV.Version = strings.TrimSpace(raw.Tools.UV.Version)
	}
	if meta.IsDefined("network", "policy") {
		cfg.Network.Policy = NetworkPolicy(strings.ToLower(strings.TrimSpace(raw.Network.Policy)))
	}
	if meta.IsDefined("install", "lock_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Install.LockTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse install.lock_timeout: %w", err)
		}
		cfg.Install.LockTimeout = d
	}
	if meta.IsDefined("install", "download_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Install.DownloadTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse install.download_timeout: %w", err)
		}
		cfg.Install.DownloadTimeout = d
	}
	cfg.ApplyDefaults()

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, &UnknownKeysError{Path: path, Keys: keys}
	}
	return cfg, nil
}

// UnknownKeysError lists keys the decoder did not recognise. Load still
// returns the decoded configuration alongside it.
type UnknownKeysError struct {
	Path string
	Keys []string
}

func (e *UnknownKeysError) Error() string {
	return fmt.Sprintf("%s: unknown keys: %s", e.Path, strings.Join(e.Keys, ", "))
}

// ApplyDefaults fills zero values the file left unset.
func (c *Config) ApplyDefaults() {
	defaults := Default()
	if c.Network.Policy == "" {
		c.Network.Policy = defaults.Network.Policy
	}
	if c.Install.LockTimeout == 0 {
		c.Install.LockTimeout = defaults.Install.LockTimeout
	}
	if c.Install.DownloadTimeout == 0 {
		c.Install.DownloadTimeout = defaults.Install.DownloadTimeout
	}
}

// Offline reports whether the project forbids network installs.
func (c Config) Offline() bool {
	return c.Network.Policy == PolicyNever
}

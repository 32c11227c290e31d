// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and saves the global dcsandbox configuration file
// (spec §6: <home>/.config/dcsandbox/config.yaml).
package config

import (
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/dcsandbox/dcsandbox/internal/errs"
)

// Defaults holds the default resource settings applied when a create
// request omits a flag.
type Defaults struct {
	Memory      string `yaml:"memory"`
	CPU         string `yaml:"cpu"`
	Disk        string `yaml:"disk"`
	Timeout     int    `yaml:"timeout"`
	AutoCleanup bool   `yaml:"autoCleanup"`
}

// Container holds the runtime backend selection.
type Container struct {
	Runtime string `yaml:"runtime"` // "docker" or "podman"
	Network string `yaml:"network"`
}

// MCP holds the broker's host/port-range configuration.
type MCP struct {
	ProxyHost string `yaml:"proxyHost"`
	PortRange [2]int `yaml:"portRange"`
}

// Cleanup holds the reaper/exit-cleanup policy.
type Cleanup struct {
	InactiveTimeout string `yaml:"inactiveTimeout"`
	OnExit          bool   `yaml:"onExit"`
	PreserveNamed   []string `yaml:"preserveNamed"`
}

// Templates holds the custom template directory override.
type Templates struct {
	CustomPath string `yaml:"customPath"`
	AutoUpdate bool   `yaml:"autoUpdate"`
}

// Config is the top-level global configuration schema (spec §6).
type Config struct {
	Defaults  Defaults  `yaml:"defaults"`
	Container Container `yaml:"container"`
	MCP       MCP       `yaml:"mcp"`
	Cleanup   Cleanup   `yaml:"cleanup"`
	Templates Templates `yaml:"templates"`
}

// Default returns the built-in configuration used when no config.yaml is
// present on disk yet.
func Default() *Config {
	return &Config{
		Defaults: Defaults{
			Memory:      "2G",
			CPU:         "2",
			Disk:        "10G",
			Timeout:     120,
			AutoCleanup: false,
		},
		Container: Container{
			Runtime: "docker",
			Network: "bridge",
		},
		MCP: MCP{
			ProxyHost: "localhost",
			PortRange: [2]int{50000, 60000},
		},
		Cleanup: Cleanup{
			InactiveTimeout: "2h",
			OnExit:          false,
		},
		Templates: Templates{
			AutoUpdate: false,
		},
	}
}

// HomeDir resolves the user's home directory, portable across OSes via
// go-homedir (works in contexts where $HOME isn't reliably set, e.g. under
// some init systems).
func HomeDir() (string, error) {
	h, err := homedir.Dir()
	if err != nil {
		return "", errs.New(errs.CodeIO, "resolve home directory: %v", err)
	}
	return h, nil
}

// ConfigDir returns <home>/.config/dcsandbox.
func ConfigDir() (string, error) {
	h, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(h, ".config", "dcsandbox"), nil
}

// DataDir returns <home>/.dcsandbox, the root for sandboxes/ and
// git-cache/.
func DataDir() (string, error) {
	h, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(h, ".dcsandbox"), nil
}

// Path returns the path to config.yaml.
func Path() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// CustomTemplatesDir returns <home>/.config/dcsandbox/templates.
func CustomTemplatesDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "templates"), nil
}

// Load reads config.yaml, returning Default() if it does not exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errs.New(errs.CodeIO, "read config: %v", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(bs, cfg); err != nil {
		return nil, errs.New(errs.CodeIO, "parse config: %v", err)
	}
	return cfg, nil
}

// Save writes cfg to config.yaml, creating the config directory if
// necessary.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.CodeIO, "create config directory: %v", err)
	}
	bs, err := yaml.Marshal(cfg)
	if err != nil {
		return errs.New(errs.CodeIO, "marshal config: %v", err)
	}
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, bs, 0o644); err != nil {
		return errs.New(errs.CodeIO, "write config: %v", err)
	}
	return nil
}

// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads nub server settings. Values are layered: defaults,
// then an optional YAML file, then environment variables. Command-line
// flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"golang.org/x/nub/arch"
	"golang.org/x/nub/internal/logging"
)

// DefaultPort is the well-known nub port.
const DefaultPort = 9001

// Config holds the settings of a nub server or simulator.
type Config struct {
	// Port is the TCP port to listen on, or to dial.
	Port int `yaml:"port" env:"NUB_PORT"`
	// Trace is the diagnostic verbosity. 2 and above traces every message.
	Trace int `yaml:"trace" env:"TRACE"`
	// Arch names the target layout used on the wire.
	Arch string `yaml:"arch" env:"NUB_ARCH"`
	// QuitTimeout bounds the best-effort QUIT sent on teardown.
	QuitTimeout time.Duration `yaml:"quit_timeout" env:"NUB_QUIT_TIMEOUT"`

	Log Log `yaml:"log"`
}

// Log holds logger settings.
type Log struct {
	// Level overrides the level derived from Trace when set.
	Level  string `yaml:"level" env:"NUB_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"NUB_LOG_PRETTY"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:        DefaultPort,
		Arch:        arch.AMD64.Name,
		QuitTimeout: time.Second,
		Log: Log{
			Pretty: true,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path, if path is
// not empty, and then with the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := arch.Lookup(c.Arch); err != nil {
		errs = append(errs, err)
	}
	if c.QuitTimeout < 0 {
		errs = append(errs, fmt.Errorf("negative quit_timeout %v", c.QuitTimeout))
	}
	return errors.Join(errs...)
}

// Architecture returns the wire layout named by Arch.
func (c *Config) Architecture() (*arch.Architecture, error) {
	return arch.Lookup(c.Arch)
}

// LogConfig returns the logger configuration implied by c.
func (c *Config) LogConfig() logging.Config {
	level := c.Log.Level
	if level == "" {
		level = logging.LevelForTrace(c.Trace)
	}
	return logging.Config{
		Level:  level,
		Pretty: c.Log.Pretty,
		Output: os.Stderr,
	}
}

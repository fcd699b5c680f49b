// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

// Package config loads the configuration of the sphinx command.
//
// A configuration file has a [client] section
//
//	[client]
//	verbose = false
//	address = "127.0.0.1"
//	port = 2355
//	datadir = "~/.sphinx"
//	ssl_cert = "~/.sphinx/ca.pem"
//	insecure = false
//	timeout = "3s"
//
// and an optional [logger] section. Files ending in .yaml or .yml are read
// as YAML, everything else as TOML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/frekui/sphinx/internal/pkg/logger"
)

// Default values.
const (
	DefaultAddress = "127.0.0.1"
	DefaultPort    = 2355
	DefaultDatadir = "~/.sphinx"
	DefaultTimeout = 3 * time.Second
)

// Client is the [client] section.
type Client struct {
	Verbose  bool   `toml:"verbose" yaml:"verbose"`
	Address  string `toml:"address" yaml:"address"`
	Port     int    `toml:"port" yaml:"port"`
	Datadir  string `toml:"datadir" yaml:"datadir"`
	SSLCert  string `toml:"ssl_cert,omitempty" yaml:"ssl_cert,omitempty"`
	Insecure bool   `toml:"insecure,omitempty" yaml:"insecure,omitempty"`
	// Timeout bounds connecting to the oracle. Reads are not bounded.
	Timeout time.Duration `toml:"timeout" yaml:"timeout"`
}

// Config is the configuration of the sphinx command.
type Config struct {
	Client Client        `toml:"client" yaml:"client"`
	Logger logger.Config `toml:"logger" yaml:"logger"`

	// Path is the file the configuration was read from, empty if none.
	Path string `toml:"-" yaml:"-"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Client: Client{
			Address: DefaultAddress,
			Port:    DefaultPort,
			Datadir: DefaultDatadir,
			Timeout: DefaultTimeout,
		},
		Logger: logger.Config{Environment: "production"},
	}
}

// Candidates returns the files searched for a configuration, in order.
func Candidates() []string {
	paths := []string{"sphinx.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".sphinxrc"),
			filepath.Join(home, ".config", "sphinx", "config"))
	}
	return append(paths, "/etc/sphinx/config")
}

// Find returns the configuration file to use. An explicit path must exist.
// Otherwise the first existing candidate is returned, or "" if there is none.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}
	for _, p := range Candidates() {
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("config: %w", err)
		}
	}
	return "", nil
}

// Load reads the configuration from explicit, or from the first candidate
// file if explicit is empty, on top of the defaults.
func Load(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}
	conf := Default()
	if path != "" {
		if err := loaderFor(path).Decode(path, conf); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
		conf.Path = path
	}
	if err := conf.normalize(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (conf *Config) normalize() error {
	c := &conf.Client
	if c.Verbose {
		conf.Logger.Environment = "development"
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: negative timeout %v", c.Timeout)
	}
	var err error
	if c.Datadir, err = ExpandHome(c.Datadir); err != nil {
		return err
	}
	if c.SSLCert, err = ExpandHome(c.SSLCert); err != nil {
		return err
	}
	return nil
}

// Addr returns the host:port of the oracle.
func (c *Client) Addr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// ExpandHome replaces a leading "~/" in path with the home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

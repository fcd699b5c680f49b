// Copyright (c) 2018 Fredrik Kuivinen, frekui@gmail.com
//
// Use of this source code is governed by the BSD-style license that can be
// found in the LICENSE file.

package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Loader encodes and decodes a configuration in one file format.
type Loader interface {
	Encode(w io.Writer, conf *Config) error
	Decode(path string, conf *Config) error
}

type tomlLoader struct{}

func (tomlLoader) Encode(w io.Writer, conf *Config) error {
	return toml.NewEncoder(w).Encode(conf)
}

func (tomlLoader) Decode(path string, conf *Config) error {
	_, err := toml.DecodeFile(path, conf)
	return err
}

type yamlLoader struct{}

func (yamlLoader) Encode(w io.Writer, conf *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(conf); err != nil {
		return err
	}
	return enc.Close()
}

func (yamlLoader) Decode(path string, conf *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(conf)
	if err == io.EOF {
		// Empty file.
		return nil
	}
	return err
}

var encodings = map[string]Loader{
	"toml": tomlLoader{},
	"yaml": yamlLoader{},
}

// NewLoader returns the loader for encoding, "toml" or "yaml". Unknown
// encodings get the TOML loader.
func NewLoader(encoding string) Loader {
	if l, ok := encodings[encoding]; ok {
		return l
	}
	return tomlLoader{}
}

func loaderFor(path string) Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewLoader("yaml")
	}
	return NewLoader("toml")
}

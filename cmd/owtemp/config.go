// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/GermanBionicSystems/uart1wire/ds18x20"
	"github.com/GermanBionicSystems/uart1wire/owuart"
	"gopkg.in/yaml.v3"
)

// config is the content of the YAML configuration file. Command line flags
// override it.
type config struct {
	Port       string        `yaml:"port"`
	Backend    string        `yaml:"backend"`
	VerifyCRC  bool          `yaml:"verify_crc"`
	Conversion time.Duration `yaml:"conversion"`
	Variant    string        `yaml:"variant"`
	Sensors    []sensor      `yaml:"sensors"`
}

// sensor names a device. When sensors are listed, only these are read and
// the bus is not searched.
type sensor struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

func defaultConfig() config {
	return config{
		Port:       "/dev/ttyUSB0",
		Backend:    "serial",
		VerifyCRC:  true,
		Conversion: ds18x20.ConversionTime(12),
		Variant:    ds18x20.Packed.String(),
	}
}

// loadConfig reads the file at path over the default values.
func loadConfig(path string) (config, error) {
	c := defaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// validate checks the values and returns the decoding variant and the
// configured sensors.
func (c *config) validate() (ds18x20.Variant, []named, error) {
	switch c.Backend {
	case "serial", "tarm":
	default:
		return 0, nil, fmt.Errorf("unknown backend %q, use serial or tarm", c.Backend)
	}
	if c.Port == "" {
		return 0, nil, errors.New("port is required")
	}
	if c.Conversion < 0 {
		return 0, nil, errors.New("conversion must be positive")
	}
	v, err := ds18x20.ParseVariant(c.Variant)
	if err != nil {
		return 0, nil, err
	}
	var out []named
	for i, s := range c.Sensors {
		r, err := owuart.ParseROM(s.Address)
		if err != nil {
			return 0, nil, fmt.Errorf("sensor #%d: %w", i, err)
		}
		if !r.Valid() {
			return 0, nil, fmt.Errorf("sensor #%d: address %s has an invalid CRC", i, r)
		}
		name := s.Name
		if name == "" {
			name = r.String()
		}
		out = append(out, named{name: name, rom: r})
	}
	return v, out, nil
}

// named is a sensor to read.
type named struct {
	name string
	rom  owuart.ROM
}

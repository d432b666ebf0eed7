// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// owtemp reads the DS18x20 temperature sensors on a 1-Wire bus driven by a
// serial port.
//
// Without sensors in the configuration file, the bus is searched and every
// temperature sensor found is read. A single conversion is started on all
// devices at once.
//
// Example configuration file:
//
//	port: /dev/ttyUSB0
//	backend: serial
//	verify_crc: true
//	conversion: 750ms
//	variant: sixteenths
//	sensors:
//	- name: outside
//	  address: 28:AC:41:0E:07:00:00:74
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/GermanBionicSystems/uart1wire/ds18x20"
	"github.com/GermanBionicSystems/uart1wire/owuart"
	"github.com/GermanBionicSystems/uart1wire/serialchan"
	"github.com/GermanBionicSystems/uart1wire/tarmchan"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func mainImpl() error {
	cfgPath := flag.String("config", "", "YAML configuration file")
	port := flag.String("port", "", "serial port, overrides the configuration")
	backend := flag.String("backend", "", "serial library: serial (go.bug.st/serial) or tarm (github.com/tarm/serial)")
	alarm := flag.Bool("alarm", false, "only read the devices in alarm state")
	crc := flag.Bool("crc", true, "read the whole scratchpad and verify its CRC")
	wait := flag.Duration("wait", 0, "time to wait for the conversion, overrides the configuration")
	variant := flag.String("variant", "", "temperature format: packed or sixteenths")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := defaultConfig()
	if *cfgPath != "" {
		var err error
		if cfg, err = loadConfig(*cfgPath); err != nil {
			return err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "backend":
			cfg.Backend = *backend
		case "crc":
			cfg.VerifyCRC = *crc
		case "wait":
			cfg.Conversion = *wait
		case "variant":
			cfg.Variant = *variant
		}
	})
	v, sensors, err := cfg.validate()
	if err != nil {
		return err
	}

	ch, err := openChannel(cfg.Backend, cfg.Port)
	if err != nil {
		return err
	}
	bus := owuart.New(ch, &owuart.Opts{Name: cfg.Port, Logger: logger})
	defer bus.Close()

	if len(sensors) == 0 {
		if sensors, err = search(bus, *alarm, logger); err != nil {
			return err
		}
		if len(sensors) == 0 {
			logger.Info("no temperature sensor found", "port", cfg.Port, "alarm", *alarm)
			return nil
		}
	}

	if err := ds18x20.StartAll(bus); err != nil {
		return err
	}
	logger.Debug("conversion started", "wait", cfg.Conversion)
	time.Sleep(cfg.Conversion)

	out := colorable.NewColorableStdout()
	r := reporter{w: out, palette: ansi256.Default, color: isatty.IsTerminal(os.Stdout.Fd())}
	var failed int
	for _, s := range sensors {
		addr := s.rom.Address()
		raw, err := ds18x20.ReadRaw(bus, &addr, cfg.VerifyCRC)
		if err != nil {
			failed++
			logger.Debug("read failed", "rom", s.rom, "err", err)
			if err := r.failure(s.name, s.rom, err); err != nil {
				return err
			}
			continue
		}
		if err := r.reading(s.name, s.rom, decode(v, raw)); err != nil {
			return err
		}
	}
	if failed != 0 {
		return fmt.Errorf("%d of %d sensors failed", failed, len(sensors))
	}
	return nil
}

// openChannel opens the serial port with the selected library.
func openChannel(backend, port string) (owuart.Channel, error) {
	switch backend {
	case "tarm":
		return tarmchan.Open(port, nil)
	default:
		return serialchan.Open(port, nil)
	}
}

// search returns the temperature sensors on the bus.
func search(bus *owuart.Dev, alarmOnly bool, logger *slog.Logger) ([]named, error) {
	addrs, err := bus.Search(alarmOnly)
	if err != nil {
		return nil, err
	}
	var out []named
	for _, a := range addrs {
		rom := owuart.FromAddress(a)
		if !ds18x20.Family(rom.Family()).Known() {
			logger.Debug("skipping device", "rom", rom, "family", rom.Family())
			continue
		}
		out = append(out, named{name: rom.String(), rom: rom})
	}
	return out, nil
}

// decode returns the temperature in °C.
func decode(v ds18x20.Variant, raw ds18x20.Raw) float64 {
	if v == ds18x20.Sixteenths {
		return ds18x20.DecodeSixteenths(raw).Celsius()
	}
	return float64(ds18x20.DecodeCelsius(raw))
}

func family(rom owuart.ROM) string {
	return ds18x20.Family(rom.Family()).String()
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "owtemp: %s.\n", err)
		os.Exit(1)
	}
}

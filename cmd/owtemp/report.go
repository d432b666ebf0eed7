// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"image/color"
	"io"

	"github.com/GermanBionicSystems/uart1wire/owuart"
	"github.com/maruel/ansi256"
)

// reporter prints one line per reading, prefixed with a color swatch going
// from blue (cold) to red (hot).
type reporter struct {
	w       io.Writer
	palette *ansi256.Palette
	color   bool
	buf     bytes.Buffer
}

func (r *reporter) reading(name string, rom owuart.ROM, celsius float64) error {
	r.buf.Reset()
	if r.color {
		_, _ = r.buf.WriteString("\033[0m")
		_, _ = io.WriteString(&r.buf, r.palette.Block(heat(celsius)))
		_, _ = r.buf.WriteString("\033[0m ")
	}
	if name != rom.String() {
		fmt.Fprintf(&r.buf, "%-12s ", name)
	}
	fmt.Fprintf(&r.buf, "%s %-8s %7.3f°C\n", rom, family(rom), celsius)
	_, err := r.buf.WriteTo(r.w)
	return err
}

func (r *reporter) failure(name string, rom owuart.ROM, err error) error {
	r.buf.Reset()
	if r.color {
		_, _ = r.buf.WriteString("\033[0m  ")
	}
	if name != rom.String() {
		fmt.Fprintf(&r.buf, "%-12s ", name)
	}
	fmt.Fprintf(&r.buf, "%s %-8s %v\n", rom, family(rom), err)
	_, werr := r.buf.WriteTo(r.w)
	return werr
}

// heat maps -20°C..40°C linearly from blue to red.
func heat(celsius float64) color.NRGBA {
	const low, high = -20., 40.
	f := (celsius - low) / (high - low)
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	return color.NRGBA{R: byte(255 * f), G: 0, B: byte(255 * (1 - f)), A: 255}
}

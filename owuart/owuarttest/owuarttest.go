// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owuarttest is meant to be used to test drivers over a fake UART
// wired to a simulated 1-Wire bus.
package owuarttest

import (
	"errors"
	"sync"

	"github.com/GermanBionicSystems/uart1wire/common"
	"github.com/GermanBionicSystems/uart1wire/owuart"
)

// ErrNoData is returned by Sim.ReceiveByte when no byte is available.
var ErrNoData = errors.New("owuarttest: no data")

// ErrSend is returned by Sim.SendByte when FailSend is set.
var ErrSend = errors.New("owuarttest: send failed")

// Device is a simulated 1-Wire slave with a DS18x20 like function command set.
type Device struct {
	ROM        owuart.ROM
	Alarm      bool    // answers alarm searches
	Parasite   bool    // reports parasite power
	Scratchpad [9]byte // returned by read scratchpad (0xbe)
	EEPROM     [3]byte // TH, TL and configuration saved by copy scratchpad (0x48)
}

// Scratchpad returns a DS18B20 scratchpad holding the raw temperature lsb and
// msb, power-on TH/TL/configuration values and a valid CRC.
func Scratchpad(lsb, msb byte) [9]byte {
	s := [9]byte{lsb, msb, 0x4b, 0x46, 0x7f, 0xff, 0x0c, 0x10}
	s[8] = common.CRC8(s[:8])
	return s
}

// Sim implements owuart.Channel and simulates the bus behind the UART.
//
// A byte sent at owuart.ResetRate is a reset pulse; it echoes changed if there
// is any device. At owuart.BitRate each byte is a time slot: 0xff leaves the
// line high and echoes 0xff unless a device pulls it low, which echoes 0xf8;
// any other byte is a 0 written by the master and echoes unchanged.
//
// Devices can be added or removed between transactions.
type Sim struct {
	sync.Mutex
	Devices     []*Device
	Calls       int  // number of Channel method calls
	Resets      int  // number of reset pulses
	FailSend    bool // SendByte returns ErrSend
	FailReceive bool // ReceiveByte returns ErrNoData

	rate   owuart.Rate
	rx     []byte
	phase  phase
	active []bool
	n      int // bit counter within the phase
	sub    int // search triplet step: bit, complement, direction
	acc    [3]byte
}

func (s *Sim) String() string {
	return "sim"
}

// SetRate implements owuart.Channel.
func (s *Sim) SetRate(r owuart.Rate) error {
	s.Lock()
	defer s.Unlock()
	s.Calls++
	s.rate = r
	return nil
}

// FlushInput implements owuart.Channel.
func (s *Sim) FlushInput() error {
	s.Lock()
	defer s.Unlock()
	s.Calls++
	s.rx = s.rx[:0]
	return nil
}

// FlushOutput implements owuart.Channel.
func (s *Sim) FlushOutput() error {
	s.Lock()
	defer s.Unlock()
	s.Calls++
	return nil
}

// SendByte implements owuart.Channel.
func (s *Sim) SendByte(b byte) error {
	s.Lock()
	defer s.Unlock()
	s.Calls++
	if s.FailSend {
		return ErrSend
	}
	if s.rate == owuart.ResetRate {
		s.rx = append(s.rx, s.reset(b))
	} else {
		s.rx = append(s.rx, s.slot(b))
	}
	return nil
}

// ReceiveByte implements owuart.Channel.
func (s *Sim) ReceiveByte() (byte, error) {
	s.Lock()
	defer s.Unlock()
	s.Calls++
	if s.FailReceive || len(s.rx) == 0 {
		return 0, ErrNoData
	}
	b := s.rx[0]
	s.rx = s.rx[1:]
	return b, nil
}

//

type phase int

const (
	idle phase = iota
	romCommand
	readROM
	matchROM
	searchROM
	function
	readScratchpad
	writeScratchpad
	readPower
)

func (s *Sim) reset(b byte) byte {
	if b != 0xf0 {
		return b
	}
	s.Resets++
	s.active = make([]bool, len(s.Devices))
	for i := range s.active {
		s.active[i] = true
	}
	s.enter(romCommand)
	if len(s.Devices) == 0 {
		s.phase = idle
		return b
	}
	// The presence pulse shortens the echoed low period.
	return 0xe0
}

func (s *Sim) enter(p phase) {
	s.phase = p
	s.n = 0
	s.sub = 0
	s.acc = [3]byte{}
}

func (s *Sim) slot(b byte) byte {
	if b != 0xff {
		s.clock(false)
		return b
	}
	line := s.drive()
	s.clock(line)
	if line {
		return 0xff
	}
	return 0xf8
}

// drive returns the line level during a slot in which the master leaves the
// line high: the wired-AND of the active devices' output.
func (s *Sim) drive() bool {
	line := true
	for i, d := range s.Devices {
		if !s.isActive(i) {
			continue
		}
		switch s.phase {
		case readROM:
			line = line && romBit(d, s.n)
		case searchROM:
			switch s.sub {
			case 0:
				line = line && romBit(d, s.n)
			case 1:
				line = line && !romBit(d, s.n)
			}
		case readScratchpad:
			line = line && d.Scratchpad[s.n/8]>>uint(s.n%8)&1 != 0
		case readPower:
			line = line && !d.Parasite
		}
	}
	return line
}

// clock advances the devices with the line level seen during the slot.
func (s *Sim) clock(line bool) {
	switch s.phase {
	case romCommand:
		if s.receive(line, 1) {
			s.romCommand(s.acc[0])
		}
	case readROM:
		if s.n++; s.n == 64 {
			s.enter(function)
		}
	case matchROM:
		for i, d := range s.Devices {
			if s.isActive(i) && romBit(d, s.n) != line {
				s.active[i] = false
			}
		}
		if s.n++; s.n == 64 {
			s.enter(function)
		}
	case searchROM:
		if s.sub < 2 {
			s.sub++
			return
		}
		for i, d := range s.Devices {
			if s.isActive(i) && romBit(d, s.n) != line {
				s.active[i] = false
			}
		}
		s.sub = 0
		if s.n++; s.n == 64 {
			s.enter(function)
		}
	case function:
		if s.receive(line, 1) {
			s.function(s.acc[0])
		}
	case readScratchpad:
		if s.n++; s.n == 72 {
			s.enter(idle)
		}
	case writeScratchpad:
		if s.receive(line, 3) {
			for i, d := range s.Devices {
				if s.isActive(i) {
					copy(d.Scratchpad[2:5], s.acc[:])
					d.Scratchpad[8] = common.CRC8(d.Scratchpad[:8])
				}
			}
			s.enter(idle)
		}
	}
}

// receive shifts a bit in and returns true once n bytes were received.
func (s *Sim) receive(line bool, n int) bool {
	if line {
		s.acc[s.n/8] |= 1 << uint(s.n%8)
	}
	s.n++
	return s.n == 8*n
}

func (s *Sim) romCommand(cmd byte) {
	switch cmd {
	case 0x33:
		s.enter(readROM)
	case 0x55:
		s.enter(matchROM)
	case 0xcc:
		s.enter(function)
	case 0xf0:
		s.enter(searchROM)
	case 0xec:
		for i, d := range s.Devices {
			if !d.Alarm && s.isActive(i) {
				s.active[i] = false
			}
		}
		s.enter(searchROM)
	default:
		s.enter(idle)
	}
}

func (s *Sim) function(cmd byte) {
	switch cmd {
	case 0xbe:
		s.enter(readScratchpad)
	case 0x4e:
		s.enter(writeScratchpad)
	case 0xb4:
		s.enter(readPower)
	case 0x48:
		for i, d := range s.Devices {
			if s.isActive(i) {
				copy(d.EEPROM[:], d.Scratchpad[2:5])
			}
		}
		s.enter(idle)
	case 0xb8:
		for i, d := range s.Devices {
			if s.isActive(i) {
				copy(d.Scratchpad[2:5], d.EEPROM[:])
				d.Scratchpad[8] = common.CRC8(d.Scratchpad[:8])
			}
		}
		s.enter(idle)
	default:
		// Convert T and unknown commands: read slots answer 1 (done).
		s.enter(idle)
	}
}

// isActive returns true if device i took part in the last reset and is still
// selected.
func (s *Sim) isActive(i int) bool {
	return i < len(s.active) && s.active[i]
}

func romBit(d *Device, i int) bool {
	return d.ROM[i/8]>>uint(i%8)&1 != 0
}

var _ owuart.Channel = &Sim{}

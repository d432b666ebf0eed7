// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owuart

import (
	"errors"
	"strconv"

	"github.com/GermanBionicSystems/uart1wire/common"
	"periph.io/x/conn/v3/onewire"
)

// ROM is the 64-bit ROM code of a device in transmission order: the family
// code, 6 bytes of serial number, then the CRC of the first 7 bytes.
type ROM [8]byte

// NewROM returns the ROM code made of family and serial, with a valid CRC.
func NewROM(family byte, serial [6]byte) ROM {
	var r ROM
	r[0] = family
	copy(r[1:7], serial[:])
	r[7] = common.CRC8(r[:7])
	return r
}

// FromAddress returns the ROM code of the onewire.Address.
func FromAddress(a onewire.Address) ROM {
	var r ROM
	for i := range r {
		r[i] = byte(a >> (8 * uint(i)))
	}
	return r
}

// Address returns the ROM code as a onewire.Address, where bit i is the i-th
// bit sent on the bus.
func (r ROM) Address() onewire.Address {
	var a onewire.Address
	for i := len(r) - 1; i >= 0; i-- {
		a = a<<8 | onewire.Address(r[i])
	}
	return a
}

// Family returns the family code.
func (r ROM) Family() byte {
	return r[0]
}

// Valid returns true if the CRC byte matches the first 7 bytes.
func (r ROM) Valid() bool {
	return common.CheckCRC8(r[:])
}

// String returns the 23 characters text form, e.g. "28:AC:41:0E:07:00:00:74".
func (r ROM) String() string {
	const hex = "0123456789ABCDEF"
	buf := make([]byte, 0, romTextLen)
	for i, b := range r {
		if i != 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, hex[b>>4], hex[b&0x0f])
	}
	return string(buf)
}

// ParseROM parses the text form of a ROM code: 8 bytes in transmission order,
// two hex digits each, separated by ':' or '-'.
//
// The CRC is not verified; use ROM.Valid.
func ParseROM(s string) (ROM, error) {
	var r ROM
	if len(s) != romTextLen {
		return r, errors.New("owuart: invalid ROM " + strconv.Quote(s) + ": expected 23 characters")
	}
	for i := range r {
		o := 3 * i
		if i != 0 && s[o-1] != ':' && s[o-1] != '-' {
			return r, errors.New("owuart: invalid ROM " + strconv.Quote(s) + ": bad separator")
		}
		v, err := strconv.ParseUint(s[o:o+2], 16, 8)
		if err != nil {
			return r, errors.New("owuart: invalid ROM " + strconv.Quote(s) + ": bad hex digits")
		}
		r[i] = byte(v)
	}
	return r, nil
}

// ReadAddress reads the ROM code of the only device on the bus.
//
// If there is more than one device, their answers collide and the result
// fails the CRC check with ErrChecksum.
func (d *Dev) ReadAddress() (ROM, error) {
	var r ROM
	if err := d.command(cmdReadROM); err != nil {
		return r, err
	}
	for i := range r {
		b, err := d.ReadByte()
		if err != nil {
			return ROM{}, err
		}
		r[i] = b
	}
	if !r.Valid() {
		return ROM{}, ErrChecksum
	}
	return r, nil
}

// MatchAddress resets the bus and selects the device at a; the following
// transport operations up to the next reset only involve this device.
func (d *Dev) MatchAddress(a onewire.Address) error {
	if err := d.command(cmdMatchROM); err != nil {
		return err
	}
	for _, b := range FromAddress(a) {
		if err := d.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

// SkipAddress resets the bus and addresses all the devices at once.
func (d *Dev) SkipAddress() error {
	return d.command(cmdSkipROM)
}

//

// command resets the bus and sends a ROM command.
func (d *Dev) command(cmd byte) error {
	if present, err := d.Reset(); err != nil {
		return err
	} else if !present {
		return ErrReset
	}
	return d.WriteByte(cmd)
}

const romTextLen = 23

const (
	cmdReadROM     = 0x33
	cmdMatchROM    = 0x55
	cmdSkipROM     = 0xcc
	cmdSearchROM   = 0xf0
	cmdAlarmSearch = 0xec
)

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package serialchan implements an owuart.Channel on a serial port opened
// with go.bug.st/serial.
//
// The baud rate is switched in place with SetMode, so rate changes are cheap.
// This is the recommended back-end on Linux, macOS and Windows.
package serialchan

import (
	"errors"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/uart1wire/owuart"
	"go.bug.st/serial"
)

// Opts contains options to pass to Open and New.
type Opts struct {
	// ResetBaud is the baud rate used for owuart.ResetRate.
	ResetBaud int
	// BitBaud is the baud rate used for owuart.BitRate.
	BitBaud int
	// ReadTimeout bounds ReceiveByte. The echo of a byte is normally
	// available as soon as SendByte returns.
	ReadTimeout time.Duration
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	ResetBaud:   9600,
	BitBaud:     115200,
	ReadTimeout: 100 * time.Millisecond,
}

// ErrTimeout is returned by ReceiveByte when no byte arrived within
// Opts.ReadTimeout.
var ErrTimeout = errors.New("serialchan: read timeout")

// Open opens the serial port name and returns a Channel on it.
func Open(name string, opts *Opts) (*Channel, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	mode := newMode(opts.ResetBaud)
	p, err := openPort(name, &mode)
	if err != nil {
		return nil, fmt.Errorf("serialchan: open %s: %w", name, err)
	}
	c, err := New(p, opts)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	c.mode = mode
	c.name = name
	return c, nil
}

// New returns a Channel on an already opened port.
//
// The port's mode is unknown so the first SetRate always configures it.
func New(p serial.Port, opts *Opts) (*Channel, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.ResetBaud <= 0 || opts.BitBaud <= 0 {
		return nil, errors.New("serialchan: invalid baud rate")
	}
	if opts.ReadTimeout <= 0 {
		return nil, errors.New("serialchan: ReadTimeout is required")
	}
	if err := p.SetReadTimeout(opts.ReadTimeout); err != nil {
		return nil, fmt.Errorf("serialchan: %w", err)
	}
	return &Channel{port: p, opts: *opts, mode: newMode(0), name: "serial"}, nil
}

// Channel is an owuart.Channel on a go.bug.st/serial port.
//
// It is not safe for concurrent use; owuart.Dev serializes the accesses.
type Channel struct {
	port serial.Port
	opts Opts
	mode serial.Mode
	name string
}

func (c *Channel) String() string {
	return c.name
}

// SetRate implements owuart.Channel.
//
// The port is only reconfigured when the rate changes.
func (c *Channel) SetRate(r owuart.Rate) error {
	var baud int
	switch r {
	case owuart.ResetRate:
		baud = c.opts.ResetBaud
	case owuart.BitRate:
		baud = c.opts.BitBaud
	default:
		return fmt.Errorf("serialchan: unknown rate %s", r)
	}
	if c.mode.BaudRate == baud {
		return nil
	}
	m := newMode(baud)
	if err := c.port.SetMode(&m); err != nil {
		return err
	}
	c.mode = m
	return nil
}

// FlushInput implements owuart.Channel.
func (c *Channel) FlushInput() error {
	return c.port.ResetInputBuffer()
}

// FlushOutput implements owuart.Channel.
func (c *Channel) FlushOutput() error {
	return c.port.ResetOutputBuffer()
}

// SendByte implements owuart.Channel. It returns once the byte left the
// UART.
func (c *Channel) SendByte(b byte) error {
	n, err := c.port.Write([]byte{b})
	if err != nil {
		return err
	}
	if n != 1 {
		return errors.New("serialchan: short write")
	}
	return c.port.Drain()
}

// ReceiveByte implements owuart.Channel.
func (c *Channel) ReceiveByte() (byte, error) {
	var buf [1]byte
	n, err := c.port.Read(buf[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	return buf[0], nil
}

// Close closes the port.
func (c *Channel) Close() error {
	return c.port.Close()
}

func newMode(baud int) serial.Mode {
	return serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// openPort is replaced in tests.
var openPort = serial.Open

var _ owuart.Channel = &Channel{}

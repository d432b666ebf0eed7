// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tarmchan implements an owuart.Channel on a serial port opened with
// github.com/tarm/serial.
//
// tarm/serial cannot change the baud rate of an open port, so the port is
// closed and reopened on every rate change. This is slower than serialchan
// but works on the platforms where only tarm/serial is available.
package tarmchan

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/GermanBionicSystems/uart1wire/owuart"
	"github.com/tarm/serial"
)

// Opts contains options to pass to Open.
type Opts struct {
	// ResetBaud is the baud rate used for owuart.ResetRate.
	ResetBaud int
	// BitBaud is the baud rate used for owuart.BitRate.
	BitBaud int
	// ReadTimeout bounds ReceiveByte.
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
var ErrTimeout = errors.New("tarmchan: read timeout")

// Open opens the serial port name at the reset rate and returns a Channel on
// it.
func Open(name string, opts *Opts) (*Channel, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.ResetBaud <= 0 || opts.BitBaud <= 0 {
		return nil, errors.New("tarmchan: invalid baud rate")
	}
	if opts.ReadTimeout <= 0 {
		return nil, errors.New("tarmchan: ReadTimeout is required")
	}
	c := &Channel{name: name, opts: *opts}
	if err := c.reopen(owuart.ResetRate, opts.ResetBaud); err != nil {
		return nil, err
	}
	return c, nil
}

// Channel is an owuart.Channel on a tarm/serial port.
//
// It is not safe for concurrent use; owuart.Dev serializes the accesses.
type Channel struct {
	name string
	opts Opts
	port port
	rate owuart.Rate
}

func (c *Channel) String() string {
	return c.name
}

// SetRate implements owuart.Channel. It reopens the port when the rate
// changes.
func (c *Channel) SetRate(r owuart.Rate) error {
	if c.port != nil && c.rate == r {
		return nil
	}
	switch r {
	case owuart.ResetRate:
		return c.reopen(r, c.opts.ResetBaud)
	case owuart.BitRate:
		return c.reopen(r, c.opts.BitBaud)
	default:
		return fmt.Errorf("tarmchan: unknown rate %s", r)
	}
}

// Flush implements owuart.Flusher. tarm/serial discards both directions in
// one call.
func (c *Channel) Flush() error {
	if c.port == nil {
		return errClosed
	}
	return c.port.Flush()
}

// FlushInput implements owuart.Channel. It also discards pending output.
func (c *Channel) FlushInput() error {
	return c.Flush()
}

// FlushOutput implements owuart.Channel. It also discards pending input.
func (c *Channel) FlushOutput() error {
	return c.Flush()
}

// SendByte implements owuart.Channel.
func (c *Channel) SendByte(b byte) error {
	if c.port == nil {
		return errClosed
	}
	n, err := c.port.Write([]byte{b})
	if err != nil {
		return err
	}
	if n != 1 {
		return errors.New("tarmchan: short write")
	}
	return nil
}

// ReceiveByte implements owuart.Channel.
func (c *Channel) ReceiveByte() (byte, error) {
	if c.port == nil {
		return 0, errClosed
	}
	var buf [1]byte
	n, err := c.port.Read(buf[:])
	if n == 1 {
		return buf[0], nil
	}
	if err == nil || err == io.EOF {
		return 0, ErrTimeout
	}
	return 0, err
}

// Close closes the port.
func (c *Channel) Close() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}

//

// port is the subset of *serial.Port in use.
type port interface {
	io.ReadWriteCloser
	Flush() error
}

var errClosed = errors.New("tarmchan: port closed")

// openPort is replaced in tests.
var openPort = func(cfg *serial.Config) (port, error) {
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Channel) reopen(r owuart.Rate, baud int) error {
	if c.port != nil {
		if err := c.port.Close(); err != nil {
			return err
		}
		c.port = nil
	}
	p, err := openPort(&serial.Config{
		Name:        c.name,
		Baud:        baud,
		ReadTimeout: c.opts.ReadTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return fmt.Errorf("tarmchan: open %s at %d baud: %w", c.name, baud, err)
	}
	c.port = p
	c.rate = r
	return nil
}

var _ owuart.Channel = &Channel{}
var _ owuart.Flusher = &Channel{}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owuart

import "fmt"

// Rate selects the transfer rate of the serial channel.
type Rate int

const (
	// ResetRate is the slow rate used to generate reset and presence pulses,
	// typically 9600 baud.
	ResetRate Rate = iota
	// BitRate is the fast rate used for single bit time slots, typically
	// 115200 baud.
	BitRate
)

func (r Rate) String() string {
	switch r {
	case ResetRate:
		return "ResetRate"
	case BitRate:
		return "BitRate"
	default:
		return fmt.Sprintf("Rate(%d)", int(r))
	}
}

// Channel is the byte oriented serial channel the bus is built on.
//
// The channel's TX and RX lines are tied together on the 1-Wire data line
// (usually through a diode or an open drain buffer) so every sent byte is
// echoed back, altered by whatever the devices on the bus do.
type Channel interface {
	// SetRate switches the transfer rate.
	SetRate(r Rate) error
	// FlushInput discards any received byte not yet read.
	FlushInput() error
	// FlushOutput discards any byte not yet transmitted.
	FlushOutput() error
	// SendByte sends one byte and blocks until it has been transmitted.
	SendByte(b byte) error
	// ReceiveByte returns the next received byte. It returns an error when
	// no byte is available.
	ReceiveByte() (byte, error)
}

// Flusher is implemented by channels that can discard both directions in a
// single operation.
type Flusher interface {
	Flush() error
}

// Flush discards pending data in both directions of c.
//
// It uses c's own Flush method when c implements Flusher.
func Flush(c Channel) error {
	if f, ok := c.(Flusher); ok {
		return f.Flush()
	}
	if err := c.FlushOutput(); err != nil {
		return err
	}
	return c.FlushInput()
}

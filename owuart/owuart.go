// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owuart

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// Name is returned by String. Typically the serial port name.
	Name string
	// Logger receives debug level traces of bus transactions. A nil Logger
	// discards them.
	Logger *slog.Logger
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{Name: "uart"}

// New returns a 1-Wire bus master driving the bus through c.
//
// The returned Dev implements onewire.Bus and can be used to access the
// devices on the bus. New doesn't touch the bus.
func New(c Channel, opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	l := opts.Logger
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dev{c: c, name: opts.Name, log: l}
}

// Dev is a 1-Wire bus master built on a serial Channel.
//
// The bit, byte, ROM and SearchNext methods don't lock: the caller must own
// the bus for the duration of a transaction (reset, command, payload). Tx,
// Search and SearchTriplet, which implement onewire.Bus and
// onewire.BusSearcher, lock the bus for the whole transaction.
//
// No error is retried. After ErrChannel or ErrUnexpectedResponse the bus
// state is undefined until the next reset, which every transaction starts
// with anyway.
type Dev struct {
	mu   sync.Mutex // lock for the bus while a transaction is in progress
	c    Channel
	name string
	log  *slog.Logger
}

func (d *Dev) String() string {
	return "owuart{" + d.name + "}"
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Close implements onewire.BusCloser.
//
// It closes the underlying channel if it implements io.Closer.
func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.c.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Tx performs a bus transaction: a reset, then sending w and then receiving
// len(r) bytes into r.
//
// The UART cannot source a strong pull-up so power is ignored; devices must
// be powered externally.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if present, err := d.Reset(); err != nil {
		return err
	} else if !present {
		return ErrReset
	}
	for _, b := range w {
		if err := d.WriteByte(b); err != nil {
			return err
		}
	}
	for i := range r {
		b, err := d.ReadByte()
		if err != nil {
			return err
		}
		r[i] = b
	}
	d.log.Debug("owuart: tx", "bus", d.name, "w", w, "r", r, "pullup", power)
	return nil
}

// SearchTriplet performs a single bit search triplet on the bus: two read
// slots for the bit and its complement and one write slot for the direction
// taken.
//
// SearchTriplet is used by onewire.Search. Prefer Search or SearchNext.
func (d *Dev) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var tr onewire.TripletResult
	var err error
	if tr.GotZero, tr.GotOne, err = d.readPair(); err != nil {
		return tr, err
	}
	switch {
	case tr.GotZero && !tr.GotOne:
		tr.Taken = 0
	case !tr.GotZero && tr.GotOne:
		tr.Taken = 1
	default:
		tr.Taken = direction & 1
	}
	return tr, d.WriteBit(tr.Taken == 1)
}

// Reset issues a reset pulse and returns true if at least one device
// answered with a presence pulse.
//
// The channel is switched to ResetRate and 0xf0 is sent. The byte echoes
// unchanged when nobody pulls the line low.
func (d *Dev) Reset() (bool, error) {
	if err := d.prepare(ResetRate); err != nil {
		return false, err
	}
	if err := d.c.SendByte(resetPattern); err != nil {
		return false, fmt.Errorf("%w: reset: %w", ErrChannel, err)
	}
	b, err := d.c.ReceiveByte()
	if err != nil {
		return false, fmt.Errorf("%w: reset: %w", ErrChannel, err)
	}
	present := b != resetPattern
	d.log.Debug("owuart: reset", "bus", d.name, "echo", b, "present", present)
	return present, nil
}

// WriteBit writes a single bit in one time slot.
func (d *Dev) WriteBit(bit bool) error {
	if err := d.prepare(BitRate); err != nil {
		return err
	}
	v := byte(slotZero)
	if bit {
		v = slotOne
	}
	if err := d.c.SendByte(v); err != nil {
		return fmt.Errorf("%w: write bit: %w", ErrChannel, err)
	}
	return nil
}

// ReadBit reads a single bit in one time slot.
//
// The line is released by sending 0xff; a device sending a 0 pulls it low
// which lowers the echoed value.
func (d *Dev) ReadBit() (bool, error) {
	if err := d.prepare(BitRate); err != nil {
		return false, err
	}
	if err := d.c.SendByte(slotOne); err != nil {
		return false, fmt.Errorf("%w: read bit: %w", ErrChannel, err)
	}
	b, err := d.c.ReceiveByte()
	if err != nil {
		return false, fmt.Errorf("%w: read bit: %w", ErrChannel, err)
	}
	return b > readThreshold, nil
}

// WriteByte writes b least significant bit first.
func (d *Dev) WriteByte(b byte) error {
	for i := range 8 {
		if err := d.WriteBit((b>>uint(i))&1 != 0); err != nil {
			return err
		}
	}
	return nil
}

// ReadByte reads a byte, least significant bit first.
func (d *Dev) ReadByte() (byte, error) {
	var v byte
	for i := range 8 {
		bit, err := d.ReadBit()
		if err != nil {
			return 0, err
		}
		if bit {
			v |= 1 << uint(i)
		}
	}
	return v, nil
}

//

// prepare switches the channel to rate and discards pending data.
func (d *Dev) prepare(r Rate) error {
	if err := d.c.SetRate(r); err != nil {
		return fmt.Errorf("%w: set rate %s: %w", ErrChannel, r, err)
	}
	if err := Flush(d.c); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrChannel, err)
	}
	return nil
}

// readPair reads the two search slots for the current address bit: the bit
// then its complement. A device holding a 0 pulls the first slot low, a
// device holding a 1 pulls the second one low.
func (d *Dev) readPair() (gotZero, gotOne bool, err error) {
	bit, err := d.ReadBit()
	if err != nil {
		return false, false, err
	}
	cmp, err := d.ReadBit()
	if err != nil {
		return false, false, err
	}
	return !bit, !cmp, nil
}

const (
	resetPattern  = 0xf0 // sent at ResetRate to produce the reset pulse
	slotOne       = 0xff // write 1 or read slot
	slotZero      = 0x00 // write 0 slot
	readThreshold = 0xfe // echoes above are a 1, anything lower was pulled low
)

var _ conn.Resource = &Dev{}
var _ onewire.BusCloser = &Dev{}
var _ onewire.BusSearcher = &Dev{}

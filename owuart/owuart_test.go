// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owuart_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/GermanBionicSystems/uart1wire/owuart"
	"github.com/GermanBionicSystems/uart1wire/owuart/owuarttest"
	"periph.io/x/conn/v3/onewire"
)

// scripted is an owuart.Channel that records what is sent and echoes
// according to a script.
type scripted struct {
	rates   []owuart.Rate
	sent    []byte
	echo    []byte // consumed in order by each SendByte, sent byte is echoed when empty
	pending []byte
	flushes int
	sendErr error
	failAt  int // SendByte fails on this call, 1-based; 0 never fails
	noEcho  bool
}

func (s *scripted) SetRate(r owuart.Rate) error {
	s.rates = append(s.rates, r)
	return nil
}

func (s *scripted) FlushInput() error {
	s.flushes++
	s.pending = nil
	return nil
}

func (s *scripted) FlushOutput() error {
	return nil
}

func (s *scripted) SendByte(b byte) error {
	if s.failAt != 0 && len(s.sent)+1 == s.failAt {
		return s.sendErr
	}
	s.sent = append(s.sent, b)
	if s.noEcho {
		return nil
	}
	e := b
	if len(s.echo) != 0 {
		e, s.echo = s.echo[0], s.echo[1:]
	}
	s.pending = append(s.pending, e)
	return nil
}

func (s *scripted) ReceiveByte() (byte, error) {
	if len(s.pending) == 0 {
		return 0, errors.New("timeout")
	}
	b := s.pending[0]
	s.pending = s.pending[1:]
	return b, nil
}

// both is a channel that flushes both directions at once.
type both struct {
	scripted
	flushAll int
}

func (b *both) Flush() error {
	b.flushAll++
	return nil
}

func TestReset(t *testing.T) {
	data := []struct {
		echo    byte
		present bool
	}{
		{0xf0, false},
		{0xe0, true},
		{0x10, true},
		{0x00, true},
		{0xf1, true},
	}
	for _, line := range data {
		c := &scripted{echo: []byte{line.echo}}
		d := owuart.New(c, nil)
		present, err := d.Reset()
		if err != nil {
			t.Fatal(err)
		}
		if present != line.present {
			t.Errorf("echo %#x: present = %t, want %t", line.echo, present, line.present)
		}
		if diff := cmp.Diff([]byte{0xf0}, c.sent); diff != "" {
			t.Errorf("sent (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]owuart.Rate{owuart.ResetRate}, c.rates); diff != "" {
			t.Errorf("rates (-want +got):\n%s", diff)
		}
		if c.flushes != 1 {
			t.Errorf("flushes = %d", c.flushes)
		}
	}
}

func TestReset_no_echo(t *testing.T) {
	d := owuart.New(&scripted{noEcho: true}, nil)
	if _, err := d.Reset(); !errors.Is(err, owuart.ErrChannel) {
		t.Fatalf("got %v, want ErrChannel", err)
	}
}

func TestWriteByte(t *testing.T) {
	c := &scripted{}
	d := owuart.New(c, nil)
	if err := d.WriteByte(0xa5); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xff, 0x00, 0xff, 0x00, 0x00, 0xff, 0x00, 0xff}
	if diff := cmp.Diff(want, c.sent); diff != "" {
		t.Errorf("sent (-want +got):\n%s", diff)
	}
	for i, r := range c.rates {
		if r != owuart.BitRate {
			t.Errorf("slot %d: rate %s", i, r)
		}
	}
}

func TestWriteByte_fail(t *testing.T) {
	sendErr := errors.New("tx stuck")
	c := &scripted{failAt: 3, sendErr: sendErr}
	d := owuart.New(c, nil)
	err := d.WriteByte(0xff)
	if !errors.Is(err, owuart.ErrChannel) || !errors.Is(err, sendErr) {
		t.Fatalf("got %v", err)
	}
	if len(c.sent) != 2 {
		t.Fatalf("byte continued after failure: %#v", c.sent)
	}
}

func TestReadBit(t *testing.T) {
	data := []struct {
		echo byte
		bit  bool
	}{
		{0xff, true},
		{0xfe, false},
		{0xf8, false},
		{0x00, false},
	}
	for _, line := range data {
		d := owuart.New(&scripted{echo: []byte{line.echo}}, nil)
		bit, err := d.ReadBit()
		if err != nil {
			t.Fatal(err)
		}
		if bit != line.bit {
			t.Errorf("echo %#x: got %t", line.echo, bit)
		}
	}
}

func TestReadByte(t *testing.T) {
	// 0x4b, LSB first.
	c := &scripted{echo: []byte{0xff, 0xff, 0xf0, 0xff, 0xf8, 0xf8, 0xff, 0x00}}
	d := owuart.New(c, nil)
	b, err := d.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if b != 0x4b {
		t.Fatalf("got %#x", b)
	}
	for i, s := range c.sent {
		if s != 0xff {
			t.Errorf("slot %d: sent %#x", i, s)
		}
	}
}

func TestReadByte_fail(t *testing.T) {
	c := &scripted{noEcho: true}
	d := owuart.New(c, nil)
	if _, err := d.ReadByte(); !errors.Is(err, owuart.ErrChannel) {
		t.Fatalf("got %v", err)
	}
	if len(c.sent) != 1 {
		t.Fatalf("byte continued after failure: %#v", c.sent)
	}
}

func TestFlush(t *testing.T) {
	c := &both{}
	d := owuart.New(c, nil)
	if err := d.WriteBit(true); err != nil {
		t.Fatal(err)
	}
	if c.flushAll != 1 || c.flushes != 0 {
		t.Fatalf("Flush %d, FlushInput %d", c.flushAll, c.flushes)
	}
}

func TestTx(t *testing.T) {
	rom := owuart.NewROM(0x28, [6]byte{0xac, 0x41, 0x0e, 0x07, 0x00, 0x00})
	spad := owuarttest.Scratchpad(0x91, 0x01)
	sim := &owuarttest.Sim{Devices: []*owuarttest.Device{{ROM: rom, Scratchpad: spad}}}
	d := owuart.New(sim, &owuart.Opts{Name: "ttyUSB0"})
	if s := d.String(); s != "owuart{ttyUSB0}" {
		t.Fatal(s)
	}

	// Through onewire.Dev, which prefixes a match ROM.
	dev := onewire.Dev{Bus: d, Addr: rom.Address()}
	var got [9]byte
	if err := dev.Tx([]byte{0xbe}, got[:]); err != nil {
		t.Fatal(err)
	}
	if got != spad {
		t.Fatalf("got %#v, want %#v", got, spad)
	}

	// Another address doesn't answer.
	other := onewire.Dev{Bus: d, Addr: rom.Address() ^ 0x100}
	if err := other.Tx([]byte{0xbe}, got[:]); err != nil {
		t.Fatal(err)
	}
	for _, b := range got {
		if b != 0xff {
			t.Fatalf("unselected device answered: %#v", got)
		}
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTx_no_device(t *testing.T) {
	d := owuart.New(&owuarttest.Sim{}, nil)
	err := d.Tx([]byte{0xcc, 0x44}, nil, onewire.WeakPullup)
	if !errors.Is(err, owuart.ErrReset) {
		t.Fatalf("got %v", err)
	}
	if e, ok := err.(onewire.NoDevicesError); !ok || !e.NoDevices() {
		t.Fatalf("%v must implement onewire.NoDevicesError", err)
	}
}

func TestTx_channel_failure(t *testing.T) {
	sim := &owuarttest.Sim{FailReceive: true}
	d := owuart.New(sim, nil)
	err := d.Tx([]byte{0xcc}, nil, onewire.WeakPullup)
	if !errors.Is(err, owuart.ErrChannel) || !errors.Is(err, owuarttest.ErrNoData) {
		t.Fatalf("got %v", err)
	}
	if _, ok := err.(onewire.BusError); ok {
		t.Fatal("a channel failure is not a bus error")
	}
}

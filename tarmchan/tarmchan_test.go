// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tarmchan

import (
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/GermanBionicSystems/uart1wire/owuart"
	"github.com/GermanBionicSystems/uart1wire/owuart/owuarttest"
	"github.com/tarm/serial"
	"periph.io/x/conn/v3/onewire"
)

// fakePort is a port wired to a simulated bus.
type fakePort struct {
	sim     *owuarttest.Sim
	flushes *int
	closed  bool
}

func (f *fakePort) Read(p []byte) (int, error) {
	b, err := f.sim.ReceiveByte()
	if err != nil {
		// An expired VTIME read returns EOF.
		return 0, io.EOF
	}
	p[0] = b
	return 1, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := f.sim.SendByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

func (f *fakePort) Flush() error {
	*f.flushes++
	if err := f.sim.FlushOutput(); err != nil {
		return err
	}
	return f.sim.FlushInput()
}

func (f *fakePort) Close() error {
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	return nil
}

// fakeOpen replaces openPort for the duration of the test.
func fakeOpen(t *testing.T, sim *owuarttest.Sim) (*[]serial.Config, *int) {
	var cfgs []serial.Config
	var flushes int
	old := openPort
	openPort = func(cfg *serial.Config) (port, error) {
		cfgs = append(cfgs, *cfg)
		r := owuart.BitRate
		if cfg.Baud == DefaultOpts.ResetBaud {
			r = owuart.ResetRate
		}
		if err := sim.SetRate(r); err != nil {
			return nil, err
		}
		return &fakePort{sim: sim, flushes: &flushes}, nil
	}
	t.Cleanup(func() { openPort = old })
	return &cfgs, &flushes
}

func TestOpen(t *testing.T) {
	sim := &owuarttest.Sim{}
	cfgs, _ := fakeOpen(t, sim)
	if _, err := Open("/dev/ttyUSB0", &Opts{ResetBaud: 9600, BitBaud: 115200}); err == nil {
		t.Fatal("missing timeout")
	}
	if _, err := Open("/dev/ttyUSB0", &Opts{ResetBaud: -1, BitBaud: 115200}); err == nil {
		t.Fatal("invalid baud rate")
	}
	c, err := Open("/dev/ttyUSB0", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []serial.Config{{
		Name:        "/dev/ttyUSB0",
		Baud:        9600,
		ReadTimeout: DefaultOpts.ReadTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}}
	if diff := cmp.Diff(want, *cfgs); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if s := c.String(); s != "/dev/ttyUSB0" {
		t.Fatal(s)
	}
	if err := c.SetRate(owuart.Rate(2)); err == nil {
		t.Fatal("unknown rate")
	}
}

func TestOpen_fail(t *testing.T) {
	old := openPort
	defer func() { openPort = old }()
	openErr := errors.New("ENOENT")
	openPort = func(*serial.Config) (port, error) { return nil, openErr }
	if _, err := Open("/dev/ttyUSB9", nil); !errors.Is(err, openErr) {
		t.Fatalf("got %v", err)
	}
}

func TestChannel(t *testing.T) {
	a := owuart.NewROM(0x28, [6]byte{1, 2, 3, 4, 5, 6})
	b := owuart.NewROM(0x10, [6]byte{1, 2, 3, 4, 5, 6})
	sim := &owuarttest.Sim{Devices: []*owuarttest.Device{{ROM: a}, {ROM: b}}}
	cfgs, flushes := fakeOpen(t, sim)
	c, err := Open("/dev/ttyS0", nil)
	if err != nil {
		t.Fatal(err)
	}
	d := owuart.New(c, &owuart.Opts{Name: c.String()})
	got, err := d.Search(false)
	if err != nil {
		t.Fatal(err)
	}
	want := []onewire.Address{b.Address(), a.Address()}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	// Open, then per search pass: same rate for the first reset, then the
	// bit rate; the second pass goes back to the reset rate and again to the
	// bit rate.
	var bauds []int
	for _, cfg := range *cfgs {
		bauds = append(bauds, cfg.Baud)
	}
	if diff := cmp.Diff([]int{9600, 115200, 9600, 115200}, bauds); diff != "" {
		t.Fatalf("bauds (-want +got):\n%s", diff)
	}
	// Flush is used once per slot, never the two separate flushes.
	if *flushes == 0 {
		t.Fatal("Flush not used")
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.SendByte(0); !errors.Is(err, errClosed) {
		t.Fatalf("got %v", err)
	}
}

func TestReceiveByte_timeout(t *testing.T) {
	fakeOpen(t, &owuarttest.Sim{})
	c, err := Open("/dev/ttyS0", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ReceiveByte(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v", err)
	}
}

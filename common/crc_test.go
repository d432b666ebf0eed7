// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import (
	"testing"

	"periph.io/x/conn/v3/onewire"
)

func TestCRC8(t *testing.T) {
	var tests = []struct {
		bytes  []byte
		result byte
	}{
		{bytes: nil, result: 0x00},
		// Maxim App Note 27 example ROM.
		{bytes: []byte{0x02, 0x1c, 0xb8, 0x01, 0x00, 0x00, 0x00}, result: 0xa2},
		// DS18B20 ROM.
		{bytes: []byte{0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00}, result: 0x74},
		// DS18B20 scratchpad.
		{bytes: []byte{0xe0, 0x01, 0x00, 0x00, 0x3f, 0xff, 0x10, 0x10}, result: 0x3f},
		{bytes: []byte("123456789"), result: 0xa1},
	}
	for _, test := range tests {
		res := CRC8(test.bytes)
		if res != test.result {
			t.Errorf("CRC8(%#v)!=0x%02x received 0x%02x", test.bytes, test.result, res)
		}
	}
}

func TestCRC8_matches_onewire(t *testing.T) {
	buf := make([]byte, 0, 256)
	for i := range 256 {
		buf = append(buf, byte(i*37+11))
		if got, want := CRC8(buf), onewire.CalcCRC(buf); got != want {
			t.Fatalf("len %d: got 0x%02x, want 0x%02x", len(buf), got, want)
		}
	}
}

func TestCheckCRC8(t *testing.T) {
	if CheckCRC8(nil) {
		t.Fatal("empty buffer must not pass")
	}
	prefixes := [][]byte{
		{0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00},
		{0x10, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
		{0x22, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	}
	for _, p := range prefixes {
		block := append(append([]byte{}, p...), CRC8(p))
		if !CheckCRC8(block) {
			t.Fatalf("%#v: valid block rejected", block)
		}
		// Every single-bit error must be detected.
		for i := range len(block) * 8 {
			bad := append([]byte{}, block...)
			bad[i/8] ^= 1 << uint(i%8)
			if CheckCRC8(bad) {
				t.Errorf("%#v: flipped bit %d not detected", block, i)
			}
		}
	}
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owuart implements a 1-Wire bus master on top of a plain serial
// channel (UART) whose baud rate can be switched.
//
// A UART running at 9600 baud produces a low pulse long enough to be a 1-Wire
// reset: sending 0xf0 holds the line low for ~520µs and the echoed byte is
// altered when a device answers with a presence pulse. At 115200 baud one
// transmitted byte is one 1-Wire time slot: 0x00 writes a 0, 0xff writes a 1
// or opens a read slot in which a device may pull the line low, which shows
// up as a lower echoed value.
//
// Dev implements onewire.Bus so the devices of periph.io/x/conn/v3/onewire
// based drivers can be used on it. It also exposes the bit level operations,
// the ROM commands and a resumable search for callers that drive the bus
// themselves.
//
// Datasheet
//
// https://www.analog.com/en/resources/technical-articles/using-a-uart-to-implement-a-1wire-bus-master.html
//
// https://www.analog.com/en/resources/app-notes/1wire-search-algorithm.html
package owuart

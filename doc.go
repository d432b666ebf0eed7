// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package uart1wire is a container for a 1-Wire bus master built on a UART
// and the drivers using it.
//
// See owuart for the bus master, ds18x20 for the temperature sensors, and
// serialchan or tarmchan to open the serial port.
package uart1wire

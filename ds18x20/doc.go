// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds18x20 interfaces to Dallas Semi / Maxim DS18S20, DS1822 and
// DS18B20 1-wire temperature sensors.
//
// The functions take any onewire.Bus and address one device by its address
// or all of them at once. Dev wraps a single device as a physic.SenseEnv.
//
// # Datasheet
//
// https://datasheets.maximintegrated.com/en/ds/DS18B20.pdf
//
// https://datasheets.maximintegrated.com/en/ds/DS18S20.pdf
package ds18x20

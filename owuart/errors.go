// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owuart

import (
	"errors"

	"periph.io/x/conn/v3/onewire"
)

var (
	// ErrChannel is returned when a send, receive, flush or rate change on
	// the channel did not complete. The channel's own error, if any, is
	// wrapped along with it.
	//
	// It is not a onewire.BusError: the problem is the UART, not the bus.
	ErrChannel = errors.New("owuart: channel failure")
	// ErrReset is returned when a reset was issued and no device answered
	// with a presence pulse.
	ErrReset error = noDevicesError("owuart: no device present")
	// ErrChecksum is returned when the CRC of an address or a data block does
	// not match.
	ErrChecksum error = busError("owuart: checksum mismatch")
	// ErrUnexpectedResponse is returned when the devices' answers violate the
	// protocol, e.g. nobody answers in the middle of a search or the bus
	// changed between two search steps.
	ErrUnexpectedResponse error = busError("owuart: unexpected response")
)

// errNoAnswer is ErrUnexpectedResponse at the first bit of a new search.
var errNoAnswer error = noAnswerError{}

type noAnswerError struct{}

func (noAnswerError) Error() string        { return "owuart: unexpected response: no device answered the search" }
func (noAnswerError) BusError() bool       { return true }
func (noAnswerError) Is(target error) bool { return target == ErrUnexpectedResponse }

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

// noDevicesError implements error, onewire.NoDevicesError and
// onewire.BusError.
type noDevicesError string

func (e noDevicesError) Error() string   { return string(e) }
func (e noDevicesError) NoDevices() bool { return true }
func (e noDevicesError) BusError() bool  { return true }

var _ onewire.BusError = busError("")
var _ onewire.NoDevicesError = noDevicesError("")
var _ onewire.BusError = noDevicesError("")
var _ onewire.BusError = noAnswerError{}

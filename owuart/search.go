// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owuart

import (
	"periph.io/x/conn/v3/onewire"
)

// SearchState is the position of an enumeration in the tree of ROM codes.
//
// It is returned by SearchNext and must be passed back unchanged to find the
// next device. A nil *SearchState starts a new enumeration. The zero value
// is an exhausted state: Done returns true and SearchNext returns no device
// without touching the bus.
type SearchState struct {
	address       uint64 // last device found
	discrepancies uint64 // bits where both values answered and 1 wasn't taken yet
	last          uint8  // highest bit set in discrepancies
}

// Address returns the last device found.
func (s *SearchState) Address() onewire.Address {
	return onewire.Address(s.address)
}

// Discrepancies returns the bit positions where devices disagreed and whose
// 1 branch is still to be explored.
func (s *SearchState) Discrepancies() uint64 {
	return s.discrepancies
}

// LastDiscrepancy returns the bit position that the next step will flip to 1.
func (s *SearchState) LastDiscrepancy() int {
	return int(s.last)
}

// Done returns true when no device is left to find.
func (s *SearchState) Done() bool {
	return s.discrepancies == 0
}

// SearchNext finds the next device on the bus. prev is nil for the first
// call and then the state returned by the previous call.
//
// It returns a nil state and a nil error when there is no device left: either
// the previous call found the last device, in which case the bus isn't
// touched, or no device answered the reset.
//
// Each call walks the 64 bits of the ROM code with a search (0xf0) or alarm
// search (0xec) command: it repeats the choices of the previous device up to
// its last discrepancy, takes the 1 branch there and then always takes the 0
// branch, recording every new discrepancy. Devices are thus found in
// ascending order of their ROM codes compared bit by bit in transmission
// order.
//
// When devices are present but none answers the first bit, which is what an
// alarm search does when no device is in alarm state, it returns an error
// matching ErrUnexpectedResponse.
//
// An error ends the enumeration; start a new one with a nil state.
func (d *Dev) SearchNext(prev *SearchState, alarmOnly bool) (ROM, *SearchState, error) {
	if prev != nil && prev.Done() {
		return ROM{}, nil, nil
	}
	if present, err := d.Reset(); err != nil {
		return ROM{}, nil, err
	} else if !present {
		return ROM{}, nil, nil
	}
	cmd := byte(cmdSearchROM)
	if alarmOnly {
		cmd = cmdAlarmSearch
	}
	if err := d.WriteByte(cmd); err != nil {
		return ROM{}, nil, err
	}

	var address, discrepancies uint64
	var last uint8
	start := 0
	if prev != nil {
		// Replay the previous device up to its last discrepancy.
		for i := uint8(0); i < prev.last; i++ {
			if _, _, err := d.readPair(); err != nil {
				return ROM{}, nil, err
			}
			if prev.discrepancies&(1<<i) != 0 {
				last = i
			}
			if err := d.WriteBit(prev.address&(1<<i) != 0); err != nil {
				return ROM{}, nil, err
			}
		}
		// 0 was taken here last time, both branches must still answer.
		gotZero, gotOne, err := d.readPair()
		if err != nil {
			return ROM{}, nil, err
		}
		if !gotZero || !gotOne {
			return ROM{}, nil, ErrUnexpectedResponse
		}
		if err := d.WriteBit(true); err != nil {
			return ROM{}, nil, err
		}
		address = prev.address | 1<<prev.last
		discrepancies = prev.discrepancies &^ (1 << prev.last)
		start = int(prev.last) + 1
	}

	for i := start; i < 64; i++ {
		gotZero, gotOne, err := d.readPair()
		if err != nil {
			return ROM{}, nil, err
		}
		var bit bool
		switch {
		case !gotZero && !gotOne:
			if prev == nil && i == 0 {
				return ROM{}, nil, errNoAnswer
			}
			return ROM{}, nil, ErrUnexpectedResponse
		case gotOne && !gotZero:
			bit = true
		case gotZero && !gotOne:
			bit = false
		default:
			discrepancies |= 1 << uint(i)
			last = uint8(i)
		}
		mask := uint64(1) << uint(i)
		if bit {
			address |= mask
		} else {
			address &^= mask
		}
		if err := d.WriteBit(bit); err != nil {
			return ROM{}, nil, err
		}
	}

	rom := FromAddress(onewire.Address(address))
	if !rom.Valid() {
		return ROM{}, nil, ErrChecksum
	}
	next := &SearchState{address: address, discrepancies: discrepancies, last: last}
	d.log.Debug("owuart: found device", "bus", d.name, "rom", rom, "discrepancies", discrepancies)
	return rom, next, nil
}

// Searcher enumerates the devices on a bus one at a time.
//
// Use it like a bufio.Scanner:
//
//	s := d.NewSearcher(false)
//	for s.Next() {
//		fmt.Println(s.ROM())
//	}
//	if err := s.Err(); err != nil {
//		...
//	}
type Searcher struct {
	d         *Dev
	alarmOnly bool
	state     *SearchState
	rom       ROM
	err       error
	done      bool
}

// NewSearcher returns a Searcher for all the devices, or only the devices in
// alarm state if alarmOnly is true.
func (d *Dev) NewSearcher(alarmOnly bool) *Searcher {
	return &Searcher{d: d, alarmOnly: alarmOnly}
}

// Next finds the next device. It returns false when there is none left or
// an error occurred.
func (s *Searcher) Next() bool {
	if s.done {
		return false
	}
	rom, next, err := s.d.SearchNext(s.state, s.alarmOnly)
	if err != nil || next == nil {
		s.err = err
		s.state = nil
		s.done = true
		return false
	}
	s.rom = rom
	s.state = next
	return true
}

// ROM returns the device found by the last call to Next.
func (s *Searcher) ROM() ROM {
	return s.rom
}

// Err returns the error that stopped the enumeration, if any.
func (s *Searcher) Err() error {
	return s.err
}

// Search implements onewire.Bus.
//
// It returns the addresses of all the devices on the bus if alarmOnly is
// false and of all devices in alarm state if alarmOnly is true. If an error
// occurs, the devices already found are returned with the error. An empty bus
// returns no devices and no error, and so does an alarm search when no device
// is in alarm state.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var addrs []onewire.Address
	s := d.NewSearcher(alarmOnly)
	for s.Next() {
		addrs = append(addrs, s.ROM().Address())
	}
	err := s.Err()
	if alarmOnly && len(addrs) == 0 && err == errNoAnswer {
		return nil, nil
	}
	return addrs, err
}

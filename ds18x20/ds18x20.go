// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18x20

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/GermanBionicSystems/uart1wire/common"
	"github.com/GermanBionicSystems/uart1wire/owuart"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
)

// Family code of the specific device type.
type Family byte

const (
	DS18S20 Family = 0x10
	DS1822  Family = 0x22
	DS18B20 Family = 0x28
)

func (f Family) String() string {
	switch f {
	case DS18S20:
		return "DS18S20"
	case DS1822:
		return "DS1822"
	case DS18B20:
		return "DS18B20"
	default:
		return "unknown"
	}
}

// Known returns true if f is a temperature sensor handled by this package.
func (f Family) Known() bool {
	return f == DS18S20 || f == DS1822 || f == DS18B20
}

// Raw is the temperature register as read from the scratchpad: LSB then MSB.
type Raw [2]byte

// Variant selects how a Raw reading is decoded.
type Variant int

const (
	// Packed decodes with DecodeCelsius: a 7 bits integer part and a
	// fractional nibble scaled by 6.
	Packed Variant = iota
	// Sixteenths decodes with DecodeSixteenths: a 16 bits two's complement
	// value in 1/16°C, as used by DS18B20 and DS1822 at any resolution.
	Sixteenths
)

func (v Variant) String() string {
	switch v {
	case Packed:
		return "packed"
	case Sixteenths:
		return "sixteenths"
	default:
		return "Variant(" + strconv.Itoa(int(v)) + ")"
	}
}

// ParseVariant returns the Variant named s, as returned by Variant.String.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "packed":
		return Packed, nil
	case "sixteenths":
		return Sixteenths, nil
	default:
		return 0, errors.New("ds18x20: unknown variant " + strconv.Quote(s))
	}
}

// StartMeasurement starts a temperature conversion on the device at target,
// or on all the devices when target is nil.
//
// It returns right away; the bus master cannot tell when the conversion is
// done. Wait ConversionTime before reading the result.
func StartMeasurement(b onewire.Bus, target *onewire.Address) error {
	return b.Tx(address(target, cmdConvert), nil, onewire.StrongPullup)
}

// StartAll starts a conversion on all the devices on the bus.
func StartAll(b onewire.Bus) error {
	return StartMeasurement(b, nil)
}

// ConvertAll performs a conversion on all the devices on the bus and returns
// once the slowest device at maxResolutionBits is done.
//
// ConvertAll uses time.Sleep to wait for the conversion to finish, which takes
// from 94ms to 752ms.
func ConvertAll(b onewire.Bus, maxResolutionBits int) error {
	if maxResolutionBits < 9 || maxResolutionBits > 12 {
		return errors.New("ds18x20: invalid maxResolutionBits")
	}
	if err := StartAll(b); err != nil {
		return err
	}
	sleep(ConversionTime(maxResolutionBits))
	return nil
}

// ConversionTime returns the maximum conversion time at the resolution:
// 9bits:94ms, 10bits:188ms, 11bits:376ms, 12bits:752ms, datasheet p.6.
//
// DS18S20 always takes the 12 bits time.
func ConversionTime(resolutionBits int) time.Duration {
	return (94 << uint(resolutionBits-9)) * time.Millisecond
}

// ReadRaw reads the temperature register of the device at target, or of the
// only device on the bus when target is nil.
//
// When verify is false only the 2 bytes of the temperature are read. When
// verify is true the whole scratchpad is read and its CRC checked; a mismatch
// returns an error wrapping owuart.ErrChecksum.
func ReadRaw(b onewire.Bus, target *onewire.Address, verify bool) (Raw, error) {
	if !verify {
		var r Raw
		if err := b.Tx(address(target, cmdReadScratchpad), r[:], onewire.WeakPullup); err != nil {
			return Raw{}, err
		}
		return r, nil
	}
	spad, err := readScratchpad(b, target)
	if err != nil {
		return Raw{}, err
	}
	return Raw{spad[0], spad[1]}, nil
}

// DecodeCelsius decodes a raw reading in the packed format.
//
// The integer part is the high nibble of the LSB with the low 3 bits of the
// MSB above it. The low nibble of the LSB times 6 is the fractional part, in
// hundredths when below 100 and in thousandths otherwise. A MSB above 0xFB
// denotes a negative temperature: the integer part is complemented to 127
// and the sign applied last.
func DecodeCelsius(raw Raw) float32 {
	digit := raw[0]>>4 | (raw[1]&0x07)<<4
	decimal := (raw[0] & 0x0f) * 6
	negative := raw[1] > 0xfb
	if negative {
		digit = 127 - digit
	}
	t := float32(digit)
	if decimal < 100 {
		t += float32(decimal) / 100
	} else {
		t += float32(decimal) / 1000
	}
	if negative {
		t = -t
	}
	return t
}

// DecodeSixteenths decodes a raw reading in the 1/16°C two's complement
// format. Bits below the configured resolution read as 0. Datasheet p.4.
func DecodeSixteenths(raw Raw) physic.Temperature {
	v := physic.Temperature(int16(raw[1])<<8 | int16(raw[0]))
	return v*physic.Kelvin/16 + physic.ZeroCelsius
}

// WriteScratchpad writes the alarm thresholds and the configuration register
// of the device at target, or of all devices when target is nil.
//
// DS18S20 has no configuration register and ignores config.
func WriteScratchpad(b onewire.Bus, target *onewire.Address, th, tl, config byte) error {
	return b.Tx(append(address(target, cmdWriteScratchpad), th, tl, config), nil, onewire.WeakPullup)
}

// CopyScratchpad saves the alarm thresholds and the configuration register
// to EEPROM.
func CopyScratchpad(b onewire.Bus, target *onewire.Address) error {
	if err := b.Tx(address(target, cmdCopyScratchpad), nil, onewire.StrongPullup); err != nil {
		return err
	}
	sleep(10 * time.Millisecond)
	return nil
}

// RecallEEPROM restores the alarm thresholds and the configuration register
// from EEPROM into the scratchpad.
func RecallEEPROM(b onewire.Bus, target *onewire.Address) error {
	return b.Tx(address(target, cmdRecallEEPROM), nil, onewire.WeakPullup)
}

// ParasitePowered returns true if the device at target, or any device when
// target is nil, is powered from the data line.
func ParasitePowered(b onewire.Bus, target *onewire.Address) (bool, error) {
	var r [1]byte
	if err := b.Tx(address(target, cmdReadPowerSupply), r[:], onewire.WeakPullup); err != nil {
		return false, err
	}
	return r[0] != 0xff, nil
}

// Opts contains the options to pass to New.
type Opts struct {
	// Variant selects the decoding of the temperature register.
	Variant Variant
	// ResolutionBits, in the range 9..12, is programmed in the device when it
	// differs. 0 leaves the device as is. It only applies to the Sixteenths
	// variant on DS18B20 and DS1822.
	ResolutionBits int
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{Variant: Packed}

// New returns an object that communicates over 1-wire to the temperature
// sensor with the specified 64-bit address.
//
// It reads the scratchpad to check that the device answers. The resolution
// affects the conversion time: 9bits:94ms, 10bits:188ms, 11bits:375ms,
// 12bits:750ms.
func New(b onewire.Bus, addr onewire.Address, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.ResolutionBits != 0 && (opts.ResolutionBits < 9 || opts.ResolutionBits > 12) {
		return nil, errors.New("ds18x20: invalid ResolutionBits")
	}
	d := &Dev{onewire: onewire.Dev{Bus: b, Addr: addr}, variant: opts.Variant, resolution: 12}

	// Start by reading the scratchpad memory, this will tell us whether we can
	// talk to the device correctly and also how it's configured.
	spad, err := readScratchpad(b, &addr)
	if err != nil {
		return nil, err
	}
	if d.Family() == DS18S20 || d.variant != Sixteenths {
		return d, nil
	}
	d.resolution = int(spad[4]>>5&3) + 9
	if opts.ResolutionBits != 0 && opts.ResolutionBits != d.resolution {
		// Keep the alarm thresholds, set the configuration register then
		// save to EEPROM.
		if err := WriteScratchpad(b, &addr, spad[2], spad[3], byte((opts.ResolutionBits-9)<<5)|0x1f); err != nil {
			return nil, err
		}
		if err := CopyScratchpad(b, &addr); err != nil {
			return nil, err
		}
		d.resolution = opts.ResolutionBits
	}
	return d, nil
}

// Dev is a handle to a DS18S20, DS1822 or DS18B20 temperature sensor on a
// 1-wire bus.
type Dev struct {
	onewire    onewire.Dev // device on 1-wire bus
	variant    Variant
	resolution int // resolution in bits (9..12)

	mu       sync.Mutex
	shutdown chan struct{}
}

// Family returns the family code from the device's address.
func (d *Dev) Family() Family {
	return Family(d.onewire.Addr & 0xFF)
}

func (d *Dev) String() string {
	return d.Family().String() + "{" + d.onewire.String() + "}"
}

// Halt stops a SenseContinuous loop, if any. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown != nil {
		close(d.shutdown)
		d.shutdown = nil
	}
	return nil
}

// Sense performs a conversion and reads the result. Implements
// physic.SenseEnv.
func (d *Dev) Sense(e *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := StartMeasurement(d.onewire.Bus, &d.onewire.Addr); err != nil {
		return err
	}
	sleep(ConversionTime(d.resolution))
	t, err := d.lastTemp()
	if err != nil {
		return err
	}
	e.Temperature = t
	return nil
}

// SenseContinuous performs a conversion every interval and writes the
// results to the returned channel. Implements physic.SenseEnv.
//
// Call Halt to stop; the channel is then closed. Failed readings are skipped.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if m := ConversionTime(d.resolution); interval < m {
		return nil, fmt.Errorf("ds18x20: invalid interval, minimum %s", m)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown != nil {
		return nil, errors.New("ds18x20: already sensing continuously")
	}
	d.shutdown = make(chan struct{})
	const channelSize = 16
	ch := make(chan physic.Env, channelSize)
	go func(shutdown <-chan struct{}) {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-shutdown:
				return
			case <-ticker.C:
				e := physic.Env{}
				if err := d.Sense(&e); err != nil {
					continue
				}
				select {
				case ch <- e:
				default:
				}
			}
		}
	}(d.shutdown)
	return ch, nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	switch {
	case d.variant == Packed:
		e.Temperature = 10 * physic.MilliKelvin
	case d.Family() == DS18S20:
		e.Temperature = physic.Kelvin / 16
	default:
		e.Temperature = physic.Kelvin / physic.Temperature(1<<uint(d.resolution-8))
	}
}

// LastTemp reads the temperature resulting from the last conversion from the
// device.
//
// It is useful in combination with StartAll.
func (d *Dev) LastTemp() (physic.Temperature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTemp()
}

func (d *Dev) lastTemp() (physic.Temperature, error) {
	spad, err := readScratchpad(d.onewire.Bus, &d.onewire.Addr)
	if err != nil {
		return 0, err
	}
	c := decodeScratchpad(d.Family(), d.variant, spad)

	// The device powers up with a value of 85°C, so if we read that odds are
	// very high that either no conversion was performed or that the conversion
	// failed due to lack of power. This prevents reading a temp of exactly 85°C,
	// but that seems like the right tradeoff.
	if c == 85*physic.Celsius+physic.ZeroCelsius {
		return 0, busError("ds18x20: has not performed a temperature conversion (insufficient pull-up?)")
	}
	return c, nil
}

//

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

// decodeScratchpad decodes the temperature of a full scratchpad.
func decodeScratchpad(f Family, v Variant, spad [9]byte) physic.Temperature {
	raw := Raw{spad[0], spad[1]}
	if v == Packed {
		c := DecodeCelsius(raw)
		return physic.Temperature(math.Round(float64(c)*1000))*physic.MilliCelsius + physic.ZeroCelsius
	}
	if f != DS18S20 {
		return DecodeSixteenths(raw)
	}
	// DS18S20 counts in 1/2°C.
	t := int16(spad[1])<<8 | int16(spad[0])
	if spad[7] != 0 {
		// Extended resolution, datasheet p.6:
		// TEMPERATURE = TEMP_READ - 0.25 + (COUNT_PER_C - COUNT_REMAIN)/COUNT_PER_C
		// where TEMP_READ truncates the 0.5°C bit, COUNT_PER_C is spad[7]
		// (16) and COUNT_REMAIN spad[6]. In 1/16°C:
		t = (t&^1)<<3 + 12 - int16(spad[6])
	} else {
		t <<= 3
	}
	return physic.Temperature(t)*physic.Kelvin/16 + physic.ZeroCelsius
}

// readScratchpad reads the 9 bytes of scratchpad and checks the CRC.
func readScratchpad(b onewire.Bus, target *onewire.Address) ([9]byte, error) {
	var spad [9]byte
	if err := b.Tx(address(target, cmdReadScratchpad), spad[:], onewire.WeakPullup); err != nil {
		return spad, err
	}
	if !common.CheckCRC8(spad[:]) {
		for _, s := range spad {
			if s != 0xff {
				return spad, fmt.Errorf("ds18x20: incorrect scratchpad CRC: %w", owuart.ErrChecksum)
			}
		}
		return spad, fmt.Errorf("ds18x20: device did not respond: %w", owuart.ErrChecksum)
	}
	return spad, nil
}

// address returns the ROM command addressing target, or all devices when
// target is nil, followed by the function command cmd.
func address(target *onewire.Address, cmd byte) []byte {
	if target == nil {
		return []byte{cmdSkipROM, cmd}
	}
	w := make([]byte, 0, 13)
	w = append(w, cmdMatchROM)
	for i := range 8 {
		w = append(w, byte(*target>>uint(8*i)))
	}
	return append(w, cmd)
}

const (
	cmdMatchROM = 0x55
	cmdSkipROM  = 0xcc

	cmdConvert         = 0x44
	cmdReadScratchpad  = 0xbe
	cmdWriteScratchpad = 0x4e
	cmdCopyScratchpad  = 0x48
	cmdRecallEEPROM    = 0xb8
	cmdReadPowerSupply = 0xb4
)

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, the 1-Wire CRC8 calculation.
package common

// CRC8 calculates the Dallas/Maxim 1-Wire CRC of the byte slice parameter and
// returns the calculated value.
//
// The polynomial is x⁸+x⁵+x⁴+1 (0x31) processed least significant bit first,
// which is 0x8c in reflected form, with a zero seed. See Maxim App Note 27.
func CRC8(bytes []byte) byte {
	var crc byte
	for _, val := range bytes {
		for range 8 {
			mix := (crc ^ val) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8c
			}
			val >>= 1
		}
	}
	return crc
}

// CheckCRC8 returns true if the last byte of the buffer is the CRC8 of the
// bytes before it.
//
// It returns false for an empty buffer.
func CheckCRC8(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return CRC8(buf[:len(buf)-1]) == buf[len(buf)-1]
}

// Package crc implements the two cyclic redundancy checks used on a 1-Wire
// network: the 8-bit check carried in every device address and the 16-bit
// check that protects memory and command blocks.
//
// Both functions take an explicit seed so callers can thread a running value
// across several buffers.
package crc

import (
	"math/bits"

	"github.com/sigurn/crc8"
)

// Residue16 is the value CRC16 yields when run over a block followed by the
// inverted CRC-16 of that block, least significant byte first.
const Residue16 = 0xB001

// maxim is the reflected x^8 + x^5 + x^4 + 1 table. crc8 keeps its running
// value unreflected, so seeds are reversed on the way in.
var maxim = crc8.MakeTable(crc8.CRC8_MAXIM)

// Update8 folds one byte into a CRC-8 (x^8 + x^5 + x^4 + 1) seed.
func Update8(b, seed byte) byte {
	return CRC8([]byte{b}, seed)
}

// CRC8 computes the CRC-8 of data starting from seed.
func CRC8(data []byte, seed byte) byte {
	return crc8.Complete(crc8.Update(bits.Reverse8(seed), data, maxim), maxim)
}

var oddParity = [16]uint16{0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0}

// Update16 folds one byte into a CRC-16 (x^16 + x^15 + x^2 + 1) seed using the
// nibble parity table.
func Update16(b byte, seed uint16) uint16 {
	dat := uint16(b^byte(seed)) & 0xFF
	seed >>= 8
	if oddParity[dat&0x0F]^oddParity[dat>>4] == 1 {
		seed ^= 0xC001
	}
	dat <<= 6
	seed ^= dat
	dat <<= 1
	seed ^= dat
	return seed
}

// CRC16 computes the CRC-16 of data starting from seed.
func CRC16(data []byte, seed uint16) uint16 {
	for _, b := range data {
		seed = Update16(b, seed)
	}
	return seed
}

// Append16 appends the inverted CRC-16 of data, low byte first, which is the
// form devices transmit.
func Append16(data []byte, seed uint16) []byte {
	inv := ^CRC16(data, seed)
	return append(data, byte(inv), byte(inv>>8))
}

// Valid16 reports whether data ends with a correct inverted CRC-16.
func Valid16(data []byte, seed uint16) bool {
	return CRC16(data, seed) == Residue16
}

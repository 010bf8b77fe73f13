package onewire

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/convert"
	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/crc"
)

// Address is the 64-bit ROM code of a 1-Wire device as it appears on the
// wire:
//
//	byte 0      family code
//	bytes 1..6  48-bit serial number, least significant byte first
//	byte 7      CRC-8 of bytes 0..6
type Address [8]byte

// Family returns the family code.
func (a Address) Family() byte { return a[0] }

// Serial returns the 48-bit serial number.
func (a Address) Serial() uint64 { return convert.Uint(a[1:7], 6) }

// CRC returns the stored check byte.
func (a Address) CRC() byte { return a[7] }

// Valid reports whether the check byte matches the first seven bytes. The
// all-zero address is never valid.
func (a Address) Valid() bool {
	return a != Address{} && crc.CRC8(a[:], 0) == 0
}

// Uint64 returns the address as a little-endian integer (family in the low
// byte).
func (a Address) Uint64() uint64 { return convert.Uint(a[:], 8) }

// String renders the address as 16 uppercase hex characters, family first.
func (a Address) String() string { return a.Format("") }

// Format renders the address with delim between bytes.
func (a Address) Format(delim string) string { return convert.ToHex(a[:], delim) }

// Bit returns address bit i (0..63) in transmission order.
func (a Address) Bit(i int) bool { return convert.Bit(a[:], 0, i) }

// NewAddress builds an address from family and serial and fills in the check
// byte.
func NewAddress(family byte, serial uint64) Address {
	var a Address
	a[0] = family
	convert.PutUint(a[1:7], serial, 6)
	a[7] = crc.CRC8(a[:7], 0)
	return a
}

// AddressFromUint64 is the inverse of Address.Uint64.
func AddressFromUint64(v uint64) Address {
	var a Address
	convert.PutUint(a[:], v, 8)
	return a
}

// AddressFromBytes copies an 8 byte buffer into an Address.
func AddressFromBytes(buf []byte) (Address, error) {
	var a Address
	if len(buf) != len(a) {
		return a, fmt.Errorf("%w: need 8 bytes, got %d", ErrInvalidAddress, len(buf))
	}
	copy(a[:], buf)
	return a, nil
}

var addressDelims = strings.NewReplacer(":", "", ".", "", "-", "", " ", "")

// ParseAddress parses the text form produced by String or Format. The check
// byte is not verified; use Valid for that.
func ParseAddress(s string) (Address, error) {
	clean := addressDelims.Replace(strings.TrimSpace(s))
	if len(clean) != 16 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	buf, err := convert.FromHex(clean)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return AddressFromBytes(buf)
}

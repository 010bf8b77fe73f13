// Package convert holds the small, stateless bit and byte helpers shared by
// the 1-Wire packages: bit addressing inside byte buffers, little-endian
// integer packing and hex text conversion.
package convert

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrFormat is returned when a text form cannot be decoded.
var ErrFormat = errors.New("convert: malformed input")

// Bit reports the bit at index within buf, counting from byte offset. Bit 0
// is the least significant bit of buf[offset].
func Bit(buf []byte, offset, index int) bool {
	return buf[offset+index/8]&(1<<(uint(index)%8)) != 0
}

// SetBit writes the bit at index within buf, counting from byte offset.
func SetBit(buf []byte, offset, index int, v bool) {
	mask := byte(1 << (uint(index) % 8))
	if v {
		buf[offset+index/8] |= mask
	} else {
		buf[offset+index/8] &^= mask
	}
}

// PutUint writes the low n bytes of v into buf, least significant byte first.
func PutUint(buf []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		buf[i] = byte(v)
		v >>= 8
	}
}

// Uint reads an n byte little-endian integer from buf.
func Uint(buf []byte, n int) uint64 {
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

// Uint64Bytes returns v as an 8 byte little-endian sequence.
func Uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	PutUint(buf, v, 8)
	return buf
}

// Uint32Bytes returns v as a 4 byte little-endian sequence.
func Uint32Bytes(v uint32) []byte {
	buf := make([]byte, 4)
	PutUint(buf, uint64(v), 4)
	return buf
}

// ToHex renders buf as uppercase hex pairs joined by delim.
func ToHex(buf []byte, delim string) string {
	var b strings.Builder
	b.Grow(len(buf) * (2 + len(delim)))
	for i, v := range buf {
		if i > 0 {
			b.WriteString(delim)
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// FromHex parses hex text into bytes. Whitespace anywhere in s is ignored and
// a lone trailing digit is read as the low nibble of a final byte.
func FromHex(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if len(clean)%2 == 1 {
		clean = clean[:len(clean)-1] + "0" + clean[len(clean)-1:]
	}
	out, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrFormat, s, err)
	}
	return out, nil
}

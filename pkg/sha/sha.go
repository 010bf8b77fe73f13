// Package sha provides the single-block, 80-round digest used by SHA-capable
// 1-Wire devices to authenticate memory pages and writes.
//
// The compression runs over exactly one 64 byte block. There is no streaming
// interface: callers lay out and pad the block themselves, and may seed the
// five chaining words with a state taken from a device or a previous block.
package sha

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// BlockSize is the size of the message block consumed by Compress.
const BlockSize = 64

// State is the five 32-bit chaining words.
type State [5]uint32

// Initial is the standard starting state.
var Initial = State{0x67452301, 0xEFCDAB89, 0x98BADCFE, 0x10325476, 0xC3D2E1F0}

var roundConstants = [4]uint32{0x5A827999, 0x6ED9EBA1, 0x8F1BBCDC, 0xCA62C1D6}

// Compress runs the 80 rounds over block starting from seed and returns the
// new chaining state. It is a pure function of its inputs.
func Compress(block *[BlockSize]byte, seed State) State {
	var w [80]uint32
	for i := 0; i < 16; i++ {
		w[i] = binary.BigEndian.Uint32(block[i*4:])
	}
	for i := 16; i < 80; i++ {
		w[i] = bits.RotateLeft32(w[i-3]^w[i-8]^w[i-14]^w[i-16], 1)
	}

	a, b, c, d, e := seed[0], seed[1], seed[2], seed[3], seed[4]
	for i := 0; i < 80; i++ {
		t := bits.RotateLeft32(a, 5) + nonLinear(i, b, c, d) + e + roundConstants[i/20] + w[i]
		e = d
		d = c
		c = bits.RotateLeft32(b, 30)
		b = a
		a = t
	}

	return State{seed[0] + a, seed[1] + b, seed[2] + c, seed[3] + d, seed[4] + e}
}

func nonLinear(round int, b, c, d uint32) uint32 {
	switch {
	case round < 20:
		return (b & c) | (^b & d)
	case round < 40, round >= 60:
		return b ^ c ^ d
	default:
		return (b & c) | (b & d) | (c & d)
	}
}

// Sum compresses block from the Initial state.
func Sum(block *[BlockSize]byte) State {
	return Compress(block, Initial)
}

// Bytes returns the state as 20 big-endian bytes.
func (s State) Bytes() []byte {
	out := make([]byte, 20)
	for i, v := range s {
		binary.BigEndian.PutUint32(out[i*4:], v)
	}
	return out
}

// Pad lays msg out as a single padded block: the message, a 0x80 marker,
// zero fill and the bit length in the last eight bytes. Messages longer than
// 55 bytes do not fit in one block.
func Pad(msg []byte) (*[BlockSize]byte, error) {
	if len(msg) > BlockSize-9 {
		return nil, fmt.Errorf("sha: message of %d bytes does not fit in one block", len(msg))
	}
	var block [BlockSize]byte
	copy(block[:], msg)
	block[len(msg)] = 0x80
	binary.BigEndian.PutUint64(block[BlockSize-8:], uint64(len(msg))*8)
	return &block, nil
}

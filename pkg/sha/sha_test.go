package sha

import (
	"bytes"
	"crypto/sha1"
	"testing"
)

func TestSumMatchesStandardDigest(t *testing.T) {
	for _, msg := range []string{"", "abc", "1-Wire secret page 0", string(make([]byte, 55))} {
		block, err := Pad([]byte(msg))
		if err != nil {
			t.Fatalf("Pad(%q): %v", msg, err)
		}
		want := sha1.Sum([]byte(msg))
		if got := Sum(block).Bytes(); !bytes.Equal(got, want[:]) {
			t.Fatalf("Sum(%q) = %X, want %X", msg, got, want)
		}
	}
}

func TestCompressChainsState(t *testing.T) {
	// Two-block message: compress the second block from the state the first
	// block left behind and compare with the library digest.
	msg := bytes.Repeat([]byte{0x5A}, 64)
	var first [BlockSize]byte
	copy(first[:], msg)

	var second [BlockSize]byte
	second[0] = 0x80
	second[62] = 0x02 // 512 bits
	state := Compress(&second, Compress(&first, Initial))

	want := sha1.Sum(msg)
	if !bytes.Equal(state.Bytes(), want[:]) {
		t.Fatalf("chained digest = %X, want %X", state.Bytes(), want)
	}
}

func TestCompressIsPure(t *testing.T) {
	block, _ := Pad([]byte("abc"))
	seed := State{1, 2, 3, 4, 5}
	a := Compress(block, seed)
	b := Compress(block, seed)
	if a != b {
		t.Fatalf("Compress not deterministic: %v vs %v", a, b)
	}
	if a == Sum(block) {
		t.Fatalf("seeded state should differ from the standard start")
	}
}

func TestPadRejectsLongMessage(t *testing.T) {
	if _, err := Pad(make([]byte, 56)); err == nil {
		t.Fatalf("expected error for 56 byte message")
	}
}

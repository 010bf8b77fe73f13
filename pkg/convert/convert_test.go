package convert

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestBitAccess(t *testing.T) {
	buf := []byte{0x00, 0x01, 0x80}
	if !Bit(buf, 1, 0) {
		t.Fatalf("bit 0 of byte 1 should be set")
	}
	if !Bit(buf, 0, 23) {
		t.Fatalf("bit 23 should be set")
	}
	if Bit(buf, 0, 1) {
		t.Fatalf("bit 1 should be clear")
	}

	SetBit(buf, 0, 3, true)
	SetBit(buf, 1, 0, false)
	if !bytes.Equal(buf, []byte{0x08, 0x00, 0x80}) {
		t.Fatalf("buf = %X, want 080080", buf)
	}
}

func TestUintRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		n := rng.Uint64()
		if got := Uint(Uint64Bytes(n), 8); got != n {
			t.Fatalf("round trip %#x -> %#x", n, got)
		}
		m := rng.Uint32()
		if got := Uint(Uint32Bytes(m), 4); got != uint64(m) {
			t.Fatalf("round trip %#x -> %#x", m, got)
		}
	}

	if got := Uint64Bytes(0x0102030405060708); !bytes.Equal(got, []byte{8, 7, 6, 5, 4, 3, 2, 1}) {
		t.Fatalf("little-endian layout wrong: %X", got)
	}
}

func TestHexRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		buf := make([]byte, rng.Intn(40))
		rng.Read(buf)
		for _, delim := range []string{"", " ", ":"} {
			text := ToHex(buf, delim)
			if delim == ":" {
				// FromHex only tolerates whitespace
				continue
			}
			got, err := FromHex(text)
			if err != nil {
				t.Fatalf("FromHex(%q): %v", text, err)
			}
			if !bytes.Equal(got, buf) {
				t.Fatalf("FromHex(ToHex(%X)) = %X", buf, got)
			}
		}
	}
}

func TestFromHex(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"", []byte{}},
		{"0A", []byte{0x0A}},
		{" 0a 1b\t2C\n", []byte{0x0A, 0x1B, 0x2C}},
		{"ABC", []byte{0xAB, 0x0C}},
		{"F", []byte{0x0F}},
	}
	for _, tc := range tests {
		got, err := FromHex(tc.in)
		if err != nil {
			t.Fatalf("FromHex(%q): %v", tc.in, err)
		}
		if !bytes.Equal(got, tc.want) {
			t.Errorf("FromHex(%q) = %X, want %X", tc.in, got, tc.want)
		}
	}

	if _, err := FromHex("0G"); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

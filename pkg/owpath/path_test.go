package owpath

import (
	"errors"
	"testing"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/onewire"
)

var (
	couplerA = onewire.NewAddress(onewire.FamilyCoupler, 1)
	couplerB = onewire.NewAddress(onewire.FamilyCoupler, 2)
)

func TestPathAddCopies(t *testing.T) {
	base := New().Add(couplerA, 0)
	left := base.Add(couplerB, 0)
	right := base.Add(couplerB, 1)

	if base.Len() != 1 || left.Len() != 2 || right.Len() != 2 {
		t.Fatalf("lengths = %d %d %d", base.Len(), left.Len(), right.Len())
	}
	if left.Elements()[1].Channel != 0 || right.Elements()[1].Channel != 1 {
		t.Fatalf("extending a shared prefix leaked between paths")
	}
	elems := left.Elements()
	elems[0].Channel = 9
	if left.Elements()[0].Channel != 0 {
		t.Fatalf("Elements must return a copy")
	}
	if left.Equal(right) || !left.Equal(New(left.Elements()...)) {
		t.Fatalf("Equal is wrong")
	}
}

func TestPathString(t *testing.T) {
	if got := New().String(); got != "/" {
		t.Fatalf("root String = %q", got)
	}
	p := New().Add(couplerA, 0).Add(couplerB, 1)
	want := "/" + couplerA.String() + "_0/" + couplerB.String() + "_1"
	if got := p.String(); got != want {
		t.Fatalf("String = %q, want %q", got, want)
	}
}

func TestParse(t *testing.T) {
	p := New().Add(couplerA, 0).Add(couplerB, 1)
	tests := []struct {
		name string
		in   string
		want Path
	}{
		{"empty", "", New()},
		{"root", "/", New()},
		{"round trip", p.String(), p},
		{"lower case", "/1f0100000000008e_0", New().Add(couplerA, 0)},
		{"spaces", " /1F0100000000008E_1 ", New().Add(couplerA, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}

	for _, bad := range []string{
		"1F0100000000008E_0",
		"/1F0100000000008E",
		"/1F0100000000008E_",
		"/1F01_0",
		"/1F0100000000008F_0",
		"/1F0100000000008E_0/",
	} {
		if _, err := Parse(bad); !errors.Is(err, onewire.ErrSetup) {
			t.Fatalf("Parse(%q) error = %v, want setup failure", bad, err)
		}
	}
}

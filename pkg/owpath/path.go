// Package owpath routes the bus through branch couplers so devices on
// downstream segments become reachable.
package owpath

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/onewire"
)

// Element is one hop: a branch device and the channel to switch on.
type Element struct {
	Branch  onewire.Address
	Channel int
}

func (e Element) String() string {
	return fmt.Sprintf("%s_%d", e.Branch, e.Channel)
}

// Path is an ordered route from the bus root. Paths are values; Add returns
// a new path and never changes the receiver.
type Path struct {
	elems []Element
}

// New returns a path through elems.
func New(elems ...Element) Path {
	return Path{elems: append([]Element(nil), elems...)}
}

// Add returns p extended by one hop.
func (p Path) Add(branch onewire.Address, channel int) Path {
	out := make([]Element, len(p.elems), len(p.elems)+1)
	copy(out, p.elems)
	return Path{elems: append(out, Element{Branch: branch, Channel: channel})}
}

// Elements returns a copy of the hops.
func (p Path) Elements() []Element { return append([]Element(nil), p.elems...) }

// Len is the number of hops.
func (p Path) Len() int { return len(p.elems) }

// IsRoot reports whether p is the empty path.
func (p Path) IsRoot() bool { return len(p.elems) == 0 }

// Equal reports whether p and q take the same hops.
func (p Path) Equal(q Path) bool {
	if len(p.elems) != len(q.elems) {
		return false
	}
	for i := range p.elems {
		if p.elems[i] != q.elems[i] {
			return false
		}
	}
	return true
}

// String renders p as "/" for the root or "/ADDR_CH/ADDR_CH..." otherwise.
func (p Path) String() string {
	if p.IsRoot() {
		return "/"
	}
	var sb strings.Builder
	for _, e := range p.elems {
		sb.WriteByte('/')
		sb.WriteString(e.String())
	}
	return sb.String()
}

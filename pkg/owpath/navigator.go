package owpath

import (
	"context"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/onewire"
)

// Navigator opens and closes paths on one adapter.
type Navigator struct {
	adapter  *onewire.Adapter
	switches SwitchFactory
}

// NewNavigator returns a navigator that resolves branch devices with f, or
// with Couplers when f is nil.
func NewNavigator(a *onewire.Adapter, f SwitchFactory) *Navigator {
	if f == nil {
		f = Couplers
	}
	return &Navigator{adapter: a, switches: f}
}

// Open switches on every hop of p from the root outwards, one read, latch
// and write per hop. There is no rollback: when a hop fails the hops before
// it stay open and the caller must Close them. Opening the root path only
// resets the bus, so a following search without reset starts clean.
//
// When h does not hold the adapter, the whole walk runs inside one session
// taken for it.
func (n *Navigator) Open(h onewire.Holder, p Path) error {
	h, done, err := n.hold(h)
	if err != nil {
		return err
	}
	defer done()

	if p.IsRoot() {
		_, err := n.adapter.Reset(h)
		return err
	}
	for i, e := range p.elems {
		if err := n.latch(h, e, true); err != nil {
			return fmt.Errorf("open hop %d (%s): %w", i, e, err)
		}
	}
	return nil
}

// Close switches off every hop of p, last hop first.
func (n *Navigator) Close(h onewire.Holder, p Path) error {
	h, done, err := n.hold(h)
	if err != nil {
		return err
	}
	defer done()

	for i := len(p.elems) - 1; i >= 0; i-- {
		e := p.elems[i]
		if err := n.latch(h, e, false); err != nil {
			return fmt.Errorf("close hop %d (%s): %w", i, e, err)
		}
	}
	return nil
}

// hold returns a holder that owns the adapter for the rest of a walk, and
// the func that gives the session back.
func (n *Navigator) hold(h onewire.Holder) (onewire.Holder, func(), error) {
	if !h.IsZero() && n.adapter.HoldsExclusive(h) {
		return h, func() {}, nil
	}
	if h.IsZero() {
		h = onewire.NewHolder()
	}
	if err := n.adapter.BeginExclusive(context.Background(), h); err != nil {
		return h, nil, err
	}
	return h, func() { n.adapter.EndExclusive(h) }, nil
}

func (n *Navigator) latch(h onewire.Holder, e Element, on bool) error {
	sw, err := n.switches(n.adapter, e.Branch)
	if err != nil {
		return err
	}
	if e.Channel < 0 || e.Channel >= sw.Channels() {
		return fmt.Errorf("%w: channel %d of %d", onewire.ErrSetup, e.Channel, sw.Channels())
	}
	state, err := sw.ReadDevice(h)
	if err != nil {
		return err
	}
	sw.SetLatchState(e.Channel, on, on && sw.HasSmartOn(), state)
	return sw.WriteDevice(h, state)
}

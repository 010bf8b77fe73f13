package onewire

import (
	"bytes"
	"iter"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/convert"
)

// Filter returns a copy of the active search filter.
func (a *Adapter) Filter() SearchFilter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return SearchFilter{
		Include:   append([]byte(nil), a.filter.Include...),
		Exclude:   append([]byte(nil), a.filter.Exclude...),
		AlarmOnly: a.filter.AlarmOnly,
		NoReset:   a.filter.NoReset,
	}
}

// SetFilter replaces the active search filter.
func (a *Adapter) SetFilter(f SearchFilter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter = f
}

// TargetFamily restricts discovery to the given family codes.
func (a *Adapter) TargetFamily(families ...byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter.Include = append([]byte(nil), families...)
}

// ExcludeFamily hides the given family codes from discovery.
func (a *Adapter) ExcludeFamily(families ...byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter.Exclude = append([]byte(nil), families...)
}

// TargetAllFamilies clears both family lists.
func (a *Adapter) TargetAllFamilies() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter.Include = nil
	a.filter.Exclude = nil
}

// SetSearchOnlyAlarming makes discovery report only alarming devices.
func (a *Adapter) SetSearchOnlyAlarming() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter.AlarmOnly = true
}

// SetNoResetSearch makes discovery start without a bus reset.
func (a *Adapter) SetNoResetSearch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter.NoReset = true
}

// SetSearchAllDevices clears the alarm-only and no-reset flags.
func (a *Adapter) SetSearchAllDevices() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter.AlarmOnly = false
	a.filter.NoReset = false
}

// nextLocked steps the backend search until a device passes the filter or
// the walk ends. Filter rejects are skipped silently.
func (a *Adapter) nextLocked(b Backend) (Address, bool, error) {
	for {
		found, err := b.Search(&a.search, a.filter.Command(), a.filter.NoReset)
		if err != nil {
			return Address{}, false, ioError("search", err)
		}
		if !found {
			return Address{}, false, nil
		}
		if a.filter.Valid(a.search.ROM.Family()) {
			return a.search.ROM, true, nil
		}
	}
}

func (a *Adapter) step(h Holder, first bool) (Address, bool, error) {
	var (
		addr  Address
		found bool
	)
	err := a.with(h, func(b Backend) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		if first {
			a.search.Reset()
		}
		var err error
		addr, found, err = a.nextLocked(b)
		return err
	})
	return addr, found, err
}

// First restarts discovery at the tree root and returns the first device
// that passes the filter. found is false when no such device is on the bus.
func (a *Adapter) First(h Holder) (addr Address, found bool, err error) {
	return a.step(h, true)
}

// Next continues discovery from where the previous First or Next stopped.
// found is false once every device has been reported.
func (a *Adapter) Next(h Holder) (addr Address, found bool, err error) {
	return a.step(h, false)
}

// SearchFamilyFirst restarts discovery positioned at family, so the first
// device reported has that family code or the next higher one that passes
// the filter.
func (a *Adapter) SearchFamilyFirst(h Holder, family byte) (Address, bool, error) {
	var (
		addr  Address
		found bool
	)
	err := a.with(h, func(b Backend) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.search.TargetSetup(family)
		var err error
		addr, found, err = a.nextLocked(b)
		return err
	})
	return addr, found, err
}

// SkipFamily makes the next Next skip the rest of the family last reported.
func (a *Adapter) SkipFamily() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.search.SkipFamily()
}

// Address returns the device most recently reported by discovery.
func (a *Adapter) Address() Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.search.ROM
}

// Devices runs one complete walk inside a single session and returns every
// device that passes the filter.
func (a *Adapter) Devices(h Holder) ([]Address, error) {
	var out []Address
	err := a.with(h, func(b Backend) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.search.Reset()
		for {
			addr, found, err := a.nextLocked(b)
			if err != nil {
				return err
			}
			if !found {
				return nil
			}
			out = append(out, addr)
		}
	})
	return out, err
}

// All iterates over one walk. Each step is its own search call, so other
// holders may use the adapter between steps unless h holds it.
func (a *Adapter) All(h Holder) iter.Seq2[Address, error] {
	return func(yield func(Address, error) bool) {
		addr, found, err := a.First(h)
		for {
			if err != nil {
				yield(Address{}, err)
				return
			}
			if !found || !yield(addr, nil) {
				return
			}
			addr, found, err = a.Next(h)
		}
	}
}

// presenceRequest builds the 24 byte block of 64 search triplets. Each
// triplet reads two bits and writes the address bit, steering the search
// straight down addr's branch.
func presenceRequest(addr Address) []byte {
	pkt := bytes.Repeat([]byte{0xFF}, 24)
	for i := 0; i < 64; i++ {
		convert.SetBit(pkt, 0, (i+1)*3-1, addr.Bit(i))
	}
	return pkt
}

// presenceAgrees inspects the last 8 triplets, the ones covering the CRC
// byte. A 1/1 read means nothing answered. Otherwise every triplet must read
// the asserted bit followed by its complement.
func presenceAgrees(addr Address, pkt []byte) bool {
	good := 0
	for i, n := 168, 56; i < 192; i, n = i+3, n+1 {
		bit := convert.Bit(pkt, 0, i)
		cmp := convert.Bit(pkt, 0, i+1)
		if bit && cmp {
			return false
		}
		if addr.Bit(n) {
			if bit && !cmp {
				good++
			}
		} else if !bit && cmp {
			good++
		}
	}
	return good == 8
}

func (a *Adapter) verify(h Holder, addr Address, cmd byte) (bool, error) {
	var present bool
	err := a.with(h, func(b Backend) error {
		r, err := resetBackend(b)
		if err != nil {
			return err
		}
		if r == ResetNoPresence {
			return nil
		}
		if err := sendByte(b, cmd); err != nil {
			return err
		}
		pkt := presenceRequest(addr)
		if err := b.Block(pkt); err != nil {
			return ioError("presence block", err)
		}
		present = presenceAgrees(addr, pkt)
		return nil
	})
	return present, err
}

// IsPresent confirms that addr answers on the bus without running a full
// discovery walk.
func (a *Adapter) IsPresent(h Holder, addr Address) (bool, error) {
	return a.verify(h, addr, CmdSearchROM)
}

// IsAlarming confirms that addr is on the bus and in an alarm state.
func (a *Adapter) IsAlarming(h Holder, addr Address) (bool, error) {
	return a.verify(h, addr, CmdAlarmSearch)
}

// Select resets the bus and addresses addr with Match ROM. It reports
// whether any device answered the reset.
func (a *Adapter) Select(h Holder, addr Address) (bool, error) {
	var ok bool
	err := a.with(h, func(b Backend) error {
		r, err := resetBackend(b)
		if err != nil {
			return err
		}
		block := make([]byte, 9)
		block[0] = CmdMatchROM
		copy(block[1:], addr[:])
		if err := b.Block(block); err != nil {
			return ioError("select", err)
		}
		ok = r == ResetPresence || r == ResetAlarm
		return nil
	})
	return ok, err
}

// AssertSelect is Select that fails with ErrDeviceNotFound when nothing
// answered.
func (a *Adapter) AssertSelect(h Holder, addr Address) error {
	ok, err := a.Select(h, addr)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDeviceNotFound
	}
	return nil
}

package onewire

import (
	"fmt"
	"slices"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/convert"
)

// ROM function commands.
const (
	CmdSearchROM      = 0xF0
	CmdAlarmSearch    = 0xEC
	CmdMatchROM       = 0x55
	CmdSkipROM        = 0xCC
	CmdReadROM        = 0x33
	CmdOverdriveSkip  = 0x3C
	CmdOverdriveMatch = 0x69
)

// SearchState is the tree-walk position carried between search steps.
type SearchState struct {
	ROM                   Address
	LastDiscrepancy       int
	LastFamilyDiscrepancy int
	LastDevice            bool
}

// Reset returns the walk to the tree root.
func (s *SearchState) Reset() { *s = SearchState{} }

// TargetSetup positions the walk so the next step finds the first device
// whose family code is family, or the next higher one.
func (s *SearchState) TargetSetup(family byte) {
	*s = SearchState{LastDiscrepancy: 64}
	s.ROM[0] = family
}

// SkipFamily positions the walk past every remaining device of the family
// last found.
func (s *SearchState) SkipFamily() {
	s.LastDiscrepancy = s.LastFamilyDiscrepancy
	s.LastFamilyDiscrepancy = 0
	if s.LastDiscrepancy == 0 {
		s.LastDevice = true
	}
}

// SearchFilter restricts which devices discovery reports.
type SearchFilter struct {
	Include   []byte // family codes to report; empty reports all
	Exclude   []byte // family codes never reported; wins over Include
	AlarmOnly bool   // only devices in an alarm state answer
	NoReset   bool   // start the search without a bus reset
}

// Valid reports whether a device of family passes the filter.
func (f SearchFilter) Valid(family byte) bool {
	if slices.Contains(f.Exclude, family) {
		return false
	}
	return len(f.Include) == 0 || slices.Contains(f.Include, family)
}

// Command returns the ROM command the filter searches with.
func (f SearchFilter) Command() byte {
	if f.AlarmOnly {
		return CmdAlarmSearch
	}
	return CmdSearchROM
}

// TripletSearch performs one step of the directed search with single-bit
// triplets: two reads and a write per address bit. Backends without a search
// accelerator use it to implement Backend.Search.
//
// It returns false once the walk is exhausted or nothing answers, and
// resets state in that case so the next call starts from the root.
func TripletSearch(bus Bus, state *SearchState, cmd byte, noReset bool) (bool, error) {
	if state.LastDevice {
		state.Reset()
		return false, nil
	}

	if !noReset {
		r, err := bus.Reset()
		if err != nil {
			return false, err
		}
		switch r {
		case ResetShort:
			return false, ErrShort
		case ResetNoPresence:
			state.Reset()
			return false, nil
		}
	}

	if got, err := bus.TouchByte(cmd); err != nil {
		return false, err
	} else if got != cmd {
		return false, fmt.Errorf("%w: search command %02X read back %02X", ErrEchoMismatch, cmd, got)
	}

	rom := state.ROM
	lastZero := 0
	familyZero := state.LastFamilyDiscrepancy
	for id := 1; id <= 64; id++ {
		bit, err := bus.TouchBit(true)
		if err != nil {
			return false, err
		}
		cmp, err := bus.TouchBit(true)
		if err != nil {
			return false, err
		}
		if bit && cmp {
			state.Reset()
			return false, nil
		}

		dir := bit
		if bit == cmp {
			switch {
			case id < state.LastDiscrepancy:
				dir = rom.Bit(id - 1)
			default:
				dir = id == state.LastDiscrepancy
			}
			if !dir {
				lastZero = id
				if lastZero < 9 {
					familyZero = lastZero
				}
			}
		}

		convert.SetBit(rom[:], 0, id-1, dir)
		if _, err := bus.TouchBit(dir); err != nil {
			return false, err
		}
	}

	if !rom.Valid() {
		state.Reset()
		return false, fmt.Errorf("%w: search produced %s", ErrCRC, rom)
	}

	state.ROM = rom
	state.LastDiscrepancy = lastZero
	state.LastFamilyDiscrepancy = familyZero
	state.LastDevice = lastZero == 0
	return true, nil
}

package onewire

import "fmt"

// DeviceFunction is the byte-level behaviour of a simulated device once it
// has been selected by a ROM command.
type DeviceFunction interface {
	// Drive returns the byte the device puts on the bus in the next byte
	// slot, 0xFF when it is only listening.
	Drive() byte
	// Receive is called with the byte observed on the wire.
	Receive(b byte)
	// Reset is called on every bus reset.
	Reset()
}

// Brancher is implemented by functions that gate downstream bus segments.
type Brancher interface {
	Downstream() []*SimDevice
}

// SimDevice is one device on a simulated bus.
type SimDevice struct {
	Address  Address
	Alarm    bool
	Function DeviceFunction
}

type simMode uint8

const (
	simIdle simMode = iota
	simCommand
	simSearch
	simMatch
	simReadROM
	simFunction
)

// Simulator is a bit-level model of a wired-AND 1-Wire bus. Devices answer
// search triplets, Match ROM, Skip ROM and Read ROM; selected devices then
// exchange bytes through their DeviceFunction.
type Simulator struct {
	Devices []*SimDevice
	Caps    Capabilities
	Shorted bool

	port     string
	selected bool
	speed    Speed
	power    PowerLevel

	mode     simMode
	parts    []*SimDevice
	index    int // address bit during ROM phases
	phase    int // triplet slot during search
	acc      byte
	nbits    int
	drive    byte
	resets   int
	commands []byte
}

// NewSimulator returns a simulator already bound to the "sim" port.
func NewSimulator(devices ...*SimDevice) *Simulator {
	return &Simulator{
		Devices:  devices,
		Caps:     Capabilities{Overdrive: true, FlexSpeed: true, StrongPower: true, Break: true},
		port:     SimPort,
		selected: true,
	}
}

// SimPort is the port name of the built-in simulated bus.
const SimPort = "sim"

func (s *Simulator) Name() string               { return "Simulator" }
func (s *Simulator) PortName() string           { return s.port }
func (s *Simulator) PortType() string           { return "in-memory bus model" }
func (s *Simulator) Capabilities() Capabilities { return s.Caps }

// PortNames lists the built-in bus. Any other port name is taken as the path
// of a scenario file.
func (s *Simulator) PortNames() ([]string, error) { return []string{SimPort}, nil }

// SelectPort binds the built-in bus or loads a scenario file.
func (s *Simulator) SelectPort(name string) error {
	if name == SimPort {
		if len(s.Devices) == 0 {
			s.Devices = DemoBus()
		}
	} else {
		sc, err := LoadScenarioFile(name)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPortNotSelectable, name, err)
		}
		s.Devices = sc.Devices
		if sc.Capabilities != nil {
			s.Caps = *sc.Capabilities
		}
	}
	s.port = name
	s.selected = true
	s.mode = simIdle
	return nil
}

func (s *Simulator) FreePort() error {
	s.selected = false
	return nil
}

func (s *Simulator) Detect() (bool, error) {
	if !s.selected {
		return false, ErrPortNotSelected
	}
	return true, nil
}

// Resets reports how many bus resets have been issued.
func (s *Simulator) Resets() int { return s.resets }

// Commands returns the ROM command bytes seen since construction.
func (s *Simulator) Commands() []byte { return append([]byte(nil), s.commands...) }

// Power returns the current power level.
func (s *Simulator) Power() PowerLevel { return s.power }

// active collects the devices reachable from the root through any coupler
// channels that are switched on.
func (s *Simulator) active() []*SimDevice {
	var out []*SimDevice
	var walk func([]*SimDevice)
	walk = func(devs []*SimDevice) {
		for _, d := range devs {
			out = append(out, d)
			if br, ok := d.Function.(Brancher); ok {
				walk(br.Downstream())
			}
		}
	}
	walk(s.Devices)
	return out
}

func (s *Simulator) Reset() (ResetResult, error) {
	if !s.selected {
		return ResetNoPresence, ErrPortNotSelected
	}
	s.resets++
	if s.Shorted {
		s.mode = simIdle
		return ResetShort, nil
	}

	devs := s.active()
	for _, d := range devs {
		if d.Function != nil {
			d.Function.Reset()
		}
	}
	s.mode = simCommand
	s.parts = devs
	s.nbits = 0
	s.acc = 0

	if len(devs) == 0 {
		s.mode = simIdle
		return ResetNoPresence, nil
	}
	for _, d := range devs {
		if d.Alarm {
			return ResetAlarm, nil
		}
	}
	return ResetPresence, nil
}

// wiredAND returns the level of address bit i driven by every participant,
// or its complement when inverted is set. An empty bus floats high.
func (s *Simulator) wiredAND(i int, inverted bool) bool {
	for _, d := range s.parts {
		if d.Address.Bit(i) == inverted {
			return false
		}
	}
	return true
}

func (s *Simulator) keep(i int, bit bool) {
	kept := s.parts[:0]
	for _, d := range s.parts {
		if d.Address.Bit(i) == bit {
			kept = append(kept, d)
		}
	}
	s.parts = kept
}

func (s *Simulator) romDone() {
	if s.index == 64 {
		s.enterFunction()
	}
}

func (s *Simulator) enterFunction() {
	s.mode = simFunction
	s.nbits = 0
	s.acc = 0
}

func (s *Simulator) dispatch(cmd byte) {
	s.commands = append(s.commands, cmd)
	s.index = 0
	s.phase = 0
	switch cmd {
	case CmdSearchROM:
		s.mode = simSearch
	case CmdAlarmSearch:
		s.mode = simSearch
		alarmed := s.parts[:0]
		for _, d := range s.parts {
			if d.Alarm {
				alarmed = append(alarmed, d)
			}
		}
		s.parts = alarmed
	case CmdMatchROM, CmdOverdriveMatch:
		s.mode = simMatch
	case CmdReadROM:
		s.mode = simReadROM
	case CmdSkipROM, CmdOverdriveSkip:
		s.enterFunction()
	default:
		s.mode = simIdle
	}
}

func (s *Simulator) TouchBit(bit bool) (bool, error) {
	if !s.selected {
		return false, ErrPortNotSelected
	}
	if s.power == PowerBreak {
		return false, nil
	}

	switch s.mode {
	case simCommand:
		if bit {
			s.acc |= 1 << s.nbits
		}
		s.nbits++
		if s.nbits == 8 {
			s.dispatch(s.acc)
		}
		return bit, nil

	case simSearch:
		var wire bool
		switch s.phase {
		case 0:
			wire = bit && s.wiredAND(s.index, false)
		case 1:
			wire = bit && s.wiredAND(s.index, true)
		default:
			wire = bit
			s.keep(s.index, bit)
			s.index++
		}
		s.phase = (s.phase + 1) % 3
		s.romDone()
		return wire, nil

	case simMatch:
		s.keep(s.index, bit)
		s.index++
		s.romDone()
		return bit, nil

	case simReadROM:
		wire := bit && s.wiredAND(s.index, false)
		s.index++
		s.romDone()
		return wire, nil

	case simFunction:
		if s.nbits == 0 {
			s.drive = 0xFF
			for _, d := range s.parts {
				if d.Function != nil {
					s.drive &= d.Function.Drive()
				}
			}
		}
		wire := bit && s.drive&(1<<s.nbits) != 0
		if wire {
			s.acc |= 1 << s.nbits
		}
		s.nbits++
		if s.nbits == 8 {
			for _, d := range s.parts {
				if d.Function != nil {
					d.Function.Receive(s.acc)
				}
			}
			s.nbits = 0
			s.acc = 0
		}
		return wire, nil
	}
	return bit, nil
}

func (s *Simulator) TouchByte(b byte) (byte, error) {
	var out byte
	for i := 0; i < 8; i++ {
		got, err := s.TouchBit(b&(1<<i) != 0)
		if err != nil {
			return 0, err
		}
		if got {
			out |= 1 << i
		}
	}
	return out, nil
}

func (s *Simulator) Block(buf []byte) error { return BlockByBytes(s, buf) }

func (s *Simulator) Search(state *SearchState, cmd byte, noReset bool) (bool, error) {
	return TripletSearch(s, state, cmd, noReset)
}

func (s *Simulator) Speed() Speed { return s.speed }

func (s *Simulator) SetSpeed(sp Speed) error {
	if !s.Caps.Supports(sp) {
		return fmt.Errorf("%w: %s speed", ErrUnsupported, sp)
	}
	s.speed = sp
	return nil
}

func (s *Simulator) SetPowerLevel(level PowerLevel, _ PowerCondition) error {
	if !s.Caps.Delivers(level) {
		return fmt.Errorf("%w: %s", ErrUnsupported, level)
	}
	s.power = level
	return nil
}

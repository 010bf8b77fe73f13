package onewire

import "fmt"

// ResetResult is the outcome of a bus reset.
type ResetResult uint8

const (
	ResetNoPresence ResetResult = iota
	ResetPresence
	ResetAlarm
	ResetShort
)

func (r ResetResult) String() string {
	switch r {
	case ResetNoPresence:
		return "no presence"
	case ResetPresence:
		return "presence"
	case ResetAlarm:
		return "alarm presence"
	case ResetShort:
		return "short"
	}
	return fmt.Sprintf("ResetResult(%d)", r)
}

// Speed is the bus timing mode.
type Speed uint8

const (
	SpeedRegular Speed = iota
	SpeedFlex
	SpeedOverdrive
	SpeedHyperdrive
)

func (s Speed) String() string {
	switch s {
	case SpeedRegular:
		return "regular"
	case SpeedFlex:
		return "flex"
	case SpeedOverdrive:
		return "overdrive"
	case SpeedHyperdrive:
		return "hyperdrive"
	}
	return fmt.Sprintf("Speed(%d)", s)
}

// PowerLevel is the pull-up or pulse state of the bus.
type PowerLevel uint8

const (
	PowerNormal PowerLevel = iota
	PowerStrongPullup
	PowerBreak
	PowerProgram
)

func (p PowerLevel) String() string {
	switch p {
	case PowerNormal:
		return "normal"
	case PowerStrongPullup:
		return "strong pullup"
	case PowerBreak:
		return "break"
	case PowerProgram:
		return "program pulse"
	}
	return fmt.Sprintf("PowerLevel(%d)", p)
}

// PowerCondition says when a power level change takes effect.
type PowerCondition uint8

const (
	PowerNow PowerCondition = iota
	PowerAfterNextBit
	PowerAfterNextByte
)

// Capabilities lists the optional features an adapter can drive.
type Capabilities struct {
	Overdrive   bool
	Hyperdrive  bool
	FlexSpeed   bool
	Program     bool // 12V EPROM programming pulse
	StrongPower bool // strong pull-up power delivery
	SmartPower  bool // power delivery that tracks the bus
	Break       bool
}

// Supports reports whether speed s can be selected.
func (c Capabilities) Supports(s Speed) bool {
	switch s {
	case SpeedRegular:
		return true
	case SpeedFlex:
		return c.FlexSpeed
	case SpeedOverdrive:
		return c.Overdrive
	case SpeedHyperdrive:
		return c.Hyperdrive
	}
	return false
}

// Delivers reports whether power level p can be entered.
func (c Capabilities) Delivers(p PowerLevel) bool {
	switch p {
	case PowerNormal:
		return true
	case PowerStrongPullup:
		return c.StrongPower
	case PowerBreak:
		return c.Break
	case PowerProgram:
		return c.Program
	}
	return false
}

// AdapterInfo describes an adapter instance.
type AdapterInfo struct {
	Name         string
	Port         string
	PortType     string
	Capabilities Capabilities
}

// Bus is the bit-level subset of the transport. It is all a software search
// needs.
type Bus interface {
	Reset() (ResetResult, error)
	TouchBit(bit bool) (bool, error)
	TouchByte(b byte) (byte, error)
}

// Backend is the contract every adapter kind implements, hardware or
// simulated. Methods are called with the adapter's session held; backends do
// no locking of their own.
type Backend interface {
	Bus

	Name() string
	PortName() string
	PortType() string
	Capabilities() Capabilities

	// PortNames lists the platform identifiers this backend can bind to.
	PortNames() ([]string, error)
	// SelectPort binds the backend to a port. It fails with
	// ErrPortNotSelectable or ErrPortInUse.
	SelectPort(name string) error
	// FreePort releases the port. Freeing an unbound backend is a no-op.
	FreePort() error
	// Detect reports whether an adapter answers on the selected port.
	Detect() (bool, error)

	// Block exchanges buf with the bus in place. Positions meant as pure
	// reads must hold 0xFF on entry.
	Block(buf []byte) error
	// Search runs one step of the directed search and advances state.
	Search(state *SearchState, cmd byte, noReset bool) (bool, error)

	Speed() Speed
	SetSpeed(s Speed) error
	SetPowerLevel(level PowerLevel, cond PowerCondition) error
}

// Unsupported is embedded by backends to get the fail-closed defaults: every
// capability-dependent call reports ErrUnsupported unless the backend
// overrides it.
type Unsupported struct{}

// Capabilities reports no optional features.
func (Unsupported) Capabilities() Capabilities { return Capabilities{} }

// Speed reports regular speed.
func (Unsupported) Speed() Speed { return SpeedRegular }

// SetSpeed accepts only regular speed.
func (Unsupported) SetSpeed(s Speed) error {
	if s == SpeedRegular {
		return nil
	}
	return fmt.Errorf("%w: %s speed", ErrUnsupported, s)
}

// SetPowerLevel accepts only normal power.
func (Unsupported) SetPowerLevel(level PowerLevel, _ PowerCondition) error {
	if level == PowerNormal {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, level)
}

// BlockByBytes implements Backend.Block on top of TouchByte for backends
// without a native block transfer.
func BlockByBytes(bus Bus, buf []byte) error {
	for i, b := range buf {
		got, err := bus.TouchByte(b)
		if err != nil {
			return err
		}
		buf[i] = got
	}
	return nil
}

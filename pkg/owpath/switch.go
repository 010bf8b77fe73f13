package owpath

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/onewire"
)

// Switch is the driver contract of a branch device. State is an opaque
// buffer read from the device, edited in memory and written back.
type Switch interface {
	// ReadDevice reads the current switch state.
	ReadDevice(h onewire.Holder) ([]byte, error)
	// WriteDevice applies state to the device.
	WriteDevice(h onewire.Holder, state []byte) error
	// LatchState reports whether channel is switched on in state.
	LatchState(channel int, state []byte) bool
	// SetLatchState edits state to switch channel on or off. smart asks for
	// a switch that first probes the branch, where the device offers one.
	SetLatchState(channel int, on, smart bool, state []byte)
	// Channels is the number of switchable channels.
	Channels() int
	// HasSmartOn reports whether the device supports smart switching.
	HasSmartOn() bool
}

// SwitchFactory returns the driver for the branch device at addr.
type SwitchFactory func(a *onewire.Adapter, addr onewire.Address) (Switch, error)

// Couplers is the default SwitchFactory. It knows the DS2409 coupler.
func Couplers(a *onewire.Adapter, addr onewire.Address) (Switch, error) {
	if addr.Family() != onewire.FamilyCoupler {
		return nil, fmt.Errorf("%w: %s is not a branch coupler", onewire.ErrUnsupported, addr)
	}
	return NewCoupler(a, addr), nil
}

// Coupler channels.
const (
	ChannelMain = 0
	ChannelAux  = 1
)

// Coupler drives a DS2409 two channel branch coupler. Its state buffer holds
// the status byte followed by the switch command WriteDevice will send.
type Coupler struct {
	adapter *onewire.Adapter
	addr    onewire.Address
}

// NewCoupler returns a driver for the coupler at addr.
func NewCoupler(a *onewire.Adapter, addr onewire.Address) *Coupler {
	return &Coupler{adapter: a, addr: addr}
}

// Address returns the coupler's ROM address.
func (c *Coupler) Address() onewire.Address { return c.addr }

func (c *Coupler) Channels() int    { return 2 }
func (c *Coupler) HasSmartOn() bool { return true }

// ReadDevice reads the status byte with a status read/write command. The
// coupler sends the status twice and both copies must agree. A status of
// 0xFF is an idle bus: nothing answered the selection.
func (c *Coupler) ReadDevice(h onewire.Holder) ([]byte, error) {
	if err := c.adapter.AssertSelect(h, c.addr); err != nil {
		return nil, err
	}
	buf := []byte{onewire.CouplerStatusRW, 0xFF, 0xFF, 0xFF}
	if err := c.adapter.ExchangeBlock(h, buf, 0, len(buf)); err != nil {
		return nil, err
	}
	if buf[2] != buf[3] {
		return nil, fmt.Errorf("%w: coupler %s status %02X/%02X", onewire.ErrCRC, c.addr, buf[2], buf[3])
	}
	if buf[2] == 0xFF {
		return nil, fmt.Errorf("%w: coupler %s", onewire.ErrDeviceNotFound, c.addr)
	}
	return []byte{buf[2], 0}, nil
}

func channelBit(channel int) byte {
	if channel == ChannelAux {
		return onewire.CouplerAuxOn
	}
	return onewire.CouplerMainOn
}

func (c *Coupler) LatchState(channel int, state []byte) bool {
	return state[0]&channelBit(channel) != 0
}

// SetLatchState picks the switch command. Only one channel can be on, so
// switching a channel off turns every line off.
func (c *Coupler) SetLatchState(channel int, on, smart bool, state []byte) {
	switch {
	case !on:
		state[0] = 0
		state[1] = onewire.CouplerAllOff
	case channel == ChannelAux:
		state[0] = onewire.CouplerAuxOn
		state[1] = onewire.CouplerSmartOnAux
	case smart:
		state[0] = onewire.CouplerMainOn
		state[1] = onewire.CouplerSmartOnMain
	default:
		state[0] = onewire.CouplerMainOn
		state[1] = onewire.CouplerDirectMain
	}
}

// WriteDevice sends the command chosen by SetLatchState and checks the
// confirmation byte. A state with no command is left alone.
func (c *Coupler) WriteDevice(h onewire.Holder, state []byte) error {
	cmd := state[1]
	if cmd == 0 {
		return nil
	}
	if err := c.adapter.AssertSelect(h, c.addr); err != nil {
		return err
	}
	buf := []byte{cmd, 0xFF}
	if err := c.adapter.ExchangeBlock(h, buf, 0, len(buf)); err != nil {
		return err
	}
	if buf[1] != cmd {
		return fmt.Errorf("%w: coupler %s confirmed %02X for %02X", onewire.ErrEchoMismatch, c.addr, buf[1], cmd)
	}
	return nil
}

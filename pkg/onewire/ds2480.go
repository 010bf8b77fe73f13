package onewire

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

const (
	// DS2480BaudRate is the line rate the DS2480B starts at after a break.
	DS2480BaudRate = 9600

	ds2480ReadTimeout = 500 * time.Millisecond
	ds2480BreakTime   = 2 * time.Millisecond
)

// ds2480Port is the part of serial.Port the DS2480B backend uses.
type ds2480Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Break(d time.Duration) error
}

// DS2480 drives a DS9097U style adapter: a DS2480B serial line driver on an
// RS-232 or USB-serial port.
type DS2480 struct {
	open  func(name string) (ds2480Port, error)
	ports func() ([]string, error)

	port     ds2480Port
	portName string

	dataMode bool
	speed    Speed
	power    PowerLevel
	pending  PowerCondition
	armed    PowerLevel
}

// NewDS2480 returns an unbound DS9097U backend using the system serial
// ports.
func NewDS2480() *DS2480 {
	return &DS2480{
		open:  openSerialPort,
		ports: serial.GetPortsList,
	}
}

func openSerialPort(name string) (ds2480Port, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: DS2480BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (d *DS2480) Name() string     { return "DS9097U" }
func (d *DS2480) PortName() string { return d.portName }
func (d *DS2480) PortType() string { return "serial port" }

func (d *DS2480) Capabilities() Capabilities {
	return Capabilities{Overdrive: true, FlexSpeed: true, StrongPower: true}
}

func (d *DS2480) PortNames() ([]string, error) {
	names, err := d.ports()
	if err != nil {
		return nil, ioError("list serial ports", err)
	}
	return names, nil
}

func (d *DS2480) SelectPort(name string) error {
	if d.port != nil {
		if d.portName == name {
			return nil
		}
		if err := d.FreePort(); err != nil {
			return err
		}
	}
	p, err := d.open(name)
	if err != nil {
		var perr *serial.PortError
		if errors.As(err, &perr) && perr.Code() == serial.PortBusy {
			return fmt.Errorf("%w: %s", ErrPortInUse, name)
		}
		return fmt.Errorf("%w: %s: %w", ErrPortNotSelectable, name, err)
	}
	if err := p.SetReadTimeout(ds2480ReadTimeout); err != nil {
		p.Close()
		return fmt.Errorf("%w: %s: %w", ErrPortNotSelectable, name, err)
	}
	d.port = p
	d.portName = name
	d.dataMode = false
	d.speed = SpeedRegular
	d.power = PowerNormal
	d.armed = PowerNormal
	return nil
}

func (d *DS2480) FreePort() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	if err != nil {
		return ioError("close "+d.portName, err)
	}
	return nil
}

// Detect resets the chip with a break, sends the timing byte and checks the
// answers to the configuration sequence.
func (d *DS2480) Detect() (bool, error) {
	if d.port == nil {
		return false, ErrPortNotSelected
	}
	if err := d.port.Break(ds2480BreakTime); err != nil {
		return false, ioError("break", err)
	}
	if err := d.port.ResetInputBuffer(); err != nil {
		return false, ioError("flush", err)
	}
	d.dataMode = false
	if _, err := d.port.Write([]byte{ds2480Reset(SpeedRegular)}); err != nil {
		return false, ioError("timing byte", err)
	}
	resp, err := d.exchange(ds2480DetectSequence, len(ds2480DetectSequence))
	if errors.Is(err, ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ds2480DetectOK(resp), nil
}

// readFull reads exactly n bytes. The serial port reports an expired read
// timeout as a zero length read.
func (d *DS2480) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	for got := 0; got < n; {
		m, err := d.port.Read(buf[got:])
		if err != nil {
			return nil, ioError("read", err)
		}
		if m == 0 {
			return nil, fmt.Errorf("%w: %d of %d bytes", ErrTimeout, got, n)
		}
		got += m
	}
	return buf, nil
}

func (d *DS2480) exchange(out []byte, n int) ([]byte, error) {
	if d.port == nil {
		return nil, ErrPortNotSelected
	}
	if _, err := d.port.Write(out); err != nil {
		return nil, ioError("write", err)
	}
	return d.readFull(n)
}

func (d *DS2480) command(out []byte, n int) ([]byte, error) {
	if d.dataMode {
		out = append([]byte{ds2480ModeCommand}, out...)
		d.dataMode = false
	}
	return d.exchange(out, n)
}

func (d *DS2480) data(buf []byte) ([]byte, error) {
	out := ds2480EscapeData(buf)
	if !d.dataMode {
		out = append([]byte{ds2480ModeData}, out...)
		d.dataMode = true
	}
	return d.exchange(out, len(buf))
}

func (d *DS2480) Reset() (ResetResult, error) {
	resp, err := d.command([]byte{ds2480Reset(d.speed)}, 1)
	if err != nil {
		return ResetNoPresence, err
	}
	return ds2480DecodeReset(resp[0]), nil
}

func (d *DS2480) TouchBit(bit bool) (bool, error) {
	resp, err := d.command([]byte{ds2480Bit(bit, d.speed)}, 1)
	if err != nil {
		return false, err
	}
	if err := d.firePending(PowerAfterNextBit); err != nil {
		return false, err
	}
	return ds2480DecodeBit(resp[0]), nil
}

func (d *DS2480) TouchByte(b byte) (byte, error) {
	resp, err := d.data([]byte{b})
	if err != nil {
		return 0, err
	}
	if err := d.firePending(PowerAfterNextByte); err != nil {
		return 0, err
	}
	return resp[0], nil
}

func (d *DS2480) Block(buf []byte) error {
	resp, err := d.data(buf)
	if err != nil {
		return err
	}
	copy(buf, resp)
	return nil
}

func (d *DS2480) Search(state *SearchState, cmd byte, noReset bool) (bool, error) {
	return TripletSearch(d, state, cmd, noReset)
}

func (d *DS2480) Speed() Speed { return d.speed }

func (d *DS2480) SetSpeed(sp Speed) error {
	if !d.Capabilities().Supports(sp) {
		return fmt.Errorf("%w: %s speed", ErrUnsupported, sp)
	}
	d.speed = sp
	return nil
}

// SetPowerLevel enters a strong pull-up now or arms it for after the next
// bit or byte. Normal terminates a running pulse.
func (d *DS2480) SetPowerLevel(level PowerLevel, cond PowerCondition) error {
	switch level {
	case PowerNormal:
		d.armed = PowerNormal
		if d.power == PowerNormal {
			return nil
		}
		if _, err := d.command([]byte{ds2480CmdStop}, 1); err != nil {
			return err
		}
		d.power = PowerNormal
		return nil
	case PowerStrongPullup:
		if cond == PowerNow {
			return d.pulse()
		}
		d.armed = level
		d.pending = cond
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, level)
}

func (d *DS2480) pulse() error {
	if _, err := d.command([]byte{ds2480ConfigPullup, ds2480CmdPulse}, 2); err != nil {
		return err
	}
	d.power = PowerStrongPullup
	return nil
}

func (d *DS2480) firePending(cond PowerCondition) error {
	if d.armed == PowerNormal || d.pending != cond {
		return nil
	}
	d.armed = PowerNormal
	return d.pulse()
}

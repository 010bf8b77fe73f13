package onewire

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ds2490Link is the USB plumbing under the DS2490 backend.
type ds2490Link interface {
	// Control sends a vendor control request.
	Control(req byte, value, index uint16) error
	// Status reads one packet from the status endpoint.
	Status() ([]byte, error)
	// Write sends data to the bulk OUT FIFO.
	Write(data []byte) error
	// Read takes n bytes from the bulk IN FIFO.
	Read(n int) ([]byte, error)
	Close() error
}

const ds2490StatusTimeout = 2 * time.Second

// DS2490 drives a DS9490 style adapter: a DS2490 USB to 1-Wire bridge.
type DS2490 struct {
	open  func(index int) (ds2490Link, error)
	count func() (int, error)

	link     ds2490Link
	portName string

	speed   Speed
	power   PowerLevel
	armed   PowerLevel
	pending PowerCondition
	v12     bool
}

// NewDS2490 returns an unbound DS9490 backend. It initialises the USB
// library once, which panics when libusb is unavailable.
func NewDS2490() *DS2490 {
	probeUSB()
	return &DS2490{open: openDS2490, count: countDS2490}
}

func (d *DS2490) Name() string     { return "DS9490" }
func (d *DS2490) PortName() string { return d.portName }
func (d *DS2490) PortType() string { return "USB" }

func (d *DS2490) Capabilities() Capabilities {
	return Capabilities{Overdrive: true, FlexSpeed: true, StrongPower: true, Program: d.v12}
}

// PortNames lists USB1..USBn in enumeration order.
func (d *DS2490) PortNames() ([]string, error) {
	n, err := d.count()
	if err != nil {
		return nil, ioError("enumerate USB", err)
	}
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("USB%d", i+1)
	}
	return names, nil
}

func parseUSBPort(name string) (int, bool) {
	s, ok := strings.CutPrefix(strings.ToUpper(name), "USB")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

func (d *DS2490) SelectPort(name string) error {
	idx, ok := parseUSBPort(name)
	if !ok {
		return fmt.Errorf("%w: %q is not a USB port name", ErrPortNotSelectable, name)
	}
	if d.link != nil {
		if d.portName == name {
			return nil
		}
		if err := d.FreePort(); err != nil {
			return err
		}
	}
	link, err := d.open(idx)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPortNotSelectable, name, err)
	}
	d.link = link
	d.portName = name
	d.speed = SpeedRegular
	d.power = PowerNormal
	d.armed = PowerNormal
	return nil
}

func (d *DS2490) FreePort() error {
	if d.link == nil {
		return nil
	}
	err := d.link.Close()
	d.link = nil
	if err != nil {
		return ioError("close "+d.portName, err)
	}
	return nil
}

// Detect resets the bridge, sets regular speed and checks that a status
// packet comes back.
func (d *DS2490) Detect() (bool, error) {
	if d.link == nil {
		return false, ErrPortNotSelected
	}
	if err := d.link.Control(ds2490ControlCmd, ds2490CtlResetDevice, 0); err != nil {
		return false, ioError("reset device", err)
	}
	if err := d.link.Control(ds2490ModeCmd, ds2490Mod1WireSpeed, ds2490Speed(SpeedRegular)); err != nil {
		return false, ioError("set speed", err)
	}
	if err := d.link.Control(ds2490ModeCmd, ds2490ModStrongPUDur, ds2490StrongPUInfinite); err != nil {
		return false, ioError("pull-up duration", err)
	}
	st, err := d.wait()
	if err != nil {
		return false, err
	}
	d.v12 = st.Flags&ds2490St12VP != 0
	return true, nil
}

// wait polls the status endpoint until the bridge is idle and returns the
// accumulated result codes.
func (d *DS2490) wait() (ds2490Status, error) {
	var acc ds2490Status
	deadline := time.Now().Add(ds2490StatusTimeout)
	for {
		pkt, err := d.link.Status()
		if err != nil {
			return acc, ioError("status", err)
		}
		st, ok := decodeDS2490Status(pkt)
		if !ok {
			return acc, fmt.Errorf("%w: status packet of %d bytes", ErrTransport, len(pkt))
		}
		acc.Flags = st.Flags
		acc.CommCmd = st.CommCmd
		acc.DataIn = st.DataIn
		acc.Results = append(acc.Results, st.Results...)
		if st.idle() {
			return acc, nil
		}
		if time.Now().After(deadline) {
			return acc, fmt.Errorf("%w: bridge not idle", ErrTimeout)
		}
	}
}

func (d *DS2490) comm(fn, param uint16) (ds2490Status, error) {
	if d.link == nil {
		return ds2490Status{}, ErrPortNotSelected
	}
	if err := d.link.Control(ds2490CommCmd, fn, param); err != nil {
		return ds2490Status{}, ioError("comm", err)
	}
	return d.wait()
}

// spu returns the strong pull-up flag when power delivery is armed for the
// given slot kind.
func (d *DS2490) spu(cond PowerCondition) uint16 {
	if d.armed == PowerStrongPullup && d.pending == cond {
		return ds2490FlagSPU
	}
	return 0
}

func (d *DS2490) fired(flags uint16) {
	if flags&ds2490FlagSPU != 0 {
		d.armed = PowerNormal
		d.power = PowerStrongPullup
	}
}

func (d *DS2490) Reset() (ResetResult, error) {
	st, err := d.comm(ds2490CommReset|ds2490FlagIM|ds2490FlagF|ds2490FlagSE|ds2490FlagPST, ds2490Speed(d.speed))
	if err != nil {
		return ResetNoPresence, err
	}
	return st.resetResult(), nil
}

func (d *DS2490) TouchBit(bit bool) (bool, error) {
	flags := uint16(ds2490CommBitIO | ds2490FlagIM)
	if bit {
		flags |= ds2490FlagD
	}
	flags |= d.spu(PowerAfterNextBit)
	if _, err := d.comm(flags, 0); err != nil {
		return false, err
	}
	d.fired(flags)
	got, err := d.link.Read(1)
	if err != nil {
		return false, ioError("read bit", err)
	}
	return got[0]&0x01 != 0, nil
}

func (d *DS2490) TouchByte(b byte) (byte, error) {
	flags := uint16(ds2490CommByteIO|ds2490FlagIM) | d.spu(PowerAfterNextByte)
	if _, err := d.comm(flags, uint16(b)); err != nil {
		return 0, err
	}
	d.fired(flags)
	got, err := d.link.Read(1)
	if err != nil {
		return 0, ioError("read byte", err)
	}
	return got[0], nil
}

// Block streams buf through the FIFO in chunks the bridge can hold.
func (d *DS2490) Block(buf []byte) error {
	if d.link == nil {
		return ErrPortNotSelected
	}
	for off := 0; off < len(buf); off += ds2490FIFOMax {
		chunk := buf[off:min(off+ds2490FIFOMax, len(buf))]
		if err := d.link.Write(chunk); err != nil {
			return ioError("write block", err)
		}
		if _, err := d.comm(ds2490CommBlockIO|ds2490FlagIM, uint16(len(chunk))); err != nil {
			return err
		}
		got, err := d.link.Read(len(chunk))
		if err != nil {
			return ioError("read block", err)
		}
		copy(chunk, got)
	}
	return nil
}

func (d *DS2490) Search(state *SearchState, cmd byte, noReset bool) (bool, error) {
	return TripletSearch(d, state, cmd, noReset)
}

func (d *DS2490) Speed() Speed { return d.speed }

func (d *DS2490) SetSpeed(sp Speed) error {
	if !d.Capabilities().Supports(sp) {
		return fmt.Errorf("%w: %s speed", ErrUnsupported, sp)
	}
	if d.link == nil {
		return ErrPortNotSelected
	}
	if err := d.link.Control(ds2490ModeCmd, ds2490Mod1WireSpeed, ds2490Speed(sp)); err != nil {
		return ioError("set speed", err)
	}
	d.speed = sp
	return nil
}

func (d *DS2490) SetPowerLevel(level PowerLevel, cond PowerCondition) error {
	if !d.Capabilities().Delivers(level) {
		return fmt.Errorf("%w: %s", ErrUnsupported, level)
	}
	if d.link == nil {
		return ErrPortNotSelected
	}
	switch level {
	case PowerNormal:
		d.armed = PowerNormal
		if d.power == PowerNormal {
			return nil
		}
		if err := d.link.Control(ds2490ControlCmd, ds2490CtlHaltExeIdle, 0); err != nil {
			return ioError("halt pulse", err)
		}
		if err := d.link.Control(ds2490ControlCmd, ds2490CtlResumeExe, 0); err != nil {
			return ioError("resume", err)
		}
		d.power = PowerNormal
		return nil
	case PowerStrongPullup:
		if err := d.link.Control(ds2490ModeCmd, ds2490ModPulseEn, ds2490PulseSPUE); err != nil {
			return ioError("enable pull-up", err)
		}
		if cond != PowerNow {
			d.armed = level
			d.pending = cond
			return nil
		}
		if _, err := d.comm(ds2490CommPulse|ds2490FlagIM|ds2490FlagF, 0); err != nil {
			return err
		}
		d.power = level
		return nil
	case PowerProgram:
		if err := d.link.Control(ds2490ModeCmd, ds2490ModPulseEn, ds2490PulsePROG); err != nil {
			return ioError("enable program pulse", err)
		}
		if _, err := d.comm(ds2490CommPulse|ds2490FlagIM|ds2490FlagF|ds2490FlagType, 0); err != nil {
			return err
		}
		d.power = PowerNormal
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, level)
}

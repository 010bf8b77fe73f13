package onewire

import (
	"fmt"
	"time"

	"github.com/google/gousb"
)

const (
	// DS2490 endpoints on alternate setting 3: interrupt status, bulk data
	// out and bulk data in.
	ds2490EPStatus   = 1
	ds2490EPDataOut  = 2
	ds2490EPDataIn   = 3
	ds2490AltSetting = 3

	ds2490StatusPacket = 32
	ds2490USBTimeout   = 5 * time.Second
)

func isDS2490(desc *gousb.DeviceDesc) bool {
	return desc.Vendor == VendorIDMaxim && desc.Product == ProductIDDS2490
}

// probeUSB initialises libusb once. gousb panics when the library cannot
// start.
func probeUSB() {
	ctx := gousb.NewContext()
	ctx.Close()
}

// countDS2490 returns the number of attached bridges without opening them.
func countDS2490() (int, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	n := 0
	_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if isDS2490(desc) {
			n++
		}
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return n, err
	}
	return n, nil
}

// openDS2490 claims the bridge at enumeration index idx.
func openDS2490(idx int) (ds2490Link, error) {
	ctx := gousb.NewContext()
	seen := -1
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if !isDS2490(desc) {
			return false
		}
		seen++
		return seen == idx
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}
	if len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("no DS2490 at index %d", idx)
	}
	for _, extra := range devs[1:] {
		extra.Close()
	}
	dev := devs[0]

	// Not fatal on every platform.
	_ = dev.SetAutoDetach(true)

	t := &usbLink{ctx: ctx, dev: dev}
	if err := t.claimInterface(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// usbLink is one claimed DS2490.
type usbLink struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	epStatus *gousb.InEndpoint
	epOut    *gousb.OutEndpoint
	epIn     *gousb.InEndpoint
}

func (t *usbLink) claimInterface() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	t.cfg = cfg

	intf, err := cfg.Interface(0, ds2490AltSetting)
	if err != nil {
		return fmt.Errorf("failed to claim interface: %w", err)
	}
	t.intf = intf

	if t.epStatus, err = intf.InEndpoint(ds2490EPStatus); err != nil {
		return fmt.Errorf("failed to open status endpoint: %w", err)
	}
	if t.epOut, err = intf.OutEndpoint(ds2490EPDataOut); err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	if t.epIn, err = intf.InEndpoint(ds2490EPDataIn); err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	t.dev.ControlTimeout = ds2490USBTimeout
	return nil
}

func (t *usbLink) Control(req byte, value, index uint16) error {
	_, err := t.dev.Control(gousb.ControlOut|gousb.ControlVendor|gousb.ControlDevice, req, value, index, nil)
	if err != nil {
		return fmt.Errorf("USB control 0x%02X/0x%04X failed: %w", req, value, err)
	}
	return nil
}

func (t *usbLink) Status() ([]byte, error) {
	buf := make([]byte, ds2490StatusPacket)
	n, err := t.epStatus.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("USB status read failed: %w", err)
	}
	return buf[:n], nil
}

func (t *usbLink) Write(data []byte) error {
	if _, err := t.epOut.Write(data); err != nil {
		return fmt.Errorf("USB write failed: %w", err)
	}
	return nil
}

func (t *usbLink) Read(n int) ([]byte, error) {
	buf := make([]byte, n)
	for got := 0; got < n; {
		m, err := t.epIn.Read(buf[got:])
		if err != nil {
			return nil, fmt.Errorf("USB read failed: %w", err)
		}
		got += m
	}
	return buf, nil
}

func (t *usbLink) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	var err error
	if t.cfg != nil {
		err = t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		if cerr := t.dev.Close(); err == nil {
			err = cerr
		}
		t.dev = nil
	}
	if t.ctx != nil {
		if cerr := t.ctx.Close(); err == nil {
			err = cerr
		}
		t.ctx = nil
	}
	return err
}

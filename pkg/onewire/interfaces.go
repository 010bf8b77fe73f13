package onewire

import (
	"context"
	"fmt"

	"github.com/google/gousb"
	"go.bug.st/serial/enumerator"
)

// InterfaceKind categorizes adapter families.
type InterfaceKind string

const (
	InterfaceKindDS9490 InterfaceKind = "ds9490"
	InterfaceKindSerial InterfaceKind = "serial"
	InterfaceKindSim    InterfaceKind = "simulator"
)

// InterfaceInfo describes a detected adapter interface.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
	Port        string
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	if i.Port != "" {
		return fmt.Sprintf("%s on %s", i.Kind, i.Port)
	}
	return fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
}

// DiscoverInterfaces lists attached DS2490 bridges and serial ports that
// may carry a DS2480B. It always returns the simulator entry so the tools
// can run without hardware. USB failures other than access errors are
// returned together with what was found.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo

	usbErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("USB unavailable: %v", r)
			}
		}()
		usb := gousb.NewContext()
		defer usb.Close()

		n := 0
		_, err = usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
			select {
			case <-ctx.Done():
				return false
			default:
			}
			if isDS2490(desc) {
				n++
				results = append(results, InterfaceInfo{
					Kind:        InterfaceKindDS9490,
					Description: fmt.Sprintf("DS9490 USB adapter (USB%d)", n),
					VendorID:    VendorIDMaxim,
					ProductID:   ProductIDDS2490,
					Port:        fmt.Sprintf("USB%d", n),
				})
			}
			return false
		})
		if err == gousb.ErrorAccess {
			err = nil
		}
		return err
	}()

	ports, err := enumerator.GetDetailedPortsList()
	if err == nil {
		for _, p := range ports {
			info := InterfaceInfo{Kind: InterfaceKindSerial, Port: p.Name, Serial: p.SerialNumber}
			if p.IsUSB {
				info.Description = fmt.Sprintf("%s (USB serial %s:%s)", p.Name, p.VID, p.PID)
			}
			results = append(results, info)
		}
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
		Port:        SimPort,
	})

	if usbErr != nil {
		return results, usbErr
	}
	return results, nil
}

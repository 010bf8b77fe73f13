package onewire

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// FamilyCoupler is the family code of the DS2409 branch coupler.
const FamilyCoupler = 0x1F

// Coupler status bits as modelled by SimCoupler and driven by the coupler
// switch driver.
const (
	CouplerMainOn = 0x01
	CouplerAuxOn  = 0x04
)

// Coupler function commands.
const (
	CouplerStatusRW    = 0x5A
	CouplerAllOff      = 0x66
	CouplerDirectMain  = 0xA5
	CouplerSmartOnMain = 0xCC
	CouplerSmartOnAux  = 0x33
)

// SimCoupler models a two-channel branch coupler. Channel 0 is the main
// branch, channel 1 the auxiliary branch; at most one is connected.
type SimCoupler struct {
	Main []*SimDevice
	Aux  []*SimDevice

	status  byte
	started bool
	control bool
	pending []byte
}

// Status returns the current switch status byte.
func (c *SimCoupler) Status() byte { return c.status }

func (c *SimCoupler) Drive() byte {
	if len(c.pending) > 0 {
		return c.pending[0]
	}
	return 0xFF
}

func (c *SimCoupler) Receive(b byte) {
	switch {
	case len(c.pending) > 0:
		c.pending = c.pending[1:]
		return
	case c.control:
		c.control = false
		c.pending = []byte{c.status, c.status}
		return
	case c.started:
		// one command per selection
		return
	}

	c.started = true
	switch b {
	case CouplerStatusRW:
		c.control = true
	case CouplerAllOff:
		c.status = 0
		c.pending = []byte{b}
	case CouplerDirectMain, CouplerSmartOnMain:
		c.status = CouplerMainOn
		c.pending = []byte{b}
	case CouplerSmartOnAux:
		c.status = CouplerAuxOn
		c.pending = []byte{b}
	}
}

func (c *SimCoupler) Reset() {
	c.started = false
	c.control = false
	c.pending = nil
}

// Downstream returns the devices on the connected branch.
func (c *SimCoupler) Downstream() []*SimDevice {
	switch {
	case c.status&CouplerMainOn != 0:
		return c.Main
	case c.status&CouplerAuxOn != 0:
		return c.Aux
	}
	return nil
}

// Scenario is a simulated bus loaded from YAML.
type Scenario struct {
	Name         string
	Capabilities *Capabilities
	Devices      []*SimDevice
}

type scenarioFile struct {
	Name         string            `yaml:"name"`
	Capabilities *scenarioCaps     `yaml:"capabilities"`
	Devices      []*scenarioDevice `yaml:"devices"`
}

type scenarioCaps struct {
	Overdrive   bool `yaml:"overdrive"`
	Hyperdrive  bool `yaml:"hyperdrive"`
	FlexSpeed   bool `yaml:"flex_speed"`
	Program     bool `yaml:"program"`
	StrongPower bool `yaml:"strong_power"`
	SmartPower  bool `yaml:"smart_power"`
	Break       bool `yaml:"break"`
}

type scenarioDevice struct {
	Address string            `yaml:"address"`
	Family  uint8             `yaml:"family"`
	Serial  uint64            `yaml:"serial"`
	Alarm   bool              `yaml:"alarm"`
	Main    []*scenarioDevice `yaml:"main"`
	Aux     []*scenarioDevice `yaml:"aux"`
}

// LoadScenario decodes a bus description such as:
//
//	name: lab bench
//	devices:
//	  - family: 0x28
//	    serial: 0x0000012345
//	  - address: 10E0A2B401080020
//	    alarm: true
//	  - family: 0x1F
//	    serial: 1
//	    main:
//	      - family: 0x26
//	        serial: 7
func LoadScenario(r io.Reader) (*Scenario, error) {
	var f scenarioFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	sc := &Scenario{Name: f.Name}
	if c := f.Capabilities; c != nil {
		sc.Capabilities = &Capabilities{
			Overdrive:   c.Overdrive,
			Hyperdrive:  c.Hyperdrive,
			FlexSpeed:   c.FlexSpeed,
			Program:     c.Program,
			StrongPower: c.StrongPower,
			SmartPower:  c.SmartPower,
			Break:       c.Break,
		}
	}
	devs, err := buildScenarioDevices(f.Devices)
	if err != nil {
		return nil, err
	}
	sc.Devices = devs
	return sc, nil
}

// LoadScenarioFile reads a scenario from path.
func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadScenario(f)
}

func buildScenarioDevices(in []*scenarioDevice) ([]*SimDevice, error) {
	out := make([]*SimDevice, 0, len(in))
	for i, d := range in {
		var addr Address
		if d.Address != "" {
			a, err := ParseAddress(d.Address)
			if err != nil {
				return nil, fmt.Errorf("scenario: device %d: %w", i, err)
			}
			if !a.Valid() {
				return nil, fmt.Errorf("scenario: device %d: address %s fails CRC", i, a)
			}
			addr = a
		} else {
			if d.Family == 0 {
				return nil, fmt.Errorf("scenario: device %d: address or family required", i)
			}
			addr = NewAddress(d.Family, d.Serial)
		}

		dev := &SimDevice{Address: addr, Alarm: d.Alarm}
		if len(d.Main) > 0 || len(d.Aux) > 0 || addr.Family() == FamilyCoupler {
			main, err := buildScenarioDevices(d.Main)
			if err != nil {
				return nil, err
			}
			aux, err := buildScenarioDevices(d.Aux)
			if err != nil {
				return nil, err
			}
			dev.Function = &SimCoupler{Main: main, Aux: aux}
		}
		out = append(out, dev)
	}
	return out, nil
}

// DemoBus returns the bus served on the "sim" port: a few sensors on the
// main segment, one in alarm, and a coupler with a device on each branch.
func DemoBus() []*SimDevice {
	return []*SimDevice{
		{Address: NewAddress(0x28, 0x00000A1B2C3D)},
		{Address: NewAddress(0x28, 0x00000A1B2C3E)},
		{Address: NewAddress(0x10, 0x000801B4A2E0)},
		{Address: NewAddress(0x21, 0x00000033D2A1), Alarm: true},
		{
			Address: NewAddress(FamilyCoupler, 0x000000012345),
			Function: &SimCoupler{
				Main: []*SimDevice{{Address: NewAddress(0x26, 0x000000AB0001)}},
				Aux:  []*SimDevice{{Address: NewAddress(0x12, 0x000000CD0002)}},
			},
		},
	}
}

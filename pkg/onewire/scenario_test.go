package onewire

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadScenarioFile(t *testing.T) {
	sc, err := LoadScenarioFile(filepath.Join("testdata", "bench.yaml"))
	if err != nil {
		t.Fatalf("LoadScenarioFile: %v", err)
	}
	if sc.Name != "bench" {
		t.Fatalf("name = %q", sc.Name)
	}
	if sc.Capabilities == nil || !sc.Capabilities.Overdrive || sc.Capabilities.FlexSpeed {
		t.Fatalf("capabilities = %+v", sc.Capabilities)
	}
	if len(sc.Devices) != 3 {
		t.Fatalf("got %d root devices, want 3", len(sc.Devices))
	}
	if got := sc.Devices[0].Address.String(); got != "28452301000000B9" {
		t.Fatalf("device 0 = %s", got)
	}
	if !sc.Devices[1].Alarm {
		t.Fatalf("device 1 should be alarming")
	}
	c, ok := sc.Devices[2].Function.(*SimCoupler)
	if !ok {
		t.Fatalf("device 2 should be a coupler, got %T", sc.Devices[2].Function)
	}
	if len(c.Main) != 1 || len(c.Aux) != 1 {
		t.Fatalf("coupler branches main=%d aux=%d", len(c.Main), len(c.Aux))
	}
	if got := c.Aux[0].Address.String(); got != "289999000000007D" {
		t.Fatalf("aux device = %s", got)
	}
}

func TestLoadScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "devices:\n  - family: 0x28\n    colour: red\n", "colour"},
		{"bad crc", "devices:\n  - address: 28452301000000B8\n", "fails CRC"},
		{"bad hex", "devices:\n  - address: nothex\n", "invalid device address"},
		{"no family", "devices:\n  - serial: 5\n", "address or family required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(strings.NewReader(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestSimulatorScenarioPort(t *testing.T) {
	sim := NewSimulator()
	path := filepath.Join("testdata", "bench.yaml")
	if err := sim.SelectPort(path); err != nil {
		t.Fatalf("SelectPort: %v", err)
	}
	if sim.PortName() != path || sim.Capabilities().FlexSpeed {
		t.Fatalf("scenario not applied: port=%s caps=%+v", sim.PortName(), sim.Capabilities())
	}
	devs, err := NewAdapter(sim).Devices(Holder{})
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(devs) != 3 {
		t.Fatalf("found %d devices, want 3", len(devs))
	}

	if err := sim.SelectPort(filepath.Join("testdata", "missing.yaml")); err == nil {
		t.Fatalf("missing scenario should fail")
	}
}

func TestSimulatorDemoPort(t *testing.T) {
	sim := &Simulator{}
	if ok, err := sim.Detect(); ok || err == nil {
		t.Fatalf("unbound simulator detected")
	}
	if err := sim.SelectPort(SimPort); err != nil {
		t.Fatalf("SelectPort(sim): %v", err)
	}
	if ok, err := sim.Detect(); !ok || err != nil {
		t.Fatalf("Detect = %t, %v", ok, err)
	}
	if len(sim.Devices) != len(DemoBus()) {
		t.Fatalf("demo bus not installed")
	}
}

func TestSimCouplerStatus(t *testing.T) {
	c := &SimCoupler{}
	for _, b := range []byte{CouplerStatusRW, 0xFF} {
		c.Drive()
		c.Receive(b)
	}
	if c.Drive() != 0 {
		t.Fatalf("status read with all lines off = %02X", c.Drive())
	}
	c.Reset()
	c.Receive(CouplerSmartOnAux)
	if c.Status() != CouplerAuxOn || c.Drive() != CouplerSmartOnAux {
		t.Fatalf("aux switch: status=%02X confirm=%02X", c.Status(), c.Drive())
	}
	c.Reset()
	c.Receive(CouplerAllOff)
	if c.Status() != 0 || c.Downstream() != nil {
		t.Fatalf("all off left a branch connected")
	}
}

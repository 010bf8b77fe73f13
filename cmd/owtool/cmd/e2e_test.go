package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags clears values and the changed state left by a previous run.
func resetFlags() {
	verbose = false
	adapterName = ""
	portName = ""
	configFile = ""
	scenario = ""
	lockTimeout = 5 * time.Second
	searchFamilies = nil
	searchExclude = nil
	searchAlarm = false
	searchPath = ""
	verifyAlarm = false
	verifyPath = ""

	var clear func(c *cobra.Command)
	clear = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		c.PersistentFlags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		for _, sub := range c.Commands() {
			clear(sub)
		}
	}
	clear(rootCmd)
}

func execute(args ...string) (string, error) {
	resetFlags()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// simArgs binds the demo bus. Flags given later on the command line win.
func simArgs(args ...string) []string {
	return append([]string{"--adapter", "Simulator", "--port", "sim"}, args...)
}

// TestSearchE2E walks the built-in demo bus end-to-end
func TestSearchE2E(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
		wantMissing []string
	}{
		{
			name: "whole bus",
			args: []string{"search"},
			wantContain: []string{
				"Found 5 device(s)",
				"283D2C1B0A0000A6",
				"283E2C1B0A0000FF",
				"10E0A2B401080020",
				"21A1D233000000A4",
				"1F4523010000001E",
			},
		},
		{
			name:        "family",
			args:        []string{"search", "--family", "28"},
			wantContain: []string{"Found 2 device(s)", "283D2C1B0A0000A6", "283E2C1B0A0000FF"},
			wantMissing: []string{"10E0A2B401080020"},
		},
		{
			name:        "exclude",
			args:        []string{"search", "--exclude", "0x28,1f"},
			wantContain: []string{"Found 2 device(s)", "10E0A2B401080020", "21A1D233000000A4"},
			wantMissing: []string{"283D2C1B0A0000A6", "1F4523010000001E"},
		},
		{
			name:        "alarm",
			args:        []string{"search", "--alarm"},
			wantContain: []string{"Found 1 device(s)", "21A1D233000000A4"},
		},
		{
			name:        "main branch",
			args:        []string{"search", "--path", "/1F4523010000001E_0"},
			wantContain: []string{"Found 6 device(s)", "260100AB0000006B", "path /1F4523010000001E_0"},
			wantMissing: []string{"120200CD0000004B"},
		},
		{
			name:        "aux branch",
			args:        []string{"search", "--path", "/1F4523010000001E_1", "--family", "12"},
			wantContain: []string{"Found 1 device(s)", "120200CD0000004B"},
		},
		{
			name:    "family and exclude",
			args:    []string{"search", "--family", "28", "--exclude", "10"},
			wantErr: true,
		},
		{
			name:    "bad family",
			args:    []string{"search", "--family", "zz"},
			wantErr: true,
		},
		{
			name:    "bad path",
			args:    []string{"search", "--path", "/1F4523010000001E"},
			wantErr: true,
		},
		{
			name:    "unknown adapter",
			args:    []string{"search", "--adapter", "DS1410E", "--port", "LPT1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(simArgs(tt.args...)...)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none\nOutput: %s", output)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
				}
			}
			for _, miss := range tt.wantMissing {
				if strings.Contains(output, miss) {
					t.Errorf("Output contains unexpected string: %q\nGot:\n%s", miss, output)
				}
			}
		})
	}
}

// TestVerifyE2E checks single devices on the demo bus
func TestVerifyE2E(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		want    string
	}{
		{"present", []string{"verify", "283D2C1B0A0000A6"}, false, "283D2C1B0A0000A6 is present"},
		{"delimited", []string{"verify", "28:3D:2C:1B:0A:00:00:A6"}, false, "is present"},
		{"alarming", []string{"verify", "--alarm", "21A1D233000000A4"}, false, "21A1D233000000A4 is alarming"},
		{"not alarming", []string{"verify", "--alarm", "283D2C1B0A0000A6"}, true, ""},
		{"absent", []string{"verify", "28452301000000B9"}, true, ""},
		{"behind coupler", []string{"verify", "--path", "/1F4523010000001E_0", "260100AB0000006B"}, false, "is present"},
		{"closed branch", []string{"verify", "260100AB0000006B"}, true, ""},
		{"bad crc", []string{"verify", "283D2C1B0A0000A7"}, true, ""},
		{"no address", []string{"verify"}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(simArgs(tt.args...)...)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none\nOutput: %s", output)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
			}
			if !strings.Contains(output, tt.want) {
				t.Errorf("Output missing %q\nGot:\n%s", tt.want, output)
			}
		})
	}
}

func TestPathE2E(t *testing.T) {
	output, err := execute(simArgs("path", "open", "/1F4523010000001E_1")...)
	if err != nil {
		t.Fatalf("path open: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Opened /1F4523010000001E_1 (1 hop(s))") {
		t.Errorf("unexpected output:\n%s", output)
	}

	output, err = execute(simArgs("path", "close", "/1F4523010000001E_1")...)
	if err != nil {
		t.Fatalf("path close: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Closed /1F4523010000001E_1") {
		t.Errorf("unexpected output:\n%s", output)
	}

	if _, err := execute(simArgs("path", "open", "/1F4523010000001E_2")...); err == nil {
		t.Error("channel 2 of a coupler should be rejected")
	}
	if _, err := execute(simArgs("path", "open", "/283D2C1B0A0000A6_0")...); err == nil {
		t.Error("a thermometer is not a coupler")
	}
}

func TestAdaptersE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("scans USB and serial ports")
	}
	output, err := execute("adapters")
	if err != nil {
		t.Fatalf("adapters: %v\n%s", err, output)
	}
	for _, want := range []string{"Detected interfaces:", "Simulator", "sim"} {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing %q\nGot:\n%s", want, output)
		}
	}
}

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/onewire"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List 1-Wire adapters and their ports",
	Long: `Scan the host for DS2490 USB bridges and serial ports that may carry a
DS2480B line driver, then list every adapter kind that loads on this host with
the ports it reports. The simulator is always listed.`,
	RunE: runAdapters,
}

func init() {
	rootCmd.AddCommand(adaptersCmd)
}

func runAdapters(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := onewire.DiscoverInterfaces(ctx)
	if err != nil {
		logger.Debug("interface scan incomplete", zap.Error(err))
	}
	fmt.Fprintln(out, "Detected interfaces:")
	for _, iface := range infos {
		switch {
		case iface.VendorID != 0:
			fmt.Fprintf(out, "  - %s [%s] (VID:PID %04X:%04X)\n", iface.Label(), iface.Kind, iface.VendorID, iface.ProductID)
		default:
			fmt.Fprintf(out, "  - %s [%s]\n", iface.Label(), iface.Kind)
		}
	}

	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer reg.Close()

	fmt.Fprintln(out, "\nAdapters:")
	for _, c := range reg.Enumerate() {
		ports := "no ports"
		if len(c.Ports) > 0 {
			ports = strings.Join(c.Ports, ", ")
		}
		fmt.Fprintf(out, "  %-10s %-12s %s\n", c.Name, c.PortType, ports)
		if verbose {
			fmt.Fprintf(out, "             %s\n", capabilityList(c.Capabilities))
		}
	}
	return nil
}

func capabilityList(c onewire.Capabilities) string {
	var caps []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{c.Overdrive, "overdrive"},
		{c.Hyperdrive, "hyperdrive"},
		{c.FlexSpeed, "flex"},
		{c.Program, "program"},
		{c.StrongPower, "strong-pullup"},
		{c.SmartPower, "smart-power"},
		{c.Break, "break"},
	} {
		if f.on {
			caps = append(caps, f.name)
		}
	}
	if len(caps) == 0 {
		return "regular speed only"
	}
	return strings.Join(caps, " ")
}

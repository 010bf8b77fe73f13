package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/onewire"
	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/owpath"
)

var (
	searchFamilies []string
	searchExclude  []string
	searchAlarm    bool
	searchPath     string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Walk the bus and list device addresses",
	Long: `Run one full search of the bus and print every device address found.

Families are given in hex. --family and --exclude are mutually exclusive.
With --path the couplers along the path are switched on before the search and
off again afterwards.

Examples:
  # All devices on the demo bus
  owtool search --adapter Simulator --port sim

  # Only DS18B20 thermometers that report an alarm
  owtool search --family 28 --alarm

  # Devices behind the main channel of a coupler
  owtool search --path /1F4523010000001E_0`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringSliceVarP(&searchFamilies, "family", "f", nil,
		"only report these family codes (hex, e.g. 28,10)")
	searchCmd.Flags().StringSliceVarP(&searchExclude, "exclude", "x", nil,
		"skip these family codes (hex)")
	searchCmd.Flags().BoolVar(&searchAlarm, "alarm", false,
		"only report devices in the alarm state")
	searchCmd.Flags().StringVar(&searchPath, "path", "",
		"branch path to open first (e.g. /1F4523010000001E_0)")
	searchCmd.MarkFlagsMutuallyExclusive("family", "exclude")
}

// parseFamilies reads hex family codes with an optional 0x prefix.
func parseFamilies(list []string) ([]byte, error) {
	out := make([]byte, 0, len(list))
	for _, s := range list {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x"), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid family code %q", s)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	include, err := parseFamilies(searchFamilies)
	if err != nil {
		return err
	}
	exclude, err := parseFamilies(searchExclude)
	if err != nil {
		return err
	}
	path, err := owpath.Parse(searchPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return withAdapter(func(a *onewire.Adapter, h onewire.Holder) (err error) {
		a.TargetAllFamilies()
		switch {
		case len(include) > 0:
			a.TargetFamily(include...)
		case len(exclude) > 0:
			a.ExcludeFamily(exclude...)
		}
		if searchAlarm {
			a.SetSearchOnlyAlarming()
		}

		nav := owpath.NewNavigator(a, nil)
		if err := nav.Open(h, path); err != nil {
			return fmt.Errorf("open path %s: %w", path, err)
		}
		defer func() {
			if cerr := nav.Close(h, path); cerr != nil && err == nil {
				err = fmt.Errorf("close path %s: %w", path, cerr)
			}
		}()

		devices, err := a.Devices(h)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		fmt.Fprintf(out, "Searching %s on %s, path %s\n", a.Name(), a.PortName(), path)
		fmt.Fprintf(out, "Found %d device(s)\n", len(devices))
		for _, d := range devices {
			fmt.Fprintf(out, "  %s  family %02X  serial %012X\n", d, d.Family(), d.Serial())
		}
		return nil
	})
}

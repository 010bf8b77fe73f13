package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/onewire"
	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/owpath"
)

var (
	verifyAlarm bool
	verifyPath  string
)

var verifyCmd = &cobra.Command{
	Use:   "verify ADDRESS",
	Short: "Check that one device is on the bus",
	Long: `Run a directed search for one address and report whether the device
answered. The address is 16 hex digits, optionally split with ':', '.', '-' or
spaces. The command fails when the device is absent, so it can be used from
scripts.

Examples:
  owtool verify 283D2C1B0A0000A6
  owtool verify --alarm 21:A1:D2:33:00:00:00:A4`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().BoolVar(&verifyAlarm, "alarm", false,
		"also require the device to be in the alarm state")
	verifyCmd.Flags().StringVar(&verifyPath, "path", "",
		"branch path to open first")
}

func runVerify(cmd *cobra.Command, args []string) error {
	addr, err := onewire.ParseAddress(args[0])
	if err != nil {
		return err
	}
	path, err := owpath.Parse(verifyPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return withAdapter(func(a *onewire.Adapter, h onewire.Holder) (err error) {
		nav := owpath.NewNavigator(a, nil)
		if err := nav.Open(h, path); err != nil {
			return fmt.Errorf("open path %s: %w", path, err)
		}
		defer func() {
			if cerr := nav.Close(h, path); cerr != nil && err == nil {
				err = fmt.Errorf("close path %s: %w", path, cerr)
			}
		}()

		check, state := a.IsPresent, "present"
		if verifyAlarm {
			check, state = a.IsAlarming, "alarming"
		}
		ok, err := check(h, addr)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s is not %s: %w", addr, state, onewire.ErrDeviceNotFound)
		}
		fmt.Fprintf(out, "%s is %s\n", addr, state)
		return nil
	})
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/onewire"
	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/owpath"
)

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Switch network couplers along a branch path",
	Long: `Switch the couplers named in a path on or off. A path is '/' for the bus
root or a list of /ADDRESS_CHANNEL hops, where channel 0 is the main output and
1 the auxiliary output of a coupler.

Examples:
  owtool path open /1F4523010000001E_0
  owtool path close /1F4523010000001E_0/1F0100000000008E_1`,
}

var pathOpenCmd = &cobra.Command{
	Use:   "open PATH",
	Short: "Switch on every coupler along the path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPath(cmd, args[0], true)
	},
}

var pathCloseCmd = &cobra.Command{
	Use:   "close PATH",
	Short: "Switch off every coupler along the path, last hop first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPath(cmd, args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(pathCmd)
	pathCmd.AddCommand(pathOpenCmd, pathCloseCmd)
}

func runPath(cmd *cobra.Command, text string, open bool) error {
	path, err := owpath.Parse(text)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	return withAdapter(func(a *onewire.Adapter, h onewire.Holder) error {
		nav := owpath.NewNavigator(a, nil)
		if open {
			if err := nav.Open(h, path); err != nil {
				return fmt.Errorf("open path %s: %w", path, err)
			}
			fmt.Fprintf(out, "Opened %s (%d hop(s))\n", path, path.Len())
			return nil
		}
		if err := nav.Close(h, path); err != nil {
			return fmt.Errorf("close path %s: %w", path, err)
		}
		fmt.Fprintf(out, "Closed %s (%d hop(s))\n", path, path.Len())
		return nil
	})
}

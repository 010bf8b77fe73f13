package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/config"
	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/onewire"
	"github.com/OpenTraceLab/OpenTraceOneWire/pkg/registry"
)

var (
	// Global flags
	verbose     bool
	adapterName string
	portName    string
	configFile  string
	scenario    string
	lockTimeout time.Duration

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "owtool",
	Short: "1-Wire adapter and bus tool",
	Long: `Find 1-Wire adapters on this host, walk the bus for device addresses and
drive network couplers along a branch path.

Without --adapter and --port the adapter comes from onewire.properties (or
onewire.yaml) in the working directory or the user config directory, then
from the first adapter that reports a port.

Examples:
  owtool adapters                                  # List adapters and ports
  owtool search --adapter Simulator --port sim     # Walk the built-in demo bus
  owtool search --family 28 --alarm                # Alarming thermometers only
  owtool verify 283D2C1B0A0000A6                   # Check one device`,
	Version: "0.3.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = zap.NewNop()
		if verbose {
			if l, err := zap.NewDevelopment(); err == nil {
				logger = l
			}
		}
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&adapterName, "adapter", "a", "",
		"adapter name (DS9097U, DS9490, Simulator)")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "",
		"adapter port (COM1, /dev/ttyUSB0, USB1, sim or a scenario file)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"configuration file (default onewire.properties)")
	rootCmd.PersistentFlags().StringVar(&scenario, "scenario", "",
		"simulator: bus scenario file used when no port is given")
	rootCmd.PersistentFlags().DurationVar(&lockTimeout, "lock-timeout", 5*time.Second,
		"how long to wait for exclusive use of the adapter")
}

// openRegistry loads the configuration and lays the command line on top of
// it.
func openRegistry() (*registry.Registry, error) {
	var opts []config.Option
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	cfg, err := config.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.File() != "" {
		logger.Debug("configuration loaded", zap.String("file", cfg.File()))
	}
	if adapterName != "" {
		cfg.Set(config.KeyAdapter, adapterName)
	}
	if portName != "" {
		cfg.Set(config.KeyPort, portName)
	}
	if scenario != "" {
		cfg.Set(config.KeyScenario, scenario)
	}
	return registry.New(cfg, registry.WithLogger(logger)), nil
}

// withAdapter resolves the default adapter, takes an exclusive session on it
// and runs fn. The registry frees the adapter afterwards.
func withAdapter(fn func(a *onewire.Adapter, h onewire.Holder) error) (err error) {
	reg, err := openRegistry()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := reg.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	a, err := reg.DefaultAdapter()
	if err != nil {
		return fmt.Errorf("open adapter: %w", err)
	}
	logger.Debug("adapter bound", zap.String("adapter", a.Name()), zap.String("port", a.PortName()))

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	h := onewire.NewHolder()
	if err := a.BeginExclusive(ctx, h); err != nil {
		return fmt.Errorf("lock adapter: %w", err)
	}
	defer a.EndExclusive(h)

	return fn(a, h)
}

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/samaelod/dronecmd/config"
	"github.com/samaelod/dronecmd/engine"
	"github.com/samaelod/dronecmd/tui"
)

var (
	// Global flags
	cfgFile   string
	fleetFile string
	droneArgs []string
	errorMode string

	// Shared state set during PersistentPreRun
	cfg *config.Config

	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "dronecmd [SCRIPT]",
	Short: "Script-driven operator console for UDP-controlled drones",
	Long: `dronecmd pilots one or more Tello-class drones from a small line-oriented
script language. Without a subcommand it opens the console; "run" executes a
script headless.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if errorMode != "" {
			switch errorMode {
			case config.ErrorModePass, config.ErrorModeCrash:
				cfg.ErrorMode = errorMode
			default:
				return fmt.Errorf("unknown --error-mode %q (want pass or crash)", errorMode)
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		fleet, err := resolveFleet()
		if err != nil {
			return err
		}

		var initial, path string
		if len(args) == 1 {
			path = args[0]
			initial, err = readScript(path, cfg.CapturePort)
			if err != nil {
				return err
			}
		}

		eng, err := engine.NewEngine(fleet, cfg, sessionLogPath(cfg.LogsDir, path))
		if err != nil {
			return err
		}
		defer eng.Close()

		return tui.Run(version, eng, cfg, path, initial)
	},
}

// Execute runs the root command.
func Execute(v string) {
	version = v
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
	return rootCmd
}

func printf(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, format, a...)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default dronecmd.yaml, then ~/.config/dronecmd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&fleetFile, "fleet", "", "Lua fleet file describing the drones")
	rootCmd.PersistentFlags().StringArrayVarP(&droneArgs, "drone", "d", nil, "drone as [id=][bind,]remote (repeatable, overrides --fleet)")
	rootCmd.PersistentFlags().StringVar(&errorMode, "error-mode", "", "line error handling: pass or crash")
}

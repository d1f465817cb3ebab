package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samaelod/dronecmd/lua"
	"github.com/samaelod/dronecmd/pcapreader"
)

var (
	convertPort     int
	convertFleetOut string
)

var convertCmd = &cobra.Command{
	Use:   "convert CAPTURE",
	Short: "Recover a drone script from a pcap/pcapng capture of SDK traffic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port := convertPort
		if port == 0 {
			port = cfg.CapturePort
		}

		c, err := pcapreader.ReadScript(args[0], port)
		if err != nil {
			return fmt.Errorf("capture %s: %w", args[0], err)
		}
		fmt.Fprint(cmd.OutOrStdout(), c.Script)

		if convertFleetOut != "" && len(c.Fleet.Drones) > 0 {
			f, err := os.Create(convertFleetOut)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := lua.WriteFleet(f, &c.Fleet); err != nil {
				return fmt.Errorf("write fleet: %w", err)
			}
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().IntVar(&convertPort, "port", 0, "destination UDP port of SDK commands (default from config, 8889)")
	convertCmd.Flags().StringVar(&convertFleetOut, "fleet-out", "", "also write a Lua fleet file for the drones seen")
	rootCmd.AddCommand(convertCmd)
}

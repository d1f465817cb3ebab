package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/samaelod/dronecmd/engine"
)

var (
	runTarget int
	runDrain  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run SCRIPT",
	Short: "Run a script headless against the fleet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := readScript(args[0], cfg.CapturePort)
		if err != nil {
			return err
		}

		fleet, err := resolveFleet()
		if err != nil {
			return err
		}

		eng, err := engine.NewEngine(fleet, cfg, sessionLogPath(cfg.LogsDir, args[0]))
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		rep, runErr := eng.Run(ctx, src, runTarget)

		// Let the senders flush what the script queued.
		drainQueues(ctx, eng, runDrain)

		out := cmd.OutOrStdout()
		printf(out, "lines %d, commands %d, delays %d, barriers %d, elapsed %s\n",
			rep.Lines, rep.Commands, rep.Delays, rep.Barriers, rep.Elapsed.Round(time.Millisecond))
		for _, e := range rep.Errors {
			printf(out, "error: %v\n", e)
		}
		for _, d := range eng.Drones() {
			printf(out, "[%d] %s sent=%d recv=%d last=%q\n", d.Index, d.ID, d.Stats.Sent, d.Stats.Received, d.Response)
		}

		if runErr != nil {
			return fmt.Errorf("run: %w", runErr)
		}
		return nil
	},
}

func drainQueues(ctx context.Context, eng *engine.Engine, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		pending := 0
		for _, d := range eng.Drones() {
			pending += d.Pending
		}
		if pending == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func init() {
	runCmd.Flags().IntVarP(&runTarget, "target", "t", engine.AllDrones, "run on a single drone index (default all)")
	runCmd.Flags().DurationVar(&runDrain, "drain", 5*time.Second, "how long to wait for queued commands to be sent")
	rootCmd.AddCommand(runCmd)
}

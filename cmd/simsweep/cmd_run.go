package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate every run, then launch them",
		Long: `Run the full sweep: the generate phase followed by the launch phase.

Runs that failed to generate are still submitted for launch; the simulator
reports the missing configuration in its error file. With --fail-fast the
sweep stops before launching anything if generation failed.

Examples:
  simsweep run
  simsweep run --clean archive --max-concurrent 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			jsonOut, _ := cmd.Flags().GetBool("json")
			out := progressWriter(cmd, jsonOut)

			genReport, err := generate(ctx, s, out)
			if err != nil {
				if jsonOut {
					json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"generate": generateJSON(genReport)})
				}
				return err
			}

			launchReport, launchErr := launch(ctx, s, genReport.SweepID, out)
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"generate": generateJSON(genReport),
					"launch":   launchJSON(launchReport),
				})
			}
			if launchErr != nil {
				return launchErr
			}

			total := s.plan.Params.Size()
			return errors.Join(
				failureSummary("generation", genReport.Err(), len(genReport.Failures), total),
				failureSummary("launch", launchReport.Err(), len(launchReport.Failures), total),
			)
		},
	}

	addGenerateFlags(cmd)
	addLaunchFlags(cmd)
	cmd.Flags().Bool("fail-fast", false, "Stop at the first run that fails")
	return cmd
}

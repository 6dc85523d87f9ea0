package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/nvandessel/simsweep/internal/launcher"
	"github.com/nvandessel/simsweep/internal/ratelimit"
	"github.com/spf13/cobra"
)

func newLaunchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start the simulator for every run",
		Long: `Start one simulator process per run, passing the run's configuration
file as its only argument. Standard output and error go to files inside the
run directory.

By default processes are started detached and simsweep exits without waiting
for them. With --max-concurrent N at most N simulators run at a time and
simsweep waits until the last one has exited.

Examples:
  simsweep launch
  simsweep launch --max-concurrent 4 --rate 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			jsonOut, _ := cmd.Flags().GetBool("json")
			report, err := launch(ctx, s, "", progressWriter(cmd, jsonOut))
			if jsonOut {
				encodeLaunchReport(cmd.OutOrStdout(), report)
			}
			if err != nil {
				return err
			}
			return failureSummary("launch", report.Err(), len(report.Failures), s.plan.Params.Size())
		},
	}

	addLaunchFlags(cmd)
	cmd.Flags().Bool("fail-fast", false, "Stop at the first run that fails to start")
	return cmd
}

func addLaunchFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-concurrent", 0, "Maximum simulators alive at once, 0 for detached fire-and-forget (overrides config)")
	cmd.Flags().Float64("rate", 0, "Maximum process starts per second, 0 for no pacing (overrides config)")
}

// launch runs the launch phase of s. An empty sweepID lets the launcher pick
// the latest sweep of the workspace.
func launch(ctx context.Context, s *session, sweepID string, out io.Writer) (*launcher.Report, error) {
	var policy launcher.Policy = launcher.Detached{Logger: s.logger}
	if s.cfg.Launch.MaxConcurrent > 0 {
		policy = launcher.NewBounded(s.cfg.Launch.MaxConcurrent, s.logger)
	}

	l := launcher.New(s.plan, nil, s.ledger, &launcher.Config{
		SweepID:  sweepID,
		Policy:   policy,
		Limiter:  ratelimit.NewLaunchLimiter(s.cfg.Launch.Rate, s.cfg.Launch.Burst),
		FailFast: s.cfg.FailFast,
		Logger:   s.logger,
		Events:   s.events,
		Out:      out,
	})
	return l.Launch(ctx)
}

func launchJSON(report *launcher.Report) map[string]any {
	if report == nil {
		return map[string]any{"status": "error"}
	}
	failures := make([]jsonFailure, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, jsonFailure{Run: f.Identity, Error: f.Err.Error()})
	}
	launched := report.Launched
	if launched == nil {
		launched = []launcher.Launched{}
	}
	return map[string]any{
		"sweep_id": report.SweepID,
		"launched": launched,
		"failures": failures,
	}
}

func encodeLaunchReport(w io.Writer, report *launcher.Report) {
	json.NewEncoder(w).Encode(launchJSON(report))
}

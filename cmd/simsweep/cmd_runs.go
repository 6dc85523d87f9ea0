package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/simsweep/internal/constants"
	"github.com/nvandessel/simsweep/internal/store"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show what the latest sweep generated and launched",
		Long: `List the runs recorded in the ledger for the most recent sweep of the
workspace, or for the sweep given with --sweep.

The ledger records what simsweep did: which runs were generated, which were
started and with which PID, and which failed. It does not track whether a
simulator is still running.

Examples:
  simsweep runs
  simsweep runs --status failed --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noLedger, _ := cmd.Flags().GetBool("no-ledger"); noLedger {
				return fmt.Errorf("runs reads the ledger and cannot be used with --no-ledger")
			}
			root, err := resolveRoot(cmd)
			if err != nil {
				return err
			}

			ledger, err := store.NewSQLiteLedger(root)
			if err != nil {
				return fmt.Errorf("failed to open ledger: %w", err)
			}
			defer ledger.Close()

			ctx := cmd.Context()
			sweepID, _ := cmd.Flags().GetString("sweep")
			if sweepID == "" {
				latest, err := ledger.LatestSweep(ctx)
				if err != nil {
					return err
				}
				if latest == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No sweeps recorded yet.")
					return nil
				}
				sweepID = latest.ID
			}

			runs, err := ledger.ListRuns(ctx, sweepID)
			if err != nil {
				return err
			}

			status, _ := cmd.Flags().GetString("status")
			if status != "" {
				filtered := runs[:0]
				for _, r := range runs {
					if r.Status == status {
						filtered = append(filtered, r)
					}
				}
				runs = filtered
			}

			counts := map[string]int{}
			for _, r := range runs {
				counts[r.Status]++
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()
			if jsonOut {
				if runs == nil {
					runs = []store.RunRecord{}
				}
				return json.NewEncoder(out).Encode(map[string]any{
					"sweep_id": sweepID,
					"counts":   counts,
					"runs":     runs,
				})
			}

			fmt.Fprintf(out, "Sweep %s\n\n", sweepID)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTATUS\tSEED\tPID\tERROR")
			for _, r := range runs {
				pid := "-"
				if r.PID != 0 {
					pid = fmt.Sprint(r.PID)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.Identity, r.Status, r.Seed, pid, r.Error)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d generated, %d launched, %d failed\n",
				counts[constants.RunStatusGenerated], counts[constants.RunStatusLaunched], counts[constants.RunStatusFailed])
			return nil
		},
	}

	cmd.Flags().String("sweep", "", "Sweep ID (default: latest)")
	cmd.Flags().String("status", "", "Only show runs with this status: generated, launched or failed")
	return cmd
}

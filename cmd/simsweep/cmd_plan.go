package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/simsweep/internal/sweep"
	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "List the runs of the sweep without touching the filesystem",
		Long: `List every run of the parameter space with its directory name.

The generate phase visits runs with the execution index outermost, the
launch phase with it innermost. Both cover the same set of runs.

Examples:
  simsweep plan
  simsweep plan --order launch --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			plan := cfg.Plan(root)

			order, _ := cmd.Flags().GetString("order")
			var tuples []sweep.Tuple
			switch order {
			case "generate":
				tuples = plan.Params.GenerationOrder()
			case "launch":
				tuples = plan.Params.LaunchOrder()
			default:
				return fmt.Errorf("invalid order %q (valid: generate, launch)", order)
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()
			if jsonOut {
				type jsonRun struct {
					Index      int         `json:"index"`
					Identity   string      `json:"identity"`
					Tuple      sweep.Tuple `json:"tuple"`
					ConfigPath string      `json:"config_path"`
				}
				runs := make([]jsonRun, 0, len(tuples))
				for i, t := range tuples {
					runs = append(runs, jsonRun{
						Index:      i,
						Identity:   plan.Layout.Identity(t),
						Tuple:      t,
						ConfigPath: plan.Layout.ConfigPath(t),
					})
				}
				return json.NewEncoder(out).Encode(map[string]any{
					"order": order,
					"count": len(runs),
					"runs":  runs,
				})
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tRUN\tEXECUTION")
			for i, t := range tuples {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", i, plan.Layout.Identity(t), t.Execution)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d runs (%s order)\n", len(tuples), order)
			return nil
		},
	}

	cmd.Flags().String("order", "generate", "Enumeration order: generate or launch")
	return cmd
}

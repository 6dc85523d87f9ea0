package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nvandessel/simsweep/internal/generator"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create one run directory and configuration file per run",
		Long: `Clean run directories left by a previous sweep, then create a directory
for every run and render the template into its configuration file.

Every run of the same execution index shares one drawn climate seed.

Examples:
  simsweep generate
  simsweep generate --clean archive --random-seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			jsonOut, _ := cmd.Flags().GetBool("json")
			report, err := generate(ctx, s, progressWriter(cmd, jsonOut))
			if jsonOut {
				encodeGenerateReport(cmd.OutOrStdout(), report)
			}
			if err != nil {
				return err
			}
			return failureSummary("generation", report.Err(), len(report.Failures), s.plan.Params.Size())
		},
	}

	addGenerateFlags(cmd)
	cmd.Flags().Bool("fail-fast", false, "Stop at the first run that fails")
	return cmd
}

func addGenerateFlags(cmd *cobra.Command) {
	cmd.Flags().String("clean", "", "Handling of previous run directories: delete, archive or none (overrides config)")
	cmd.Flags().Int64("random-seed", 0, "Seed of the climate seed generator, 0 for time-based (overrides config)")
}

// generate runs the generation phase of s.
func generate(ctx context.Context, s *session, out io.Writer) (*generator.Report, error) {
	g := generator.New(s.plan, s.ledger, &generator.Config{
		Clean:        s.cfg.Generate.Clean,
		KeepArchives: s.cfg.Generate.KeepArchives,
		RandomSeed:   s.cfg.Generate.RandomSeed,
		FailFast:     s.cfg.FailFast,
		Logger:       s.logger,
		Events:       s.events,
		Out:          out,
	})
	return g.Generate(ctx)
}

// progressWriter returns where human progress lines go: stdout, or nowhere
// when JSON output is requested.
func progressWriter(cmd *cobra.Command, jsonOut bool) io.Writer {
	if jsonOut {
		return io.Discard
	}
	return cmd.OutOrStdout()
}

// failureSummary turns collected per-run failures into the command error.
func failureSummary(phase string, joined error, failed, total int) error {
	if joined == nil {
		return nil
	}
	return fmt.Errorf("%s: %d of %d runs failed:\n%w", phase, failed, total, joined)
}

type jsonFailure struct {
	Run   string `json:"run"`
	Op    string `json:"op,omitempty"`
	Error string `json:"error"`
}

func generateJSON(report *generator.Report) map[string]any {
	if report == nil {
		return map[string]any{"status": "error"}
	}
	failures := make([]jsonFailure, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, jsonFailure{Run: f.Identity, Op: f.Op, Error: f.Err.Error()})
	}
	return map[string]any{
		"sweep_id":     report.SweepID,
		"seeds":        report.Seeds,
		"cleaned":      report.Cleaned,
		"archive_path": report.ArchivePath,
		"created":      report.Created,
		"failures":     failures,
	}
}

func encodeGenerateReport(w io.Writer, report *generator.Report) {
	json.NewEncoder(w).Encode(generateJSON(report))
}

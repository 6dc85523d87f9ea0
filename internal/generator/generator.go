// Package generator materializes one run directory and configuration file
// per point of a sweep's parameter space.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nvandessel/simsweep/internal/archive"
	"github.com/nvandessel/simsweep/internal/constants"
	"github.com/nvandessel/simsweep/internal/logging"
	"github.com/nvandessel/simsweep/internal/pathutil"
	"github.com/nvandessel/simsweep/internal/store"
	"github.com/nvandessel/simsweep/internal/substitute"
	"github.com/nvandessel/simsweep/internal/sweep"
)

// Config holds the knobs of a generation pass.
type Config struct {
	// Clean selects what happens to run directories left by a previous sweep:
	// constants.CleanDelete, constants.CleanArchive or constants.CleanNone.
	// Default: CleanDelete
	Clean string

	// KeepArchives bounds how many archives survive rotation in archive mode.
	// Negative keeps all. Default: constants.MaxArchiveRotation
	KeepArchives int

	// RandomSeed seeds the climate seed generator. Zero uses the clock.
	RandomSeed int64

	// FailFast aborts on the first per-run failure.
	FailFast bool

	// Logger receives operational logs. Default: discard.
	Logger *slog.Logger

	// Events receives JSONL sweep events. May be nil.
	Events *logging.EventLogger

	// Out receives the human progress lines. Default: io.Discard.
	Out io.Writer
}

// DefaultConfig returns the generation defaults.
func DefaultConfig() Config {
	return Config{
		Clean:        constants.CleanDelete,
		KeepArchives: constants.MaxArchiveRotation,
	}
}

// Generator creates the run directories of a Plan.
type Generator struct {
	plan   sweep.Plan
	ledger store.Ledger
	cfg    Config
}

// New creates a Generator for plan. A nil ledger records into memory only.
// If config is nil, DefaultConfig is used.
func New(plan sweep.Plan, ledger store.Ledger, config *Config) *Generator {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Clean == "" {
		cfg.Clean = constants.CleanDelete
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if ledger == nil {
		ledger = store.NewMemoryLedger()
	}
	return &Generator{plan: plan, ledger: ledger, cfg: cfg}
}

// Generate cleans the namespace and creates every run of the plan in
// generation order. Per-run failures are collected in the report; with
// FailFast the first one is also returned wrapped in ErrAborted.
// The returned error is non-nil only when generation could not proceed.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	layout := g.plan.Layout
	log := g.cfg.Logger

	if info, err := os.Stat(layout.Root); err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", layout.Root)
	}
	if _, err := os.Stat(g.plan.Template); err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	sw := store.NewSweep(layout.Root, g.plan.Params.Size(), g.cfg.RandomSeed)
	if err := g.ledger.BeginSweep(ctx, sw); err != nil {
		return nil, fmt.Errorf("failed to begin sweep: %w", err)
	}
	report := &Report{SweepID: sw.ID, Created: []string{}}

	cleaned, archivePath, err := g.clean()
	if err != nil {
		return report, fmt.Errorf("failed to clean previous runs: %w", err)
	}
	report.Cleaned = cleaned
	report.ArchivePath = archivePath
	if cleaned > 0 {
		log.Info("cleaned previous runs", "count", cleaned, "mode", g.cfg.Clean, "archive", archivePath)
		g.cfg.Events.Log(map[string]any{
			"event":   "sweep_cleaned",
			"sweep":   sw.ID,
			"mode":    g.cfg.Clean,
			"count":   cleaned,
			"archive": archivePath,
		})
	}

	fmt.Fprintln(g.cfg.Out, "creating test workbench")

	rng := sweep.NewRand(g.cfg.RandomSeed)
	seeds := sweep.DrawSeeds(rng, g.plan.Params.Executions, g.plan.SeedUpperBound)
	report.Seeds = seeds

	for i, t := range g.plan.Params.GenerationOrder() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		fmt.Fprintf(g.cfg.Out, "creating instance: %d for map: %s numHG: %s with controller: %s biomass distribution: %s and execution: %d\n",
			i, t.MapSize, t.NumHG, t.Controller, t.BiomassDistribution, t.Execution)

		seed := seeds[t.Execution]
		if err := g.createRun(ctx, sw.ID, t, seed); err != nil {
			runErr := &RunError{Identity: layout.Identity(t), Op: opOf(err), Err: err}
			report.Failures = append(report.Failures, runErr)
			log.Error("run generation failed", "run", runErr.Identity, "op", runErr.Op, "error", err)
			g.cfg.Events.Log(map[string]any{
				"event": "run_failed",
				"sweep": sw.ID,
				"phase": "generate",
				"run":   runErr.Identity,
				"error": err.Error(),
			})
			if lerr := g.ledger.RecordFailed(ctx, store.RunRecord{
				SweepID:  sw.ID,
				Identity: runErr.Identity,
				Tuple:    t,
				Seed:     seed,
				Phase:    "generate",
				Error:    err.Error(),
			}); lerr != nil {
				log.Warn("failed to record run failure", "run", runErr.Identity, "error", lerr)
			}
			if g.cfg.FailFast {
				return report, fmt.Errorf("%w: %w", ErrAborted, runErr)
			}
			continue
		}
		report.Created = append(report.Created, layout.Identity(t))
	}

	fmt.Fprintln(g.cfg.Out, "workbench done")
	return report, nil
}

// createRun creates the run directory of t and renders its configuration.
func (g *Generator) createRun(ctx context.Context, sweepID string, t sweep.Tuple, seed int64) error {
	layout := g.plan.Layout
	dir := layout.RunDir(t)

	if err := pathutil.ValidateRunDir(layout.Root, dir); err != nil {
		return &opError{op: OpValidate, err: err}
	}
	if err := os.Mkdir(dir, 0755); err != nil {
		return &opError{op: OpMkdir, err: err}
	}

	reps := g.plan.Tokens.Replacements(t, seed)
	if g.cfg.Logger.Enabled(ctx, logging.LevelTrace) {
		for _, r := range reps {
			g.cfg.Logger.Log(ctx, logging.LevelTrace, "substitute", "run", layout.Identity(t), "token", r.Token, "value", r.Value)
		}
	}

	configPath := layout.ConfigPath(t)
	if err := substitute.RenderFile(g.plan.Template, configPath, reps); err != nil {
		return &opError{op: OpRender, err: err}
	}

	left, err := substitute.Unresolved(configPath, g.plan.Tokens.List())
	if err != nil {
		return &opError{op: OpRender, err: err}
	}
	if len(left) > 0 {
		g.cfg.Logger.Warn("tokens left after substitution", "run", layout.Identity(t), "tokens", left)
	}

	if err := g.ledger.RecordGenerated(ctx, store.RunRecord{
		SweepID:    sweepID,
		Identity:   layout.Identity(t),
		Tuple:      t,
		Seed:       seed,
		ConfigPath: configPath,
	}); err != nil {
		g.cfg.Logger.Warn("failed to record generated run", "run", layout.Identity(t), "error", err)
	}

	g.cfg.Logger.Debug("run generated", "run", layout.Identity(t), "seed", seed)
	g.cfg.Events.Log(map[string]any{
		"event":  "run_generated",
		"sweep":  sweepID,
		"run":    layout.Identity(t),
		"seed":   seed,
		"config": configPath,
	})
	return nil
}

// clean handles run directories left by a previous sweep according to the
// clean mode. It returns how many were handled and the archive path, if any.
func (g *Generator) clean() (int, string, error) {
	if g.cfg.Clean == constants.CleanNone {
		return 0, "", nil
	}

	matches, err := filepath.Glob(g.plan.Layout.Pattern())
	if err != nil {
		return 0, "", fmt.Errorf("bad run directory pattern: %w", err)
	}

	var dirs []string
	for _, m := range matches {
		info, err := os.Lstat(m)
		if err != nil || !info.IsDir() {
			continue
		}
		dirs = append(dirs, m)
	}
	if len(dirs) == 0 {
		return 0, "", nil
	}

	switch g.cfg.Clean {
	case constants.CleanDelete:
		for _, d := range dirs {
			if err := os.RemoveAll(d); err != nil {
				return 0, "", fmt.Errorf("failed to remove %s: %w", filepath.Base(d), err)
			}
		}
		return len(dirs), "", nil

	case constants.CleanArchive:
		archiveRoot := pathutil.ArchiveDir(g.plan.Layout.Root)
		dest, err := archive.Archive(dirs, archiveRoot)
		if err != nil {
			return 0, dest, err
		}
		if err := archive.Rotate(archiveRoot, &archive.CountPolicy{MaxCount: g.cfg.KeepArchives}); err != nil {
			g.cfg.Logger.Warn("archive rotation failed", "error", err)
		}
		return len(dirs), dest, nil

	default:
		return 0, "", fmt.Errorf("unknown clean mode %q", g.cfg.Clean)
	}
}

// opOf extracts the failed operation from an error returned by createRun.
func opOf(err error) string {
	var oe *opError
	if errors.As(err, &oe) {
		return oe.op
	}
	return ""
}

// Package launcher starts one simulator process per run of a sweep.
//
// The launcher derives every path from the plan's Layout again and never
// checks that the generator ran. What happens to a process after it started
// is decided by a Policy.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/nvandessel/simsweep/internal/logging"
	"github.com/nvandessel/simsweep/internal/ratelimit"
	"github.com/nvandessel/simsweep/internal/store"
	"github.com/nvandessel/simsweep/internal/sweep"
)

// limiterKey is the single bucket used to pace process starts.
const limiterKey = "launch"

// ErrAborted marks a launch stopped on its first failure.
var ErrAborted = errors.New("launch aborted")

// Job is everything needed to start the simulator for one run.
type Job struct {
	Tuple      sweep.Tuple
	Identity   string
	Dir        string
	ConfigPath string
	LogPath    string
	ErrPath    string

	// WorkDir is the working directory of the simulator process.
	WorkDir string
}

// NewJob derives the job of t from layout.
func NewJob(layout sweep.Layout, t sweep.Tuple) Job {
	return Job{
		Tuple:      t,
		Identity:   layout.Identity(t),
		Dir:        layout.RunDir(t),
		ConfigPath: layout.ConfigPath(t),
		LogPath:    layout.LogPath(t),
		ErrPath:    layout.ErrPath(t),
		WorkDir:    layout.Root,
	}
}

// JobError is a failure to start one run.
type JobError struct {
	Identity string
	Err      error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s: %v", e.Identity, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Launched identifies a started process.
type Launched struct {
	Identity string `json:"identity"`
	PID      int    `json:"pid"`
}

// Report summarizes a launch pass.
type Report struct {
	SweepID  string      `json:"sweep_id"`
	Launched []Launched  `json:"launched"`
	Failures []*JobError `json:"-"`
}

// Err joins every per-job failure, or returns nil.
func (r *Report) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Config holds the knobs of a launch pass.
type Config struct {
	// SweepID is the ledger sweep the launches belong to. When empty, the
	// latest sweep of the same workspace is used, or a new one is begun.
	SweepID string

	// Policy manages started processes. Default: Detached.
	Policy Policy

	// Limiter paces process starts. Nil means no pacing.
	Limiter *ratelimit.Limiter

	// FailFast aborts on the first failed start.
	FailFast bool

	// Logger receives operational logs. Default: discard.
	Logger *slog.Logger

	// Events receives JSONL sweep events. May be nil.
	Events *logging.EventLogger

	// Out receives the human progress lines. Default: io.Discard.
	Out io.Writer
}

// Launcher starts the runs of a Plan.
type Launcher struct {
	plan    sweep.Plan
	spawner Spawner
	ledger  store.Ledger
	cfg     Config

	mu     sync.Mutex
	report *Report
}

// New creates a Launcher. A nil spawner runs plan.Simulator through
// ExecSpawner; a nil ledger records into memory only.
func New(plan sweep.Plan, spawner Spawner, ledger store.Ledger, config *Config) *Launcher {
	var cfg Config
	if config != nil {
		cfg = *config
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Policy == nil {
		cfg.Policy = Detached{Logger: cfg.Logger}
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if spawner == nil {
		spawner = &ExecSpawner{Binary: plan.Simulator}
	}
	if ledger == nil {
		ledger = store.NewMemoryLedger()
	}
	return &Launcher{plan: plan, spawner: spawner, ledger: ledger, cfg: cfg}
}

// Launch submits every run of the plan in launch order and waits for the
// policy to finish. Per-job failures are collected in the report; with
// FailFast the first one stops submission and is returned wrapped in
// ErrAborted.
func (l *Launcher) Launch(ctx context.Context) (*Report, error) {
	sweepID, err := l.resolveSweep(ctx)
	if err != nil {
		return nil, err
	}
	l.report = &Report{SweepID: sweepID}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(l.cfg.Out, "submitting tasks")

	for i, t := range l.plan.Params.LaunchOrder() {
		if runCtx.Err() != nil {
			break
		}

		job := NewJob(l.plan.Layout, t)
		fmt.Fprintf(l.cfg.Out, "submitting instance: %d for map: %s numHG: %s with controller: %s biomass distribution: %s and execution: %d\n",
			i, t.MapSize, t.NumHG, t.Controller, t.BiomassDistribution, t.Execution)

		if err := l.cfg.Limiter.Wait(runCtx, limiterKey); err != nil {
			if runCtx.Err() == nil {
				l.fail(ctx, sweepID, job, err)
			}
			break
		}

		start := func() (Process, error) {
			return l.start(runCtx, sweepID, job, cancel)
		}
		if err := l.cfg.Policy.Submit(runCtx, start); err != nil {
			break
		}
	}

	if err := l.cfg.Policy.Wait(ctx); err != nil && ctx.Err() == nil {
		l.cfg.Logger.Warn("launch policy wait failed", "error", err)
	}

	l.mu.Lock()
	report := l.report
	l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if l.cfg.FailFast && len(report.Failures) > 0 {
		return report, fmt.Errorf("%w: %w", ErrAborted, report.Failures[0])
	}
	return report, nil
}

// start spawns job and records the outcome. With FailFast a failure cancels
// the launch context so no further job is submitted.
func (l *Launcher) start(ctx context.Context, sweepID string, job Job, cancel context.CancelFunc) (Process, error) {
	log := l.cfg.Logger
	if log.Enabled(ctx, logging.LevelTrace) {
		log.Log(ctx, logging.LevelTrace, "spawn", "run", job.Identity, "argv", strings.Join([]string{l.binary(), job.ConfigPath}, " "), "dir", job.WorkDir)
	}

	p, err := l.spawner.Start(ctx, job)
	if err != nil {
		l.fail(ctx, sweepID, job, err)
		if l.cfg.FailFast {
			cancel()
		}
		return nil, err
	}

	pid := p.PID()
	l.mu.Lock()
	l.report.Launched = append(l.report.Launched, Launched{Identity: job.Identity, PID: pid})
	l.mu.Unlock()

	log.Debug("run launched", "run", job.Identity, "pid", pid)
	l.cfg.Events.Log(map[string]any{
		"event": "run_launched",
		"sweep": sweepID,
		"run":   job.Identity,
		"pid":   pid,
	})
	if err := l.ledger.RecordLaunched(context.WithoutCancel(ctx), store.RunRecord{
		SweepID:    sweepID,
		Identity:   job.Identity,
		Tuple:      job.Tuple,
		ConfigPath: job.ConfigPath,
		PID:        pid,
	}); err != nil {
		log.Warn("failed to record launched run", "run", job.Identity, "error", err)
	}
	return p, nil
}

// fail records a failed start of job.
func (l *Launcher) fail(ctx context.Context, sweepID string, job Job, err error) {
	jobErr := &JobError{Identity: job.Identity, Err: err}

	l.mu.Lock()
	l.report.Failures = append(l.report.Failures, jobErr)
	l.mu.Unlock()

	l.cfg.Logger.Error("run launch failed", "run", job.Identity, "error", err)
	l.cfg.Events.Log(map[string]any{
		"event": "run_failed",
		"sweep": sweepID,
		"phase": "launch",
		"run":   job.Identity,
		"error": err.Error(),
	})
	if lerr := l.ledger.RecordFailed(context.WithoutCancel(ctx), store.RunRecord{
		SweepID:    sweepID,
		Identity:   job.Identity,
		Tuple:      job.Tuple,
		ConfigPath: job.ConfigPath,
		Phase:      "launch",
		Error:      err.Error(),
	}); lerr != nil {
		l.cfg.Logger.Warn("failed to record run failure", "run", job.Identity, "error", lerr)
	}
}

// resolveSweep picks the ledger sweep the launches are recorded under.
func (l *Launcher) resolveSweep(ctx context.Context) (string, error) {
	if l.cfg.SweepID != "" {
		return l.cfg.SweepID, nil
	}

	latest, err := l.ledger.LatestSweep(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read latest sweep: %w", err)
	}
	if latest != nil && latest.Root == l.plan.Layout.Root {
		return latest.ID, nil
	}

	sw := store.NewSweep(l.plan.Layout.Root, l.plan.Params.Size(), 0)
	if err := l.ledger.BeginSweep(ctx, sw); err != nil {
		return "", fmt.Errorf("failed to begin sweep: %w", err)
	}
	return sw.ID, nil
}

// binary returns the executable name for logging.
func (l *Launcher) binary() string {
	if s, ok := l.spawner.(*ExecSpawner); ok {
		return s.Binary
	}
	return l.plan.Simulator
}

// Package store defines the Ledger interface recording what a sweep
// generated and launched.
//
// The ledger is bookkeeping of the harness's own actions. It never polls or
// tracks simulator processes after they have been started.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/simsweep/internal/sweep"
)

// Sweep is one invocation of the harness against a workspace.
type Sweep struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Root       string    `json:"root"`
	Runs       int       `json:"runs"`        // size of the parameter space
	RandomSeed int64     `json:"random_seed"` // seed of the climate seed generator, 0 if time-based
}

// NewSweep returns a Sweep with a fresh ID.
func NewSweep(root string, runs int, randomSeed int64) Sweep {
	return Sweep{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Root:       root,
		Runs:       runs,
		RandomSeed: randomSeed,
	}
}

// RunRecord is the ledger entry of one run within a sweep.
type RunRecord struct {
	SweepID     string      `json:"sweep_id"`
	Identity    string      `json:"identity"`
	Tuple       sweep.Tuple `json:"tuple"`
	Seed        int64       `json:"seed"`
	ConfigPath  string      `json:"config_path"`
	Status      string      `json:"status"`
	Phase       string      `json:"phase,omitempty"` // "generate" or "launch" for failures
	PID         int         `json:"pid,omitempty"`
	Error       string      `json:"error,omitempty"`
	GeneratedAt *time.Time  `json:"generated_at,omitempty"`
	LaunchedAt  *time.Time  `json:"launched_at,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Ledger records sweeps and their runs.
type Ledger interface {
	// BeginSweep registers a new sweep.
	BeginSweep(ctx context.Context, s Sweep) error

	// LatestSweep returns the most recently created sweep, or nil if none.
	LatestSweep(ctx context.Context) (*Sweep, error)

	// RecordGenerated stores a run whose directory and config were created.
	RecordGenerated(ctx context.Context, rec RunRecord) error

	// RecordLaunched marks a run as started with the given PID.
	RecordLaunched(ctx context.Context, rec RunRecord) error

	// RecordFailed marks a run as failed in rec.Phase with rec.Error.
	RecordFailed(ctx context.Context, rec RunRecord) error

	// ListRuns returns every run of a sweep ordered by identity.
	ListRuns(ctx context.Context, sweepID string) ([]RunRecord, error)

	// Close releases resources.
	Close() error
}

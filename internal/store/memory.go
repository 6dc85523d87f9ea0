package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/simsweep/internal/constants"
)

// MemoryLedger implements Ledger in memory for tests and --no-ledger runs.
type MemoryLedger struct {
	mu     sync.RWMutex
	sweeps []Sweep
	runs   map[string]map[string]RunRecord // sweep ID -> identity -> record
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		runs: make(map[string]map[string]RunRecord),
	}
}

// BeginSweep registers a sweep.
func (m *MemoryLedger) BeginSweep(ctx context.Context, sw Sweep) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sw.ID == "" {
		return fmt.Errorf("sweep ID is required")
	}
	if _, exists := m.runs[sw.ID]; exists {
		return fmt.Errorf("sweep already exists: %s", sw.ID)
	}
	m.sweeps = append(m.sweeps, sw)
	m.runs[sw.ID] = make(map[string]RunRecord)
	return nil
}

// LatestSweep returns the most recently registered sweep, or nil.
func (m *MemoryLedger) LatestSweep(ctx context.Context) (*Sweep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.sweeps) == 0 {
		return nil, nil
	}
	sw := m.sweeps[len(m.sweeps)-1]
	return &sw, nil
}

// RecordGenerated stores a run with status generated.
func (m *MemoryLedger) RecordGenerated(ctx context.Context, rec RunRecord) error {
	now := time.Now().UTC()
	if rec.GeneratedAt == nil {
		rec.GeneratedAt = &now
	}
	rec.Status = constants.RunStatusGenerated
	rec.UpdatedAt = now
	return m.upsert(rec)
}

// RecordLaunched stores a run with status launched.
func (m *MemoryLedger) RecordLaunched(ctx context.Context, rec RunRecord) error {
	now := time.Now().UTC()
	if rec.LaunchedAt == nil {
		rec.LaunchedAt = &now
	}
	rec.Status = constants.RunStatusLaunched
	rec.UpdatedAt = now
	return m.upsert(rec)
}

// RecordFailed stores a run with status failed.
func (m *MemoryLedger) RecordFailed(ctx context.Context, rec RunRecord) error {
	rec.Status = constants.RunStatusFailed
	rec.UpdatedAt = time.Now().UTC()
	return m.upsert(rec)
}

// upsert merges rec into the stored record the same way SQLiteLedger does.
func (m *MemoryLedger) upsert(rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs, ok := m.runs[rec.SweepID]
	if !ok {
		return fmt.Errorf("failed to record run %s: unknown sweep %s", rec.Identity, rec.SweepID)
	}

	if prev, exists := runs[rec.Identity]; exists {
		if rec.Seed == 0 {
			rec.Seed = prev.Seed
		}
		if rec.ConfigPath == "" {
			rec.ConfigPath = prev.ConfigPath
		}
		if rec.PID == 0 {
			rec.PID = prev.PID
		}
		if rec.GeneratedAt == nil {
			rec.GeneratedAt = prev.GeneratedAt
		}
		if rec.LaunchedAt == nil {
			rec.LaunchedAt = prev.LaunchedAt
		}
	}
	runs[rec.Identity] = rec
	return nil
}

// ListRuns returns every run of a sweep ordered by identity.
func (m *MemoryLedger) ListRuns(ctx context.Context, sweepID string) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := m.runs[sweepID]
	result := make([]RunRecord, 0, len(runs))
	for _, rec := range runs {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Identity < result[j].Identity
	})
	return result, nil
}

// Close is a no-op.
func (m *MemoryLedger) Close() error {
	return nil
}

var _ Ledger = (*MemoryLedger)(nil)

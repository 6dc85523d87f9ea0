package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/simsweep/internal/constants"
	_ "modernc.org/sqlite" // SQLite driver
)

// timestampLayout is fixed-width so stored timestamps sort as strings.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteLedger implements Ledger using SQLite for persistence.
type SQLiteLedger struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteLedger opens (or creates) the ledger at root/.simsweep/ledger.db.
func NewSQLiteLedger(root string) (*SQLiteLedger, error) {
	stateDir := filepath.Join(root, constants.StateDirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", constants.StateDirName, err)
	}
	return OpenSQLiteLedger(filepath.Join(stateDir, constants.LedgerFileName))
}

// OpenSQLiteLedger opens the ledger database at dbPath.
func OpenSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Bounded launch records from several goroutines; keep a single writer.
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteLedger{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteLedger) Path() string {
	return s.dbPath
}

// BeginSweep inserts a sweep row.
func (s *SQLiteLedger) BeginSweep(ctx context.Context, sw Sweep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sweeps (id, created_at, root, runs, random_seed)
		VALUES (?, ?, ?, ?, ?)`,
		sw.ID, sw.CreatedAt.UTC().Format(timestampLayout), sw.Root, sw.Runs, sw.RandomSeed)
	if err != nil {
		return fmt.Errorf("failed to insert sweep %s: %w", sw.ID, err)
	}
	return nil
}

// LatestSweep returns the most recently created sweep, or nil when the ledger is empty.
func (s *SQLiteLedger) LatestSweep(ctx context.Context) (*Sweep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sw        Sweep
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, root, runs, random_seed
		FROM sweeps ORDER BY created_at DESC, rowid DESC LIMIT 1`).
		Scan(&sw.ID, &createdAt, &sw.Root, &sw.Runs, &sw.RandomSeed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest sweep: %w", err)
	}
	sw.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &sw, nil
}

// RecordGenerated upserts a run with status generated.
func (s *SQLiteLedger) RecordGenerated(ctx context.Context, rec RunRecord) error {
	now := time.Now().UTC()
	if rec.GeneratedAt == nil {
		rec.GeneratedAt = &now
	}
	rec.Status = constants.RunStatusGenerated
	rec.UpdatedAt = now
	return s.upsert(ctx, rec)
}

// RecordLaunched upserts a run with status launched and its PID.
func (s *SQLiteLedger) RecordLaunched(ctx context.Context, rec RunRecord) error {
	now := time.Now().UTC()
	if rec.LaunchedAt == nil {
		rec.LaunchedAt = &now
	}
	rec.Status = constants.RunStatusLaunched
	rec.UpdatedAt = now
	return s.upsert(ctx, rec)
}

// RecordFailed upserts a run with status failed.
func (s *SQLiteLedger) RecordFailed(ctx context.Context, rec RunRecord) error {
	rec.Status = constants.RunStatusFailed
	rec.UpdatedAt = time.Now().UTC()
	return s.upsert(ctx, rec)
}

// upsert writes rec. Columns left empty in rec keep their stored value, so a
// launch record does not erase the seed written at generation.
func (s *SQLiteLedger) upsert(ctx context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			sweep_id, identity, map_size, num_hg, controller, biomass_distribution, execution,
			seed, config_path, status, phase, pid, error, generated_at, launched_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sweep_id, identity) DO UPDATE SET
			seed = CASE WHEN excluded.seed != 0 THEN excluded.seed ELSE runs.seed END,
			config_path = CASE WHEN excluded.config_path != '' THEN excluded.config_path ELSE runs.config_path END,
			status = excluded.status,
			phase = excluded.phase,
			pid = COALESCE(excluded.pid, runs.pid),
			error = excluded.error,
			generated_at = COALESCE(excluded.generated_at, runs.generated_at),
			launched_at = COALESCE(excluded.launched_at, runs.launched_at),
			updated_at = excluded.updated_at`,
		rec.SweepID, rec.Identity,
		rec.Tuple.MapSize, rec.Tuple.NumHG, rec.Tuple.Controller, rec.Tuple.BiomassDistribution, rec.Tuple.Execution,
		rec.Seed, rec.ConfigPath, rec.Status, nullString(rec.Phase), nullInt(rec.PID), nullString(rec.Error),
		nullTime(rec.GeneratedAt), nullTime(rec.LaunchedAt), rec.UpdatedAt.Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", rec.Identity, err)
	}
	return nil
}

// ListRuns returns every run of a sweep ordered by identity.
func (s *SQLiteLedger) ListRuns(ctx context.Context, sweepID string) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT sweep_id, identity, map_size, num_hg, controller, biomass_distribution, execution,
			seed, config_path, status, phase, pid, error, generated_at, launched_at, updated_at
		FROM runs WHERE sweep_id = ? ORDER BY identity`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			rec                     RunRecord
			phase, errText          sql.NullString
			pid                     sql.NullInt64
			generatedAt, launchedAt sql.NullString
			updatedAt               string
		)
		if err := rows.Scan(
			&rec.SweepID, &rec.Identity,
			&rec.Tuple.MapSize, &rec.Tuple.NumHG, &rec.Tuple.Controller, &rec.Tuple.BiomassDistribution, &rec.Tuple.Execution,
			&rec.Seed, &rec.ConfigPath, &rec.Status, &phase, &pid, &errText,
			&generatedAt, &launchedAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.Phase = phase.String
		rec.Error = errText.String
		rec.PID = int(pid.Int64)
		rec.GeneratedAt = parseNullTime(generatedAt)
		rec.LaunchedAt = parseNullTime(launchedAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// Close closes the database.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timestampLayout), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// Compile-time check.
var _ Ledger = (*SQLiteLedger)(nil)

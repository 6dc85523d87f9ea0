// Package constants provides named constants used throughout simsweep.
// This centralizes file names and defaults shared by several packages.
package constants

// Workspace state files
const (
	// StateDirName is the hidden directory under the workspace root holding
	// the ledger, the event log and archives.
	StateDirName = ".simsweep"

	// LedgerFileName is the SQLite run ledger inside StateDirName.
	LedgerFileName = "ledger.db"

	// EventsFileName is the JSONL event log inside StateDirName.
	EventsFileName = "events.jsonl"

	// ArchiveDirName holds archived run directories inside StateDirName.
	ArchiveDirName = "archive"

	// ConfigFileName is the default sweep configuration file in the workspace root.
	ConfigFileName = "sweep.yaml"
)

// Defaults matching the stock exploration workbench.
const (
	// DefaultTemplate is the configuration template, relative to the workspace root.
	DefaultTemplate = "templates/config_template_local.xml"

	// DefaultSimulator is the simulator executable, relative to the workspace root.
	DefaultSimulator = "../gujarat"

	// DefaultExecutions is the number of repeats per parameter combination.
	DefaultExecutions = 2
)

// Clean modes decide what happens to run directories left by a previous sweep.
const (
	CleanDelete  = "delete"  // remove them (destructive, no confirmation)
	CleanArchive = "archive" // move them under .simsweep/archive/<timestamp>/
	CleanNone    = "none"    // leave them; colliding runs fail with "already exists"
)

// Archive rotation controls how many archived sweeps are retained.
const (
	// MaxArchiveRotation is the default maximum number of archives to keep.
	MaxArchiveRotation = 10
)

// Run statuses recorded in the ledger.
const (
	RunStatusGenerated = "generated"
	RunStatusLaunched  = "launched"
	RunStatusFailed    = "failed"
)

package generator

import (
	"errors"
	"fmt"
)

// Operations that can fail while creating a run.
const (
	OpValidate = "validate"
	OpMkdir    = "mkdir"
	OpRender   = "render"
)

// ErrAborted marks a generation stopped on its first failure.
var ErrAborted = errors.New("generation aborted")

// RunError is a failure to create one run.
type RunError struct {
	Identity string
	Op       string
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Identity, e.Op, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// opError tags an error with the operation that produced it.
type opError struct {
	op  string
	err error
}

func (e *opError) Error() string { return e.err.Error() }
func (e *opError) Unwrap() error { return e.err }

// Report summarizes a generation pass.
type Report struct {
	// SweepID identifies the sweep in the ledger.
	SweepID string `json:"sweep_id"`

	// Seeds holds the climate seed of each repeat index.
	Seeds []int64 `json:"seeds"`

	// Cleaned counts run directories removed or archived before generation.
	Cleaned int `json:"cleaned"`

	// ArchivePath is where previous runs were moved in archive mode.
	ArchivePath string `json:"archive_path,omitempty"`

	// Created lists the identities of the runs created, in generation order.
	Created []string `json:"created"`

	// Failures lists the runs that could not be created.
	Failures []*RunError `json:"-"`
}

// Err joins every per-run failure, or returns nil.
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

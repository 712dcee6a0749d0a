// Package errs defines the pipeline's error taxonomy: a closed set of
// kinds the orchestrator switches on to decide whether to abort the
// whole run, fail one month, or quarantine one chunk.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy values in the error model. It is compared
// by value, never by string-matching a wrapped driver error's message.
type Kind string

const (
	Config     Kind = "CONFIG"     // bad backfill spec, bad chunk size, lock unavailable
	Network    Kind = "NETWORK"    // fetch failed after retries exhausted
	NotFound   Kind = "NOTFOUND"   // month not published yet
	Schema     Kind = "SCHEMA"     // DDL rejected
	Reference  Kind = "REFERENCE"  // zone file malformed, CRS reprojection failed
	ChunkType  Kind = "CHUNK_TYPE" // column of a row could not be cast
	ChunkConstraint Kind = "CHUNK_CONSTRAINT" // null in required column, FK miss
	ChunkDuplicate  Kind = "CHUNK_DUPLICATE"  // fingerprint already present
	ChunkUnknown    Kind = "CHUNK_UNKNOWN"    // bulk insert failed, unclassified
	Fatal      Kind = "FATAL" // database unreachable, disk full
)

// PipelineError pairs a taxonomy Kind with the underlying cause so
// callers can both switch on Kind and unwrap to the original error.
type PipelineError struct {
	Kind Kind
	Err  error
}

func New(kind Kind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}

func Newf(kind Kind, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, errs.New(Network, nil)) match on Kind alone,
// ignoring the wrapped cause — used by tests that only care that a
// function failed with a given taxonomy kind.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) a PipelineError,
// defaulting to Fatal for anything else — an unclassified error is
// treated as the most severe kind rather than silently ignored.
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Fatal
}

// Terminal reports whether kind aborts the whole run (exit 1 or 2),
// with the exit code for each terminal kind given by ExitCode below.
func Terminal(kind Kind) bool {
	switch kind {
	case Config, Schema, Reference, Fatal:
		return true
	default:
		return false
	}
}

// ExitCode maps a terminal Kind to the process exit code a wrapper
// script should propagate. Callers must only call this for kinds
// where Terminal is true.
func ExitCode(kind Kind) int {
	if kind == Config {
		return 2
	}
	return 1
}

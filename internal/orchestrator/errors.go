package orchestrator

import "errors"

var (
	// ErrNoPages is returned when the PDF reports zero pages. No output is
	// written.
	ErrNoPages = errors.New("pdf has no pages")
	// ErrUnknownRun is returned when resuming a run id without a checkpoint.
	ErrUnknownRun = errors.New("no checkpoint for run")
	// ErrResumeMismatch is returned when the checkpoint belongs to a
	// different document or mode.
	ErrResumeMismatch = errors.New("checkpoint does not match input")
)

// Package services holds the application logic behind the generation API:
// the pipeline orchestrator, submission and progress, credits, and videos.
// This file centralizes the service-level error values so handlers can map
// them to HTTP results consistently.
package services

import "errors"

var (
	// ErrProcessNotFound indicates that the processId is unknown or not owned
	// by the caller.
	ErrProcessNotFound = errors.New("process not found")

	// ErrInvalidScriptOption is returned when scriptOption is neither "gpt"
	// nor "custom".
	ErrInvalidScriptOption = errors.New("scriptOption must be gpt or custom")

	// ErrMissingScript is returned when the selected script option has no
	// input: an empty topic for "gpt" or an empty script for "custom".
	ErrMissingScript = errors.New("script input is empty")

	// ErrMissingVoice is returned when a submission has no voiceId.
	ErrMissingVoice = errors.New("voiceId is required")

	// ErrInsufficientCredits is the advisory rejection at submit time. It
	// is not a reservation; the real debit happens after composition.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrAlreadyTerminal is returned when cancelling a finished process.
	ErrAlreadyTerminal = errors.New("process already finished")

	// ErrDuplicateDebit signals that a process has already been billed.
	ErrDuplicateDebit = errors.New("process already debited")

	// ErrInvalidGrant is returned for a zero amount or unknown transaction type.
	ErrInvalidGrant = errors.New("invalid credit grant")
)

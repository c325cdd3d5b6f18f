package emailqueue

import "errors"

// Validation errors.
var (
	ErrValidation      = errors.New("validation failed")
	ErrUnknownTemplate = errors.New("unknown template")
)

// Repository errors.
var (
	ErrEntryNotFound = errors.New("queue entry not found")
	// ErrNotClaimed is returned when a status transition finds the entry no longer in processing.
	ErrNotClaimed = errors.New("queue entry is not claimed")
)

// Delivery errors.
var (
	// ErrTemporaryFailure marks a send error the transport considers transient.
	// The entry still fails; an administrator can retry it.
	ErrTemporaryFailure = errors.New("temporary delivery failure")
)

// Manager errors.
var (
	ErrNotRetryable = errors.New("only failed entries can be retried")
)

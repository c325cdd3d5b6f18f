package emailqueue

import (
	"context"
	"time"
)

// Repository defines persistence for the email queue.
type Repository interface {
	// Enqueue inserts a new entry. ID, status and timestamps must be set by the caller.
	Enqueue(ctx context.Context, entry *Entry) error

	// ClaimPending atomically moves up to limit due pending entries (scheduled_for <= now)
	// to processing, oldest first, incrementing their attempt counter.
	// Entries claimed by a concurrent caller are never returned twice.
	ClaimPending(ctx context.Context, now time.Time, limit int) ([]*Entry, error)

	// ReleaseClaim returns an unattempted processing entry to pending and undoes
	// the attempt increment of the claim.
	ReleaseClaim(ctx context.Context, id string, at time.Time) error

	// RenewClaim refreshes the claim timestamp of a processing entry right before
	// it is attempted. It returns ErrNotClaimed when the entry left processing.
	RenewClaim(ctx context.Context, id string, at time.Time) error

	// MarkAsSent and MarkAsFailed finish a claimed entry. They return ErrNotClaimed
	// when the entry is not in processing.
	MarkAsSent(ctx context.Context, id string, at time.Time) error
	MarkAsFailed(ctx context.Context, id string, reason string, at time.Time) error

	// RecoverStuckProcessing fails entries left in processing since before the cutoff.
	RecoverStuckProcessing(ctx context.Context, before time.Time, reason string, at time.Time) (int64, error)

	// CancelPending deletes pending entries of a template whose template data
	// field key equals value.
	CancelPending(ctx context.Context, template Template, key, value string) (int64, error)

	GetQueueStats(ctx context.Context) (*Stats, error)

	// DeleteFinishedBefore deletes sent and failed entries last updated before cutoff.
	// Pending and processing entries are never deleted.
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	GetEntry(ctx context.Context, id string) (*Entry, error)
	ListEntries(ctx context.Context, filter ListFilter) ([]*Entry, error)
}

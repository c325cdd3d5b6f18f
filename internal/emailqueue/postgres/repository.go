// Package postgres provides PostgreSQL implementation of the email queue repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorlot/marketplace/internal/emailqueue"
)

const entryColumns = `id, recipient, template, template_data, status, scheduled_for,
	attempts, COALESCE(last_error, ''), created_at, updated_at, sent_at`

// Repository implements emailqueue.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Enqueue inserts a new queue entry.
func (r *Repository) Enqueue(ctx context.Context, entry *emailqueue.Entry) error {
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("marshal template data: %w", err)
	}

	query := `
		INSERT INTO email_queue (id, recipient, template, template_data, status, scheduled_for, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		entry.ID,
		entry.Recipient,
		entry.Template,
		data,
		entry.Status,
		entry.ScheduledFor,
		entry.Attempts,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

// ClaimPending flips up to limit due pending entries to processing in a single
// statement. Rows locked by a concurrent claim are skipped.
func (r *Repository) ClaimPending(ctx context.Context, now time.Time, limit int) ([]*emailqueue.Entry, error) {
	query := `
		UPDATE email_queue q
		SET status = 'processing', attempts = q.attempts + 1, updated_at = $1
		WHERE q.id IN (
			SELECT id FROM email_queue
			WHERE status = 'pending' AND scheduled_for <= $1
			ORDER BY created_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + entryColumns

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ReleaseClaim returns a claimed entry to pending and undoes the attempt increment.
func (r *Repository) ReleaseClaim(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE email_queue
		SET status = 'pending', attempts = GREATEST(attempts - 1, 0), updated_at = $2
		WHERE id = $1 AND status = 'processing'
	`
	return r.transition(ctx, "release claim", query, id, at)
}

// RenewClaim refreshes updated_at of an entry that is still processing.
func (r *Repository) RenewClaim(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE email_queue
		SET updated_at = $2
		WHERE id = $1 AND status = 'processing'
	`
	return r.transition(ctx, "renew claim", query, id, at)
}

// MarkAsSent marks a claimed entry as sent.
func (r *Repository) MarkAsSent(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE email_queue
		SET status = 'sent', sent_at = $2, updated_at = $2, last_error = NULL
		WHERE id = $1 AND status = 'processing'
	`
	return r.transition(ctx, "mark as sent", query, id, at)
}

// MarkAsFailed marks a claimed entry as failed with the given reason.
func (r *Repository) MarkAsFailed(ctx context.Context, id string, reason string, at time.Time) error {
	query := `
		UPDATE email_queue
		SET status = 'failed', last_error = $2, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`
	return r.transition(ctx, "mark as failed", query, id, reason, at)
}

func (r *Repository) transition(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if result.RowsAffected() == 0 {
		return emailqueue.ErrNotClaimed
	}
	return nil
}

// CancelPending deletes pending entries matched by template and a template data field.
func (r *Repository) CancelPending(ctx context.Context, template emailqueue.Template, key, value string) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM email_queue
		WHERE status = 'pending' AND template = $1 AND template_data->>$2::text = $3
	`, template, key, value)
	if err != nil {
		return 0, fmt.Errorf("cancel pending entries: %w", err)
	}
	return result.RowsAffected(), nil
}

// RecoverStuckProcessing fails entries left in processing since before the cutoff.
func (r *Repository) RecoverStuckProcessing(ctx context.Context, before time.Time, reason string, at time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE email_queue
		SET status = 'failed', last_error = $2, updated_at = $3
		WHERE status = 'processing' AND updated_at < $1
	`, before, reason, at)
	if err != nil {
		return 0, fmt.Errorf("recover stuck entries: %w", err)
	}
	return result.RowsAffected(), nil
}

// GetQueueStats returns entry counts by status.
func (r *Repository) GetQueueStats(ctx context.Context) (*emailqueue.Stats, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM email_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	defer rows.Close()

	stats := &emailqueue.Stats{}
	for rows.Next() {
		var status emailqueue.Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}

		switch status {
		case emailqueue.StatusPending:
			stats.Pending = count
		case emailqueue.StatusProcessing:
			stats.Processing = count
		case emailqueue.StatusSent:
			stats.Sent = count
		case emailqueue.StatusFailed:
			stats.Failed = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue stats: %w", err)
	}

	return stats, nil
}

// DeleteFinishedBefore deletes sent and failed entries last updated before cutoff.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM email_queue
		WHERE status IN ('sent', 'failed') AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete finished entries: %w", err)
	}
	return result.RowsAffected(), nil
}

// GetEntry retrieves a queue entry by ID.
func (r *Repository) GetEntry(ctx context.Context, id string) (*emailqueue.Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, emailqueue.ErrEntryNotFound
	}

	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM email_queue WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, emailqueue.ErrEntryNotFound
		}
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return entry, nil
}

// ListEntries returns entries newest first.
func (r *Repository) ListEntries(ctx context.Context, filter emailqueue.ListFilter) ([]*emailqueue.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM email_queue
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]*emailqueue.Entry, error) {
	entries := make([]*emailqueue.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue entries: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (*emailqueue.Entry, error) {
	var entry emailqueue.Entry
	var raw []byte
	err := row.Scan(
		&entry.ID,
		&entry.Recipient,
		&entry.Template,
		&raw,
		&entry.Status,
		&entry.ScheduledFor,
		&entry.Attempts,
		&entry.LastError,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&entry.SentAt,
	)
	if err != nil {
		return nil, err
	}

	// Rows written before a template changed shape keep Data nil; the manager
	// fails them instead of aborting the whole read.
	data, err := emailqueue.DecodeTemplateData(entry.Template, raw)
	if err != nil {
		slog.Warn("stored template data does not decode",
			"entry_id", entry.ID,
			"template", entry.Template,
			"error", err,
		)
	}
	entry.Data = data

	return &entry, nil
}

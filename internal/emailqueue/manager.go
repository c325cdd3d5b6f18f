package emailqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/motorlot/marketplace/internal/pkg/ctxlog"
)

// Processing outcome labels used in metrics.
const (
	outcomeSent            = "sent"
	outcomeFailed          = "failed"
	outcomeFailedTemporary = "failed_temporary"
)

// InterruptedReason is recorded on entries a crashed sweep left in processing.
const InterruptedReason = "processing interrupted"

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// finishTimeout bounds the status update after a delivery attempt.
	finishTimeout = 5 * time.Second
)

// ManagerConfig contains queue processing configuration.
type ManagerConfig struct {
	BatchSize   int
	SendTimeout time.Duration
}

// DefaultManagerConfig returns default manager configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BatchSize:   50,
		SendTimeout: 10 * time.Second,
	}
}

// Manager owns the lifecycle of queued emails.
type Manager struct {
	repo     Repository
	renderer *Renderer
	sender   Sender
	config   ManagerConfig
	now      func() time.Time
}

// NewManager creates a new queue manager.
func NewManager(repo Repository, renderer *Renderer, sender Sender, config ManagerConfig) *Manager {
	defaults := DefaultManagerConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}

	return &Manager{
		repo:     repo,
		renderer: renderer,
		sender:   sender,
		config:   config,
		now:      time.Now,
	}
}

// EnqueueInput describes a new queue entry with loosely-typed template data.
type EnqueueInput struct {
	Recipient    string         `json:"recipient"`
	Template     Template       `json:"template"`
	Data         map[string]any `json:"template_data"`
	ScheduledFor *time.Time     `json:"scheduled_for,omitempty"`
}

// Enqueue validates the input and stores a pending entry.
// Nothing is persisted when validation fails.
func (m *Manager) Enqueue(ctx context.Context, input EnqueueInput) (*Entry, error) {
	if !input.Template.IsValid() {
		return nil, fmt.Errorf("%w: %w %q", ErrValidation, ErrUnknownTemplate, input.Template)
	}

	data, err := NewTemplateData(input.Template, input.Data)
	if err != nil {
		return nil, err
	}

	return m.EnqueueData(ctx, input.Recipient, data, input.ScheduledFor)
}

// EnqueueData stores a pending entry for already typed template data.
func (m *Manager) EnqueueData(ctx context.Context, recipient string, data TemplateData, scheduledFor *time.Time) (*Entry, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if err := validate.Var(recipient, "email"); err != nil {
		return nil, fmt.Errorf("%w: recipient %q is not a valid email address", ErrValidation, recipient)
	}
	if err := validateTemplateData(data); err != nil {
		return nil, err
	}

	now := m.now()
	entry := &Entry{
		ID:           uuid.NewString(),
		Recipient:    recipient,
		Template:     data.Template(),
		Data:         data,
		Status:       StatusPending,
		ScheduledFor: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if scheduledFor != nil && !scheduledFor.IsZero() {
		entry.ScheduledFor = *scheduledFor
	}

	if err := m.repo.Enqueue(ctx, entry); err != nil {
		return nil, fmt.Errorf("enqueue email: %w", err)
	}

	recordEnqueued(entry.Template)
	ctxlog.FromContext(ctx).Debug("email enqueued",
		"entry_id", entry.ID,
		"template", entry.Template,
		"scheduled_for", entry.ScheduledFor,
	)

	return entry, nil
}

// ProcessQueue claims up to limit due entries and delivers them one at a time,
// oldest first. Delivery failures are recorded per entry. Store failures abort
// the sweep and are returned together with the partial result.
func (m *Manager) ProcessQueue(ctx context.Context, limit int) (ProcessResult, error) {
	var result ProcessResult
	if limit <= 0 {
		limit = m.config.BatchSize
	}

	entries, err := m.repo.ClaimPending(ctx, m.now(), limit)
	if err != nil {
		return result, fmt.Errorf("claim pending entries: %w", err)
	}
	if len(entries) == 0 {
		return result, nil
	}

	recordClaimed(len(entries))
	sortOldestFirst(entries)

	logger := ctxlog.FromContext(ctx)
	logger.Debug("processing email queue", "claimed", len(entries))

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			m.releaseClaims(ctx, entries[i:])
			return result, fmt.Errorf("process queue: %w", err)
		}

		// A long sweep can outlive the stale cutoff; entries recovered in the
		// meantime are terminal and must not be sent.
		err := m.repo.RenewClaim(ctx, entry.ID, m.now())
		if errors.Is(err, ErrNotClaimed) {
			logger.Warn("skipping queue entry no longer claimed", "entry_id", entry.ID)
			continue
		}
		if err != nil {
			m.releaseClaims(ctx, entries[i:])
			return result, fmt.Errorf("renew claim of %s: %w", entry.ID, err)
		}

		sent, err := m.deliver(ctx, entry)
		if err != nil {
			m.releaseClaims(ctx, entries[i+1:])
			return result, err
		}

		result.Processed++
		if sent {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	logger.Info("email queue processed",
		"processed", result.Processed,
		"sent", result.Sent,
		"failed", result.Failed,
	)

	return result, nil
}

// deliver renders and sends one claimed entry and records the outcome.
// The returned error is a store failure; delivery failures only flip sent to false.
func (m *Manager) deliver(ctx context.Context, entry *Entry) (bool, error) {
	logger := ctxlog.FromContext(ctx).With("entry_id", entry.ID, "template", entry.Template)

	content, err := m.render(entry)
	if err != nil {
		logger.Error("failed to render email", "error", err)
		recordProcessed(entry.Template, outcomeFailed)
		return false, m.finish(ctx, entry, err.Error())
	}

	msg := Message{
		To:      entry.Recipient,
		Subject: content.Subject,
		HTML:    content.HTML,
		Text:    content.Text,
	}

	start := time.Now()
	sendCtx, cancel := context.WithTimeout(ctx, m.config.SendTimeout)
	messageID, err := m.sender.Send(sendCtx, msg)
	timedOut := errors.Is(sendCtx.Err(), context.DeadlineExceeded)
	cancel()
	duration := time.Since(start)

	if err != nil {
		reason := err.Error()
		if timedOut && ctx.Err() == nil {
			reason = fmt.Sprintf("send timed out after %s: %s", m.config.SendTimeout, err)
		}
		logger.Warn("email send failed", "attempt", entry.Attempts, "error", reason)
		if errors.Is(err, ErrTemporaryFailure) {
			recordProcessed(entry.Template, outcomeFailedTemporary)
		} else {
			recordProcessed(entry.Template, outcomeFailed)
		}
		return false, m.finish(ctx, entry, reason)
	}

	recordProcessed(entry.Template, outcomeSent)
	recordSendDuration(entry.Template, duration)
	logger.Debug("email sent", "message_id", messageID, "duration", duration)

	return true, m.finish(ctx, entry, "")
}

func (m *Manager) render(entry *Entry) (*Content, error) {
	if entry.Data == nil {
		return nil, errors.New("entry has no decodable template data")
	}
	if entry.Data.Template() != entry.Template {
		return nil, fmt.Errorf("template data for %s stored on %s entry", entry.Data.Template(), entry.Template)
	}
	return m.renderer.Render(entry.Data)
}

// finish moves a claimed entry to sent (empty reason) or failed. The update runs
// detached from ctx so an attempted send is always recorded. An entry that is no
// longer claimed is logged and skipped.
func (m *Manager) finish(ctx context.Context, entry *Entry, reason string) error {
	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	var err error
	if reason == "" {
		err = m.repo.MarkAsSent(updateCtx, entry.ID, m.now())
	} else {
		err = m.repo.MarkAsFailed(updateCtx, entry.ID, reason, m.now())
	}

	if errors.Is(err, ErrNotClaimed) {
		ctxlog.FromContext(ctx).Warn("queue entry changed during delivery",
			"entry_id", entry.ID,
			"error", err,
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update queue entry %s: %w", entry.ID, err)
	}
	return nil
}

// releaseClaims returns claimed entries that were never attempted to pending.
func (m *Manager) releaseClaims(ctx context.Context, entries []*Entry) {
	if len(entries) == 0 {
		return
	}

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	logger := ctxlog.FromContext(ctx)
	for _, entry := range entries {
		if err := m.repo.ReleaseClaim(releaseCtx, entry.ID, m.now()); err != nil {
			logger.Error("failed to release queue entry", "entry_id", entry.ID, "error", err)
		}
	}
	logger.Info("released unprocessed queue entries", "count", len(entries))
}

func sortOldestFirst(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}

// Stats returns entry counts by status and refreshes the queue gauges.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	stats, err := m.repo.GetQueueStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	RecordQueueStats(stats)
	return stats, nil
}

// Cleanup deletes sent and failed entries not updated for olderThanDays days.
// Pending and processing entries are kept regardless of age.
func (m *Manager) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("%w: older_than_days must be positive", ErrValidation)
	}

	cutoff := m.now().AddDate(0, 0, -olderThanDays)
	deleted, err := m.repo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup email queue: %w", err)
	}

	ctxlog.FromContext(ctx).Info("email queue cleaned up",
		"older_than_days", olderThanDays,
		"deleted", deleted,
	)
	return deleted, nil
}

// CancelPending drops pending entries of template whose data field key equals
// value. Entries already claimed are left alone.
func (m *Manager) CancelPending(ctx context.Context, template Template, key, value string) (int64, error) {
	cancelled, err := m.repo.CancelPending(ctx, template, key, value)
	if err != nil {
		return 0, fmt.Errorf("cancel pending %s entries: %w", template, err)
	}
	if cancelled > 0 {
		ctxlog.FromContext(ctx).Info("pending emails cancelled",
			"template", template,
			key, value,
			"count", cancelled,
		)
	}
	return cancelled, nil
}

// RecoverStale fails entries left in processing for longer than olderThan.
// They may already have been sent, so they are never returned to pending.
func (m *Manager) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := m.now()
	recovered, err := m.repo.RecoverStuckProcessing(ctx, now.Add(-olderThan), InterruptedReason, now)
	if err != nil {
		return 0, fmt.Errorf("recover stale entries: %w", err)
	}
	if recovered > 0 {
		ctxlog.FromContext(ctx).Warn("failed stale processing entries", "count", recovered)
	}
	return recovered, nil
}

// Get returns a single entry.
func (m *Manager) Get(ctx context.Context, id string) (*Entry, error) {
	return m.repo.GetEntry(ctx, id)
}

// List returns entries newest first.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]*Entry, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return m.repo.ListEntries(ctx, filter)
}

// Retry re-enqueues a failed entry as a fresh pending entry.
// The failed entry itself stays terminal.
func (m *Manager) Retry(ctx context.Context, id string) (*Entry, error) {
	entry, err := m.repo.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusFailed {
		return nil, fmt.Errorf("%w: entry is %s", ErrNotRetryable, entry.Status)
	}
	if entry.Data == nil {
		return nil, fmt.Errorf("%w: entry has no decodable template data", ErrValidation)
	}

	retried, err := m.EnqueueData(ctx, entry.Recipient, entry.Data, nil)
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("failed email re-enqueued",
		"entry_id", entry.ID,
		"new_entry_id", retried.ID,
	)
	return retried, nil
}

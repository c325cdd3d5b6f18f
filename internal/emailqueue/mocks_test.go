package emailqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/motorlot/marketplace/internal/domain"
)

// memoryRepo is an in-memory Repository with the same claim semantics as the SQL one.
type memoryRepo struct {
	mu      sync.Mutex
	entries map[string]*Entry

	claimErr   error
	markErr    error
	renewErr   error
	enqueueErr error

	// reverseClaims returns claimed entries newest first to exercise re-sorting.
	reverseClaims bool
	released      []string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: make(map[string]*Entry)}
}

func (r *memoryRepo) Enqueue(_ context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enqueueErr != nil {
		return r.enqueueErr
	}
	clone := *entry
	r.entries[entry.ID] = &clone
	return nil
}

func (r *memoryRepo) ClaimPending(_ context.Context, now time.Time, limit int) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimErr != nil {
		return nil, r.claimErr
	}

	due := make([]*Entry, 0)
	for _, e := range r.entries {
		if e.Status == StatusPending && !e.ScheduledFor.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*Entry, 0, len(due))
	for _, e := range due {
		e.Status = StatusProcessing
		e.Attempts++
		e.UpdatedAt = now
		clone := *e
		claimed = append(claimed, &clone)
	}
	if r.reverseClaims {
		for i, j := 0, len(claimed)-1; i < j; i, j = i+1, j-1 {
			claimed[i], claimed[j] = claimed[j], claimed[i]
		}
	}
	return claimed, nil
}

func (r *memoryRepo) ReleaseClaim(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Status != StatusProcessing {
		return ErrNotClaimed
	}
	e.Status = StatusPending
	if e.Attempts > 0 {
		e.Attempts--
	}
	e.UpdatedAt = at
	r.released = append(r.released, id)
	return nil
}

func (r *memoryRepo) RenewClaim(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.renewErr != nil {
		return r.renewErr
	}
	e, ok := r.entries[id]
	if !ok || e.Status != StatusProcessing {
		return ErrNotClaimed
	}
	e.UpdatedAt = at
	return nil
}

func (r *memoryRepo) MarkAsSent(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	e, ok := r.entries[id]
	if !ok || e.Status != StatusProcessing {
		return ErrNotClaimed
	}
	e.Status = StatusSent
	e.LastError = ""
	e.SentAt = &at
	e.UpdatedAt = at
	return nil
}

func (r *memoryRepo) MarkAsFailed(_ context.Context, id string, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	e, ok := r.entries[id]
	if !ok || e.Status != StatusProcessing {
		return ErrNotClaimed
	}
	e.Status = StatusFailed
	e.LastError = reason
	e.UpdatedAt = at
	return nil
}

func (r *memoryRepo) RecoverStuckProcessing(_ context.Context, before time.Time, reason string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.entries {
		if e.Status == StatusProcessing && e.UpdatedAt.Before(before) {
			e.Status = StatusFailed
			e.LastError = reason
			e.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) CancelPending(_ context.Context, template Template, key, value string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.entries {
		if e.Status != StatusPending || e.Template != template || e.Data == nil {
			continue
		}
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return n, err
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return n, err
		}
		if fields[key] == value {
			delete(r.entries, id)
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) GetQueueStats(_ context.Context) (*Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &Stats{}
	for _, e := range r.entries {
		switch e.Status {
		case StatusPending:
			stats.Pending++
		case StatusProcessing:
			stats.Processing++
		case StatusSent:
			stats.Sent++
		case StatusFailed:
			stats.Failed++
		}
		stats.Total++
	}
	return stats, nil
}

func (r *memoryRepo) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.entries {
		if e.Status.IsTerminal() && e.UpdatedAt.Before(cutoff) {
			delete(r.entries, id)
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) GetEntry(_ context.Context, id string) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	clone := *e
	return &clone, nil
}

func (r *memoryRepo) ListEntries(_ context.Context, filter ListFilter) ([]*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Entry, 0)
	for _, e := range r.entries {
		if filter.Status == "" || e.Status == filter.Status {
			clone := *e
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset >= len(out) {
		return []*Entry{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// get returns a copy of the stored entry for assertions.
func (r *memoryRepo) get(id string) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.entries[id]
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// put stores an entry directly, bypassing validation.
func (r *memoryRepo) put(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = &e
}

// fakeSender records delivered messages and fails for configured recipients.
type fakeSender struct {
	mu     sync.Mutex
	sent   []Message
	failOn map[string]error
	// hook runs before each send; returning an error fails the send.
	hook func(ctx context.Context, msg Message) error
}

func (s *fakeSender) Send(ctx context.Context, msg Message) (string, error) {
	if s.hook != nil {
		if err := s.hook(ctx, msg); err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failOn[msg.To]; ok {
		return "", err
	}
	s.sent = append(s.sent, msg)
	return "<" + msg.To + ">", nil
}

func (s *fakeSender) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.To)
	}
	return out
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubProfiles implements ProfileLookup.
type stubProfiles struct {
	profiles map[string]*domain.Profile
	err      error
}

func (s *stubProfiles) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, errors.New("profile not found")
	}
	return p, nil
}

func (s *stubProfiles) ListProfilesByRole(_ context.Context, role domain.Role) ([]*domain.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*domain.Profile, 0)
	for _, p := range s.profiles {
		if p.Role == role {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

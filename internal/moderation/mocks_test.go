package moderation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/motorlot/marketplace/internal/domain"
)

var (
	errProfileMissing = errors.New("profile not found")
	errDatabase       = errors.New("database unavailable")
)

type mockRepository struct {
	mu            sync.Mutex
	verifications map[string]*domain.Verification
	vehicles      map[string]*domain.Vehicle
	activities    []*domain.AdminActivity
	err           error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		verifications: make(map[string]*domain.Verification),
		vehicles:      make(map[string]*domain.Vehicle),
	}
}

func (m *mockRepository) CreateVerification(_ context.Context, v *domain.Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.verifications {
		if existing.UserID == v.UserID && existing.Status == domain.ReviewStatusPending {
			return ErrVerificationPending
		}
	}
	clone := *v
	m.verifications[v.ID] = &clone
	return nil
}

func (m *mockRepository) ListVerifications(_ context.Context, status domain.ReviewStatus) ([]*domain.Verification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	list := make([]*domain.Verification, 0)
	for _, v := range m.verifications {
		if status == "" || v.Status == status {
			clone := *v
			list = append(list, &clone)
		}
	}
	return list, nil
}

func (m *mockRepository) DecideVerification(_ context.Context, review Review) (*domain.Verification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.verifications[review.TargetID]
	if !ok {
		return nil, ErrVerificationNotFound
	}
	v.Status = review.Status
	v.Reason = review.Reason
	v.ReviewedBy = &review.AdminID
	v.ReviewedAt = &review.At
	v.UpdatedAt = review.At
	m.activities = append(m.activities, review.Activity(TargetVerification))
	clone := *v
	return &clone, nil
}

func (m *mockRepository) DecideListing(_ context.Context, review Review) (*domain.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.vehicles[review.TargetID]
	if !ok {
		return nil, ErrListingNotFound
	}
	v.Status = review.Status
	v.RejectionReason = ""
	if review.Status == domain.ReviewStatusRejected {
		v.RejectionReason = review.Reason
	}
	if review.ExpiresAt != nil {
		v.ExpiresAt = review.ExpiresAt
	}
	v.UpdatedAt = review.At
	m.activities = append(m.activities, review.Activity(TargetListing))
	clone := *v
	return &clone, nil
}

type stubProfiles map[string]*domain.Profile

func (s stubProfiles) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	p, ok := s[id]
	if !ok {
		return nil, errProfileMissing
	}
	return p, nil
}

type verificationCall struct {
	email    string
	approved bool
	note     string
}

type listingCall struct {
	email    string
	title    string
	approved bool
	reason   string
}

type expiringCall struct {
	email     string
	expiresAt time.Time
	sendAt    time.Time
}

type adminCall struct {
	subject string
	message string
	path    string
}

type recordingNotifier struct {
	mu            sync.Mutex
	verifications []verificationCall
	listings      []listingCall
	expiring      []expiringCall
	admins        []adminCall
}

func (n *recordingNotifier) VerificationDecision(_ context.Context, p *domain.Profile, approved bool, note string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications = append(n.verifications, verificationCall{email: p.Email, approved: approved, note: note})
}

func (n *recordingNotifier) ListingDecision(_ context.Context, owner *domain.Profile, v *domain.Vehicle, approved bool, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listings = append(n.listings, listingCall{email: owner.Email, title: v.Title, approved: approved, reason: reason})
}

func (n *recordingNotifier) ListingExpiring(_ context.Context, owner *domain.Profile, _ *domain.Vehicle, expiresAt, sendAt time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expiring = append(n.expiring, expiringCall{email: owner.Email, expiresAt: expiresAt, sendAt: sendAt})
}

func (n *recordingNotifier) NotifyAdmins(_ context.Context, subject, message, path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admins = append(n.admins, adminCall{subject: subject, message: message, path: path})
}

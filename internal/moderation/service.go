// Package moderation implements administrator review of seller verifications
// and vehicle listings.
package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/motorlot/marketplace/internal/domain"
	"github.com/motorlot/marketplace/internal/pkg/ctxlog"
)

// Notifier queues review emails. Implementations must not block.
type Notifier interface {
	VerificationDecision(ctx context.Context, profile *domain.Profile, approved bool, note string)
	ListingDecision(ctx context.Context, owner *domain.Profile, vehicle *domain.Vehicle, approved bool, reason string)
	ListingExpiring(ctx context.Context, owner *domain.Profile, vehicle *domain.Vehicle, expiresAt, sendAt time.Time)
	NotifyAdmins(ctx context.Context, subject, message, actionPath string)
}

// ProfileLookup resolves the owners of reviewed items.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
}

// Config contains moderation settings.
type Config struct {
	// ListingTTL is how long an approved listing stays published.
	ListingTTL time.Duration
	// ExpiryNotice is how long before expiry the owner is reminded. Zero disables reminders.
	ExpiryNotice time.Duration
}

// DefaultConfig returns the default moderation settings.
func DefaultConfig() Config {
	return Config{
		ListingTTL:   30 * 24 * time.Hour,
		ExpiryNotice: 3 * 24 * time.Hour,
	}
}

// Decision is an administrator's verdict. Rejections need a reason.
type Decision struct {
	Approved *bool  `json:"approved" validate:"required"`
	Reason   string `json:"reason" validate:"max=1000"`
}

// Service handles moderation operations.
type Service struct {
	repo      Repository
	profiles  ProfileLookup
	notifier  Notifier
	config    Config
	validator *validator.Validate
	now       func() time.Time
}

// NewService creates a new moderation service.
func NewService(repo Repository, profiles ProfileLookup, notifier Notifier, config Config) *Service {
	return &Service{
		repo:      repo,
		profiles:  profiles,
		notifier:  notifier,
		config:    config,
		validator: validator.New(),
		now:       time.Now,
	}
}

// SubmitVerification opens a verification request for userID and alerts the administrators.
func (s *Service) SubmitVerification(ctx context.Context, userID string) (*domain.Verification, error) {
	now := s.now().UTC()
	v := &domain.Verification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    domain.ReviewStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateVerification(ctx, v); err != nil {
		return nil, err
	}

	requester := userID
	if profile, err := s.profiles.GetProfile(ctx, userID); err == nil {
		requester = fmt.Sprintf("%s <%s>", profile.DisplayName(), profile.Email)
	}
	s.notifier.NotifyAdmins(ctx,
		"New verification request",
		requester+" requested seller verification.",
		"/admin/verifications",
	)

	return v, nil
}

// ListVerifications returns verification requests, optionally filtered by status.
func (s *Service) ListVerifications(ctx context.Context, status domain.ReviewStatus) ([]*domain.Verification, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.repo.ListVerifications(ctx, status)
}

// DecideVerification applies an administrator's verdict to a verification
// request and notifies the requester. Email problems never fail the decision.
func (s *Service) DecideVerification(ctx context.Context, adminID, id string, decision Decision) (*domain.Verification, error) {
	review, err := s.review(adminID, id, decision)
	if err != nil {
		return nil, err
	}

	v, err := s.repo.DecideVerification(ctx, review)
	if err != nil {
		return nil, err
	}

	log := ctxlog.FromContext(ctx)
	log.Info("verification reviewed", "verification_id", v.ID, "status", v.Status)

	profile, err := s.profiles.GetProfile(ctx, v.UserID)
	if err != nil {
		log.Warn("verification requester not notified", "user_id", v.UserID, "error", err)
		return v, nil
	}
	s.notifier.VerificationDecision(ctx, profile, *decision.Approved, review.Reason)

	return v, nil
}

// DecideListing applies an administrator's verdict to a listing. Approval
// publishes it for ListingTTL and schedules the expiry reminder.
func (s *Service) DecideListing(ctx context.Context, adminID, id string, decision Decision) (*domain.Vehicle, error) {
	review, err := s.review(adminID, id, decision)
	if err != nil {
		return nil, err
	}
	if *decision.Approved && s.config.ListingTTL > 0 {
		expiresAt := review.At.Add(s.config.ListingTTL)
		review.ExpiresAt = &expiresAt
	}

	vehicle, err := s.repo.DecideListing(ctx, review)
	if err != nil {
		return nil, err
	}

	log := ctxlog.FromContext(ctx)
	log.Info("listing reviewed", "vehicle_id", vehicle.ID, "status", vehicle.Status)

	owner, err := s.profiles.GetProfile(ctx, vehicle.SellerID)
	if err != nil {
		log.Warn("listing owner not notified", "user_id", vehicle.SellerID, "error", err)
		return vehicle, nil
	}
	s.notifier.ListingDecision(ctx, owner, vehicle, *decision.Approved, review.Reason)

	if *decision.Approved && vehicle.ExpiresAt != nil && s.config.ExpiryNotice > 0 {
		sendAt := vehicle.ExpiresAt.Add(-s.config.ExpiryNotice)
		if sendAt.After(review.At) {
			s.notifier.ListingExpiring(ctx, owner, vehicle, *vehicle.ExpiresAt, sendAt)
		}
	}

	return vehicle, nil
}

func (s *Service) review(adminID, id string, decision Decision) (Review, error) {
	decision.Reason = strings.TrimSpace(decision.Reason)
	if err := s.validator.Struct(decision); err != nil {
		return Review{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	status := domain.ReviewStatusApproved
	if !*decision.Approved {
		if decision.Reason == "" {
			return Review{}, fmt.Errorf("%w: reason is required when rejecting", ErrValidation)
		}
		status = domain.ReviewStatusRejected
	}

	return Review{
		TargetID: id,
		AdminID:  adminID,
		Status:   status,
		Reason:   decision.Reason,
		At:       s.now().UTC(),
	}, nil
}

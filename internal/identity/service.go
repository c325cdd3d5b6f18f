// Package identity mirrors users of the external identity provider into local
// profiles and authenticates their access tokens.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/motorlot/marketplace/internal/domain"
	"github.com/motorlot/marketplace/internal/pkg/ctxlog"
)

// Event types sent by the identity provider.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	// EventPasswordReset asks for a reset link to be mailed. The provider owns
	// the link and retries the event until it is acknowledged.
	EventPasswordReset = "user.password_reset"
)

const defaultResetValidity = time.Hour

// Notifier sends identity emails. Welcome must not block; PasswordReset is
// synchronous and reports delivery failures.
type Notifier interface {
	Welcome(ctx context.Context, profile *domain.Profile)
	PasswordReset(ctx context.Context, email, name, resetURL string, validFor time.Duration) error
}

// Event is a user lifecycle event of the identity provider.
type Event struct {
	Type string    `json:"type" validate:"required"`
	User EventUser `json:"user"`
	// Reset is set for user.password_reset only.
	Reset *ResetRequest `json:"reset,omitempty" validate:"omitempty"`
}

// ResetRequest is the payload of a password reset event.
type ResetRequest struct {
	URL              string `json:"url" validate:"required,url"`
	ExpiresInMinutes int    `json:"expires_in_minutes" validate:"min=0"`
}

// EventUser is the user payload of an Event.
type EventUser struct {
	ID       string `json:"id" validate:"required,uuid"`
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"max=255"`
}

// Service handles profile operations.
type Service struct {
	repo      Repository
	notifier  Notifier
	validator *validator.Validate
}

// NewService creates a new identity service.
func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{
		repo:      repo,
		notifier:  notifier,
		validator: validator.New(),
	}
}

// HandleEvent applies a lifecycle event to the local profile. The welcome
// email is sent only when user.created inserted a new profile, so redelivered
// events do not greet twice.
func (s *Service) HandleEvent(ctx context.Context, event Event) (*domain.Profile, error) {
	event.User.Email = strings.TrimSpace(event.User.Email)
	event.User.FullName = strings.TrimSpace(event.User.FullName)

	if err := s.validator.Struct(event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	switch event.Type {
	case EventUserCreated, EventUserUpdated:
	case EventPasswordReset:
		return s.sendPasswordReset(ctx, event)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, event.Type)
	}

	profile := &domain.Profile{
		ID:       event.User.ID,
		Email:    event.User.Email,
		FullName: event.User.FullName,
		Role:     domain.RoleUser,
	}

	created, err := s.repo.UpsertProfile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	ctxlog.FromContext(ctx).Info("profile synced",
		"user_id", profile.ID,
		"event", event.Type,
		"created", created,
	)

	if created && event.Type == EventUserCreated {
		s.notifier.Welcome(ctx, profile)
	}

	return profile, nil
}

func (s *Service) sendPasswordReset(ctx context.Context, event Event) (*domain.Profile, error) {
	if event.Reset == nil {
		return nil, fmt.Errorf("%w: reset is required for %s", ErrValidation, event.Type)
	}

	profile, err := s.repo.GetProfile(ctx, event.User.ID)
	if err != nil {
		return nil, err
	}

	validFor := time.Duration(event.Reset.ExpiresInMinutes) * time.Minute
	if validFor == 0 {
		validFor = defaultResetValidity
	}

	// The provider's address is authoritative for where the link goes.
	if err := s.notifier.PasswordReset(ctx, event.User.Email, profile.DisplayName(), event.Reset.URL, validFor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	ctxlog.FromContext(ctx).Info("password reset sent", "user_id", profile.ID)
	return profile, nil
}

// GetProfile retrieves a profile by ID.
func (s *Service) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	return s.repo.GetProfile(ctx, id)
}

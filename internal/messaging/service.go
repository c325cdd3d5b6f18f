// Package messaging implements buyer and seller conversations about listings.
package messaging

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

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 200
)

// Notifier alerts recipients about new messages. Implementations must not block.
type Notifier interface {
	NewMessage(ctx context.Context, msg *domain.Message, sender *domain.Profile, listingTitle string)
}

// ProfileLookup resolves conversation participants.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
}

// SendInput represents input for sending a message.
type SendInput struct {
	VehicleID   string `json:"vehicle_id" validate:"required,uuid"`
	RecipientID string `json:"recipient_id" validate:"required,uuid"`
	Body        string `json:"body" validate:"required,max=5000"`
}

// Service handles message operations.
type Service struct {
	repo      Repository
	profiles  ProfileLookup
	notifier  Notifier
	validator *validator.Validate
	now       func() time.Time
}

// NewService creates a new messaging service.
func NewService(repo Repository, profiles ProfileLookup, notifier Notifier) *Service {
	return &Service{
		repo:      repo,
		profiles:  profiles,
		notifier:  notifier,
		validator: validator.New(),
		now:       time.Now,
	}
}

// Send stores a message from senderID and notifies the recipient. The
// notification is best-effort and never fails the send.
func (s *Service) Send(ctx context.Context, senderID string, input SendInput) (*domain.Message, error) {
	input.Body = strings.TrimSpace(input.Body)
	if err := s.validator.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if input.RecipientID == senderID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrValidation)
	}

	vehicle, err := s.repo.GetVehicle(ctx, input.VehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle.SellerID != senderID && vehicle.SellerID != input.RecipientID {
		return nil, ErrNotParticipant
	}

	if _, err := s.profiles.GetProfile(ctx, input.RecipientID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecipientNotFound, err)
	}

	msg := &domain.Message{
		ID:          uuid.New().String(),
		VehicleID:   vehicle.ID,
		SenderID:    senderID,
		RecipientID: input.RecipientID,
		Body:        input.Body,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	sender, err := s.profiles.GetProfile(ctx, senderID)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("message recipient not notified",
			"message_id", msg.ID,
			"error", err,
		)
		return msg, nil
	}
	s.notifier.NewMessage(ctx, msg, sender, vehicle.Title)

	return msg, nil
}

// Inbox returns messages received by userID.
func (s *Service) Inbox(ctx context.Context, userID string, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	if limit > maxInboxLimit {
		limit = maxInboxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListInbox(ctx, userID, limit, offset)
}

// MarkRead marks a received message as read.
func (s *Service) MarkRead(ctx context.Context, userID, id string) (*domain.Message, error) {
	return s.repo.MarkRead(ctx, id, userID, s.now().UTC())
}

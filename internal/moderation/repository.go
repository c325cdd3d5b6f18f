package moderation

import (
	"context"
	"time"

	"github.com/motorlot/marketplace/internal/domain"
)

// Target types recorded in the admin activity log.
const (
	TargetVerification = "verification"
	TargetListing      = "listing"
)

// Review is an administrator's verdict as stored.
type Review struct {
	TargetID string
	AdminID  string
	Status   domain.ReviewStatus
	Reason   string
	At       time.Time
	// ExpiresAt is the new expiry of an approved listing.
	ExpiresAt *time.Time
}

// Activity returns the audit record of the review.
func (r Review) Activity(targetType string) *domain.AdminActivity {
	details := map[string]any{}
	if r.Reason != "" {
		details["reason"] = r.Reason
	}
	return &domain.AdminActivity{
		AdminID:    r.AdminID,
		Action:     targetType + "." + string(r.Status),
		TargetType: targetType,
		TargetID:   r.TargetID,
		Details:    details,
		CreatedAt:  r.At,
	}
}

// Repository defines the interface for moderation data access. Decide
// methods apply the review and append its activity atomically.
type Repository interface {
	CreateVerification(ctx context.Context, v *domain.Verification) error
	ListVerifications(ctx context.Context, status domain.ReviewStatus) ([]*domain.Verification, error)
	DecideVerification(ctx context.Context, review Review) (*domain.Verification, error)
	DecideListing(ctx context.Context, review Review) (*domain.Vehicle, error)
}

package messaging

import (
	"context"
	"time"

	"github.com/motorlot/marketplace/internal/domain"
)

// Repository defines the interface for message data access.
type Repository interface {
	GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error)
	CreateMessage(ctx context.Context, msg *domain.Message) error
	// ListInbox returns messages received by userID, newest first.
	ListInbox(ctx context.Context, userID string, limit, offset int) ([]*domain.Message, error)
	// MarkRead sets read_at on a message received by userID.
	MarkRead(ctx context.Context, id, userID string, at time.Time) (*domain.Message, error)
}

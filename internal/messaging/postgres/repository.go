// Package postgres provides PostgreSQL implementation of the messaging repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorlot/marketplace/internal/domain"
	"github.com/motorlot/marketplace/internal/messaging"
)

const messageColumns = `id, vehicle_id, sender_id, recipient_id, body, read_at, created_at`

// Repository implements messaging.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetVehicle retrieves the listing a conversation is about.
func (r *Repository) GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, messaging.ErrVehicleNotFound
	}

	query := `
		SELECT id, seller_id, title, status, created_at, updated_at
		FROM vehicles
		WHERE id = $1
	`
	var v domain.Vehicle
	err := r.db.QueryRow(ctx, query, id).Scan(&v.ID, &v.SellerID, &v.Title, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, messaging.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return &v, nil
}

// CreateMessage inserts a message.
func (r *Repository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, vehicle_id, sender_id, recipient_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, msg.ID, msg.VehicleID, msg.SenderID, msg.RecipientID, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListInbox returns messages received by userID, newest first.
func (r *Repository) ListInbox(ctx context.Context, userID string, limit, offset int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// MarkRead sets read_at on a message received by userID. Already read
// messages keep their original timestamp.
func (r *Repository) MarkRead(ctx context.Context, id, userID string, at time.Time) (*domain.Message, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, messaging.ErrMessageNotFound
	}

	query := `
		UPDATE messages
		SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
		RETURNING ` + messageColumns
	msg, err := scanMessage(r.db.QueryRow(ctx, query, id, userID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, messaging.ErrMessageNotFound
		}
		return nil, fmt.Errorf("mark message read: %w", err)
	}
	return msg, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	if err := row.Scan(&m.ID, &m.VehicleID, &m.SenderID, &m.RecipientID, &m.Body, &m.ReadAt, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// Package postgres provides PostgreSQL implementation of the moderation repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorlot/marketplace/internal/domain"
	"github.com/motorlot/marketplace/internal/moderation"
)

const uniqueViolation = "23505"

const verificationColumns = `id, user_id, status, COALESCE(reason, ''), reviewed_by, reviewed_at, created_at, updated_at`

const vehicleColumns = `id, seller_id, title, make, model, year, price_cents, status,
	COALESCE(rejection_reason, ''), expires_at, created_at, updated_at`

// Repository implements moderation.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateVerification inserts a pending verification request.
func (r *Repository) CreateVerification(ctx context.Context, v *domain.Verification) error {
	query := `
		INSERT INTO user_verifications (id, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, v.ID, v.UserID, v.Status, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return moderation.ErrVerificationPending
		}
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

// ListVerifications returns verification requests oldest first.
func (r *Repository) ListVerifications(ctx context.Context, status domain.ReviewStatus) ([]*domain.Verification, error) {
	query := `
		SELECT ` + verificationColumns + `
		FROM user_verifications
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	list := make([]*domain.Verification, 0)
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		list = append(list, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verifications: %w", err)
	}
	return list, nil
}

// DecideVerification stores the review and its activity record.
func (r *Repository) DecideVerification(ctx context.Context, review moderation.Review) (*domain.Verification, error) {
	if _, err := uuid.Parse(review.TargetID); err != nil {
		return nil, moderation.ErrVerificationNotFound
	}

	var v *domain.Verification
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE user_verifications
			SET status = $2, reason = NULLIF($3, ''), reviewed_by = $4, reviewed_at = $5, updated_at = $5
			WHERE id = $1
			RETURNING ` + verificationColumns
		var err error
		v, err = scanVerification(tx.QueryRow(ctx, query,
			review.TargetID, review.Status, review.Reason, review.AdminID, review.At))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return moderation.ErrVerificationNotFound
			}
			return fmt.Errorf("update verification: %w", err)
		}
		return insertActivity(ctx, tx, review.Activity(moderation.TargetVerification))
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// DecideListing stores the review and its activity record.
func (r *Repository) DecideListing(ctx context.Context, review moderation.Review) (*domain.Vehicle, error) {
	if _, err := uuid.Parse(review.TargetID); err != nil {
		return nil, moderation.ErrListingNotFound
	}

	var vehicle *domain.Vehicle
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE vehicles
			SET status = $2,
				rejection_reason = CASE WHEN $2 = 'rejected' THEN NULLIF($3, '') END,
				expires_at = COALESCE($4, expires_at),
				updated_at = $5
			WHERE id = $1
			RETURNING ` + vehicleColumns
		var err error
		vehicle, err = scanVehicle(tx.QueryRow(ctx, query,
			review.TargetID, review.Status, review.Reason, review.ExpiresAt, review.At))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return moderation.ErrListingNotFound
			}
			return fmt.Errorf("update vehicle: %w", err)
		}
		return insertActivity(ctx, tx, review.Activity(moderation.TargetListing))
	})
	if err != nil {
		return nil, err
	}
	return vehicle, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertActivity(ctx context.Context, tx pgx.Tx, activity *domain.AdminActivity) error {
	details, err := json.Marshal(activity.Details)
	if err != nil {
		return fmt.Errorf("marshal activity details: %w", err)
	}

	query := `
		INSERT INTO admin_activities (admin_id, action, target_type, target_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err = tx.QueryRow(ctx, query,
		activity.AdminID,
		activity.Action,
		activity.TargetType,
		activity.TargetID,
		details,
		activity.CreatedAt,
	).Scan(&activity.ID)
	if err != nil {
		return fmt.Errorf("insert admin activity: %w", err)
	}
	return nil
}

func scanVerification(row pgx.Row) (*domain.Verification, error) {
	var v domain.Verification
	err := row.Scan(
		&v.ID,
		&v.UserID,
		&v.Status,
		&v.Reason,
		&v.ReviewedBy,
		&v.ReviewedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanVehicle(row pgx.Row) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := row.Scan(
		&v.ID,
		&v.SellerID,
		&v.Title,
		&v.Make,
		&v.Model,
		&v.Year,
		&v.PriceCents,
		&v.Status,
		&v.RejectionReason,
		&v.ExpiresAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

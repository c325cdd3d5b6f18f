package domain

import "time"

// ReviewStatus is the moderation state shared by listings and verifications.
type ReviewStatus string

// Review statuses.
const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// IsValid checks if the review status is valid.
func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusApproved, ReviewStatusRejected:
		return true
	}
	return false
}

// Vehicle is a marketplace listing.
type Vehicle struct {
	ID              string       `json:"id"`
	SellerID        string       `json:"seller_id"`
	Title           string       `json:"title"`
	Make            string       `json:"make"`
	Model           string       `json:"model"`
	Year            int          `json:"year"`
	PriceCents      int64        `json:"price_cents"`
	Status          ReviewStatus `json:"status"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	ExpiresAt       *time.Time   `json:"expires_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Verification is a seller identity verification request.
type Verification struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	Status     ReviewStatus `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	ReviewedBy *string      `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time   `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// AdminActivity records an administrative action for the audit trail.
type AdminActivity struct {
	ID         string         `json:"id"`
	AdminID    string         `json:"admin_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

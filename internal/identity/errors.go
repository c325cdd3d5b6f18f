package identity

import "errors"

// Profile errors
var (
	ErrProfileNotFound = errors.New("profile not found")
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
)

// Webhook errors
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnsupportedEvent = errors.New("unsupported event type")
	ErrValidation       = errors.New("validation error")
	ErrDeliveryFailed   = errors.New("email delivery failed")
)

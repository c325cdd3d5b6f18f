package moderation

import "errors"

// Review errors
var (
	ErrVerificationNotFound = errors.New("verification not found")
	ErrListingNotFound      = errors.New("listing not found")
	ErrVerificationPending  = errors.New("a verification request is already pending")
	ErrValidation           = errors.New("validation error")
)

package messaging

import "errors"

// Message errors
var (
	ErrVehicleNotFound   = errors.New("vehicle not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrMessageNotFound   = errors.New("message not found")
	ErrNotParticipant    = errors.New("conversation must involve the listing's seller")
	ErrValidation        = errors.New("validation error")
)

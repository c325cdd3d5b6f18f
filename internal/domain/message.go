package domain

import "time"

// Message is a buyer/seller conversation message about a vehicle.
type Message struct {
	ID          string     `json:"id"`
	VehicleID   string     `json:"vehicle_id"`
	SenderID    string     `json:"sender_id"`
	RecipientID string     `json:"recipient_id"`
	Body        string     `json:"body"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

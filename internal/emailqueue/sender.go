package emailqueue

import "context"

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message and returns the transport's message identifier.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

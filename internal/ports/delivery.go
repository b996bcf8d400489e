package ports

import (
	"context"
)

// Envelope carries the SMTP envelope of a message
type Envelope struct {
	From string
	To   []string
}

// Delivery hands a sanitized message to its next hop
type Delivery interface {
	// Deliver sends the message. id names the message for back-ends that store
	// it, usually the new Message-ID.
	Deliver(ctx context.Context, env Envelope, id string, msg []byte) error

	// Name identifies the back-end in logs and metrics
	Name() string
}

package ports

import (
	"context"

	"github.com/mikey/mail-groomer/internal/core"
)

// EmailFilter defines the interface for the surfaces feeding messages into the groomer
type EmailFilter interface {
	// ProcessEmail sanitizes one raw message
	ProcessEmail(ctx context.Context, raw []byte) (*core.Result, error)

	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}

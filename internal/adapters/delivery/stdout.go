package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mikey/mail-groomer/internal/ports"
)

// Stdout writes sanitized messages to a stream, one after the other
type Stdout struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewStdout writes to os.Stdout
func NewStdout() *Stdout {
	return &Stdout{writer: os.Stdout}
}

// NewWithWriter writes to w
func NewWithWriter(w io.Writer) *Stdout {
	return &Stdout{writer: w}
}

// Name identifies the back-end
func (s *Stdout) Name() string {
	return "stdout"
}

// Deliver writes the message as is
func (s *Stdout) Deliver(_ context.Context, _ ports.Envelope, _ string, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

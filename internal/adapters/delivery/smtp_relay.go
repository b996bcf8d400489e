package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/ports"
)

const (
	dialTimeout    = 10 * time.Second
	sessionTimeout = 30 * time.Second
)

// ErrAllRecipientsRejected is returned when the relay refused every RCPT TO
var ErrAllRecipientsRejected = errors.New("all recipients were rejected")

// BreakerSettings tunes the circuit breaker in front of the relay
type BreakerSettings struct {
	// Timeout is how long the breaker stays open before probing again
	Timeout time.Duration
	// MaxRequests is the number of probes allowed while half-open
	MaxRequests uint32
}

// SMTPRelay re-injects sanitized messages into the MTA, typically the
// Postfix re-injection port. A circuit breaker stops hammering a relay that
// keeps failing; callers then see gobreaker.ErrOpenState right away.
type SMTPRelay struct {
	addr     string
	hostname string
	logger   *zap.Logger
	breaker  *gobreaker.CircuitBreaker
}

// NewSMTPRelay creates a relay delivery for host:port
func NewSMTPRelay(host string, port int, settings BreakerSettings, logger *zap.Logger) *SMTPRelay {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	r := &SMTPRelay{
		addr:     addr,
		hostname: hostname,
		logger:   logger,
	}

	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp-relay " + addr,
		MaxRequests: settings.MaxRequests,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return r
}

// Name identifies the back-end
func (r *SMTPRelay) Name() string {
	return "smtp"
}

// State reports the breaker state
func (r *SMTPRelay) State() gobreaker.State {
	return r.breaker.State()
}

// Deliver relays the message to the configured MTA
func (r *SMTPRelay) Deliver(ctx context.Context, env ports.Envelope, id string, msg []byte) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.send(ctx, env, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to relay message %s to %s: %w", id, r.addr, err)
	}
	return nil
}

func (r *SMTPRelay) send(ctx context.Context, env ports.Envelope, msg []byte) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}

	deadline := time.Now().Add(sessionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(r.hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if err := c.Mail(env.From, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range env.To {
		if err := c.Rcpt(recipient, nil); err != nil {
			r.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
		} else {
			recipientOK = true
		}
	}
	if !recipientOK {
		return ErrAllRecipientsRejected
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	// the message is accepted once DATA closes
	if err := c.Quit(); err != nil {
		r.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

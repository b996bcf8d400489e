package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/core"
	"github.com/mikey/mail-groomer/internal/ports"
	"github.com/mikey/mail-groomer/internal/utils"
)

// maxLoggedSubject bounds the subject echoed in logs
const maxLoggedSubject = 120

// PostfixSettings holds the listener options of the content filter
type PostfixSettings struct {
	ListenAddr      string
	Domain          string
	MaxMessageBytes int64
	ProcessTimeout  time.Duration
}

// PostfixFilter implements a Postfix after-queue content filter. Messages
// arrive over SMTP, are sanitized and handed to the delivery back-end; the
// original is never passed through.
type PostfixFilter struct {
	service  *core.GroomerService
	delivery ports.Delivery
	text     *utils.TextProcessor
	logger   *zap.Logger
	settings PostfixSettings
	server   *smtp.Server
	listener net.Listener
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(
	service *core.GroomerService,
	delivery ports.Delivery,
	text *utils.TextProcessor,
	logger *zap.Logger,
	settings PostfixSettings,
) *PostfixFilter {
	if settings.Domain == "" {
		settings.Domain = "localhost"
	}
	if settings.MaxMessageBytes <= 0 {
		settings.MaxMessageBytes = 30 * 1024 * 1024
	}
	if settings.ProcessTimeout <= 0 {
		settings.ProcessTimeout = 30 * time.Second
	}

	return &PostfixFilter{
		service:  service,
		delivery: delivery,
		text:     text,
		logger:   logger,
		settings: settings,
	}
}

// Start binds the listener and serves SMTP in the background
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.settings.ListenAddr
	f.server.Domain = f.settings.Domain
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = f.settings.MaxMessageBytes
	f.server.MaxRecipients = 50

	l, err := net.Listen("tcp", f.settings.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.settings.ListenAddr, err)
	}
	f.listener = l

	f.logger.Info("Postfix filter starting",
		zap.String("address", l.Addr().String()),
		zap.String("delivery", f.delivery.Name()))

	go func() {
		if err := f.server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address once started
func (f *PostfixFilter) Addr() net.Addr {
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail sanitizes a message without delivering it
func (f *PostfixFilter) ProcessEmail(ctx context.Context, raw []byte) (*core.Result, error) {
	return f.service.Process(ctx, raw)
}

// handle sanitizes and forwards one message, mapping failures to SMTP replies
func (f *PostfixFilter) handle(env ports.Envelope, raw []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.settings.ProcessTimeout)
	defer cancel()

	result, err := f.service.Process(ctx, raw)
	if err != nil {
		f.logger.Error("Failed to sanitize message",
			zap.Error(err),
			zap.String("sender", env.From),
			zap.Int("size", len(raw)))
		if errors.Is(err, core.ErrMalformedMessage) {
			return &smtp.SMTPError{
				Code:         554,
				EnhancedCode: smtp.EnhancedCode{5, 6, 0},
				Message:      "Message structure could not be parsed",
			}
		}
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Message could not be sanitized, try again later",
		}
	}

	if err := f.delivery.Deliver(ctx, env, result.NewMessageID, result.Output); err != nil {
		f.logger.Error("Failed to deliver sanitized message",
			zap.Error(err),
			zap.String("delivery", f.delivery.Name()),
			zap.String("message_id", result.NewMessageID))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 4, 0},
			Message:      "Sanitized message could not be delivered, try again later",
		}
	}

	f.logger.Info("Processed email",
		zap.String("from", env.From),
		zap.Strings("to", env.To),
		zap.String("subject", f.text.TruncateText(result.Subject, maxLoggedSubject)),
		zap.String("original_message_id", result.OriginalMessageID),
		zap.String("message_id", result.NewMessageID),
		zap.Int("attachments", len(result.Attachments)),
		zap.Int("dangerous", result.Dangerous))

	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data reads the message and runs it through the groomer
func (s *smtpSession) Data(r io.Reader) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	env := ports.Envelope{From: s.sender, To: append([]string(nil), s.recipients...)}
	return s.filter.handle(env, buf.Bytes())
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}

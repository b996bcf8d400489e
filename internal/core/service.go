package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServiceSettings holds the tunables of GroomerService
type ServiceSettings struct {
	MaxDepth     int
	CacheEnabled bool
	CacheTTL     time.Duration
}

// GroomerService is the core service sanitizing messages
type GroomerService struct {
	codec        MessageCodec
	classifier   Classifier
	scanner      Scanner
	cache        VerdictCache
	metrics      MetricsRecorder
	logger       *zap.Logger
	maxDepth     int
	cacheEnabled bool
	cacheTTL     time.Duration
}

// NewGroomerService creates a new groomer service. cache and metrics may be nil.
func NewGroomerService(
	codec MessageCodec,
	classifier Classifier,
	scanner Scanner,
	cache VerdictCache,
	metrics MetricsRecorder,
	logger *zap.Logger,
	settings ServiceSettings,
) *GroomerService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if settings.MaxDepth <= 0 {
		settings.MaxDepth = 2
	}
	return &GroomerService{
		codec:        codec,
		classifier:   classifier,
		scanner:      scanner,
		cache:        cache,
		metrics:      metrics,
		logger:       logger,
		maxDepth:     settings.MaxDepth,
		cacheEnabled: settings.CacheEnabled && cache != nil,
		cacheTTL:     settings.CacheTTL,
	}
}

// MaxDepth returns the recursion bound
func (s *GroomerService) MaxDepth() int {
	return s.maxDepth
}

// Process runs one sanitation pass over a raw message
func (s *GroomerService) Process(ctx context.Context, raw []byte) (*Result, error) {
	start := time.Now()
	processingID := uuid.New().String()
	logger := s.logger.With(zap.String("processing_id", processingID))

	email, err := s.codec.Split(raw)
	if err != nil {
		s.metrics.MessageFailed("malformed")
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	logger.Debug("Split message",
		zap.String("message_id", email.OriginalMessageID),
		zap.Int("kept_parts", len(email.KeptParts)),
		zap.Int("attachments", len(email.Attachments)))

	pc := ProcessingContext{Depth: 0, MaxDepth: s.maxDepth}
	if err := s.inspect(ctx, logger, email.Attachments, pc); err != nil {
		s.metrics.MessageFailed("cancelled")
		return nil, err
	}

	output, newID, err := s.codec.Reassemble(email)
	if err != nil {
		s.metrics.MessageFailed("reassemble")
		return nil, fmt.Errorf("failed to reassemble message: %w", err)
	}

	result := &Result{
		ProcessingID:      processingID,
		Output:            output,
		Attachments:       email.Attachments,
		OriginalMessageID: email.OriginalMessageID,
		NewMessageID:      newID,
		Subject:           email.Subject,
		Duration:          time.Since(start),
	}
	for _, att := range email.Attachments {
		if att.Dangerous() {
			result.Dangerous++
		}
	}

	s.metrics.MessageProcessed(result)
	logger.Info("Sanitized message",
		zap.String("original_message_id", result.OriginalMessageID),
		zap.String("message_id", newID),
		zap.Int("attachments", len(result.Attachments)),
		zap.Int("dangerous", result.Dangerous),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Evaluate classifies and scans a single attachment outside of a message
func (s *GroomerService) Evaluate(ctx context.Context, content []byte, name string) (*Attachment, error) {
	part := NewAttachment(name, content)
	parts := []*Attachment{part}
	if err := s.inspect(ctx, s.logger, parts, ProcessingContext{MaxDepth: s.maxDepth}); err != nil {
		return nil, err
	}
	return parts[0], nil
}

// inspect evaluates parts in order, replacing each entry with its classified
// form. The context is only consulted between attachments.
func (s *GroomerService) inspect(ctx context.Context, logger *zap.Logger, parts []*Attachment, pc ProcessingContext) error {
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}

		att := s.evaluate(ctx, part)
		parts[i] = att

		logger.Info("Processing attachment",
			zap.String("filename", att.OriginalName),
			zap.String("mimetype", att.Mimetype()),
			zap.Int("depth", pc.Depth),
			zap.Bool("dangerous", att.Dangerous()),
			zap.String("summary", att.Summary()))

		if att.MainType == "message" {
			logger.Info("Inspecting nested message",
				zap.String("filename", att.OriginalName),
				zap.Int("depth", pc.Depth+1),
				zap.Int("max_depth", pc.MaxDepth))
			if err := s.inspectNested(ctx, logger, att, pc.Descend()); err != nil {
				return err
			}
		}

		logger.Debug("Attachment diagnostics",
			zap.String("filename", att.OriginalName),
			zap.Any("diagnostics", att.Diagnostics))
		s.metrics.AttachmentProcessed(att)
	}
	return nil
}

// inspectNested applies the recursion guard on entry, then processes the
// attachments of a message carried as an attachment.
func (s *GroomerService) inspectNested(ctx context.Context, logger *zap.Logger, container *Attachment, pc ProcessingContext) error {
	if pc.Exceeded() {
		container.MarkDangerous("archive_bomb", true)
		s.metrics.ArchiveBomb()
		logger.Warn("ARCHIVE BOMB.", zap.String("filename", container.OriginalName), zap.Int("depth", pc.Depth))
		logger.Warn("The content of the archive contains recursively other archives.")
		logger.Warn("This is a bad sign so the archive is not extracted to the destination key.")
		return nil
	}

	nested, err := s.codec.Split(container.Content)
	if err != nil {
		container.MarkDangerous("nested_not_parsable", true)
		logger.Warn("Failed to parse nested message",
			zap.String("filename", container.OriginalName),
			zap.Error(err))
		return nil
	}

	if err := s.inspect(ctx, logger, nested.Attachments, pc); err != nil {
		return err
	}

	findings := make([]map[string]any, 0, len(nested.Attachments))
	for _, att := range nested.Attachments {
		findings = append(findings, map[string]any{
			"filename":    att.OriginalName,
			"dangerous":   att.Dangerous(),
			"summary":     att.Summary(),
			"diagnostics": att.Diagnostics,
		})
		if att.Dangerous() {
			container.MarkDangerous("nested_dangerous", true)
		}
	}
	container.AddDiagnostic("nested", findings)
	return nil
}

// evaluate classifies and scans one attachment, going through the verdict
// cache when enabled. Nested findings are never cached.
func (s *GroomerService) evaluate(ctx context.Context, part *Attachment) *Attachment {
	var key string
	if s.cacheEnabled {
		key = CacheKey(part.Content, part.OriginalName, part.DeclaredType)
		verdict, err := s.cache.Get(ctx, key)
		if err == nil && verdict != nil {
			s.metrics.CacheLookup(true)
			att := NewAttachment(part.OriginalName, part.Content)
			att.DeclaredType = part.DeclaredType
			att.Apply(verdict)
			carryOver(part, att)
			return att
		}
		s.metrics.CacheLookup(false)
	}

	att := s.classifier.Classify(part.Content, part.OriginalName)
	att.DeclaredType = part.DeclaredType
	carryOver(part, att)
	s.scanner.Scan(att)

	if s.cacheEnabled {
		if err := s.cache.Set(ctx, key, att.Verdict(), s.cacheTTL); err != nil {
			s.logger.Error("Failed to update cache", zap.Error(err))
		}
	}
	return att
}

// carryOver copies findings recorded while the part was extracted
func carryOver(part, att *Attachment) {
	for k, v := range part.Diagnostics {
		if part.Dangerous() {
			att.MarkDangerous(k, v)
		} else {
			att.AddDiagnostic(k, v)
		}
	}
}

// CacheKey identifies an attachment by content digest, name and declared type
func CacheKey(content []byte, name, declaredType string) string {
	h := sha256.New()
	h.Write(content)
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(declaredType))
	return hex.EncodeToString(h.Sum(nil))
}

package core

import (
	"context"
	"time"
)

// MimeDetector derives a MIME type from raw content
type MimeDetector interface {
	// Detect returns "main/sub", or "" when the type cannot be determined
	Detect(content []byte) string
}

// Classifier applies the safety rules to one attachment
type Classifier interface {
	// Classify never fails; missing information is itself a dangerous verdict
	Classify(content []byte, name string) *Attachment
}

// Scanner routes a classified attachment to the matching risk scanner
type Scanner interface {
	Scan(att *Attachment)
}

// MessageCodec splits raw messages and builds sanitized ones
type MessageCodec interface {
	// Split separates kept body parts from attachments
	Split(raw []byte) (*Email, error)

	// Reassemble produces the sanitized message and its new Message-ID
	Reassemble(email *Email) ([]byte, string, error)
}

// VerdictCache stores classification outcomes keyed by content and name
type VerdictCache interface {
	// Get retrieves a cached verdict
	Get(ctx context.Context, key string) (*Verdict, error)

	// Set stores a verdict for ttl
	Set(ctx context.Context, key string, verdict *Verdict, ttl time.Duration) error

	// Delete removes a cached verdict
	Delete(ctx context.Context, key string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}

// MetricsRecorder receives processing events
type MetricsRecorder interface {
	MessageProcessed(result *Result)
	MessageFailed(reason string)
	AttachmentProcessed(att *Attachment)
	ArchiveBomb()
	CacheLookup(hit bool)
}

// CacheEntry is the stored form of a verdict
type CacheEntry struct {
	Key       string
	Verdict   *Verdict
	CreatedAt time.Time
	ExpiresAt time.Time
}

type nopMetrics struct{}

func (nopMetrics) MessageProcessed(*Result)        {}
func (nopMetrics) MessageFailed(string)            {}
func (nopMetrics) AttachmentProcessed(*Attachment) {}
func (nopMetrics) ArchiveBomb()                    {}
func (nopMetrics) CacheLookup(bool)                {}

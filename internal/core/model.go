package core

import (
	"errors"
	"strings"
	"time"
)

// ErrMalformedMessage is returned when the top-level message cannot be split
var ErrMalformedMessage = errors.New("malformed message")

// Diagnostics is the evidence trail collected for one attachment
type Diagnostics map[string]any

// Attachment is a named, byte-bearing part of a message
type Attachment struct {
	OriginalName string
	Content      []byte
	MainType     string
	SubType      string
	Extension    string
	DeclaredType string
	Diagnostics  Diagnostics

	dangerous bool
	summary   strings.Builder
}

// NewAttachment creates an attachment with empty diagnostics
func NewAttachment(name string, content []byte) *Attachment {
	return &Attachment{
		OriginalName: name,
		Content:      content,
		Diagnostics:  make(Diagnostics),
	}
}

// Mimetype returns the detected type as main/sub, or "" when undetermined
func (a *Attachment) Mimetype() string {
	if a.MainType == "" {
		return ""
	}
	return a.MainType + "/" + a.SubType
}

// Dangerous reports the verdict. Once true it never becomes false again.
func (a *Attachment) Dangerous() bool {
	return a.dangerous
}

// MarkDangerous latches the verdict and records why
func (a *Attachment) MarkDangerous(key string, value any) {
	a.AddDiagnostic(key, value)
	a.dangerous = true
}

// AddDiagnostic records a fact. Existing keys are overwritten.
func (a *Attachment) AddDiagnostic(key string, value any) {
	if a.Diagnostics == nil {
		a.Diagnostics = make(Diagnostics)
	}
	a.Diagnostics[key] = value
}

// MarkUnknown flags content whose type has no dedicated handler
func (a *Attachment) MarkUnknown() {
	a.AddDiagnostic("unknown", true)
}

// MarkBinary flags opaque binary content
func (a *Attachment) MarkBinary() {
	a.AddDiagnostic("binary", true)
}

// AppendSummary extends the human-readable description
func (a *Attachment) AppendSummary(s string) {
	if a.summary.Len() > 0 {
		a.summary.WriteString(", ")
	}
	a.summary.WriteString(s)
}

// Summary returns the human-readable description
func (a *Attachment) Summary() string {
	return a.summary.String()
}

// Clone returns a deep copy sharing only the content buffer
func (a *Attachment) Clone() *Attachment {
	c := &Attachment{
		OriginalName: a.OriginalName,
		Content:      a.Content,
		MainType:     a.MainType,
		SubType:      a.SubType,
		Extension:    a.Extension,
		DeclaredType: a.DeclaredType,
		Diagnostics:  make(Diagnostics, len(a.Diagnostics)),
		dangerous:    a.dangerous,
	}
	for k, v := range a.Diagnostics {
		c.Diagnostics[k] = v
	}
	c.summary.WriteString(a.summary.String())
	return c
}

// Verdict is the cacheable outcome of classifying and scanning one attachment
type Verdict struct {
	MainType    string      `json:"maintype"`
	SubType     string      `json:"subtype"`
	Extension   string      `json:"extension"`
	Dangerous   bool        `json:"dangerous"`
	Diagnostics Diagnostics `json:"diagnostics"`
	Summary     string      `json:"summary"`
}

// Verdict snapshots the attachment's outcome
func (a *Attachment) Verdict() *Verdict {
	v := &Verdict{
		MainType:    a.MainType,
		SubType:     a.SubType,
		Extension:   a.Extension,
		Dangerous:   a.dangerous,
		Diagnostics: make(Diagnostics, len(a.Diagnostics)),
		Summary:     a.Summary(),
	}
	for k, val := range a.Diagnostics {
		v.Diagnostics[k] = val
	}
	return v
}

// Apply restores a cached outcome onto the attachment
func (a *Attachment) Apply(v *Verdict) {
	a.MainType = v.MainType
	a.SubType = v.SubType
	a.Extension = v.Extension
	for k, val := range v.Diagnostics {
		a.AddDiagnostic(k, val)
	}
	if v.Dangerous {
		a.dangerous = true
	}
	if v.Summary != "" {
		a.AppendSummary(v.Summary)
	}
}

// KeptPart is a non-attachment body part carried through unchanged. Raw holds
// the part exactly as it appeared in the source, header included.
type KeptPart struct {
	ContentType string
	Raw         []byte
}

// Email is a parsed message split into kept parts and attachments
type Email struct {
	Raw               []byte
	RawHeader         []byte
	Subject           string
	From              string
	KeptParts         []KeptPart
	Attachments       []*Attachment
	OriginalMessageID string
}

// ProcessingContext carries the recursion guard state for one pass
type ProcessingContext struct {
	Depth    int
	MaxDepth int
}

// Descend returns the context for content nested one level deeper
func (pc ProcessingContext) Descend() ProcessingContext {
	return ProcessingContext{Depth: pc.Depth + 1, MaxDepth: pc.MaxDepth}
}

// Exceeded reports whether the recursion bound has been reached
func (pc ProcessingContext) Exceeded() bool {
	return pc.Depth >= pc.MaxDepth
}

// Result is the outcome of sanitizing one message
type Result struct {
	ProcessingID      string
	Output            []byte
	Attachments       []*Attachment
	OriginalMessageID string
	NewMessageID      string
	Subject           string
	Dangerous         int
	Duration          time.Duration
}

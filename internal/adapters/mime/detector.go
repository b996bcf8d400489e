// Package mime sniffs attachment content types and converts messages between
// raw RFC 5322 bytes and the core's split representation.
package mime

import (
	"bufio"
	"bytes"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

// EmptyType is reported for zero-length content
const EmptyType = "inode/x-empty"

// The detector's own spellings mapped onto the ones the type registry uses
var detectorSpellings = map[string]string{
	"application/vnd.microsoft.portable-executable": "application/x-dosexec",
	"audio/wav":    "audio/x-wav",
	"image/x-icon": "image/vnd.microsoft.icon",
}

var (
	// Fields only a mail message starts with
	strongMessageFields = map[string]struct{}{
		"received":     {},
		"return-path":  {},
		"message-id":   {},
		"mime-version": {},
		"delivered-to": {},
		"x-mailer":     {},
	}
	weakMessageFields = map[string]struct{}{
		"from":    {},
		"to":      {},
		"cc":      {},
		"subject": {},
		"date":    {},
		"sender":  {},
	}

	registerOnce sync.Once
)

// Detector identifies content by its leading bytes
type Detector struct{}

// NewDetector returns a detector. Message detection is registered with the
// underlying sniffer on first use.
func NewDetector() *Detector {
	registerOnce.Do(func() {
		mimetype.Lookup("text/plain").Extend(looksLikeMessage, "message/rfc822", ".eml")
	})
	return &Detector{}
}

// Detect returns the bare main/sub type, without parameters
func (d *Detector) Detect(content []byte) string {
	if len(content) == 0 {
		return EmptyType
	}

	detected := mimetype.Detect(content).String()
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}
	detected = strings.ToLower(strings.TrimSpace(detected))

	if spelling, ok := detectorSpellings[detected]; ok {
		return spelling
	}
	return detected
}

// looksLikeMessage accepts a header block holding one field only mail carries,
// or two of the common addressing fields.
func looksLikeMessage(raw []byte, limit uint32) bool {
	if limit > 0 && uint32(len(raw)) > limit {
		raw = raw[:limit]
	}
	if bytes.HasPrefix(raw, []byte("From ")) {
		return true
	}

	var strong, weak int
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for first := true; scanner.Scan(); first = false {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if first {
				return false
			}
			continue
		}

		name, _, ok := strings.Cut(line, ":")
		if !ok || !validFieldName(name) {
			return false
		}
		name = strings.ToLower(name)
		if _, ok := strongMessageFields[name]; ok {
			strong++
		}
		if _, ok := weakMessageFields[name]; ok {
			weak++
		}
	}

	return strong > 0 || weak > 1
}

func validFieldName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c >= 0x7f {
			return false
		}
	}
	return true
}

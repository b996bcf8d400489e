// Package classifier decides, from content and declared filename alone,
// whether an attachment is safe to keep.
package classifier

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/mikey/mail-groomer/internal/core"
	"github.com/mikey/mail-groomer/internal/registry"
)

// Classifier applies the extension and MIME correlation rules
type Classifier struct {
	registry *registry.Registry
	detector core.MimeDetector
}

// New creates a classifier over reg using detector for content sniffing
func New(reg *registry.Registry, detector core.MimeDetector) *Classifier {
	return &Classifier{
		registry: reg,
		detector: detector,
	}
}

// Classify builds and judges an attachment. The result depends only on the
// inputs and the registry, so repeated calls agree.
func (c *Classifier) Classify(content []byte, name string) *core.Attachment {
	name = norm.NFC.String(name)
	att := core.NewAttachment(name, content)
	att.Extension = registry.Extension(name)

	mimetype := c.detector.Detect(content)
	if main, sub, ok := strings.Cut(mimetype, "/"); ok && main != "" {
		att.MainType = main
		att.SubType = sub
	}

	if att.Mimetype() == "" {
		att.MarkDangerous("no_mimetype", true)
	}
	if att.Extension == "" {
		att.MarkDangerous("no_extension", true)
	}
	if c.registry.IsMalicious(att.Extension) {
		att.MarkDangerous("malicious_extension", att.Extension)
	}
	if att.Dangerous() {
		return att
	}

	att.AddDiagnostic("maintype", att.MainType)
	att.AddDiagnostic("subtype", att.SubType)
	att.AddDiagnostic("extension", att.Extension)

	// known extension => actual type
	expected := c.registry.ExpectedMimeType(name, att.Extension)
	if c.registry.KnownExtension(att.Extension) && expected != att.Mimetype() {
		att.MarkDangerous("expected_mimetype", expected)
	}

	// actual type => known extensions
	expectedExts := c.registry.ExtensionsFor(c.registry.Alias(att.Mimetype()))
	if len(expectedExts) > 0 && !contains(expectedExts, att.Extension) {
		att.MarkDangerous("expected_extensions", expectedExts)
	}

	return att
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

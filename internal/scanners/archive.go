package scanners

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/core"
)

var (
	macroMemberPrefixes = []string{"script", "basic", "object"}
	macroMemberSuffixes = []string{".bin"}

	// Sub-types whose content is a plain ZIP central directory
	zipSubtypes = map[string]struct{}{
		"zip":              {},
		"x-zip":            {},
		"x-zip-compressed": {},
	}
)

func (d *Dispatcher) libreOffice(att *core.Attachment) {
	att.AddDiagnostic("processing_type", "libreoffice")
	d.inspectZipMembers(att)
}

// archive records the category. Nested archives are neither extracted nor
// re-scanned; ZIP member names are still checked against macro locations.
func (d *Dispatcher) archive(att *core.Attachment) {
	att.AddDiagnostic("processing_type", "archive")
	if _, ok := zipSubtypes[att.SubType]; ok {
		d.inspectZipMembers(att)
	}
}

// inspectZipMembers lists the central directory without extracting anything.
// Every member is checked so the diagnostics carry all findings. Attachments
// already flagged are not opened.
func (d *Dispatcher) inspectZipMembers(att *core.Attachment) {
	if att.Dangerous() {
		return
	}

	zr, err := zip.NewReader(bytes.NewReader(att.Content), int64(len(att.Content)))
	if errors.Is(err, zip.ErrInsecurePath) && zr != nil {
		att.MarkDangerous("insecure_path", true)
		err = nil
	}
	if err != nil {
		d.logger.Debug("Invalid zip container",
			zap.String("filename", att.OriginalName),
			zap.Error(err))
		att.MarkDangerous("invalid", true)
		return
	}

	var members []string
	for _, f := range zr.File {
		if isMacroMember(f.Name) {
			members = append(members, f.Name)
		}
	}

	if len(members) > 0 {
		att.MarkDangerous("macro", true)
		att.AddDiagnostic("macro_members", members)
	}
}

func isMacroMember(name string) bool {
	name = strings.ToLower(name)
	for _, p := range macroMemberPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	for _, s := range macroMemberSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

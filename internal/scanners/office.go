package scanners

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/richardlehane/mscfb"
	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/core"
)

// Storage and stream paths holding VBA projects, lower-cased
var macroStoragePaths = map[string]struct{}{
	"macros/vba":       {},
	"macros":           {},
	"_vba_project_cur": {},
	"vba":              {},
}

// winOffice opens legacy office documents as compound binary containers and
// looks for macro storage. Parse faults become diagnostics. Attachments already
// flagged are not opened.
func (d *Dispatcher) winOffice(att *core.Attachment) {
	att.AddDiagnostic("processing_type", "WinOffice")
	if att.Dangerous() {
		return
	}

	doc, err := mscfb.New(bytes.NewReader(att.Content))
	if err != nil {
		d.logger.Debug("Compound binary not parsable",
			zap.String("filename", att.OriginalName),
			zap.Error(err))
		att.MarkDangerous("not_parsable", true)
		return
	}

	var macros []string
	size := int64(len(att.Content))
	for {
		entry, err := doc.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil || entry == nil {
			att.MarkDangerous("parsing_issues", true)
			return
		}
		if entry.Size < 0 || entry.Size > size {
			att.MarkDangerous("parsing_issues", true)
			return
		}

		path := strings.ToLower(strings.Join(append(append([]string{}, entry.Path...), entry.Name), "/"))
		if _, ok := macroStoragePaths[path]; ok {
			macros = append(macros, path)
		}
	}

	if len(macros) > 0 {
		att.MarkDangerous("macro", true)
		att.AddDiagnostic("macro_storage", macros)
	}
}

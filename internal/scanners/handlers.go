package scanners

import (
	"mime"
	"strings"

	"github.com/mikey/mail-groomer/internal/core"
)

var (
	rtfSubtypes   = []string{"rtf", "richtext"}
	ooxmlSubtypes = []string{"vnd.openxmlformats-officedocument."}
)

// inode handles content sniffed as an inode type. Detectors only see bytes,
// so a link is also recognised from the sender's declared inode/symlink.
func (d *Dispatcher) inode(att *core.Attachment) {
	if att.SubType == "symlink" || declaredSymlink(att) {
		att.AppendSummary("Symlink to " + symlinkTarget(att))
		return
	}
	att.AppendSummary("Inode file")
}

func (d *Dispatcher) unknown(att *core.Attachment) {
	att.AppendSummary("Unknown file")
}

func (d *Dispatcher) example(att *core.Attachment) {
	att.AppendSummary("Example file")
}

func (d *Dispatcher) multipart(att *core.Attachment) {
	att.AppendSummary("Multipart file")
}

// No safe-content verification exists for models.
func (d *Dispatcher) model(att *core.Attachment) {
	att.AppendSummary("Model file")
	att.MarkDangerous("processing_type", "model")
}

// Messages are always dangerous; the orchestrator inspects their content
// under the recursion guard.
func (d *Dispatcher) message(att *core.Attachment) {
	att.AppendSummary("Message file")
	att.MarkDangerous("processing_type", "message")
	att.AddDiagnostic("recursion_candidate", true)
}

func (d *Dispatcher) text(att *core.Attachment) {
	for _, s := range rtfSubtypes {
		if strings.Contains(att.SubType, s) {
			att.AppendSummary("Rich Text file")
			return
		}
	}
	for _, s := range ooxmlSubtypes {
		if strings.Contains(att.SubType, s) {
			att.AppendSummary("OOXML File")
			d.ooxml(att)
			return
		}
	}
	att.AppendSummary("Text file")
}

func (d *Dispatcher) executable(att *core.Attachment) {
	att.MarkDangerous("processing_type", "executable")
}

// TODO: inspect word/vbaProject.bin once an OOXML part reader is wired in.
func (d *Dispatcher) ooxml(att *core.Attachment) {
	att.AddDiagnostic("processing_type", "ooxml")
}

func (d *Dispatcher) pdf(att *core.Attachment) {
	att.AddDiagnostic("processing_type", "pdf")
}

func (d *Dispatcher) binaryApp(att *core.Attachment) {
	att.MarkBinary()
}

func (d *Dispatcher) audio(att *core.Attachment) {
	att.AppendSummary("Audio file")
	d.media(att)
}

func (d *Dispatcher) image(att *core.Attachment) {
	att.AppendSummary("Image file")
	d.media(att)
	att.AddDiagnostic("processing_type", "image")
}

func (d *Dispatcher) video(att *core.Attachment) {
	att.AppendSummary("Video file")
	d.media(att)
}

func (d *Dispatcher) media(att *core.Attachment) {
	att.AddDiagnostic("processing_type", "media")
}

func declaredSymlink(att *core.Attachment) bool {
	mediaType, _, err := mime.ParseMediaType(att.DeclaredType)
	return err == nil && mediaType == "inode/symlink"
}

func symlinkTarget(att *core.Attachment) string {
	if target, ok := att.Diagnostics["symlink"].(string); ok && target != "" {
		return target
	}
	if _, params, err := mime.ParseMediaType(att.DeclaredType); err == nil && params["target"] != "" {
		return params["target"]
	}
	return "unknown target"
}

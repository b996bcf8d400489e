// Package scanners routes classified attachments to per-format risk checks.
package scanners

import (
	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/core"
	"github.com/mikey/mail-groomer/internal/registry"
)

type handler func(att *core.Attachment)

// Dispatcher selects a handler by main type, then by application sub-type
type Dispatcher struct {
	registry     *registry.Registry
	logger       *zap.Logger
	mainHandlers map[string]handler
	appHandlers  map[string]handler
}

// NewDispatcher creates a dispatcher bound to the registry's tables
func NewDispatcher(reg *registry.Registry, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		logger:   logger,
	}

	d.mainHandlers = map[string]handler{
		registry.HandlerText:        d.text,
		registry.HandlerAudio:       d.audio,
		registry.HandlerImage:       d.image,
		registry.HandlerVideo:       d.video,
		registry.HandlerApplication: d.application,
		registry.HandlerExample:     d.example,
		registry.HandlerMessage:     d.message,
		registry.HandlerModel:       d.model,
		registry.HandlerMultipart:   d.multipart,
		registry.HandlerInode:       d.inode,
	}

	d.appHandlers = map[string]handler{
		registry.GroupOffice:      d.winOffice,
		registry.GroupOOXML:       d.ooxml,
		registry.GroupRTF:         d.text,
		registry.GroupLibreOffice: d.libreOffice,
		registry.GroupPDF:         d.pdf,
		registry.GroupXML:         d.text,
		registry.GroupExecutable:  d.executable,
		registry.GroupCompressed:  d.archive,
		registry.GroupData:        d.binaryApp,
	}

	return d
}

// Scan runs the handler matching the attachment's main type
func (d *Dispatcher) Scan(att *core.Attachment) {
	h := d.unknown
	if d.registry.HasMainTypeHandler(att.MainType) {
		if mh, ok := d.mainHandlers[att.MainType]; ok {
			h = mh
		}
	}
	h(att)

	d.logger.Debug("Scanned attachment",
		zap.String("filename", att.OriginalName),
		zap.String("mimetype", att.Mimetype()),
		zap.Bool("dangerous", att.Dangerous()),
		zap.String("summary", att.Summary()))
}

// application picks the first sub-type group matching, in priority order
func (d *Dispatcher) application(att *core.Attachment) {
	group, ok := d.registry.MatchApplicationGroup(att.SubType)
	if ok {
		if h, found := d.appHandlers[group.Name]; found {
			h(att)
			att.AppendSummary("Application file")
			return
		}
	}
	att.AppendSummary("Unknown Application file")
	att.MarkUnknown()
}

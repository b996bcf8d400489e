package filter

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/core"
	"github.com/mikey/mail-groomer/internal/ports"
)

// CliFilter sanitizes messages read from files or stdin and prints a
// summary per message
type CliFilter struct {
	service  *core.GroomerService
	delivery ports.Delivery
	logger   *zap.Logger
	verbose  bool

	mu  sync.Mutex
	out io.Writer
}

// NewCliFilter creates a new CLI filter writing summaries to out
func NewCliFilter(service *core.GroomerService, delivery ports.Delivery, out io.Writer, logger *zap.Logger, verbose bool) *CliFilter {
	return &CliFilter{
		service:  service,
		delivery: delivery,
		logger:   logger,
		verbose:  verbose,
		out:      out,
	}
}

// ProcessEmail sanitizes a message read from stdin
func (f *CliFilter) ProcessEmail(ctx context.Context, raw []byte) (*core.Result, error) {
	return f.Sanitize(ctx, "", raw)
}

// Sanitize processes one message and delivers it. source names the input
// file and becomes the output name; stdin input is named after the new
// Message-ID.
func (f *CliFilter) Sanitize(ctx context.Context, source string, raw []byte) (*core.Result, error) {
	f.logger.Debug("Processing message", zap.String("source", source), zap.Int("size", len(raw)))

	result, err := f.service.Process(ctx, raw)
	if err != nil {
		f.logger.Error("Failed to sanitize message", zap.String("source", source), zap.Error(err))
		return nil, err
	}

	id := result.NewMessageID
	if source != "" {
		id = filepath.Base(source)
	}
	if err := f.delivery.Deliver(ctx, ports.Envelope{}, id, result.Output); err != nil {
		return nil, fmt.Errorf("failed to deliver %s: %w", id, err)
	}

	f.printSummary(source, result)
	return result, nil
}

func (f *CliFilter) printSummary(source string, result *core.Result) {
	if source == "" {
		source = "<stdin>"
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	fmt.Fprintf(f.out, "\n=== %s ===\n", source)
	fmt.Fprintf(f.out, "Subject: %s\n", result.Subject)
	fmt.Fprintf(f.out, "Original Message-ID: %s\n", result.OriginalMessageID)
	fmt.Fprintf(f.out, "New Message-ID: %s\n", result.NewMessageID)
	fmt.Fprintf(f.out, "Attachments: %d (%d dangerous)\n", len(result.Attachments), result.Dangerous)
	for _, att := range result.Attachments {
		verdict := "kept"
		if att.Dangerous() {
			verdict = "removed"
		}
		fmt.Fprintf(f.out, "  - %s (%s): %s", att.OriginalName, att.Mimetype(), verdict)
		if summary := att.Summary(); summary != "" {
			fmt.Fprintf(f.out, ", %s", summary)
		}
		fmt.Fprintln(f.out)
		if f.verbose {
			for k, v := range att.Diagnostics {
				fmt.Fprintf(f.out, "      %s: %v\n", k, v)
			}
		}
	}
	fmt.Fprintf(f.out, "Processing time: %v\n", result.Duration)
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}

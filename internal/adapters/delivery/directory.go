package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/ports"
	"github.com/mikey/mail-groomer/internal/utils"
)

// Directory writes each sanitized message to <dir>/<id>.eml
type Directory struct {
	dir    string
	text   *utils.TextProcessor
	logger *zap.Logger
}

// NewDirectory creates the target directory when missing
func NewDirectory(dir string, text *utils.TextProcessor, logger *zap.Logger) (*Directory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Directory{dir: dir, text: text, logger: logger}, nil
}

// Name identifies the back-end
func (d *Directory) Name() string {
	return "directory"
}

// Path returns the file a message with the given id is written to
func (d *Directory) Path(id string) string {
	name := d.text.SafeFilename(id)
	if !strings.EqualFold(filepath.Ext(name), ".eml") {
		name += ".eml"
	}
	return filepath.Join(d.dir, name)
}

// Deliver writes the message atomically through a temporary file
func (d *Directory) Deliver(ctx context.Context, env ports.Envelope, id string, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := d.Path(id)
	tmp, err := os.CreateTemp(d.dir, ".groom-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(msg); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to move message into place: %w", err)
	}

	d.logger.Debug("Wrote sanitized message", zap.String("path", target))
	return nil
}

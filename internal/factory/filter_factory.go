package factory

import (
	"fmt"
	"os"

	"github.com/mikey/mail-groomer/internal/adapters/filter"
	"github.com/mikey/mail-groomer/internal/config"
	"github.com/mikey/mail-groomer/internal/core"
	"github.com/mikey/mail-groomer/internal/ports"
	"github.com/mikey/mail-groomer/internal/utils"
	"go.uber.org/zap"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg      *config.Config
	logger   *zap.Logger
	service  *core.GroomerService
	delivery ports.Delivery
	text     *utils.TextProcessor
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(
	cfg *config.Config,
	logger *zap.Logger,
	service *core.GroomerService,
	delivery ports.Delivery,
	text *utils.TextProcessor,
) *FilterFactory {
	return &FilterFactory{
		cfg:      cfg,
		logger:   logger,
		service:  service,
		delivery: delivery,
		text:     text,
	}
}

// CreateEmailFilter creates an email filter based on the configuration
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	server, err := f.cfg.GetServer()
	if err != nil {
		return nil, err
	}

	switch server.FilterType {
	case "postfix":
		return filter.NewPostfixFilter(f.service, f.delivery, f.text, f.logger, filter.PostfixSettings{
			ListenAddr:      server.ListenAddress,
			Domain:          server.Domain,
			MaxMessageBytes: server.MaxMessageBytes,
			ProcessTimeout:  server.ProcessTimeout,
		}), nil
	case "cli":
		return f.CreateCliFilter(), nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", server.FilterType)
	}
}

// CreateCliFilter creates the batch filter. Summaries go to stdout unless
// the messages themselves are written there.
func (f *FilterFactory) CreateCliFilter() *filter.CliFilter {
	out := os.Stdout
	if f.delivery.Name() == "stdout" {
		out = os.Stderr
	}
	return filter.NewCliFilter(f.service, f.delivery, out, f.logger, f.cfg.GetBool("cli.verbose"))
}

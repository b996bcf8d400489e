package factory

import (
	"github.com/mikey/mail-groomer/internal/adapters/mime"
	"github.com/mikey/mail-groomer/internal/classifier"
	"github.com/mikey/mail-groomer/internal/config"
	"github.com/mikey/mail-groomer/internal/core"
	"github.com/mikey/mail-groomer/internal/registry"
	"github.com/mikey/mail-groomer/internal/scanners"
	"go.uber.org/zap"
)

// ServiceFactory builds the groomer pipeline from configuration
type ServiceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(cfg *config.Config, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateRegistry returns the built-in tables, extended with the configured
// malicious extensions
func (f *ServiceFactory) CreateRegistry() *registry.Registry {
	extra := f.cfg.GetGroomer().ExtraMaliciousExtensions
	if len(extra) == 0 {
		return registry.Default()
	}
	f.logger.Info("Extending malicious extensions", zap.Strings("extensions", extra))
	return registry.New(registry.Options{ExtraMaliciousExtensions: extra})
}

// CreateService wires the codec, classifier and scanners around reg. cache
// and metrics may be nil.
func (f *ServiceFactory) CreateService(
	reg *registry.Registry,
	cache core.VerdictCache,
	metrics core.MetricsRecorder,
) (*core.GroomerService, error) {
	groomer := f.cfg.GetGroomer()
	cacheCfg, err := f.cfg.GetCache()
	if err != nil {
		return nil, err
	}

	return core.NewGroomerService(
		mime.NewCodec(groomer.MessageIDDomain, f.logger),
		classifier.New(reg, mime.NewDetector()),
		scanners.NewDispatcher(reg, f.logger),
		cache,
		metrics,
		f.logger,
		core.ServiceSettings{
			MaxDepth:     groomer.MaxDepth,
			CacheEnabled: cacheCfg.Enabled,
			CacheTTL:     cacheCfg.TTL,
		},
	), nil
}

package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/adapters/cache"
	"github.com/mikey/mail-groomer/internal/config"
	"github.com/mikey/mail-groomer/internal/core"
	"github.com/mikey/mail-groomer/internal/factory"
	"github.com/mikey/mail-groomer/internal/logging"
	"github.com/mikey/mail-groomer/internal/metrics"
	"github.com/mikey/mail-groomer/internal/ports"
	"github.com/mikey/mail-groomer/internal/registry"
	"github.com/mikey/mail-groomer/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
// for the content filter daemon
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(metrics.New); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *metrics.Server {
		return metrics.NewServer(cfg.GetMetrics().ListenAddress, m, logger)
	}); err != nil {
		return nil, err
	}

	// Register groomer service recording to Prometheus
	if err := container.Provide(func(f *factory.ServiceFactory, reg *registry.Registry, store cache.Store, m *metrics.Metrics) (*core.GroomerService, error) {
		return f.CreateService(reg, verdictCache(store), m)
	}); err != nil {
		return nil, err
	}

	if err := provideShared(container); err != nil {
		return nil, err
	}

	return container, nil
}

// provideShared registers what the daemon and the CLI have in common:
// factories, text processor, registry, cache, delivery and email filter
func provideShared(container *dig.Container) error {
	// Register factories
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewDeliveryFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewServiceFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register type registry
	if err := container.Provide(func(f *factory.ServiceFactory) *registry.Registry {
		return f.CreateRegistry()
	}); err != nil {
		return err
	}

	// Register verdict cache, nil when disabled
	if err := container.Provide(func(f *factory.CacheFactory) (cache.Store, error) {
		return f.CreateVerdictCache()
	}); err != nil {
		return err
	}

	// Register delivery
	if err := container.Provide(func(f *factory.DeliveryFactory) (ports.Delivery, error) {
		return f.CreateDelivery()
	}); err != nil {
		return err
	}

	// Register email filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return err
	}

	return nil
}

// verdictCache keeps a disabled cache an untyped nil
func verdictCache(store cache.Store) core.VerdictCache {
	if store == nil {
		return nil
	}
	return store
}

package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/adapters/cache"
	"github.com/mikey/mail-groomer/internal/config"
	"github.com/mikey/mail-groomer/internal/core"
	"github.com/mikey/mail-groomer/internal/factory"
	"github.com/mikey/mail-groomer/internal/logging"
	"github.com/mikey/mail-groomer/internal/registry"
)

// CLIFlags contains the command line flags of the groom CLI
type CLIFlags struct {
	ConfigFile string
	Verbose    bool
	JSONLog    bool

	// MaxDepth overrides groomer.max_depth when positive
	MaxDepth int
	// OutDir writes sanitized messages to a directory
	OutDir string
	// Stdout writes sanitized messages to standard output
	Stdout bool
}

// BuildCLIContainer creates and configures a dependency injection container
// for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		return loadCLIConfig(flags, logger)
	}); err != nil {
		return nil, err
	}

	// Register groomer service without metrics
	if err := container.Provide(func(f *factory.ServiceFactory, reg *registry.Registry, store cache.Store) (*core.GroomerService, error) {
		return f.CreateService(reg, verdictCache(store), nil)
	}); err != nil {
		return nil, err
	}

	if err := provideShared(container); err != nil {
		return nil, err
	}

	return container, nil
}

// loadCLIConfig reads the --config file when given, defaults otherwise, and
// applies the flag overrides on top
func loadCLIConfig(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	if flags.ConfigFile != "" {
		var err error
		cfg, err = config.NewFromFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		cfg = config.NewFromViper(config.NewEmptyViper())
	}

	cfg.Set("server.filter_type", "cli")
	cfg.Set("cli.verbose", flags.Verbose)

	if flags.MaxDepth > 0 {
		cfg.Set("groomer.max_depth", flags.MaxDepth)
	}

	switch {
	case flags.Stdout:
		cfg.Set("delivery.type", "stdout")
	case flags.OutDir != "":
		cfg.Set("delivery.type", "directory")
		cfg.Set("delivery.directory.path", flags.OutDir)
	case cfg.GetString("delivery.type") == "smtp" && flags.ConfigFile == "":
		// without a config file there is no relay to talk to
		cfg.Set("delivery.type", "directory")
	}

	return cfg, nil
}

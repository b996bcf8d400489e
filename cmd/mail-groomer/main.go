package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/dig"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/mail-groomer/internal/adapters/cache"
	"github.com/mikey/mail-groomer/internal/config"
	"github.com/mikey/mail-groomer/internal/di"
	"github.com/mikey/mail-groomer/internal/metrics"
	"github.com/mikey/mail-groomer/internal/ports"
)

func main() {
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

type daemon struct {
	dig.In

	Config        *config.Config
	Logger        *zap.Logger
	EmailFilter   ports.EmailFilter
	Delivery      ports.Delivery
	MetricsServer *metrics.Server
	Cache         cache.Store `optional:"true"`
}

// run is the main application function that gets all dependencies injected
func run(d daemon) error {
	logger := d.Logger
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.EmailFilter.Start(); err != nil {
		logger.Error("Failed to start filter", zap.Error(err))
		return err
	}
	logger.Info("Mail groomer started",
		zap.String("filter", d.Config.GetString("server.filter_type")),
		zap.String("delivery", d.Delivery.Name()),
		zap.Int("max_depth", d.Config.GetGroomer().MaxDepth))

	g, gctx := errgroup.WithContext(ctx)

	if d.Config.GetMetrics().Enabled {
		g.Go(func() error {
			return d.MetricsServer.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		return d.EmailFilter.Stop()
	})

	err := g.Wait()

	if d.Cache != nil {
		if stopErr := d.Cache.Stop(); stopErr != nil {
			logger.Error("Failed to stop cache", zap.Error(stopErr))
		}
	}

	if err != nil {
		logger.Error("Shutdown with error", zap.Error(err))
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

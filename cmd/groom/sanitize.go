package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/mail-groomer/internal/adapters/cache"
	"github.com/mikey/mail-groomer/internal/di"
	"github.com/mikey/mail-groomer/internal/factory"
)

func newSanitizeCmd(flags *di.CLIFlags) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "sanitize [file|glob|-]...",
		Short: "Sanitize messages from files, globs or stdin",
		Example: `  groom sanitize --out /tmp/out '/tmp/in/*.eml'
  groom sanitize --stdout < message.eml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := expandInputs(args)
			if err != nil {
				return err
			}

			container, err := di.BuildCLIContainer(flags)
			if err != nil {
				return fmt.Errorf("failed to build dependency container: %w", err)
			}

			return container.Invoke(func(f *factory.FilterFactory, logger *zap.Logger, store cache.Store) error {
				defer logger.Sync()
				if store != nil {
					defer store.Stop()
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				return sanitizeAll(ctx, f, logger, inputs, workers, cmd.InOrStdin())
			})
		},
	}

	cmd.Flags().StringVarP(&flags.OutDir, "out", "o", "", "directory receiving sanitized messages")
	cmd.Flags().BoolVar(&flags.Stdout, "stdout", false, "write sanitized messages to stdout")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "messages processed in parallel")

	return cmd
}

func sanitizeAll(ctx context.Context, f *factory.FilterFactory, logger *zap.Logger, inputs []string, workers int, stdin io.Reader) error {
	cli := f.CreateCliFilter()

	if len(inputs) == 0 {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		_, err = cli.ProcessEmail(ctx, raw)
		return err
	}

	if workers < 1 {
		workers = 1
	}

	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range inputs {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				logger.Error("Failed to read input", zap.String("file", path), zap.Error(err))
				failed.Add(1)
				return nil
			}

			if _, err := cli.Sanitize(gctx, path, raw); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d messages could not be sanitized", n, len(inputs))
	}
	return nil
}

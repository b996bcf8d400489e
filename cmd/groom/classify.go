package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey/mail-groomer/internal/adapters/cache"
	"github.com/mikey/mail-groomer/internal/adapters/mime"
	"github.com/mikey/mail-groomer/internal/core"
	"github.com/mikey/mail-groomer/internal/di"
)

func newClassifyCmd(flags *di.CLIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "classify file|glob...",
		Short: "Print the verdict for individual attachment files as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := expandInputs(args)
			if err != nil {
				return err
			}

			container, err := di.BuildCLIContainer(flags)
			if err != nil {
				return fmt.Errorf("failed to build dependency container: %w", err)
			}

			return container.Invoke(func(svc *core.GroomerService, logger *zap.Logger, store cache.Store) error {
				defer logger.Sync()
				if store != nil {
					defer store.Stop()
				}

				entries := make([]mime.LogEntry, 0, len(inputs))
				for _, path := range inputs {
					content, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("failed to read %s: %w", path, err)
					}
					att, err := svc.Evaluate(cmd.Context(), content, filepath.Base(path))
					if err != nil {
						return err
					}
					entries = append(entries, mime.NewLogEntry(att))
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			})
		},
	}
}

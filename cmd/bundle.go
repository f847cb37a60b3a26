package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dhcgn/inotes-export/artifact"
	"github.com/dhcgn/inotes-export/config"
	"github.com/dhcgn/inotes-export/filter"
	"github.com/dhcgn/inotes-export/mbox"
	"github.com/dhcgn/inotes-export/runner"
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Pack the exported .eml files into a single mbox file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadBundle(cmd)
		if err != nil {
			return err
		}

		logger, cleanup, err := setupLogger(cfg.Common, "inotes-bundle")
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()

		logger.Info("starting bundle", "dir", cfg.Dir, "output", cfg.Output)
		return runBundle(cmd.Context(), cfg, logger)
	},
}

func init() {
	config.RegisterBundleFlags(bundleCmd)
	rootCmd.AddCommand(bundleCmd)
}

func runBundle(ctx context.Context, cfg config.Bundle, logger *slog.Logger) error {
	store, err := artifact.NewStore(cfg.Dir)
	if err != nil {
		return err
	}
	f, err := filter.New(cfg.Filter)
	if err != nil {
		return &config.ConfigurationError{Msg: "filter", Err: err}
	}

	r := runner.New(logger)
	attachReporter(r, cfg.LogLevel, "Bundling", logger)

	bundler := &mbox.Bundler{Store: store, Filter: f, Emitter: r, Logger: logger}
	r.AddStage("bundle", func(ctx context.Context) error {
		return writeBundle(ctx, bundler, cfg.Output, logger)
	})
	return r.Start(ctx)
}

// writeBundle writes next to the destination and renames on success, so a
// failed run never replaces an earlier bundle with a partial one.
func writeBundle(ctx context.Context, bundler *mbox.Bundler, output string, logger *slog.Logger) error {
	tmp, err := os.CreateTemp(filepath.Dir(output), "."+filepath.Base(output)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := bundler.Bundle(ctx, tmp)
	if err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), output); err != nil {
		return fmt.Errorf("rename bundle: %w", err)
	}

	logger.Info("bundle written", "output", output, "messages", n)
	return nil
}

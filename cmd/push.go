package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dhcgn/inotes-export/artifact"
	"github.com/dhcgn/inotes-export/config"
	"github.com/dhcgn/inotes-export/filter"
	"github.com/dhcgn/inotes-export/imap"
	"github.com/dhcgn/inotes-export/runner"
	"github.com/dhcgn/inotes-export/state"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Append the exported .eml files to an IMAP mailbox",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadPush(cmd)
		if err != nil {
			return err
		}

		logger, cleanup, err := setupLogger(cfg.Common, "inotes-push")
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()

		logger.Info("starting push", "dir", cfg.Dir, "target", cfg.TargetFolder, "dryRun", cfg.DryRun)
		return runPush(cmd.Context(), cfg, logger)
	},
}

func init() {
	if err := config.RegisterPushFlags(pushCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register push flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(pushCmd)
}

func runPush(ctx context.Context, cfg config.Push, logger *slog.Logger) (err error) {
	store, err := artifact.NewStore(cfg.Dir)
	if err != nil {
		return err
	}
	f, err := filter.New(cfg.Filter)
	if err != nil {
		return &config.ConfigurationError{Msg: "filter", Err: err}
	}

	tracker, err := state.NewFileTracker(cfg.StateDir, !cfg.DryRun)
	if err != nil {
		return fmt.Errorf("state tracker: %w", err)
	}
	defer func() {
		if cerr := tracker.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	r := runner.New(logger)
	attachReporter(r, cfg.LogLevel, "Pushing", logger)

	uploader, err := imap.NewUploader(imap.Options{
		Host:               cfg.IMAPHost,
		Port:               cfg.IMAPPort,
		Username:           cfg.IMAPUser,
		Password:           cfg.IMAPPass,
		UseTLS:             cfg.UseTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		TargetFolder:       cfg.TargetFolder,
		DryRun:             cfg.DryRun,
	}, tracker, r, logger)
	if err != nil {
		return fmt.Errorf("imap.NewUploader: %w", err)
	}

	r.AddStage("push", func(ctx context.Context) error {
		return uploader.Push(ctx, store, f)
	})
	return r.Start(ctx)
}

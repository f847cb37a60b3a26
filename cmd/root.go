package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dhcgn/inotes-export/artifact"
	"github.com/dhcgn/inotes-export/config"
	"github.com/dhcgn/inotes-export/export"
	"github.com/dhcgn/inotes-export/inotes"
	"github.com/dhcgn/inotes-export/progress"
	"github.com/dhcgn/inotes-export/runner"
	"github.com/dhcgn/inotes-export/session"
	"github.com/dhcgn/inotes-export/stats"
)

var rootCmd = &cobra.Command{
	Use:   "inotes-export",
	Short: "Export every message of an iNotes folder into .eml files",
	Long: `Export every message of an iNotes (Domino web mail) folder into one
<unid>.eml file per message. Messages whose file already exists are skipped,
so an interrupted export is continued by running the same command again.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadExport(cmd)
		if err != nil {
			return err
		}

		logger, cleanup, err := setupLogger(cfg.Common, "inotes-export")
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()

		slog.SetDefault(logger)
		logger.Info("starting inotes-export", "mailfile", cfg.MailFile, "folder", cfg.MailFolder, "outDir", cfg.OutDir, "max", cfg.MaxItems)

		_, err = runExport(cmd.Context(), cfg, logger)
		return err
	},
}

func init() {
	config.RegisterCommonFlags(rootCmd)
	config.RegisterExportFlags(rootCmd)
}

// Execute runs the command line.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func runExport(ctx context.Context, cfg config.Export, logger *slog.Logger) (export.Report, error) {
	sess, err := session.New(cfg.MailFile, cfg.Cookies, session.DefaultHeaders())
	if err != nil {
		return export.Report{}, &config.ConfigurationError{Msg: "session", Err: err}
	}
	logger.Debug("session", "cookies", sess.CookieNames())

	store, err := artifact.NewStore(cfg.OutDir)
	if err != nil {
		return export.Report{}, &config.ConfigurationError{Msg: "output directory", Err: err}
	}

	client := inotes.NewClient(sess, inotes.Options{Timeout: cfg.Timeout}, logger)

	r := runner.New(logger)
	attachReporter(r, cfg.LogLevel, "Exporting", logger)

	enumerator := &inotes.Enumerator{
		Fetcher:  client,
		PageSize: cfg.PageSize,
		Emitter:  r,
		Logger:   logger,
	}
	exporter := &export.Exporter{
		Fetcher:       client,
		Store:         store,
		Emitter:       r,
		ProgressEvery: cfg.ProgressEvery,
		Logger:        logger,
	}

	var (
		ids    []string
		report export.Report
	)
	r.AddStage("list", func(ctx context.Context) error {
		var err error
		ids, err = enumerator.Enumerate(ctx, cfg.MailFolder, cfg.MaxItems)
		if err != nil {
			r.EmitEvent(stats.Event{Stage: stats.StageList, Type: stats.EventTypeError, Err: err})
			return err
		}
		logger.Info("number of unids loaded", "count", len(ids))
		r.EmitEvent(stats.Event{Stage: stats.StageList, Type: stats.EventTypeTotal, Count: len(ids)})
		return nil
	})
	r.AddStage("export", func(ctx context.Context) error {
		var err error
		report, err = exporter.ExportAll(ctx, ids)
		logger.Info("export finished", report.LogAttrs()...)
		if err != nil {
			return fmt.Errorf("export %s: %w", cfg.MailFolder, err)
		}
		return nil
	})

	err = r.Start(ctx)
	return report, err
}

// attachReporter subscribes the progress bar when it can be drawn and the
// plain log reporter otherwise.
func attachReporter(r *runner.Runner, logLevel, title string, logger *slog.Logger) {
	if progress.Enabled(logLevel) {
		progress.NewProgressReporter(r, progress.New(title, true), logger)
		return
	}
	stats.NewReporter(r, logger)
}

package progress

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"golang.org/x/term"

	"github.com/dhcgn/inotes-export/stats"
)

// Enabled reports whether a progress bar should be drawn for logLevel.
func Enabled(logLevel string) bool {
	return logLevel == "info" && term.IsTerminal(int(os.Stdout.Fd()))
}

// Bar draws a progress bar once the number of items is known.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	title   string
	total   int
	mu      sync.Mutex
	enabled bool
}

func New(title string, enabled bool) *Bar {
	return &Bar{title: title, enabled: enabled}
}

// Update advances the bar for evt.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeTotal:
		if b.pb != nil || evt.Count == 0 {
			return
		}
		b.total = evt.Count
		pterm.Info.Printf("Messages to process: %d\n", evt.Count)
		pb, err := pterm.DefaultProgressbar.
			WithTotal(evt.Count).
			WithTitle(b.title).
			Start()
		if err != nil {
			return
		}
		b.pb = pb
	case stats.EventTypeWritten, stats.EventTypeSkipped, stats.EventTypeEmpty,
		stats.EventTypeFiltered, stats.EventTypeBundled, stats.EventTypeUploaded,
		stats.EventTypeDryRunUpload, stats.EventTypeDuplicate:
		if b.pb == nil {
			return
		}
		b.pb.Increment()
		if evt.MessageID != "" {
			displayID := evt.MessageID
			if len(displayID) > 40 {
				displayID = displayID[:37] + "..."
			}
			b.pb.UpdateTitle(b.title + ": " + displayID)
		}
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb == nil {
		return
	}
	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}
	_, _ = b.pb.Stop()
	pterm.Success.Println("Processing complete!")
}

// Subscriber updates the bar with every event until the stream closes.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	defer b.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// ProgressReporter combines the bar with a pterm summary.
type ProgressReporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

func NewProgressReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *ProgressReporter {
	reporter := &ProgressReporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	stream.SubscribeStats("progress-bar", bar.Subscriber)
	stream.SubscribeStats("progress-stats", reporter.collectStats)

	return reporter
}

func (pr *ProgressReporter) Summary() stats.Summary {
	return pr.collector.Snapshot()
}

func (pr *ProgressReporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	pr.collector.Run(ctx, events)

	summary := pr.collector.Snapshot()
	duration := time.Since(pr.started)

	pterm.Println()
	pterm.DefaultSection.Println("Summary Statistics")
	pterm.Info.Printf("Duration: %v\n", duration)
	if summary.Pages > 0 {
		pterm.Info.Printf("Listed: %d (%d pages)\n", summary.Listed, summary.Pages)
	}
	if summary.Written+summary.Skipped+summary.Empty > 0 {
		pterm.Info.Printf("Written: %d\n", summary.Written)
		pterm.Info.Printf("Already present (skipped): %d\n", summary.Skipped)
		pterm.Info.Printf("Empty bodies: %d\n", summary.Empty)
	}
	if summary.Filtered > 0 {
		pterm.Info.Printf("Filtered: %d\n", summary.Filtered)
	}
	if summary.Bundled > 0 {
		pterm.Info.Printf("Bundled: %d\n", summary.Bundled)
	}
	if summary.Uploaded+summary.DryRunUploaded+summary.Duplicates > 0 {
		pterm.Info.Printf("Uploaded: %d\n", summary.Uploaded)
		pterm.Info.Printf("Dry-run uploaded: %d\n", summary.DryRunUploaded)
		pterm.Info.Printf("Duplicates (skipped): %d\n", summary.Duplicates)
	}
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}

	if pr.logger != nil {
		pr.logger.Debug("stats summary", append(summary.LogAttrs(), "duration", duration)...)
	}
	return nil
}

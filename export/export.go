// Package export materializes folder messages as artifact files.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dhcgn/inotes-export/artifact"
	"github.com/dhcgn/inotes-export/inotes"
	"github.com/dhcgn/inotes-export/stats"
)

// DefaultProgressEvery is the number of processed items between progress lines.
const DefaultProgressEvery = 1000

// MessageFetcher returns the raw full-message form of a document.
type MessageFetcher interface {
	FetchMessage(ctx context.Context, unid string) (string, error)
}

type Report struct {
	Written  int
	Skipped  int
	Empty    int
	EmptyIDs []string
}

func (r Report) Processed() int {
	return r.Written + r.Skipped + r.Empty
}

func (r Report) LogAttrs() []any {
	return []any{"written", r.Written, "skipped", r.Skipped, "empty", r.Empty}
}

type Exporter struct {
	Fetcher       MessageFetcher
	Store         *artifact.Store
	Emitter       stats.Emitter
	ProgressEvery int
	Logger        *slog.Logger
}

// ExportAll exports ids in order. Existing artifacts are skipped without a
// request; empty bodies are reported and never written, so a later run
// fetches them again. A fetch or write failure stops the export and is
// returned together with the report so far.
func (e *Exporter) ExportAll(ctx context.Context, ids []string) (Report, error) {
	var report Report
	emitter := e.Emitter
	if emitter == nil {
		emitter = stats.Discard
	}
	every := e.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}

	stale, err := e.Store.RemoveStale()
	if err != nil {
		return report, err
	}
	if len(stale) > 0 && e.Logger != nil {
		e.Logger.Info("removed stale temp files", "count", len(stale))
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		outcome, err := e.exportOne(ctx, id)
		if err != nil {
			emitter.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeError, MessageID: id, Err: err})
			return report, err
		}

		switch outcome {
		case stats.EventTypeSkipped:
			report.Skipped++
			if e.Logger != nil {
				e.Logger.Debug("skip export, artifact exists", "path", e.Store.Path(id))
			}
		case stats.EventTypeEmpty:
			report.Empty++
			report.EmptyIDs = append(report.EmptyIDs, id)
			if e.Logger != nil {
				e.Logger.Warn("cannot process empty mime", "unid", id)
			}
		case stats.EventTypeWritten:
			report.Written++
			if e.Logger != nil {
				e.Logger.Debug("exported message", "unid", id, "path", e.Store.Path(id))
			}
		}
		emitter.EmitEvent(stats.Event{Stage: stats.StageExport, Type: outcome, MessageID: id})

		if processed := i + 1; processed%every == 0 && e.Logger != nil {
			e.Logger.Info("export progress", "processed", processed, "total", len(ids))
		}
	}

	return report, nil
}

func (e *Exporter) exportOne(ctx context.Context, id string) (stats.EventType, error) {
	exists, err := e.Store.Exists(id)
	if err != nil {
		return "", err
	}
	if exists {
		return stats.EventTypeSkipped, nil
	}

	raw, err := e.Fetcher.FetchMessage(ctx, id)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", id, err)
	}

	body := inotes.Sanitize(raw)
	if strings.TrimSpace(body) == "" {
		return stats.EventTypeEmpty, nil
	}

	if err := e.Store.Write(id, body); err != nil {
		return "", err
	}
	return stats.EventTypeWritten, nil
}

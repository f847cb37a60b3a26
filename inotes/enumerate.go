package inotes

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhcgn/inotes-export/stats"
)

// DefaultPageSize is the number of rows requested per listing call.
const DefaultPageSize = 500

// PageFetcher lists one page of a folder.
type PageFetcher interface {
	FetchPage(ctx context.Context, folder string, count, start int) (Page, error)
}

// Enumerator walks a folder page by page and collects its row identifiers.
type Enumerator struct {
	Fetcher  PageFetcher
	PageSize int
	Emitter  stats.Emitter
	Logger   *slog.Logger
}

// Enumerate returns the identifiers of folder in server order. maxItems
// caps the result; zero means the whole folder. The loop ends when a page
// yields no rows, when the rows seen reach the reported total, or when the
// cap is reached. Any fetch error aborts the enumeration.
func (e *Enumerator) Enumerate(ctx context.Context, folder string, maxItems int) ([]string, error) {
	pageSize := e.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	emitter := e.Emitter
	if emitter == nil {
		emitter = stats.Discard
	}

	ids := []string{}
	start := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := e.Fetcher.FetchPage(ctx, folder, pageSize, start)
		if err != nil {
			return nil, fmt.Errorf("list %s from %d: %w", folder, start, err)
		}

		if !page.TotalReported && e.Logger != nil {
			e.Logger.Warn("listing carried no entry count, the session may be expired", "folder", folder, "start", start)
		}

		taken := 0
		for _, id := range page.Items {
			if maxItems > 0 && len(ids) >= maxItems {
				break
			}
			ids = append(ids, id)
			taken++
		}
		emitter.EmitEvent(stats.Event{Stage: stats.StageList, Type: stats.EventTypePage, Count: taken, Detail: folder})

		if e.Logger != nil {
			e.Logger.Info("listed page", "folder", folder, "start", start, "rows", len(page.Items), "total", page.TotalCount)
		}

		if maxItems > 0 && len(ids) >= maxItems {
			if e.Logger != nil {
				e.Logger.Info("hit max value", "max", maxItems)
			}
			return ids, nil
		}

		advanced := len(page.Items)
		if advanced == 0 {
			return ids, nil
		}

		start += advanced
		if start > page.TotalCount {
			return ids, nil
		}
	}
}

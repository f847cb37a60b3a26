package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Stage string

const (
	StageList   Stage = "list"
	StageExport Stage = "export"
	StageBundle Stage = "bundle"
	StagePush   Stage = "push"
)

type EventType string

const (
	EventTypePage         EventType = "page"
	EventTypeTotal        EventType = "total"
	EventTypeWritten      EventType = "written"
	EventTypeSkipped      EventType = "skipped"
	EventTypeEmpty        EventType = "empty"
	EventTypeFiltered     EventType = "filtered"
	EventTypeBundled      EventType = "bundled"
	EventTypeUploaded     EventType = "uploaded"
	EventTypeDryRunUpload EventType = "dry_run_uploaded"
	EventTypeDuplicate    EventType = "duplicate"
	EventTypeError        EventType = "error"
)

type Event struct {
	Stage     Stage
	Type      EventType
	MessageID string
	// Count carries the row count of a page or the size of a total.
	Count  int
	Err    error
	Detail string
}

// Emitter receives pipeline events.
type Emitter interface {
	EmitEvent(evt Event)
}

type discard struct{}

func (discard) EmitEvent(Event) {}

// Discard drops every event.
var Discard Emitter = discard{}

type Summary struct {
	Pages          int
	Listed         int
	Written        int
	Skipped        int
	Empty          int
	Filtered       int
	Bundled        int
	Uploaded       int
	DryRunUploaded int
	Duplicates     int
	Errors         int
	LastError      error
}

// Processed counts the items that reached a final outcome.
func (s Summary) Processed() int {
	return s.Written + s.Skipped + s.Empty + s.Filtered + s.Bundled + s.Uploaded + s.DryRunUploaded + s.Duplicates
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"pages", s.Pages,
		"listed", s.Listed,
		"written", s.Written,
		"skipped", s.Skipped,
		"empty", s.Empty,
		"errors", s.Errors,
	}
	if s.Filtered > 0 {
		attrs = append(attrs, "filtered", s.Filtered)
	}
	if s.Bundled > 0 {
		attrs = append(attrs, "bundled", s.Bundled)
	}
	if s.Uploaded > 0 || s.DryRunUploaded > 0 || s.Duplicates > 0 {
		attrs = append(attrs, "uploaded", s.Uploaded, "dryRunUploaded", s.DryRunUploaded, "duplicates", s.Duplicates)
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) Apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypePage:
		c.summary.Pages++
		c.summary.Listed += evt.Count
	case EventTypeWritten:
		c.summary.Written++
	case EventTypeSkipped:
		c.summary.Skipped++
	case EventTypeEmpty:
		c.summary.Empty++
	case EventTypeFiltered:
		c.summary.Filtered++
	case EventTypeBundled:
		c.summary.Bundled++
	case EventTypeUploaded:
		c.summary.Uploaded++
	case EventTypeDryRunUpload:
		c.summary.DryRunUploaded++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

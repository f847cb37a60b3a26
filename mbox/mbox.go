// Package mbox bundles exported artifacts into a single mbox archive.
package mbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/inotes-export/artifact"
	"github.com/dhcgn/inotes-export/filter"
	"github.com/dhcgn/inotes-export/model"
	"github.com/dhcgn/inotes-export/stats"
)

// DefaultSender is the envelope sender used when an artifact has no From.
const DefaultSender = "MAILER-DAEMON"

type Bundler struct {
	Store   *artifact.Store
	Filter  *filter.Filter
	Emitter stats.Emitter
	Logger  *slog.Logger
}

// Bundle appends every artifact the filter allows to out, in name order.
func (b *Bundler) Bundle(ctx context.Context, out io.Writer) (int, error) {
	emitter := b.Emitter
	if emitter == nil {
		emitter = stats.Discard
	}

	ids, err := b.Store.IDs()
	if err != nil {
		return 0, err
	}
	emitter.EmitEvent(stats.Event{Stage: stats.StageBundle, Type: stats.EventTypeTotal, Count: len(ids)})

	w := mboxlib.NewWriter(out)
	written := 0
	err = b.Store.Walk(ctx, func(a model.Artifact) error {
		if !b.Filter.Allows(a) {
			emitter.EmitEvent(stats.Event{Stage: stats.StageBundle, Type: stats.EventTypeFiltered, MessageID: a.ID})
			return nil
		}
		if err := writeMessage(w, a); err != nil {
			err = fmt.Errorf("bundle %s: %w", a.ID, err)
			emitter.EmitEvent(stats.Event{Stage: stats.StageBundle, Type: stats.EventTypeError, MessageID: a.ID, Err: err})
			return err
		}
		written++
		emitter.EmitEvent(stats.Event{Stage: stats.StageBundle, Type: stats.EventTypeBundled, MessageID: a.ID})
		if b.Logger != nil {
			b.Logger.Debug("bundled artifact", "unid", a.ID, "from", envelopeSender(a))
		}
		return nil
	})
	if err != nil {
		return written, err
	}

	if err := w.Close(); err != nil {
		return written, fmt.Errorf("close mbox: %w", err)
	}
	return written, nil
}

func writeMessage(w *mboxlib.Writer, a model.Artifact) error {
	mw, err := w.CreateMessage(envelopeSender(a), envelopeTime(a))
	if err != nil {
		return err
	}
	_, err = mw.Write(a.Raw)
	return err
}

func envelopeSender(a model.Artifact) string {
	if a.From != "" {
		return a.From
	}
	return DefaultSender
}

func envelopeTime(a model.Artifact) time.Time {
	if !a.ReceivedAt.IsZero() {
		return a.ReceivedAt
	}
	if !a.ModTime.IsZero() {
		return a.ModTime
	}
	return time.Now()
}

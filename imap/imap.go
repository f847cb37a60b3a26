// Package imap pushes exported artifacts into an IMAP mailbox.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/inotes-export/artifact"
	"github.com/dhcgn/inotes-export/filter"
	"github.com/dhcgn/inotes-export/model"
	"github.com/dhcgn/inotes-export/state"
	"github.com/dhcgn/inotes-export/stats"
)

const DefaultTargetFolder = "INBOX"

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	DryRun             bool
}

type Uploader struct {
	opts    Options
	tracker state.Tracker
	emitter stats.Emitter
	logger  *slog.Logger
}

func NewUploader(opts Options, tracker state.Tracker, emitter stats.Emitter, logger *slog.Logger) (*Uploader, error) {
	if opts.Host == "" && !opts.DryRun {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 && !opts.DryRun {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	if emitter == nil {
		emitter = stats.Discard
	}
	return &Uploader{
		opts:    opts,
		tracker: tracker,
		emitter: emitter,
		logger:  logger,
	}, nil
}

// Push appends every artifact of store that passes f and has not been
// pushed to the target folder before.
func (u *Uploader) Push(ctx context.Context, store *artifact.Store, f *filter.Filter) error {
	var (
		client  *imapclient.Client
		cleanup func()
	)
	defer func() {
		if cleanup != nil {
			cleanup()
		}
	}()

	ids, err := store.IDs()
	if err != nil {
		return err
	}
	u.emitter.EmitEvent(stats.Event{Stage: stats.StagePush, Type: stats.EventTypeTotal, Count: len(ids)})

	target := u.targetFolder()
	return store.Walk(ctx, func(a model.Artifact) error {
		if !f.Allows(a) {
			u.emitter.EmitEvent(stats.Event{Stage: stats.StagePush, Type: stats.EventTypeFiltered, MessageID: a.ID})
			return nil
		}
		if u.tracker.AlreadyPushed(target, a.Hash) {
			u.emitter.EmitEvent(stats.Event{Stage: stats.StagePush, Type: stats.EventTypeDuplicate, MessageID: a.ID})
			return nil
		}

		if u.opts.DryRun {
			if err := u.tracker.MarkPushed(target, a.Hash, a.ID); err != nil {
				return u.fail(a.ID, err)
			}
			u.emitter.EmitEvent(stats.Event{Stage: stats.StagePush, Type: stats.EventTypeDryRunUpload, MessageID: a.ID})
			if u.logger != nil {
				u.logger.Debug("dry-run upload", "unid", a.ID, "target", target, "hash", a.Hash)
			}
			return nil
		}

		if client == nil {
			var err error
			client, cleanup, err = u.dial(ctx)
			if err != nil {
				return u.fail(a.ID, err)
			}
		}

		if err := u.appendMessage(client, a); err != nil {
			return u.fail(a.ID, fmt.Errorf("upload %s: %w", a.ID, err))
		}
		if err := u.tracker.MarkPushed(target, a.Hash, a.ID); err != nil {
			return u.fail(a.ID, err)
		}

		u.emitter.EmitEvent(stats.Event{Stage: stats.StagePush, Type: stats.EventTypeUploaded, MessageID: a.ID})
		if u.logger != nil {
			u.logger.Debug("uploaded artifact", "unid", a.ID, "target", target, "hash", a.Hash)
		}
		return nil
	})
}

func (u *Uploader) fail(unid string, err error) error {
	u.emitter.EmitEvent(stats.Event{Stage: stats.StagePush, Type: stats.EventTypeError, MessageID: unid, Err: err})
	return err
}

func (u *Uploader) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(u.opts.Host, strconv.Itoa(u.opts.Port))
	options := &imapclient.Options{}

	if u.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         u.opts.Host,
			InsecureSkipVerify: u.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if u.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(u.opts.Username, u.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if err := u.ensureMailbox(client); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	if u.logger != nil {
		u.logger.Debug("imap connection established", "address", address, "user", u.opts.Username, "target", u.targetFolder(), "tls", u.opts.UseTLS)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil && u.logger != nil {
				u.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil && u.logger != nil {
			u.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}

func (u *Uploader) appendMessage(client *imapclient.Client, a model.Artifact) error {
	var opts *imapv2.AppendOptions
	if !a.ReceivedAt.IsZero() {
		opts = &imapv2.AppendOptions{Time: a.ReceivedAt}
	}

	cmd := client.Append(u.targetFolder(), int64(len(a.Raw)), opts)

	remaining := a.Raw
	for len(remaining) > 0 {
		n, err := cmd.Write(remaining)
		if err != nil {
			_ = cmd.Close()
			return fmt.Errorf("append write: %w", err)
		}
		if n == 0 {
			_ = cmd.Close()
			return fmt.Errorf("append write: wrote 0 bytes")
		}
		remaining = remaining[n:]
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}
	return nil
}

func (u *Uploader) targetFolder() string {
	if u.opts.TargetFolder == "" {
		return DefaultTargetFolder
	}
	return u.opts.TargetFolder
}

func (u *Uploader) ensureMailbox(client *imapclient.Client) error {
	target := u.targetFolder()
	if err := client.Create(target, nil).Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) && respErr.Code == imapv2.ResponseCodeAlreadyExists {
			if u.logger != nil {
				u.logger.Debug("imap mailbox already exists", "mailbox", target)
			}
			return nil
		}
		return fmt.Errorf("ensure mailbox %s: %w", target, err)
	}

	if u.logger != nil {
		u.logger.Info("imap mailbox created", "mailbox", target)
	}
	return nil
}

// Package inotes talks to the view and document proxy of an iNotes mail file.
package inotes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dhcgn/inotes-export/session"
)

const defaultTimeout = 60 * time.Second

// folderUnescaper restores the characters Domino folder aliases are
// written with, such as ($Inbox).
var folderUnescaper = strings.NewReplacer(
	"+", "%20",
	"%28", "(",
	"%29", ")",
	"%24", "$",
)

// escapeFolder percent-encodes a folder name for the FolderName preset.
// Separators of the preset list (';' and ',') are always encoded.
func escapeFolder(folder string) string {
	return folderUnescaper.Replace(url.QueryEscape(folder))
}

type Options struct {
	Timeout time.Duration
	// HTTPClient overrides the transport. Its CheckRedirect is always
	// replaced so redirects are never followed.
	HTTPClient *http.Client
}

// Client issues listing and document requests with a fixed session.
type Client struct {
	session session.Context
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(sess session.Context, opts Options, logger *slog.Logger) *Client {
	hc := &http.Client{}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		hc = &copied
	}
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	} else if hc.Timeout == 0 {
		hc.Timeout = defaultTimeout
	}
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{
		session: sess,
		http:    hc,
		logger:  logger,
	}
}

// FetchMessage returns the raw full-message form of the document unid.
func (c *Client) FetchMessage(ctx context.Context, unid string) (string, error) {
	target := c.messageURL(unid)
	body, err := c.get(ctx, "fetch message", target)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) listingURL(folder string, count, start int) string {
	return fmt.Sprintf(
		"%s/iNotes/Proxy/?OpenDocument&Form=s_ReadViewEntries&PresetFields=FolderName;%s,UnreadCountInfo;1,SearchSort;DateA,s_UsingHttps;1,hc;$98,noPI;1&TZType=UTC&Count=%d&Start=%d&resortdescending=5",
		c.session.BaseURL(), escapeFolder(folder), count, start,
	)
}

func (c *Client) messageURL(unid string) string {
	return fmt.Sprintf(
		"%s/($All)/%s/?OpenDocument&Form=l_MailMessageHeader&PresetFields=FullMessage;1",
		c.session.BaseURL(), unid,
	)
}

func (c *Client) get(ctx context.Context, op, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.session.Apply(req)

	if c.logger != nil {
		c.logger.Debug("http request", "op", op, "url", target)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading response body: %w", op, err)
	}

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return nil, &ProtocolError{
			Op:     op,
			URL:    target,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w (location %q)", ErrSessionRedirect, resp.Header.Get("Location")),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &ProtocolError{
			Op:     op,
			URL:    target,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return body, nil
}

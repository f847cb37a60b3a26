package inotes

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-message/charset"

	"github.com/dhcgn/inotes-export/session"
)

// Page is one slice of a folder listing.
type Page struct {
	Items []string
	// TotalCount is the folder size the server reported with this page.
	TotalCount int
	// TotalReported is false when the listing carried no entry count at
	// all, which is what an expired session tends to look like.
	TotalReported bool
}

type readViewEntries struct {
	XMLName xml.Name     `xml:"readviewentries"`
	Entries *viewEntries `xml:"viewentries"`
}

type viewEntries struct {
	TopLevelEntries *string     `xml:"toplevelentries,attr"`
	Rows            []viewEntry `xml:"viewentry"`
}

type viewEntry struct {
	UNID string `xml:"unid,attr"`
}

// FetchPage lists count rows of folder starting at the 1-based offset start.
func (c *Client) FetchPage(ctx context.Context, folder string, count, start int) (Page, error) {
	if strings.TrimSpace(folder) == "" {
		folder = session.DefaultInboxFolder
	}
	if count <= 0 {
		return Page{}, fmt.Errorf("page size must be positive, got %d", count)
	}
	if start <= 0 {
		return Page{}, fmt.Errorf("start must be positive, got %d", start)
	}

	target := c.listingURL(folder, count, start)
	body, err := c.get(ctx, "list folder", target)
	if err != nil {
		return Page{}, err
	}

	page, err := parseListing(body)
	if err != nil {
		return Page{}, &ProtocolError{Op: "list folder", URL: target, Err: err}
	}

	if c.logger != nil {
		c.logger.Debug("listing page", "folder", folder, "start", start, "rows", len(page.Items), "total", page.TotalCount)
	}
	return page, nil
}

func parseListing(body []byte) (Page, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.Reader

	var doc readViewEntries
	if err := dec.Decode(&doc); err != nil {
		return Page{}, fmt.Errorf("parse view entries: %w", err)
	}

	page := Page{Items: []string{}}
	if doc.Entries == nil {
		return page, nil
	}

	if raw := doc.Entries.TopLevelEntries; raw != nil {
		total, err := strconv.Atoi(strings.TrimSpace(*raw))
		if err != nil {
			return Page{}, fmt.Errorf("parse toplevelentries %q: %w", *raw, err)
		}
		page.TotalCount = total
		page.TotalReported = true
	}

	for i, row := range doc.Entries.Rows {
		if row.UNID == "" {
			return Page{}, fmt.Errorf("row %d: %w", i+1, ErrMissingUNID)
		}
		page.Items = append(page.Items, row.UNID)
	}

	return page, nil
}

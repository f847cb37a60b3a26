// Package session holds the authenticated iNotes browser session that every
// request is made with.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// DefaultInboxFolder is the view alias of the inbox in a Domino mail file.
const DefaultInboxFolder = "($Inbox)"

const defaultUserAgent = "Mozilla/5.0 (X11; Fedora; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/98.0.4758.80 Safari/537.36"

var (
	ErrBaseURLMissing = errors.New("mail file URL is empty")
	ErrNoCookies      = errors.New("no session cookies supplied")
)

// Context is the immutable session a run is made with. Accessors return
// copies so callers cannot mutate the shared value.
type Context struct {
	baseURL string
	cookies map[string]string
	headers http.Header
}

// New validates the inputs and builds a session context.
func New(baseURL string, cookies map[string]string, headers http.Header) (Context, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return Context{}, ErrBaseURLMissing
	}
	if len(cookies) == 0 {
		return Context{}, ErrNoCookies
	}

	jar := make(map[string]string, len(cookies))
	for name, value := range cookies {
		jar[name] = value
	}
	if headers == nil {
		headers = DefaultHeaders()
	}

	return Context{
		baseURL: baseURL,
		cookies: jar,
		headers: headers.Clone(),
	}, nil
}

// BaseURL returns the mail file URL without a trailing slash.
func (c Context) BaseURL() string {
	return c.baseURL
}

// CookieNames returns the cookie names in sorted order.
func (c Context) CookieNames() []string {
	names := make([]string, 0, len(c.cookies))
	for name := range c.cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Headers returns a copy of the request headers.
func (c Context) Headers() http.Header {
	return c.headers.Clone()
}

// Apply attaches the session headers and cookies to req.
func (c Context) Apply(req *http.Request) {
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for _, name := range c.CookieNames() {
		req.AddCookie(&http.Cookie{Name: name, Value: c.cookies[name]})
	}
}

// DefaultHeaders returns the headers the web client normally sends.
func DefaultHeaders() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", defaultUserAgent)
	return h
}

// ParseCookies parses a cookie string copied from the browser developer
// tools, e.g. "DomAuthSessId=abc; ShimmerS=def".
func ParseCookies(raw string) (map[string]string, error) {
	cookies := make(map[string]string)
	for _, pair := range strings.Split(raw, "; ") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("malformed cookie pair %q", pair)
		}
		cookies[strings.TrimSpace(name)] = value
	}
	return cookies, nil
}

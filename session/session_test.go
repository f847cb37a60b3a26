package session

import (
	"errors"
	"net/http"
	"testing"
)

func TestParseCookies(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "two cookies",
			raw:  "DomAuthSessId=abc; ShimmerS=def",
			want: map[string]string{"DomAuthSessId": "abc", "ShimmerS": "def"},
		},
		{
			name: "value containing equals",
			raw:  "LtpaToken=a=b==",
			want: map[string]string{"LtpaToken": "a=b=="},
		},
		{
			name: "trailing separator",
			raw:  "a=1; ",
			want: map[string]string{"a": "1"},
		},
		{
			name:    "missing equals",
			raw:     "a=1; broken",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCookies(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCookies() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d cookies, want %d", len(got), len(tt.want))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("cookie %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New("", map[string]string{"a": "b"}, nil); !errors.Is(err, ErrBaseURLMissing) {
		t.Errorf("expected ErrBaseURLMissing, got %v", err)
	}
	if _, err := New("https://mail.example.com/mail/u.nsf", nil, nil); !errors.Is(err, ErrNoCookies) {
		t.Errorf("expected ErrNoCookies, got %v", err)
	}
}

func TestContextIsImmutable(t *testing.T) {
	cookies := map[string]string{"DomAuthSessId": "abc"}
	ctx, err := New("https://mail.example.com/mail/u.nsf/", cookies, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	cookies["DomAuthSessId"] = "changed"
	ctx.Headers().Set("User-Agent", "changed")

	if ctx.BaseURL() != "https://mail.example.com/mail/u.nsf" {
		t.Errorf("trailing slash not trimmed: %s", ctx.BaseURL())
	}

	req, _ := http.NewRequest(http.MethodGet, ctx.BaseURL(), nil)
	ctx.Apply(req)
	c, err := req.Cookie("DomAuthSessId")
	if err != nil {
		t.Fatalf("cookie missing: %v", err)
	}
	if c.Value != "abc" {
		t.Errorf("cookie value = %q, want abc", c.Value)
	}
	if req.Header.Get("User-Agent") != defaultUserAgent {
		t.Errorf("user agent was mutated: %q", req.Header.Get("User-Agent"))
	}
}

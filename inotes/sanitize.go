package inotes

import (
	"html"
	"strings"
)

// escapedBreak is an encoded break tag that belongs to the message text.
const escapedBreak = "&lt;br&gt;"

var breakReplacer = strings.NewReplacer("<br>", "", "<br/>", "", "<br />", "")

// Sanitize strips the literal break markup the proxy inserts and decodes
// HTML entities. Encoded break tags are left as they are.
func Sanitize(body string) string {
	body = breakReplacer.Replace(body)

	parts := strings.Split(body, escapedBreak)
	for i, part := range parts {
		parts[i] = html.UnescapeString(part)
	}
	return strings.Join(parts, escapedBreak)
}

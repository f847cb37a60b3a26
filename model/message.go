package model

import "time"

// Artifact represents a single exported message file on disk.
type Artifact struct {
	ID         string
	Path       string
	MessageID  string
	From       string
	Hash       string
	ReceivedAt time.Time
	ModTime    time.Time
	Size       int64
	Raw        []byte
}

// Header returns the raw header block of the artifact.
func (a Artifact) Header() []byte {
	header, _ := SplitRaw(a.Raw)
	return header
}

// Body returns everything after the first blank line.
func (a Artifact) Body() []byte {
	_, body := SplitRaw(a.Raw)
	return body
}

package mbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/mail"
	"testing"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/inotes-export/artifact"
	"github.com/dhcgn/inotes-export/filter"
)

func newStore(t *testing.T, messages map[string]string) *artifact.Store {
	t.Helper()
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	for id, body := range messages {
		require.NoError(t, store.Write(id, body))
	}
	return store
}

func readSubjects(t *testing.T, data []byte) []string {
	t.Helper()
	r := mboxlib.NewReader(bytes.NewReader(data))
	var subjects []string
	for {
		msgReader, err := r.NextMessage()
		if errors.Is(err, io.EOF) {
			return subjects
		}
		require.NoError(t, err)
		msg, err := mail.ReadMessage(msgReader)
		require.NoError(t, err)
		subjects = append(subjects, msg.Header.Get("Subject"))
	}
}

func TestBundleWritesEveryArtifact(t *testing.T) {
	store := newStore(t, map[string]string{
		"A": "From: a@example.com\r\nDate: Mon, 02 Jan 2006 15:04:05 +0000\r\nSubject: first\r\n\r\nFrom here on\r\n",
		"B": "Subject: second\r\n\r\nno sender\r\n",
	})

	var out bytes.Buffer
	b := &Bundler{Store: store}
	n, err := b.Bundle(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"first", "second"}, readSubjects(t, out.Bytes()))
	assert.Contains(t, out.String(), "From a@example.com ")
	assert.Contains(t, out.String(), "From "+DefaultSender+" ")
}

func TestBundleAppliesFilter(t *testing.T) {
	store := newStore(t, map[string]string{
		"A": "Subject: keep me\r\n\r\nbody\r\n",
		"B": "Subject: newsletter\r\n\r\nbody\r\n",
	})
	f, err := filter.New(filter.Options{ExcludeHeader: []string{"newsletter"}})
	require.NoError(t, err)

	var out bytes.Buffer
	b := &Bundler{Store: store, Filter: f}
	n, err := b.Bundle(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"keep me"}, readSubjects(t, out.Bytes()))
}

func TestBundleEmptyStore(t *testing.T) {
	var out bytes.Buffer
	b := &Bundler{Store: newStore(t, nil)}
	n, err := b.Bundle(context.Background(), &out)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, out.Len())
}

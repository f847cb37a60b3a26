// Package artifact manages the exported message files. The presence of
// <dir>/<id>.eml is the only record that a message has been exported.
package artifact

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/dhcgn/inotes-export/model"
)

// Ext is the file extension of every artifact.
const Ext = ".eml"

var ErrInvalidID = errors.New("identifier cannot be used as a file name")

type Store struct {
	dir string
}

// NewStore opens an existing artifact directory.
func NewStore(dir string) (*Store, error) {
	dir = filepath.Clean(dir)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("artifact directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifact directory %s is not a directory", dir)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Path returns the artifact path for id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+Ext)
}

// Exists reports whether the artifact for id is already on disk.
func (s *Store) Exists(id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	_, err := os.Stat(s.Path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat artifact %s: %w", id, err)
}

// Write stores body as the artifact for id. The content goes to a hidden
// temporary file first and is renamed into place once it is synced, so the
// final name never refers to a partial file.
func (s *Store) Write(id, body string) error {
	if err := validateID(id); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", id, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", id, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", id, err)
	}
	if err := os.Rename(tmpName, s.Path(id)); err != nil {
		return fmt.Errorf("rename %s into place: %w", id, err)
	}
	committed = true
	return nil
}

// Load reads the artifact for id.
func (s *Store) Load(id string) (model.Artifact, error) {
	if err := validateID(id); err != nil {
		return model.Artifact{}, err
	}
	path := s.Path(id)
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("read artifact %s: %w", id, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("stat artifact %s: %w", id, err)
	}

	sum := sha256.Sum256(raw)
	a := model.Artifact{
		ID:      id,
		Path:    path,
		Hash:    base64.StdEncoding.EncodeToString(sum[:]),
		Size:    int64(len(raw)),
		ModTime: info.ModTime(),
		Raw:     raw,
	}
	readHeader(&a)
	return a, nil
}

// IDs lists the identifiers of all artifacts in name order.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read artifact directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, Ext))
	}
	return ids, nil
}

// RemoveStale deletes temporary files left behind by an interrupted write
// and returns their names.
func (s *Store) RemoveStale() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read artifact directory: %w", err)
	}
	var removed []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isTempName(name) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove stale temp file %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".tmp")
}

// Walk loads every artifact in name order and hands it to fn.
func (s *Store) Walk(ctx context.Context, fn func(model.Artifact) error) error {
	ids, err := s.IDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		a, err := s.Load(id)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

// readHeader fills in the metadata that can be read from the message
// header. Artifacts are not validated, so a header that does not parse
// leaves the fields empty.
func readHeader(a *model.Artifact) {
	mr, err := mail.CreateReader(bytes.NewReader(a.Raw))
	if err != nil && mr == nil {
		return
	}
	defer mr.Close()

	if id, err := mr.Header.MessageID(); err == nil {
		a.MessageID = id
	}
	if date, err := mr.Header.Date(); err == nil {
		a.ReceivedAt = date
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		a.From = from[0].Address
	}
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%q: %w", id, ErrInvalidID)
	}
	return nil
}

// Package state remembers which artifacts were already pushed to an IMAP
// mailbox, so repeated pushes skip them.
package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileName is the tracker file inside the state directory.
const FileName = "pushed.jsonl"

type Tracker interface {
	AlreadyPushed(target, hash string) bool
	MarkPushed(target, hash, unid string) error
	Snapshot() Snapshot
	Close() error
}

type Snapshot struct {
	Pushed int
}

func key(target, hash string) string {
	return target + "\x00" + hash
}

type MemoryTracker struct {
	mu     sync.RWMutex
	pushed map[string]string
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{pushed: make(map[string]string)}
}

func (m *MemoryTracker) AlreadyPushed(target, hash string) bool {
	if hash == "" {
		return false
	}

	m.mu.RLock()
	_, ok := m.pushed[key(target, hash)]
	m.mu.RUnlock()
	return ok
}

// mark records hash for target and reports whether the entry is new.
func (m *MemoryTracker) mark(target, hash, unid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(target, hash)
	if _, exists := m.pushed[k]; exists {
		return false
	}
	m.pushed[k] = unid
	return true
}

func (m *MemoryTracker) MarkPushed(target, hash, unid string) error {
	if hash == "" {
		return nil
	}
	m.mark(target, hash, unid)
	return nil
}

func (m *MemoryTracker) Snapshot() Snapshot {
	m.mu.RLock()
	count := len(m.pushed)
	m.mu.RUnlock()
	return Snapshot{Pushed: count}
}

func (m *MemoryTracker) Close() error {
	return nil
}

// FileTracker persists pushed hashes as JSON lines.
type FileTracker struct {
	*MemoryTracker
	path    string
	persist bool
	writer  *bufio.Writer
	file    *os.File
	writeMu sync.Mutex
}

type fileRecord struct {
	Target   string    `json:"target"`
	Hash     string    `json:"hash"`
	UNID     string    `json:"unid"`
	PushedAt time.Time `json:"pushed_at"`
}

// NewFileTracker loads the tracker in stateDir. With persist false nothing
// is written, which is what dry runs use.
func NewFileTracker(stateDir string, persist bool) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	tracker := &FileTracker{
		MemoryTracker: NewMemoryTracker(),
		path:          filepath.Join(stateDir, FileName),
		persist:       persist,
	}

	if err := tracker.load(); err != nil {
		return nil, err
	}

	if persist {
		file, err := os.OpenFile(tracker.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open state file for append: %w", err)
		}
		tracker.file = file
		tracker.writer = bufio.NewWriterSize(file, 64*1024)
	}

	return tracker, nil
}

func (f *FileTracker) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var record fileRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("parse state line %d: %w", line, err)
		}
		if record.Hash == "" {
			continue
		}
		f.mark(record.Target, record.Hash, record.UNID)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	return nil
}

func (f *FileTracker) MarkPushed(target, hash, unid string) error {
	if hash == "" {
		return nil
	}
	if !f.mark(target, hash, unid) || !f.persist {
		return nil
	}

	data, err := json.Marshal(fileRecord{Target: target, Hash: hash, UNID: unid, PushedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.writer.Write(data); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	if err := f.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	return nil
}

// Flush writes any buffered data to the underlying file.
func (f *FileTracker) Flush() error {
	if !f.persist || f.writer == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush state file: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync state file: %w", err)
	}
	return nil
}

// Close flushes and closes the state file.
func (f *FileTracker) Close() error {
	if !f.persist || f.file == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var firstErr error
	if f.writer != nil {
		if err := f.writer.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush state file: %w", err)
		}
	}
	if err := f.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync state file: %w", err)
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close state file: %w", err)
	}
	f.file = nil

	return firstErr
}

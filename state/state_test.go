package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileTrackerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	tracker, err := NewFileTracker(dir, true)
	if err != nil {
		t.Fatalf("NewFileTracker() error = %v", err)
	}
	if err := tracker.MarkPushed("INBOX", "h1", "UNID1"); err != nil {
		t.Fatalf("MarkPushed() error = %v", err)
	}
	if err := tracker.MarkPushed("INBOX", "h1", "UNID1"); err != nil {
		t.Fatalf("MarkPushed() duplicate error = %v", err)
	}
	if err := tracker.MarkPushed("Archive", "h1", "UNID1"); err != nil {
		t.Fatalf("MarkPushed() error = %v", err)
	}
	if err := tracker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewFileTracker(dir, false)
	if err != nil {
		t.Fatalf("NewFileTracker() reopen error = %v", err)
	}
	defer reopened.Close()

	if !reopened.AlreadyPushed("INBOX", "h1") || !reopened.AlreadyPushed("Archive", "h1") {
		t.Error("expected pushed hashes to be loaded")
	}
	if reopened.AlreadyPushed("Other", "h1") {
		t.Error("hash must be tracked per target folder")
	}
	if got := reopened.Snapshot().Pushed; got != 2 {
		t.Errorf("Snapshot().Pushed = %d, want 2", got)
	}
}

func TestFileTrackerDryRunDoesNotWrite(t *testing.T) {
	dir := t.TempDir()

	tracker, err := NewFileTracker(dir, false)
	if err != nil {
		t.Fatalf("NewFileTracker() error = %v", err)
	}
	if err := tracker.MarkPushed("INBOX", "h1", "UNID1"); err != nil {
		t.Fatalf("MarkPushed() error = %v", err)
	}
	if !tracker.AlreadyPushed("INBOX", "h1") {
		t.Error("dry-run tracker should still remember hashes in memory")
	}
	if err := tracker.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
		t.Errorf("expected no state file, stat err = %v", err)
	}
}

func TestFileTrackerRejectsCorruptLine(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{not json}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileTracker(dir, false); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEmptyHashIsIgnored(t *testing.T) {
	m := NewMemoryTracker()
	if err := m.MarkPushed("INBOX", "", "UNID1"); err != nil {
		t.Fatal(err)
	}
	if m.AlreadyPushed("INBOX", "") {
		t.Error("empty hash must never count as pushed")
	}
}

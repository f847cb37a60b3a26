package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func exportCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "inotes-export"}
	RegisterCommonFlags(cmd)
	RegisterExportFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return cmd
}

func TestLoadExportDefaults(t *testing.T) {
	dir := t.TempDir()
	cmd := exportCommand(t,
		"--mailfile", "https://mail.example.com/mail/user.nsf",
		"--cookie", "DomAuthSessId=abc; ShimmerS=def",
		"--out-dir", dir+string(filepath.Separator),
	)

	cfg, err := LoadExport(cmd)
	if err != nil {
		t.Fatalf("LoadExport() error = %v", err)
	}
	if cfg.MailFolder != "($Inbox)" {
		t.Errorf("MailFolder = %q, want ($Inbox)", cfg.MailFolder)
	}
	if cfg.OutDir != filepath.Clean(dir) {
		t.Errorf("OutDir = %q, want %q", cfg.OutDir, filepath.Clean(dir))
	}
	if cfg.MaxItems != 0 || cfg.PageSize != 500 || cfg.ProgressEvery != 1000 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Cookies) != 2 || cfg.Cookies["ShimmerS"] != "def" {
		t.Errorf("unexpected cookies: %v", cfg.Cookies)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadExportDefaultsToTempDir(t *testing.T) {
	cmd := exportCommand(t, "--mailfile", "https://mail.example.com/mail/user.nsf", "--cookie", "a=b")
	cfg, err := LoadExport(cmd)
	if err != nil {
		t.Fatalf("LoadExport() error = %v", err)
	}
	if cfg.OutDir != filepath.Clean(os.TempDir()) {
		t.Errorf("OutDir = %q, want %q", cfg.OutDir, os.TempDir())
	}
}

func TestLoadExportMissingMandatory(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no mailfile", []string{"--cookie", "a=b"}},
		{"no cookie", []string{"--mailfile", "https://mail.example.com/mail/user.nsf"}},
		{"broken cookie", []string{"--mailfile", "https://mail.example.com/mail/user.nsf", "--cookie", "nonsense"}},
		{"missing out dir", []string{"--mailfile", "https://x/y.nsf", "--cookie", "a=b", "--out-dir", "/does/not/exist/anywhere"}},
		{"negative max", []string{"--mailfile", "https://x/y.nsf", "--cookie", "a=b", "--max", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadExport(exportCommand(t, tt.args...))
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsConfigurationError(err) {
				t.Errorf("expected ConfigurationError, got %T: %v", err, err)
			}
		})
	}
}

func TestLoadExportFromEnvironment(t *testing.T) {
	t.Setenv("INOTES_MAILFILE", "https://mail.example.com/mail/env.nsf")
	t.Setenv("INOTES_COOKIE", "DomAuthSessId=fromenv")
	t.Setenv("INOTES_MAX", "25")

	cfg, err := LoadExport(exportCommand(t, "--out-dir", t.TempDir()))
	if err != nil {
		t.Fatalf("LoadExport() error = %v", err)
	}
	if cfg.MailFile != "https://mail.example.com/mail/env.nsf" {
		t.Errorf("MailFile = %q", cfg.MailFile)
	}
	if cfg.Cookies["DomAuthSessId"] != "fromenv" {
		t.Errorf("cookie from env not used: %v", cfg.Cookies)
	}
	if cfg.MaxItems != 25 {
		t.Errorf("MaxItems = %d, want 25", cfg.MaxItems)
	}
}

func TestLoadExportFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inotes.yaml")
	content := "mailfile: https://mail.example.com/mail/file.nsf\ncookie: DomAuthSessId=fromfile\nmailfolder: Archive\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadExport(exportCommand(t, "--config", path, "--out-dir", dir))
	if err != nil {
		t.Fatalf("LoadExport() error = %v", err)
	}
	if cfg.MailFolder != "Archive" || cfg.Cookies["DomAuthSessId"] != "fromfile" {
		t.Errorf("config file values not applied: %+v", cfg)
	}
}

func TestDebugFlagSetsLogLevel(t *testing.T) {
	cmd := exportCommand(t, "--mailfile", "https://x/y.nsf", "--cookie", "a=b", "--out-dir", t.TempDir(), "--debug")
	cfg, err := LoadExport(cmd)
	if err != nil {
		t.Fatalf("LoadExport() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadPushValidation(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{Use: "push"}
		RegisterCommonFlags(cmd)
		if err := RegisterPushFlags(cmd); err != nil {
			t.Fatal(err)
		}
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatal(err)
		}
		return cmd
	}

	dir := t.TempDir()
	t.Setenv("IMAP_PASS", "")

	if _, err := LoadPush(newCmd("--out-dir", dir)); !IsConfigurationError(err) {
		t.Errorf("expected missing host error, got %v", err)
	}

	cfg, err := LoadPush(newCmd("--out-dir", dir, "--dry-run", "--state-dir", filepath.Join(dir, "state")))
	if err != nil {
		t.Fatalf("dry-run push should not need credentials: %v", err)
	}
	if !cfg.DryRun || cfg.TargetFolder != "INBOX" {
		t.Errorf("unexpected push config: %+v", cfg)
	}

	_, err = LoadPush(newCmd("--out-dir", dir, "--dry-run", "--include-header", "a", "--exclude-body", "b"))
	if !IsConfigurationError(err) {
		t.Errorf("expected filter conflict, got %v", err)
	}
}

func TestLoadBundleRequiresOutput(t *testing.T) {
	cmd := &cobra.Command{Use: "bundle"}
	RegisterCommonFlags(cmd)
	RegisterBundleFlags(cmd)
	if err := cmd.ParseFlags([]string{"--out-dir", t.TempDir()}); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadBundle(cmd); !IsConfigurationError(err) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}

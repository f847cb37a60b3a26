package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/inotes-export/filter"
)

// Bundle captures the options of the bundle command.
type Bundle struct {
	Common
	Dir    string
	Output string
	Filter filter.Options
}

func RegisterBundleFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("out-dir", "", "Directory holding the exported .eml files (default: the system temp directory)")
	flags.StringP("output", "o", "", "Path of the mbox file to write")
	registerFilterFlags(flags)
}

func LoadBundle(cmd *cobra.Command) (Bundle, error) {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return Bundle{}, err
	}
	common, err := loadCommon(v)
	if err != nil {
		return Bundle{}, err
	}
	filterOpts, err := loadFilter(v, cmd.Flags())
	if err != nil {
		return Bundle{}, err
	}

	cfg := Bundle{
		Common: common,
		Dir:    artifactDir(v.GetString("out-dir")),
		Output: strings.TrimSpace(v.GetString("output")),
		Filter: filterOpts,
	}
	if cfg.Output == "" {
		return Bundle{}, configErrorf("--output is required")
	}
	if err := requireDir("--out-dir", cfg.Dir); err != nil {
		return Bundle{}, err
	}
	return cfg, nil
}

// Push captures the options of the push command.
type Push struct {
	Common
	Dir                string
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	StateDir           string
	DryRun             bool
	Filter             filter.Options
}

func RegisterPushFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("out-dir", "", "Directory holding the exported .eml files (default: the system temp directory)")
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to INOTES_IMAP_PASS or IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("target-folder", "INBOX", "Target IMAP folder for pushed mail")
	flags.String("state-dir", defaultStateDir, "Directory for the pushed-artifact state file")
	flags.Bool("dry-run", false, "Simulate the push and emit stats without uploading")
	registerFilterFlags(flags)
	return nil
}

func LoadPush(cmd *cobra.Command) (Push, error) {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return Push{}, err
	}
	common, err := loadCommon(v)
	if err != nil {
		return Push{}, err
	}
	filterOpts, err := loadFilter(v, cmd.Flags())
	if err != nil {
		return Push{}, err
	}

	cfg := Push{
		Common:             common,
		Dir:                artifactDir(v.GetString("out-dir")),
		IMAPHost:           strings.TrimSpace(v.GetString("imap-host")),
		IMAPPort:           v.GetInt("imap-port"),
		IMAPUser:           strings.TrimSpace(v.GetString("imap-user")),
		IMAPPass:           v.GetString("imap-pass"),
		UseTLS:             v.GetBool("use-tls"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		TargetFolder:       v.GetString("target-folder"),
		StateDir:           strings.TrimSpace(v.GetString("state-dir")),
		DryRun:             v.GetBool("dry-run"),
		Filter:             filterOpts,
	}

	if cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}
	if cfg.StateDir == "" {
		cfg.StateDir, err = defaultStateDir()
		if err != nil {
			return Push{}, err
		}
	}
	cfg.StateDir = filepath.Clean(cfg.StateDir)

	if err := validatePush(cfg); err != nil {
		return Push{}, err
	}
	return cfg, nil
}

func validatePush(cfg Push) error {
	if !cfg.DryRun {
		if cfg.IMAPHost == "" {
			return configErrorf("--imap-host is required")
		}
		if cfg.IMAPUser == "" {
			return configErrorf("--imap-user is required")
		}
		if cfg.IMAPPass == "" {
			return configErrorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
		}
	}
	if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
		return configErrorf("--imap-port must be between 1 and 65535")
	}
	return requireDir("--out-dir", cfg.Dir)
}

func artifactDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Clean(dir)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dhcgn/inotes-export/filter"
	"github.com/dhcgn/inotes-export/session"
)

// EnvPrefix prefixes the environment variable of every flag, e.g.
// INOTES_COOKIE for --cookie.
const EnvPrefix = "INOTES"

// ExitCodeConfiguration is the process status for invalid configuration.
const ExitCodeConfiguration = 9

// ConfigurationError reports missing or invalid mandatory input. No network
// activity happens once it is returned.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err was caused by bad configuration.
func IsConfigurationError(err error) bool {
	var cerr *ConfigurationError
	return errors.As(err, &cerr)
}

// Common holds the options every command shares.
type Common struct {
	LogLevel string
	LogDir   string
}

// Export captures the options of the export command.
type Export struct {
	Common
	MailFile      string
	MailFolder    string
	Cookies       map[string]string
	OutDir        string
	MaxItems      int
	PageSize      int
	ProgressEvery int
	Timeout       time.Duration
}

// RegisterCommonFlags attaches the persistent flags to the root command.
func RegisterCommonFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Optional config file (yaml, toml or json) providing flag values")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.Bool("debug", false, "Print debug information (same as --log-level debug)")
}

// RegisterExportFlags attaches the export flags to cmd.
func RegisterExportFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("mailfile", "", "URL of the mail file as reported by iNotes, starts with https and ends with .nsf")
	flags.String("mailfolder", session.DefaultInboxFolder, "Folder to export")
	flags.String("cookie", "", "Cookie string as taken from the browser developer tools (falls back to INOTES_COOKIE)")
	flags.String("out-dir", "", "Existing directory for the .eml files (default: the system temp directory)")
	flags.Int("max", 0, "Stop after this many messages, 0 exports the whole folder")
	flags.Int("page-size", 500, "Rows requested per listing call")
	flags.Int("progress-every", 1000, "Log a progress line every N processed messages")
	flags.Duration("timeout", 60*time.Second, "Timeout of a single HTTP request")
}

// LoadExport converts the parsed flags, environment and config file into
// an Export configuration.
func LoadExport(cmd *cobra.Command) (Export, error) {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return Export{}, err
	}

	common, err := loadCommon(v)
	if err != nil {
		return Export{}, err
	}

	cfg := Export{
		Common:        common,
		MailFile:      strings.TrimSpace(v.GetString("mailfile")),
		MailFolder:    strings.TrimSpace(v.GetString("mailfolder")),
		OutDir:        artifactDir(v.GetString("out-dir")),
		MaxItems:      v.GetInt("max"),
		PageSize:      v.GetInt("page-size"),
		ProgressEvery: v.GetInt("progress-every"),
		Timeout:       v.GetDuration("timeout"),
	}

	if cfg.MailFile == "" {
		return Export{}, configErrorf("--mailfile and --cookie are mandatory options: --mailfile is missing")
	}
	rawCookie := strings.TrimSpace(v.GetString("cookie"))
	if rawCookie == "" {
		return Export{}, configErrorf("--mailfile and --cookie are mandatory options: --cookie is missing")
	}
	cfg.Cookies, err = session.ParseCookies(rawCookie)
	if err != nil {
		return Export{}, &ConfigurationError{Msg: "invalid --cookie", Err: err}
	}
	if len(cfg.Cookies) == 0 {
		return Export{}, configErrorf("--cookie contains no cookies")
	}

	if cfg.MailFolder == "" {
		cfg.MailFolder = session.DefaultInboxFolder
	}
	if err := validateExport(cfg); err != nil {
		return Export{}, err
	}
	return cfg, nil
}

func validateExport(cfg Export) error {
	if cfg.MaxItems < 0 {
		return configErrorf("--max must not be negative")
	}
	if cfg.PageSize <= 0 {
		return configErrorf("--page-size must be positive")
	}
	if cfg.ProgressEvery <= 0 {
		return configErrorf("--progress-every must be positive")
	}
	if cfg.Timeout < 0 {
		return configErrorf("--timeout must not be negative")
	}
	return requireDir("--out-dir", cfg.OutDir)
}

func loadCommon(v *viper.Viper) (Common, error) {
	logLevel := strings.ToLower(v.GetString("log-level"))
	if logLevel == "warning" {
		logLevel = "warn"
	}
	if v.GetBool("debug") {
		logLevel = "debug"
	}

	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return Common{}, configErrorf("invalid --log-level: %s", logLevel)
	}

	return Common{
		LogLevel: logLevel,
		LogDir:   strings.TrimSpace(v.GetString("log-dir")),
	}, nil
}

func loadFilter(v *viper.Viper, flags *pflag.FlagSet) (filter.Options, error) {
	opts := filter.Options{
		IncludeHeader: patterns(v, flags, "include-header"),
		IncludeBody:   patterns(v, flags, "include-body"),
		ExcludeHeader: patterns(v, flags, "exclude-header"),
		ExcludeBody:   patterns(v, flags, "exclude-body"),
	}
	includeActive := len(opts.IncludeHeader) > 0 || len(opts.IncludeBody) > 0
	excludeActive := len(opts.ExcludeHeader) > 0 || len(opts.ExcludeBody) > 0
	if includeActive && excludeActive {
		return filter.Options{}, configErrorf("include and exclude flags are mutually exclusive")
	}
	return opts, nil
}

// patterns reads a regex list. Values given on the command line are taken
// verbatim since viper would split them on commas.
func patterns(v *viper.Viper, flags *pflag.FlagSet, name string) []string {
	if f := flags.Lookup(name); f != nil && f.Changed {
		if values, err := flags.GetStringArray(name); err == nil {
			return values
		}
	}
	return v.GetStringSlice(name)
}

func registerFilterFlags(flags *pflag.FlagSet) {
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
}

// newViper layers flags over environment variables over the optional
// config file.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigurationError{Msg: fmt.Sprintf("reading config %s", path), Err: err}
		}
	}
	return v, nil
}

func requireDir(flag, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &ConfigurationError{Msg: fmt.Sprintf("%s %s", flag, dir), Err: err}
	}
	if !info.IsDir() {
		return configErrorf("%s %s is not a directory", flag, dir)
	}
	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".inotes-export", "state"), nil
}

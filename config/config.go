package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dhcgn/imap-reader/credential"
	"github.com/dhcgn/imap-reader/decode"
)

const (
	SourceIMAP = "imap"
	SourceMbox = "mbox"
)

// Config captures all options required to open a mailbox and render it.
type Config struct {
	Source             string
	MboxPath           string
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	Folder             string
	TargetCharset      string
	MarkAsSeen         bool
	TrustStructure     bool
	StateDir           string
	LogLevel           string
	LogDir             string
	Format             string
	IncludeHeader      []string
	IncludeBody        []string
	ExcludeHeader      []string
	ExcludeBody        []string
}

// lookupPassword is the last resort for the IMAP password.
var lookupPassword = func(user, host string) (string, error) {
	return credential.Get(credential.Key(user, host))
}

// RegisterFlags attaches all CLI flags to the provided command. They are
// persistent so every subcommand shares them.
func RegisterFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("source", SourceIMAP, "Mailbox source: imap or mbox")
	flags.String("mbox", "", "Path to the .mbox file to read (source mbox)")
	flags.String("imap-host", "", "IMAP server hostname")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var, then the system keyring)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("folder", "INBOX", "IMAP folder to read")
	flags.String("charset", decode.DefaultCharset, "Charset that decoded text is converted to")
	flags.Bool("mark-as-seen", true, "Set \\Seen when a message body is read")
	flags.Bool("trust-structure", true, "Use the server's BODYSTRUCTURE (false always reconstructs from raw headers)")
	flags.String("state-dir", "", "Directory that remembers which mbox messages were read (default ~/.imap-reader/state)")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.String("format", "text", "Output format: text, yaml, json")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
}

// LoadConfig merges the parsed flags with IMAP_READER_* environment
// variables and the optional config file, then validates the result. An
// explicitly set flag wins over the environment, which wins over the file.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	v := viper.New()
	v.SetEnvPrefix("IMAP_READER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := Config{
		Source:             strings.ToLower(strings.TrimSpace(v.GetString("source"))),
		MboxPath:           v.GetString("mbox"),
		IMAPHost:           v.GetString("imap-host"),
		IMAPPort:           v.GetInt("imap-port"),
		IMAPUser:           v.GetString("imap-user"),
		IMAPPass:           v.GetString("imap-pass"),
		UseTLS:             v.GetBool("use-tls"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		Folder:             v.GetString("folder"),
		TargetCharset:      v.GetString("charset"),
		MarkAsSeen:         v.GetBool("mark-as-seen"),
		TrustStructure:     v.GetBool("trust-structure"),
		StateDir:           v.GetString("state-dir"),
		LogLevel:           strings.ToLower(v.GetString("log-level")),
		LogDir:             v.GetString("log-dir"),
		Format:             strings.ToLower(v.GetString("format")),
		IncludeHeader:      patterns(v, flags, "include-header"),
		IncludeBody:        patterns(v, flags, "include-body"),
		ExcludeHeader:      patterns(v, flags, "exclude-header"),
		ExcludeBody:        patterns(v, flags, "exclude-body"),
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.MboxPath != "" {
		cfg.MboxPath = filepath.Clean(cfg.MboxPath)
	}
	if cfg.Source == SourceMbox && cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return Config{}, err
		}
		cfg.StateDir = dir
	}
	if cfg.StateDir != "" {
		cfg.StateDir = filepath.Clean(cfg.StateDir)
	}
	if cfg.Source == SourceIMAP && cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}
	if cfg.Source == SourceIMAP && cfg.IMAPPass == "" && cfg.IMAPUser != "" && cfg.IMAPHost != "" {
		pass, err := lookupPassword(cfg.IMAPUser, cfg.IMAPHost)
		if err != nil && !errors.Is(err, credential.ErrNotFound) {
			return Config{}, err
		}
		cfg.IMAPPass = pass
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// patterns reads a regex list. Flag values are taken verbatim because
// viper would split them on commas.
func patterns(v *viper.Viper, flags *pflag.FlagSet, name string) []string {
	if flags.Changed(name) {
		values, err := flags.GetStringArray(name)
		if err == nil {
			return values
		}
	}
	if !v.IsSet(name) {
		return nil
	}
	return v.GetStringSlice(name)
}

func validateConfig(cfg Config) error {
	switch cfg.Source {
	case SourceMbox:
		if cfg.MboxPath == "" {
			return fmt.Errorf("--mbox is required for source mbox")
		}
	case SourceIMAP:
		if cfg.IMAPHost == "" {
			return fmt.Errorf("--imap-host is required")
		}
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required")
		}
		if cfg.IMAPPass == "" {
			return fmt.Errorf("IMAP password must be provided via --imap-pass, IMAP_PASS env var or the keyring")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	default:
		return fmt.Errorf("invalid --source: %s", cfg.Source)
	}

	if !decode.KnownCharset(cfg.TargetCharset) {
		return fmt.Errorf("unknown --charset: %s", cfg.TargetCharset)
	}

	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	switch cfg.Format {
	case "text", "yaml", "json":
	default:
		return fmt.Errorf("invalid --format: %s", cfg.Format)
	}

	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".imap-reader", "state"), nil
}

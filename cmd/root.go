package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/spf13/cobra"

	"github.com/dhcgn/imap-reader/config"
	"github.com/dhcgn/imap-reader/filter"
	"github.com/dhcgn/imap-reader/imap"
	"github.com/dhcgn/imap-reader/mbox"
	"github.com/dhcgn/imap-reader/message"
	"github.com/dhcgn/imap-reader/state"
	"github.com/dhcgn/imap-reader/stats"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "imap-reader",
		Short:         "Read messages, bodies and attachments from an IMAP mailbox or mbox archive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(rootCmd)

	rootCmd.AddCommand(
		newListCmd(),
		newShowCmd(),
		newAttachmentsCmd(),
		newStructureCmd(),
		newStorePasswordCmd(),
	)
	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

// mailbox is a session that can also enumerate its messages.
type mailbox interface {
	message.Session
	List(ctx context.Context, offset, limit int) ([]imapv2.UID, error)
}

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	box      mailbox
	session  message.Session
	filter   *filter.Filter
	reporter *stats.Reporter
	msgOpts  message.Options
	out      io.Writer
	closers  []func() error
}

// openApp loads the configuration and opens the configured mailbox. The
// caller must call close.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, cleanup, err := setupLogger(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger, out: cmd.OutOrStdout(), closers: []func() error{cleanup}}

	f, err := filter.New(filter.Options{
		IncludeHeader: cfg.IncludeHeader,
		IncludeBody:   cfg.IncludeBody,
		ExcludeHeader: cfg.ExcludeHeader,
		ExcludeBody:   cfg.ExcludeBody,
	})
	if err != nil {
		_ = a.close()
		return nil, fmt.Errorf("create filter: %w", err)
	}
	a.filter = f

	switch cfg.Source {
	case config.SourceMbox:
		opts := mbox.Options{
			Path:           cfg.MboxPath,
			TargetCharset:  cfg.TargetCharset,
			MarkAsSeen:     cfg.MarkAsSeen,
			TrustStructure: cfg.TrustStructure,
			// The archive is filtered while loading, so no fetch is spent on it later.
			Filter: f,
		}
		if cfg.StateDir != "" {
			store, err := state.NewFileStore(cfg.StateDir)
			if err != nil {
				_ = a.close()
				return nil, err
			}
			a.closers = append(a.closers, store.Close)
			opts.Seen = store
		}
		box, err := mbox.NewSession(cmd.Context(), opts, logger)
		if err != nil {
			_ = a.close()
			return nil, fmt.Errorf("mbox.NewSession: %w", err)
		}
		a.box = box
		a.filter = nil
	default:
		box, err := imap.NewSession(imap.Options{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Folder:             cfg.Folder,
			TargetCharset:      cfg.TargetCharset,
			MarkAsSeen:         cfg.MarkAsSeen,
			TrustStructure:     cfg.TrustStructure,
		}, logger)
		if err != nil {
			_ = a.close()
			return nil, fmt.Errorf("imap.NewSession: %w", err)
		}
		a.box = box
		a.closers = append(a.closers, box.Close)
	}

	collector := stats.NewCollector()
	a.session = stats.NewCounting(a.box, collector)
	a.reporter = stats.NewReporter(collector, logger)
	a.msgOpts = message.Options{Logger: logger, OnRepair: collector.RepairHook()}

	logger.Debug("mailbox opened", "source", cfg.Source, "folder", cfg.Folder, "charset", cfg.TargetCharset)
	return a, nil
}

// close reports fetch statistics and releases the session and log file.
func (a *app) close() error {
	if a.reporter != nil {
		a.reporter.Report()
	}
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *app) message(uid imapv2.UID) *message.Message {
	return message.New(a.session, uid, a.msgOpts)
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	// stdout carries command output, logs go to stderr.
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("imap-reader-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler), cleanup, nil
}

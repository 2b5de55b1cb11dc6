package mbox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/imap-reader/decode"
	"github.com/dhcgn/imap-reader/filter"
	"github.com/dhcgn/imap-reader/model"
	"github.com/dhcgn/imap-reader/part"
	"github.com/dhcgn/imap-reader/state"
)

var ErrUnknownUID = errors.New("no message with this uid")

type Options struct {
	Path          string
	TargetCharset string
	MarkAsSeen    bool
	// TrustStructure makes FetchStructure report a BODYSTRUCTURE built by
	// go-imap. When false the reader falls back to raw reconstruction.
	TrustStructure bool
	Filter         *filter.Filter
	// Seen keeps the read state of messages across runs. Nil keeps it in
	// memory only.
	Seen state.Store
}

type entry struct {
	raw    []byte
	header []byte
	body   []byte
	key    string
	seen   bool
}

// Session serves the messages of an mbox archive as a read-only mailbox.
// Messages get UIDs 1..n in file order.
type Session struct {
	opts     Options
	logger   *slog.Logger
	messages []*entry
	gen      uint64
}

// NewSession reads the archive at opts.Path.
func NewSession(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	opts.Path = path

	s := &Session{opts: opts, logger: logger}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewSessionFromReader reads an archive from r.
func NewSessionFromReader(ctx context.Context, r io.Reader, opts Options, logger *slog.Logger) (*Session, error) {
	s := &Session{opts: opts, logger: logger}
	if err := s.load(ctx, r); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload reads the archive again. Messages loaded earlier are stale after
// this.
func (s *Session) Reload(ctx context.Context) error {
	file, err := os.Open(s.opts.Path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	return s.load(ctx, file)
}

func (s *Session) load(ctx context.Context, r io.Reader) error {
	reader := mboxlib.NewReader(r)

	var messages []*entry
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			if s.logger != nil {
				s.logger.Error("mbox read error", "path", s.opts.Path, "message", idx, "err", err)
			}
			continue
		}

		header, body := part.Split(raw)
		if !s.opts.Filter.Allows(header, body) {
			continue
		}
		messages = append(messages, &entry{raw: raw, header: header, body: body, key: state.Key(header)})
	}

	s.messages = messages
	s.gen++
	if s.logger != nil {
		s.logger.Debug("mbox loaded", "path", s.opts.Path, "messages", len(messages))
	}
	return nil
}

// Count returns the number of messages that passed the filter.
func (s *Session) Count() int { return len(s.messages) }

// List returns UIDs newest first, skipping offset and returning at most
// limit. A limit of 0 means all.
func (s *Session) List(ctx context.Context, offset, limit int) ([]imapv2.UID, error) {
	uids := make([]imapv2.UID, 0, len(s.messages))
	for i := len(s.messages); i > 0; i-- {
		uids = append(uids, imapv2.UID(i))
	}
	return model.Page(uids, offset, limit), nil
}

func (s *Session) TargetCharset() string {
	if s.opts.TargetCharset == "" {
		return decode.DefaultCharset
	}
	return s.opts.TargetCharset
}

func (s *Session) MarkAsSeen() bool   { return s.opts.MarkAsSeen }
func (s *Session) Generation() uint64 { return s.gen }

func (s *Session) lookup(uid imapv2.UID) (*entry, error) {
	if uid == 0 || int(uid) > len(s.messages) {
		return nil, fmt.Errorf("uid %d: %w", uid, ErrUnknownUID)
	}
	return s.messages[uid-1], nil
}

func (s *Session) FetchStructure(ctx context.Context, uid imapv2.UID) (imapv2.BodyStructure, error) {
	e, err := s.lookup(uid)
	if err != nil {
		return nil, err
	}
	if !s.opts.TrustStructure {
		return nil, nil
	}
	return imapserver.ExtractBodyStructure(bytes.NewReader(e.raw)), nil
}

func (s *Session) FetchHeader(ctx context.Context, uid imapv2.UID) ([]byte, error) {
	e, err := s.lookup(uid)
	if err != nil {
		return nil, err
	}
	return e.header, nil
}

func (s *Session) FetchBody(ctx context.Context, uid imapv2.UID, path string) ([]byte, error) {
	e, err := s.lookup(uid)
	if err != nil {
		return nil, err
	}
	if s.opts.MarkAsSeen {
		s.markSeen(e)
	}
	if path == "" {
		return e.body, nil
	}

	section, err := part.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return imapserver.ExtractBodySection(bytes.NewReader(e.raw), &imapv2.FetchItemBodySection{Part: section}), nil
}

func (s *Session) FetchOverview(ctx context.Context, uid imapv2.UID) (model.Overview, error) {
	e, err := s.lookup(uid)
	if err != nil {
		return model.Overview{}, err
	}

	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(e.raw)))
	if err != nil {
		return model.Overview{}, fmt.Errorf("uid %d header: %w", uid, err)
	}
	h := mail.Header{Header: message.Header{Header: th}}

	ov := model.Overview{
		UID:        uid,
		SeqNum:     uint32(uid),
		Subject:    th.Get("Subject"),
		From:       th.Get("From"),
		To:         th.Get("To"),
		References: th.Get("References"),
		Size:       int64(len(e.raw)),
		Flags:      statusFlags(th.Get("Status"), th.Get("X-Status"), s.seen(e)),
	}
	if date, err := h.Date(); err == nil {
		ov.Date = date
	}
	if id, err := h.MessageID(); err == nil {
		ov.MessageID = id
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		ov.InReplyTo = ids[0]
	}
	return ov, nil
}

func (s *Session) seen(e *entry) bool {
	return e.seen || (s.opts.Seen != nil && s.opts.Seen.Seen(e.key))
}

func (s *Session) markSeen(e *entry) {
	if e.seen {
		return
	}
	e.seen = true
	if s.opts.Seen == nil {
		return
	}
	var id string
	if th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(e.raw))); err == nil {
		id = strings.Trim(strings.TrimSpace(th.Get("Message-Id")), "<>")
	}
	if err := s.opts.Seen.MarkSeen(e.key, id); err != nil && s.logger != nil {
		s.logger.Warn("could not record seen state", "err", err)
	}
}

// statusFlags maps the Status and X-Status headers written by mbox mail
// clients to IMAP flags.
func statusFlags(status, xstatus string, seen bool) []imapv2.Flag {
	var flags []imapv2.Flag
	if seen || strings.ContainsRune(status, 'R') {
		flags = append(flags, imapv2.FlagSeen)
	}
	if !strings.ContainsRune(status, 'O') && !strings.ContainsRune(status, 'R') {
		flags = append(flags, model.FlagRecent)
	}
	for _, c := range xstatus {
		switch c {
		case 'A':
			flags = append(flags, imapv2.FlagAnswered)
		case 'F':
			flags = append(flags, imapv2.FlagFlagged)
		case 'D':
			flags = append(flags, imapv2.FlagDeleted)
		case 'T':
			flags = append(flags, imapv2.FlagDraft)
		}
	}
	return flags
}

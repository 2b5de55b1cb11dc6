package imap

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/textproto"

	"github.com/dhcgn/imap-reader/decode"
	"github.com/dhcgn/imap-reader/model"
	"github.com/dhcgn/imap-reader/part"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrClosed          = errors.New("session closed")
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Folder             string
	TargetCharset      string
	MarkAsSeen         bool
	// TrustStructure false skips BODYSTRUCTURE so messages are always
	// reconstructed from their raw header.
	TrustStructure bool
}

// Session is a lazily dialed IMAP connection with one selected folder. It
// redials on the next call after the connection broke; every redial or
// folder change starts a new generation. A Session is not safe for
// concurrent use.
type Session struct {
	opts   Options
	logger *slog.Logger
	client *imapclient.Client
	gen    uint64
	closed bool
}

func NewSession(opts Options, logger *slog.Logger) (*Session, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	return &Session{opts: opts, logger: logger}, nil
}

func (s *Session) TargetCharset() string {
	if s.opts.TargetCharset == "" {
		return decode.DefaultCharset
	}
	return s.opts.TargetCharset
}

func (s *Session) MarkAsSeen() bool   { return s.opts.MarkAsSeen }
func (s *Session) Generation() uint64 { return s.gen }

func (s *Session) folder() string {
	if s.opts.Folder == "" {
		return "INBOX"
	}
	return s.opts.Folder
}

// SetFolder selects another folder. Messages read from the previous folder
// are stale afterwards.
func (s *Session) SetFolder(ctx context.Context, folder string) error {
	s.opts.Folder = folder
	s.gen++
	if s.client == nil {
		return nil
	}
	if err := s.selectFolder(s.client); err != nil {
		return s.fail(err)
	}
	return nil
}

// Close logs out and closes the connection.
func (s *Session) Close() error {
	s.closed = true
	if s.client == nil {
		return nil
	}
	client := s.client
	s.client = nil
	if err := client.Logout().Wait(); err != nil && s.logger != nil {
		s.logger.Warn("imap logout failed", "err", err)
	}
	return client.Close()
}

func (s *Session) conn(ctx context.Context) (*imapclient.Client, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.client != nil {
		return s.client, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := s.dial()
	if err != nil {
		return nil, err
	}
	s.client = client
	s.gen++
	return client, nil
}

func (s *Session) dial() (*imapclient.Client, error) {
	address := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	options := &imapclient.Options{}

	if s.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         s.opts.Host,
			InsecureSkipVerify: s.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if s.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	if err := s.selectFolder(client); err != nil {
		_ = client.Close()
		return nil, err
	}

	if s.logger != nil {
		s.logger.Debug("imap connection established", "address", address, "user", s.opts.Username, "folder", s.folder(), "tls", s.opts.UseTLS)
	}

	return client, nil
}

func (s *Session) selectFolder(client *imapclient.Client) error {
	// EXAMINE keeps the server from setting \Seen on its own.
	opts := &imapv2.SelectOptions{ReadOnly: !s.opts.MarkAsSeen}
	data, err := client.Select(s.folder(), opts).Wait()
	if err != nil {
		return fmt.Errorf("select %s: %w", s.folder(), err)
	}
	if s.logger != nil {
		s.logger.Debug("imap folder selected", "folder", s.folder(), "messages", data.NumMessages)
	}
	return nil
}

// fail drops the connection unless err is a plain server response, so the
// next call redials.
func (s *Session) fail(err error) error {
	var respErr *imapv2.Error
	if errors.As(err, &respErr) {
		return err
	}
	if s.client != nil {
		if s.logger != nil {
			s.logger.Warn("imap connection lost, will reconnect", "err", err)
		}
		_ = s.client.Close()
		s.client = nil
	}
	return err
}

// List returns UIDs newest first, skipping offset and returning at most
// limit. A limit of 0 means all.
func (s *Session) List(ctx context.Context, offset, limit int) ([]imapv2.UID, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	data, err := client.UIDSearch(&imapv2.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, s.fail(fmt.Errorf("uid search: %w", err))
	}

	uids := data.AllUIDs()
	slices.SortFunc(uids, func(a, b imapv2.UID) int { return int(b) - int(a) })
	return model.Page(uids, offset, limit), nil
}

func (s *Session) fetch(ctx context.Context, uid imapv2.UID, options *imapv2.FetchOptions) (*imapclient.FetchMessageBuffer, error) {
	client, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	cmd := client.Fetch(imapv2.UIDSetNum(uid), options)
	msgs, err := cmd.Collect()
	if err != nil {
		return nil, s.fail(fmt.Errorf("fetch uid %d: %w", uid, err))
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("uid %d in %s: %w", uid, s.folder(), ErrMessageNotFound)
	}
	return msgs[0], nil
}

func (s *Session) FetchStructure(ctx context.Context, uid imapv2.UID) (imapv2.BodyStructure, error) {
	if !s.opts.TrustStructure {
		return nil, nil
	}
	buf, err := s.fetch(ctx, uid, &imapv2.FetchOptions{
		UID:           true,
		BodyStructure: &imapv2.FetchItemBodyStructure{Extended: true},
	})
	if err != nil {
		return nil, err
	}
	return buf.BodyStructure, nil
}

func (s *Session) FetchHeader(ctx context.Context, uid imapv2.UID) ([]byte, error) {
	section := &imapv2.FetchItemBodySection{Specifier: imapv2.PartSpecifierHeader, Peek: true}
	buf, err := s.fetch(ctx, uid, &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	})
	if err != nil {
		return nil, err
	}
	return buf.FindBodySection(section), nil
}

func (s *Session) FetchBody(ctx context.Context, uid imapv2.UID, path string) ([]byte, error) {
	section := &imapv2.FetchItemBodySection{Peek: !s.opts.MarkAsSeen}
	if path == "" {
		section.Specifier = imapv2.PartSpecifierText
	} else {
		numbers, err := part.ParsePath(path)
		if err != nil {
			return nil, err
		}
		section.Part = numbers
	}

	buf, err := s.fetch(ctx, uid, &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	})
	if err != nil {
		return nil, err
	}
	return buf.FindBodySection(section), nil
}

// overviewFields are read verbatim. The envelope's copies arrive already
// word-decoded and would be decoded a second time by the message layer.
var overviewFields = []string{"Subject", "From", "To", "References"}

func (s *Session) FetchOverview(ctx context.Context, uid imapv2.UID) (model.Overview, error) {
	fields := &imapv2.FetchItemBodySection{
		Specifier:    imapv2.PartSpecifierHeader,
		HeaderFields: overviewFields,
		Peek:         true,
	}
	buf, err := s.fetch(ctx, uid, &imapv2.FetchOptions{
		UID:         true,
		Envelope:    true,
		Flags:       true,
		RFC822Size:  true,
		BodySection: []*imapv2.FetchItemBodySection{fields},
	})
	if err != nil {
		return model.Overview{}, err
	}
	return overviewFromBuffer(buf, buf.FindBodySection(fields)), nil
}

func overviewFromBuffer(buf *imapclient.FetchMessageBuffer, header []byte) model.Overview {
	ov := model.Overview{
		UID:    buf.UID,
		SeqNum: buf.SeqNum,
		Size:   buf.RFC822Size,
		Flags:  buf.Flags,
	}
	if env := buf.Envelope; env != nil {
		ov.Date = env.Date
		ov.MessageID = env.MessageID
		if len(env.InReplyTo) > 0 {
			ov.InReplyTo = env.InReplyTo[0]
		}
	}
	if len(header) > 0 {
		if h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(header))); err == nil {
			ov.Subject = h.Get("Subject")
			ov.From = h.Get("From")
			ov.To = h.Get("To")
			ov.References = h.Get("References")
		}
	}
	return ov
}

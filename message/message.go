// Package message reads one mail message through a Session: its overview,
// its MIME tree and the body and files assembled from that tree.
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"

	"github.com/dhcgn/imap-reader/decode"
	"github.com/dhcgn/imap-reader/model"
	"github.com/dhcgn/imap-reader/part"
)

// Options configures a Message.
type Options struct {
	Logger *slog.Logger

	// Repair overrides part.PreferDifferentCount.
	Repair part.RepairFunc

	// OnRepair is called when the server's structure was replaced by the
	// raw reconstruction.
	OnRepair func(uid imapv2.UID, reported, reconstructed int)
}

type renderedBody struct {
	text string
	ok   bool
}

// Message is a lazily loaded view of one message. Everything it fetches is
// cached for its lifetime, except the overview, which is fetched again once
// the session reports a new generation. A Message is not safe for
// concurrent use.
type Message struct {
	session Session
	uid     imapv2.UID
	opts    Options
	logger  *slog.Logger

	overview    *model.Overview
	overviewGen uint64

	root     *part.Node
	assembly *Assembly
	bodies   map[string]renderedBody
}

// New returns a Message for uid. Nothing is fetched until an accessor needs
// it.
func New(s Session, uid imapv2.UID, opts Options) *Message {
	logger := opts.Logger
	if logger != nil {
		logger = logger.With("uid", uint32(uid))
	}
	return &Message{
		session: s,
		uid:     uid,
		opts:    opts,
		logger:  logger,
		bodies:  map[string]renderedBody{},
	}
}

// FromOverview returns a Message whose overview is already known.
func FromOverview(s Session, ov model.Overview, opts Options) *Message {
	m := New(s, ov.UID, opts)
	m.overview = &ov
	m.overviewGen = s.Generation()
	return m
}

// UID returns the message's UID.
func (m *Message) UID() imapv2.UID { return m.uid }

// Overview returns the message metadata with header text as received.
func (m *Message) Overview(ctx context.Context) (model.Overview, error) {
	gen := m.session.Generation()
	if m.overview != nil && m.overviewGen == gen {
		return *m.overview, nil
	}

	ov, err := m.session.FetchOverview(ctx, m.uid)
	if err != nil {
		return model.Overview{}, fmt.Errorf("%w: overview of uid %d: %w", ErrSessionUnavailable, m.uid, err)
	}
	m.overview = &ov
	m.overviewGen = gen
	return ov, nil
}

// Subject returns the decoded subject in the session's target charset.
func (m *Message) Subject(ctx context.Context) (string, error) {
	ov, err := m.Overview(ctx)
	if err != nil {
		return "", err
	}
	return decode.Header(ov.Subject, m.session.TargetCharset()), nil
}

// From returns the decoded sender.
func (m *Message) From(ctx context.Context) (string, error) {
	ov, err := m.Overview(ctx)
	if err != nil {
		return "", err
	}
	return decode.Header(ov.From, m.session.TargetCharset()), nil
}

// To returns the decoded recipients.
func (m *Message) To(ctx context.Context) (string, error) {
	ov, err := m.Overview(ctx)
	if err != nil {
		return "", err
	}
	return decode.Header(ov.To, m.session.TargetCharset()), nil
}

func (m *Message) Date(ctx context.Context) (time.Time, error) {
	ov, err := m.Overview(ctx)
	return ov.Date, err
}

func (m *Message) Size(ctx context.Context) (int64, error) {
	ov, err := m.Overview(ctx)
	return ov.Size, err
}

func (m *Message) Flags(ctx context.Context) ([]imapv2.Flag, error) {
	ov, err := m.Overview(ctx)
	return ov.Flags, err
}

// Structure returns the root of the MIME tree, building it on first use.
// The tree is kept only once it was built successfully.
func (m *Message) Structure(ctx context.Context) (*part.Node, error) {
	if m.root != nil {
		return m.root, nil
	}

	hint, err := m.session.FetchStructure(ctx, m.uid)
	if err != nil {
		if m.logger != nil {
			m.logger.Debug("Server structure unavailable, reconstructing", "err", err)
		}
		hint = nil
	}

	logger := m.logger
	if logger != nil && m.overview != nil {
		logger = logger.With(
			"from", decode.Header(m.overview.From, decode.DefaultCharset),
			"subject", decode.Header(m.overview.Subject, decode.DefaultCharset))
	}

	root, err := part.Build(ctx, fetcher{m}, hint, part.Options{
		Logger:   logger,
		Repair:   m.opts.Repair,
		OnRepair: m.onRepair,
	})
	if err != nil {
		return nil, err
	}
	m.root = root
	return root, nil
}

// Parts returns the top-level parts. A message whose structure cannot be
// determined has none.
func (m *Message) Parts(ctx context.Context) ([]*part.Node, error) {
	root, err := m.Structure(ctx)
	if err != nil {
		return nil, m.degrade(err)
	}
	return root.Children, nil
}

// Body returns the message text for subtype, such as "html" or "plain".
// ok is false when the message has no text part at all.
func (m *Message) Body(ctx context.Context, subtype string) (string, bool, error) {
	subtype = strings.ToLower(subtype)
	if b, found := m.bodies[subtype]; found {
		return b.text, b.ok, nil
	}

	a, err := m.assemble(ctx)
	if err != nil {
		return "", false, err
	}
	text, ok, err := a.Body(ctx, subtype)
	if err != nil {
		return "", false, err
	}
	if a == m.assembly {
		m.bodies[subtype] = renderedBody{text: text, ok: ok}
	}
	return text, ok, nil
}

// Attachments returns the parts sent with an attachment disposition.
func (m *Message) Attachments(ctx context.Context) ([]*part.File, error) {
	a, err := m.assemble(ctx)
	if err != nil {
		return nil, err
	}
	return a.Attachments, nil
}

// Content returns the non-text parts shown inline, such as embedded images.
func (m *Message) Content(ctx context.Context) ([]*part.File, error) {
	a, err := m.assemble(ctx)
	if err != nil {
		return nil, err
	}
	return a.Content, nil
}

func (m *Message) assemble(ctx context.Context) (*Assembly, error) {
	if m.assembly != nil {
		return m.assembly, nil
	}

	root, err := m.Structure(ctx)
	if err != nil {
		if err := m.degrade(err); err != nil {
			return nil, err
		}
		return Assemble(nil, fetcher{m}, m.session.TargetCharset(), m.logger), nil
	}

	m.assembly = Assemble(root, fetcher{m}, m.session.TargetCharset(), m.logger)
	return m.assembly, nil
}

// degrade turns ErrStructureUnavailable into an empty result.
func (m *Message) degrade(err error) error {
	if !errors.Is(err, part.ErrStructureUnavailable) {
		return err
	}
	if m.logger != nil {
		m.logger.Warn("Message structure unavailable, treating as empty", "err", err)
	}
	return nil
}

func (m *Message) onRepair(reported, reconstructed int) {
	if m.opts.OnRepair != nil {
		m.opts.OnRepair(m.uid, reported, reconstructed)
	}
}

func (m *Message) markSeen() {
	if m.overview == nil {
		return
	}
	ov := m.overview.WithFlag(imapv2.FlagSeen)
	m.overview = &ov
}

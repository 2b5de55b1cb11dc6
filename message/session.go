package message

import (
	"context"
	"errors"
	"fmt"

	imapv2 "github.com/emersion/go-imap/v2"

	"github.com/dhcgn/imap-reader/model"
)

// ErrSessionUnavailable wraps any failure of the session to hand out data
// a Message needs.
var ErrSessionUnavailable = errors.New("mailbox session unavailable")

// Session is the mailbox a Message reads from. Implementations own the
// connection; a Message only pulls.
type Session interface {
	// FetchStructure returns the server's BODYSTRUCTURE, or nil when the
	// session has none to offer.
	FetchStructure(ctx context.Context, uid imapv2.UID) (imapv2.BodyStructure, error)
	FetchHeader(ctx context.Context, uid imapv2.UID) ([]byte, error)
	// FetchBody returns the raw bytes of one section. Path "" is the text
	// below the top-level header.
	FetchBody(ctx context.Context, uid imapv2.UID, path string) ([]byte, error)
	FetchOverview(ctx context.Context, uid imapv2.UID) (model.Overview, error)

	TargetCharset() string
	MarkAsSeen() bool

	// Generation changes whenever data fetched earlier may be stale, for
	// example after a reconnect or a folder change.
	Generation() uint64
}

// fetcher binds a Session to one message for the part package.
type fetcher struct {
	m *Message
}

func (f fetcher) FetchHeader(ctx context.Context) ([]byte, error) {
	header, err := f.m.session.FetchHeader(ctx, f.m.uid)
	if err != nil {
		return nil, fmt.Errorf("%w: header of uid %d: %w", ErrSessionUnavailable, f.m.uid, err)
	}
	return header, nil
}

func (f fetcher) FetchBody(ctx context.Context, path string) ([]byte, error) {
	body, err := f.m.session.FetchBody(ctx, f.m.uid, path)
	if err != nil {
		return nil, fmt.Errorf("%w: body %q of uid %d: %w", ErrSessionUnavailable, path, f.m.uid, err)
	}
	if f.m.session.MarkAsSeen() {
		f.m.markSeen()
	}
	return body, nil
}

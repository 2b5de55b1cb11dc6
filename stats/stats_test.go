package stats

import (
	"context"
	"errors"
	"testing"

	imapv2 "github.com/emersion/go-imap/v2"

	"github.com/dhcgn/imap-reader/message"
	"github.com/dhcgn/imap-reader/model"
)

type stubSession struct {
	bodyErr error
}

func (stubSession) FetchStructure(ctx context.Context, uid imapv2.UID) (imapv2.BodyStructure, error) {
	return &imapv2.BodyStructureMultiPart{
		Subtype: "alternative",
		Children: []imapv2.BodyStructure{
			&imapv2.BodyStructureSinglePart{Type: "text", Subtype: "plain"},
			&imapv2.BodyStructureSinglePart{Type: "text", Subtype: "html"},
		},
	}, nil
}

func (stubSession) FetchHeader(ctx context.Context, uid imapv2.UID) ([]byte, error) {
	return []byte("Subject: x\r\n"), nil
}

func (s stubSession) FetchBody(ctx context.Context, uid imapv2.UID, path string) ([]byte, error) {
	if s.bodyErr != nil {
		return nil, s.bodyErr
	}
	return []byte("part " + path), nil
}

func (stubSession) FetchOverview(ctx context.Context, uid imapv2.UID) (model.Overview, error) {
	return model.Overview{UID: uid, Subject: "hello"}, nil
}

func (stubSession) TargetCharset() string { return "UTF-8" }
func (stubSession) MarkAsSeen() bool      { return false }
func (stubSession) Generation() uint64    { return 0 }

func TestCounting_BodyFetchedOnce(t *testing.T) {
	c := NewCollector()
	s := NewCounting(stubSession{}, c)
	m := message.New(s, 5, message.Options{OnRepair: c.RepairHook()})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, ok, err := m.Body(ctx, "html")
		if err != nil || !ok || got != "part 2" {
			t.Fatalf("Body() = %q, %v, %v", got, ok, err)
		}
	}
	if _, err := m.Subject(ctx); err != nil {
		t.Fatalf("Subject() error = %v", err)
	}

	summary := c.Snapshot()
	if summary.Structures != 1 || summary.Bodies != 1 || summary.Overviews != 1 || summary.Headers != 0 {
		t.Errorf("Snapshot() = %+v, want one structure, body and overview fetch", summary)
	}
	if summary.Fetches() != 3 {
		t.Errorf("Fetches() = %d, want 3", summary.Fetches())
	}
	if summary.Bytes != int64(len("part 2")) {
		t.Errorf("Bytes = %d, want %d", summary.Bytes, len("part 2"))
	}
	if summary.Repairs != 0 {
		t.Errorf("Repairs = %d, want 0", summary.Repairs)
	}
}

func TestCollector_Errors(t *testing.T) {
	errDrop := errors.New("dropped")
	c := NewCollector()
	s := NewCounting(stubSession{bodyErr: errDrop}, c)

	if _, err := s.FetchBody(context.Background(), 1, "1"); !errors.Is(err, errDrop) {
		t.Fatalf("FetchBody() error = %v, want %v", err, errDrop)
	}
	c.RepairHook()(1, 1, 3)

	summary := c.Snapshot()
	if summary.Errors != 1 || summary.LastError != errDrop {
		t.Errorf("Snapshot() errors = %d/%v, want 1/%v", summary.Errors, summary.LastError, errDrop)
	}
	if summary.Repairs != 1 {
		t.Errorf("Repairs = %d, want 1", summary.Repairs)
	}

	attrs := summary.LogAttrs()
	if len(attrs) != 16 {
		t.Errorf("LogAttrs() has %d entries, want 16", len(attrs))
	}
}

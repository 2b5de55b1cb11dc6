package filter

import (
	"context"
	"testing"

	imapv2 "github.com/emersion/go-imap/v2"

	"github.com/dhcgn/imap-reader/message"
	"github.com/dhcgn/imap-reader/model"
)

type mailbox struct {
	headers     map[imapv2.UID]string
	bodies      map[imapv2.UID]string
	headerCalls int
}

func (m *mailbox) FetchStructure(ctx context.Context, uid imapv2.UID) (imapv2.BodyStructure, error) {
	return &imapv2.BodyStructureSinglePart{Type: "text", Subtype: "plain"}, nil
}

func (m *mailbox) FetchHeader(ctx context.Context, uid imapv2.UID) ([]byte, error) {
	m.headerCalls++
	return []byte(m.headers[uid]), nil
}

func (m *mailbox) FetchBody(ctx context.Context, uid imapv2.UID, path string) ([]byte, error) {
	return []byte(m.bodies[uid]), nil
}

func (m *mailbox) FetchOverview(ctx context.Context, uid imapv2.UID) (model.Overview, error) {
	return model.Overview{UID: uid}, nil
}

func (m *mailbox) TargetCharset() string { return "UTF-8" }
func (m *mailbox) MarkAsSeen() bool      { return false }
func (m *mailbox) Generation() uint64    { return 0 }

func TestFilter_Apply(t *testing.T) {
	box := &mailbox{
		headers: map[imapv2.UID]string{
			1: "Subject: invoice\r\n",
			2: "Subject: newsletter\r\n",
			3: "Subject: =?UTF-8?Q?Invoice_March?=\r\n",
		},
		bodies: map[imapv2.UID]string{
			1: "pay now",
			2: "unsubscribe here",
			3: "pay later",
		},
	}
	msgs := []*message.Message{
		message.New(box, 1, message.Options{}),
		message.New(box, 2, message.Options{}),
		message.New(box, 3, message.Options{}),
	}

	tests := []struct {
		name string
		opts Options
		want []imapv2.UID
	}{
		{name: "no filters", opts: Options{}, want: []imapv2.UID{1, 2, 3}},
		{name: "include header", opts: Options{IncludeHeader: []string{"(?i)subject: invoice"}}, want: []imapv2.UID{1, 3}},
		{name: "exclude body", opts: Options{ExcludeBody: []string{"unsubscribe"}}, want: []imapv2.UID{1, 3}},
		{name: "include body", opts: Options{IncludeBody: []string{"later"}}, want: []imapv2.UID{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.opts)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			kept, err := f.Apply(context.Background(), box, msgs)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if len(kept) != len(tt.want) {
				t.Fatalf("Apply() kept %d messages, want %d", len(kept), len(tt.want))
			}
			for i, m := range kept {
				if m.UID() != tt.want[i] {
					t.Errorf("Apply()[%d] = uid %d, want %d", i, m.UID(), tt.want[i])
				}
			}
		})
	}
}

func TestFilter_ApplySkipsUnneededFetches(t *testing.T) {
	box := &mailbox{bodies: map[imapv2.UID]string{1: "hello"}}
	f, err := New(Options{IncludeBody: []string{"hello"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	kept, err := f.Apply(context.Background(), box, []*message.Message{message.New(box, 1, message.Options{})})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("Apply() kept %d messages, want 1", len(kept))
	}
	if box.headerCalls != 0 {
		t.Errorf("FetchHeader called %d times for a body-only filter", box.headerCalls)
	}
}

package part

import (
	"context"
	"testing"
	"time"

	"github.com/dhcgn/imap-reader/decode"
)

func TestFile_Filename(t *testing.T) {
	now = func() time.Time { return time.Unix(1700000000, 0) }
	defer func() { now = time.Now }()

	tests := []struct {
		name string
		node *Node
		want string
	}{
		{
			name: "disposition filename wins",
			node: &Node{Subtype: "pdf", Params: map[string]string{"name": "name.pdf"}, DispositionParams: map[string]string{"filename": "report.pdf"}},
			want: "report.pdf",
		},
		{
			name: "content-type name",
			node: &Node{Subtype: "pdf", Params: map[string]string{"name": "name.pdf"}},
			want: "name.pdf",
		},
		{
			name: "encoded word",
			node: &Node{Subtype: "pdf", DispositionParams: map[string]string{"filename": "=?UTF-8?B?0J/RgNC40LLQtdGCLnBkZg==?="}},
			want: "Привет.pdf",
		},
		{
			name: "generated",
			node: &Node{Kind: KindImage, Subtype: "png"},
			want: "1700000000.png",
		},
		{
			name: "generated without subtype",
			node: &Node{Kind: KindApplication},
			want: "1700000000.bin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFile(tt.node, nil)
			if got := f.Filename(); got != tt.want {
				t.Errorf("Filename() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFile_FilenameStable(t *testing.T) {
	tick := int64(1700000000)
	now = func() time.Time { tick++; return time.Unix(tick, 0) }
	defer func() { now = time.Now }()

	f := NewFile(&Node{Kind: KindImage, Subtype: "gif"}, nil)
	first := f.Filename()
	if second := f.Filename(); second != first {
		t.Errorf("Filename() changed from %q to %q", first, second)
	}
}

func TestFile_Accessors(t *testing.T) {
	n := &Node{
		Path:        "2",
		Kind:        KindApplication,
		Subtype:     "pdf",
		Encoding:    decode.EncodingBinary,
		Disposition: "attachment",
		Params:      map[string]string{"name": "=?ISO-8859-1?Q?R=E9sum=E9.pdf?="},
		Size:        5,
	}
	f := NewFile(n, &fakeFetcher{})

	if f.MIMEType() != "application/pdf" {
		t.Errorf("MIMEType() = %q", f.MIMEType())
	}
	if !f.IsAttachment() {
		t.Error("IsAttachment() = false")
	}
	if f.Size() != 5 || f.Path() != "2" || f.Node() != n {
		t.Errorf("Size/Path/Node = %d/%q/%p", f.Size(), f.Path(), f.Node())
	}
	if got := f.Title(); got != "Résumé.pdf" {
		t.Errorf("Title() = %q, want %q", got, "Résumé.pdf")
	}

	data, err := f.Data(context.Background())
	if err != nil {
		t.Fatalf("Data() error = %v", err)
	}
	if string(data) != "part 2" {
		t.Errorf("Data() = %q, want %q", data, "part 2")
	}
}

func TestNode_DataFetchedOnce(t *testing.T) {
	f := &fakeFetcher{}
	n := &Node{Path: "1.2", Kind: KindText, Subtype: "plain"}

	for i := 0; i < 3; i++ {
		if _, err := n.Data(context.Background(), f); err != nil {
			t.Fatalf("Data() error = %v", err)
		}
	}
	if f.bodyCalls["1.2"] != 1 {
		t.Errorf("FetchBody called %d times, want 1", f.bodyCalls["1.2"])
	}

	multi := &Node{Kind: KindMultipart}
	if _, err := multi.Raw(context.Background(), f); err != ErrNotLeaf {
		t.Errorf("Raw() on multipart error = %v, want ErrNotLeaf", err)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"TEXT", KindText},
		{"multipart", KindMultipart},
		{"Message", KindMessage},
		{"application", KindApplication},
		{"audio", KindAudio},
		{"image", KindImage},
		{"video", KindVideo},
		{"model", KindModel},
		{"font", KindOther},
		{"", KindOther},
	}

	for _, tt := range tests {
		if got := ParseKind(tt.in); got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

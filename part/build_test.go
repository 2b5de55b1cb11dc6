package part

import (
	"context"
	"errors"
	"testing"

	"github.com/emersion/go-imap/v2"
)

type fakeFetcher struct {
	header    []byte
	body      []byte
	headerErr error
	bodyErr   error

	headerCalls int
	bodyCalls   map[string]int
}

func (f *fakeFetcher) FetchHeader(ctx context.Context) ([]byte, error) {
	f.headerCalls++
	return f.header, f.headerErr
}

func (f *fakeFetcher) FetchBody(ctx context.Context, path string) ([]byte, error) {
	if f.bodyCalls == nil {
		f.bodyCalls = map[string]int{}
	}
	f.bodyCalls[path]++
	if f.bodyErr != nil {
		return nil, f.bodyErr
	}
	if path == "" {
		return f.body, nil
	}
	return []byte("part " + path), nil
}

func collapsedHint() imap.BodyStructure {
	return &imap.BodyStructureMultiPart{
		Subtype: "mixed",
		Children: []imap.BodyStructure{
			&imap.BodyStructureSinglePart{Type: "text", Subtype: "plain", Encoding: "7bit", Size: 2048, Description: "reported"},
		},
	}
}

func TestBuild_FallbackReplacesCollapsedStructure(t *testing.T) {
	f := &fakeFetcher{header: []byte(mixedHeader), body: []byte(mixedBody)}

	var repaired [2]int
	root, err := Build(context.Background(), f, collapsedHint(), Options{
		OnRepair: func(reported, reconstructed int) { repaired = [2]int{reported, reconstructed} },
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(root.Children) != 3 {
		t.Fatalf("Build() root has %d children, want 3", len(root.Children))
	}
	if repaired != [2]int{1, 3} {
		t.Errorf("OnRepair got %v, want [1 3]", repaired)
	}
	if f.headerCalls != 1 || f.bodyCalls[""] != 1 {
		t.Errorf("fetches = header %d body %d, want 1 each", f.headerCalls, f.bodyCalls[""])
	}
}

func TestBuild_EqualCountKeepsReported(t *testing.T) {
	header := "Content-Type: multipart/mixed; boundary=b\r\n"
	body := "--b\r\nContent-Type: text/plain\r\n\r\nhi\r\n--b--\r\n"
	f := &fakeFetcher{header: []byte(header), body: []byte(body)}

	called := false
	root, err := Build(context.Background(), f, collapsedHint(), Options{
		OnRepair: func(int, int) { called = true },
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(root.Children) != 1 || root.Children[0].Description != "reported" {
		t.Errorf("Build() did not keep the reported tree")
	}
	if called {
		t.Error("OnRepair called although the reported tree was kept")
	}
}

func TestBuild_TrustedStructureFetchesNothing(t *testing.T) {
	hint := &imap.BodyStructureMultiPart{
		Subtype: "alternative",
		Children: []imap.BodyStructure{
			&imap.BodyStructureSinglePart{Type: "text", Subtype: "plain"},
			&imap.BodyStructureSinglePart{Type: "text", Subtype: "html"},
		},
	}
	f := &fakeFetcher{}

	root, err := Build(context.Background(), f, hint, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(root.Children) != 2 {
		t.Errorf("Build() root has %d children, want 2", len(root.Children))
	}
	if f.headerCalls != 0 || len(f.bodyCalls) != 0 {
		t.Errorf("Build() fetched raw data for a trusted structure")
	}

	single := &imap.BodyStructureSinglePart{Type: "text", Subtype: "plain", Size: 3}
	if _, err := Build(context.Background(), f, single, Options{}); err != nil {
		t.Fatalf("Build(single part) error = %v", err)
	}
	if f.headerCalls != 0 {
		t.Errorf("Build() fetched raw data for a single-part structure")
	}
}

func TestBuild_NoHintReconstructs(t *testing.T) {
	f := &fakeFetcher{header: []byte(mixedHeader), body: []byte(mixedBody)}

	root, err := Build(context.Background(), f, nil, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(root.Children) != 3 {
		t.Errorf("Build() root has %d children, want 3", len(root.Children))
	}
}

func TestBuild_StructureUnavailable(t *testing.T) {
	errSession := errors.New("connection reset")

	tests := []struct {
		name    string
		fetcher *fakeFetcher
		wantErr error
	}{
		{name: "header fails", fetcher: &fakeFetcher{headerErr: errSession}, wantErr: errSession},
		{name: "body fails", fetcher: &fakeFetcher{header: []byte("Subject: x\r\n"), bodyErr: errSession}, wantErr: errSession},
		{name: "empty header", fetcher: &fakeFetcher{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), tt.fetcher, nil, Options{})
			if !errors.Is(err, ErrStructureUnavailable) {
				t.Fatalf("Build() error = %v, want ErrStructureUnavailable", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want it to wrap %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuild_FallbackUnavailableKeepsReported(t *testing.T) {
	f := &fakeFetcher{headerErr: errors.New("timeout")}

	root, err := Build(context.Background(), f, collapsedHint(), Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(root.Children) != 1 {
		t.Errorf("Build() root has %d children, want the reported 1", len(root.Children))
	}
}

func TestBuild_CustomRepair(t *testing.T) {
	f := &fakeFetcher{header: []byte(mixedHeader), body: []byte(mixedBody)}

	root, err := Build(context.Background(), f, collapsedHint(), Options{
		Repair: func(reported, reconstructed *Node) *Node { return reported },
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(root.Children) != 1 {
		t.Errorf("Build() root has %d children, want 1", len(root.Children))
	}
}

func TestPreferDifferentCount(t *testing.T) {
	one := &Node{Kind: KindMultipart, Children: []*Node{{}}}
	three := &Node{Kind: KindMultipart, Children: []*Node{{}, {}, {}}}
	empty := &Node{Kind: KindMultipart}

	if PreferDifferentCount(one, three) != three {
		t.Error("PreferDifferentCount(1, 3) kept the reported tree")
	}
	if PreferDifferentCount(one, empty) != empty {
		t.Error("PreferDifferentCount(1, 0) kept the reported tree")
	}
	other := &Node{Kind: KindMultipart, Children: []*Node{{}}}
	if PreferDifferentCount(one, other) != one {
		t.Error("PreferDifferentCount(1, 1) replaced the reported tree")
	}
}

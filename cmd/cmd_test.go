package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const sampleMbox = "../mbox/testdata/sample.mbox"

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func executeMbox(t *testing.T, args ...string) string {
	t.Helper()
	base := []string{"--source", "mbox", "--mbox", sampleMbox, "--log-level", "error", "--state-dir", t.TempDir()}
	out, err := execute(t, "", append(base, args...)...)
	if err != nil {
		t.Fatalf("Execute(%v) error = %v", args, err)
	}
	return out
}

func TestList_JSON(t *testing.T) {
	out := executeMbox(t, "list", "--format", "json")

	var views []overviewView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("json.Unmarshal() error = %v\n%s", err, out)
	}
	if len(views) != 3 {
		t.Fatalf("list returned %d messages, want 3", len(views))
	}
	if views[0].UID != 3 || views[2].UID != 1 {
		t.Errorf("uids = %d..%d, want newest first", views[0].UID, views[2].UID)
	}
	if views[2].Subject != "Quartalsbericht" {
		t.Errorf("Subject = %q, want decoded", views[2].Subject)
	}
	if views[2].From != "Alice Müller <alice@example.com>" {
		t.Errorf("From = %q", views[2].From)
	}
}

func TestList_LimitAndFilter(t *testing.T) {
	out := executeMbox(t, "list", "--limit", "1")
	if lines := strings.Count(out, "\n"); lines != 1 {
		t.Errorf("list --limit 1 printed %d lines:\n%s", lines, out)
	}

	out = executeMbox(t, "list", "--format", "json", "--exclude-body", "danke")
	var views []overviewView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if len(views) != 2 {
		t.Errorf("filtered list returned %d messages, want 2", len(views))
	}
}

func TestShow(t *testing.T) {
	out := executeMbox(t, "show", "1", "--subtype", "html", "--format", "yaml")

	var view messageView
	if err := yaml.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v\n%s", err, out)
	}
	if !view.HasBody || strings.TrimSpace(view.Body) != "<p>Hallo Bob</p>" {
		t.Errorf("Body = %q, HasBody = %v", view.Body, view.HasBody)
	}
	if view.UID != 1 || view.Subject != "Quartalsbericht" {
		t.Errorf("UID/Subject = %d/%q", view.UID, view.Subject)
	}

	text := executeMbox(t, "show", "3")
	if !strings.Contains(text, "Schön, danke.") || !strings.Contains(text, "Subject: Re: Quartalsbericht") {
		t.Errorf("show 3 =\n%s", text)
	}
}

func TestAttachments_Save(t *testing.T) {
	dir := t.TempDir()
	out := executeMbox(t, "attachments", "2", "--save", dir)
	if !strings.Contains(out, "invoice.pdf") {
		t.Errorf("attachments output =\n%s", out)
	}

	data, err := os.ReadFile(filepath.Join(dir, "invoice.pdf"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "%PDF-" {
		t.Errorf("saved data = %q, want %q", data, "%PDF-")
	}
}

func TestStructure(t *testing.T) {
	out := executeMbox(t, "structure", "2", "--format", "json")

	var view partView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if view.MIMEType != "multipart/mixed" || len(view.Children) != 3 {
		t.Fatalf("structure = %+v", view)
	}
	if view.Children[2].Disposition != "attachment" || view.Children[2].Encoding != "base64" {
		t.Errorf("third part = %+v", view.Children[2])
	}

	text := executeMbox(t, "structure", "2", "--trust-structure=false")
	if !strings.Contains(text, "application/pdf") {
		t.Errorf("reconstructed structure =\n%s", text)
	}
}

func TestInvalidUID(t *testing.T) {
	for _, arg := range []string{"0", "abc", "-1"} {
		if _, err := execute(t, "", "--source", "mbox", "--mbox", sampleMbox, "--state-dir", t.TempDir(), "show", arg); err == nil {
			t.Errorf("show %q succeeded", arg)
		}
	}
}

func TestStorePassword(t *testing.T) {
	var gotKey, gotPass string
	orig := storePassword
	storePassword = func(key, value string) error {
		gotKey, gotPass = key, value
		return nil
	}
	t.Cleanup(func() { storePassword = orig })

	out, err := execute(t, "s3cret\n", "store-password", "--imap-user", "bob", "--imap-host", "mail.example.com")
	if err != nil {
		t.Fatalf("store-password error = %v", err)
	}
	if gotKey != "imap-bob@mail.example.com" || gotPass != "s3cret" {
		t.Errorf("stored %q = %q", gotKey, gotPass)
	}
	if !strings.Contains(out, "bob@mail.example.com") {
		t.Errorf("output = %q", out)
	}

	if _, err := execute(t, "", "store-password", "--imap-user", "bob"); err == nil {
		t.Error("store-password without --imap-host succeeded")
	}
}

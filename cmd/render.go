package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"gopkg.in/yaml.v3"

	"github.com/dhcgn/imap-reader/message"
	"github.com/dhcgn/imap-reader/part"
)

type overviewView struct {
	UID     uint32    `json:"uid" yaml:"uid"`
	Date    time.Time `json:"date" yaml:"date"`
	From    string    `json:"from" yaml:"from"`
	To      string    `json:"to" yaml:"to"`
	Subject string    `json:"subject" yaml:"subject"`
	Size    int64     `json:"size" yaml:"size"`
	Flags   []string  `json:"flags,omitempty" yaml:"flags,omitempty"`
}

type fileView struct {
	Path     string `json:"path" yaml:"path"`
	Filename string `json:"filename" yaml:"filename"`
	MIMEType string `json:"mimeType" yaml:"mimeType"`
	Size     int64  `json:"size" yaml:"size"`
	SavedTo  string `json:"savedTo,omitempty" yaml:"savedTo,omitempty"`
}

type messageView struct {
	overviewView `yaml:",inline"`
	Subtype      string     `json:"subtype" yaml:"subtype"`
	HasBody      bool       `json:"hasBody" yaml:"hasBody"`
	Body         string     `json:"body" yaml:"body"`
	Attachments  []fileView `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

type partView struct {
	Path        string     `json:"path" yaml:"path"`
	MIMEType    string     `json:"mimeType" yaml:"mimeType"`
	Encoding    string     `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Disposition string     `json:"disposition,omitempty" yaml:"disposition,omitempty"`
	Name        string     `json:"name,omitempty" yaml:"name,omitempty"`
	Size        int64      `json:"size" yaml:"size"`
	Children    []partView `json:"children,omitempty" yaml:"children,omitempty"`
}

// render writes v as json or yaml, or calls text for the text format.
func render(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

func overviewOf(ctx context.Context, m *message.Message) (overviewView, error) {
	ov, err := m.Overview(ctx)
	if err != nil {
		return overviewView{}, err
	}
	// The accessors below hit the cached overview.
	subject, _ := m.Subject(ctx)
	from, _ := m.From(ctx)
	to, _ := m.To(ctx)

	flags := make([]string, 0, len(ov.Flags))
	for _, f := range ov.Flags {
		flags = append(flags, string(f))
	}
	return overviewView{
		UID:     uint32(ov.UID),
		Date:    ov.Date,
		From:    from,
		To:      to,
		Subject: subject,
		Size:    ov.Size,
		Flags:   flags,
	}, nil
}

func fileOf(f *part.File) fileView {
	return fileView{
		Path:     f.Path(),
		Filename: f.Filename(),
		MIMEType: f.MIMEType(),
		Size:     f.Size(),
	}
}

func partOf(n *part.Node) partView {
	v := partView{
		Path:        n.Path,
		MIMEType:    n.MIMEType(),
		Disposition: n.Disposition,
		Name:        n.Param("name"),
		Size:        n.Size,
	}
	if !n.IsMultipart() {
		v.Encoding = n.Encoding.String()
	}
	for _, c := range n.Children {
		v.Children = append(v.Children, partOf(c))
	}
	return v
}

func writeTree(w io.Writer, v partView, depth int) {
	path := v.Path
	if path == "" {
		path = "root"
	}
	line := fmt.Sprintf("%s%-8s %s", strings.Repeat("  ", depth), path, v.MIMEType)
	if v.Encoding != "" {
		line += " " + v.Encoding
	}
	if v.Disposition != "" {
		line += " " + v.Disposition
	}
	if v.Name != "" {
		line += " " + strconv.Quote(v.Name)
	}
	fmt.Fprintf(w, "%s (%d bytes)\n", line, v.Size)
	for _, c := range v.Children {
		writeTree(w, c, depth+1)
	}
}

func parseUID(arg string) (imapv2.UID, error) {
	n, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid uid %q", arg)
	}
	return imapv2.UID(n), nil
}

package message

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dhcgn/imap-reader/decode"
	"github.com/dhcgn/imap-reader/part"
)

// FallbackGlue joins text groups when the requested subtype is missing.
const FallbackGlue = "\r\n<br/>"

var htmlBreaks = strings.NewReplacer("\r\n", "<br/>", "\n", "<br/>")

// Assembly is a message tree sorted into text groups, inline content and
// attachments.
type Assembly struct {
	// Content holds leaves that are neither text nor attachments, such as
	// inline images.
	Content     []*part.File
	Attachments []*part.File

	groups map[string][]*part.Node
	order  []string

	src    part.Fetcher
	target string
	logger *slog.Logger
}

// Assemble walks root depth first. Text leaves without an attachment
// disposition are grouped by subtype; every other leaf becomes an attachment
// when its disposition says so and a content part otherwise. Nothing is
// fetched until Body or a File's Data is called.
func Assemble(root *part.Node, src part.Fetcher, target string, logger *slog.Logger) *Assembly {
	a := &Assembly{
		groups: map[string][]*part.Node{},
		src:    src,
		target: target,
		logger: logger,
	}
	if root == nil {
		return a
	}

	root.Walk(func(n *part.Node) bool {
		if n.IsMultipart() {
			return true
		}
		switch {
		case n.Kind == part.KindText && !n.IsAttachment():
			key := strings.ToLower(n.Subtype)
			if key == "" {
				key = "plain"
			}
			if _, ok := a.groups[key]; !ok {
				a.order = append(a.order, key)
			}
			a.groups[key] = append(a.groups[key], n)
		case n.IsAttachment():
			a.Attachments = append(a.Attachments, part.NewFile(n, src))
		default:
			a.Content = append(a.Content, part.NewFile(n, src))
		}
		return true
	})

	return a
}

// Subtypes returns the text subtypes found, in the order first seen.
func (a *Assembly) Subtypes() []string {
	return a.order
}

// Body renders the text of subtype. When the message has no such group, all
// text groups are joined with FallbackGlue, and for "html" every line break
// becomes "<br/>". ok is false when the message has no text at all.
func (a *Assembly) Body(ctx context.Context, subtype string) (text string, ok bool, err error) {
	subtype = strings.ToLower(subtype)

	if nodes, found := a.groups[subtype]; found {
		texts, err := a.texts(ctx, nodes)
		if err != nil {
			return "", false, err
		}
		return strings.Join(texts, ""), true, nil
	}

	if len(a.order) == 0 {
		return "", false, nil
	}

	var all []string
	for _, key := range a.order {
		texts, err := a.texts(ctx, a.groups[key])
		if err != nil {
			return "", false, err
		}
		all = append(all, texts...)
	}

	text = strings.Join(all, FallbackGlue)
	if subtype == "html" {
		text = htmlBreaks.Replace(text)
	}
	return text, true, nil
}

func (a *Assembly) texts(ctx context.Context, nodes []*part.Node) ([]string, error) {
	texts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		data, err := n.Data(ctx, a.src)
		if err != nil {
			if !errors.Is(err, decode.ErrDecodeFailure) {
				return nil, err
			}
			a.warn("Decoding part failed, using partial output", n, err)
		}

		if charset := n.Param("charset"); charset != "" && !decode.SameCharset(charset, a.target) {
			converted, err := decode.Charset(data, charset, a.target)
			if err != nil {
				a.warn("Charset conversion failed, using raw text", n, err)
			}
			data = converted
		}
		texts = append(texts, string(data))
	}
	return texts, nil
}

func (a *Assembly) warn(msg string, n *part.Node, err error) {
	if a.logger != nil {
		a.logger.Warn(msg, "path", n.Path, "err", err)
	}
}

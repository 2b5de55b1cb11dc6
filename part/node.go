// Package part models the MIME tree of a message and builds it either from
// the session's BODYSTRUCTURE or, when that cannot be trusted, from the raw
// header and body text.
package part

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dhcgn/imap-reader/decode"
)

var (
	// ErrNotLeaf is returned when body bytes are requested for a multipart
	// node.
	ErrNotLeaf = errors.New("multipart node has no body of its own")
	// ErrBadPath is returned for a section path that is not a dotted list
	// of positive part numbers.
	ErrBadPath = errors.New("invalid part path")
)

// Kind is the primary MIME type of a part.
type Kind int

const (
	KindText Kind = iota
	KindMultipart
	KindMessage
	KindApplication
	KindAudio
	KindImage
	KindVideo
	KindModel
	KindOther
)

var kindNames = [...]string{
	KindText:        "text",
	KindMultipart:   "multipart",
	KindMessage:     "message",
	KindApplication: "application",
	KindAudio:       "audio",
	KindImage:       "image",
	KindVideo:       "video",
	KindModel:       "model",
	KindOther:       "other",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindOther]
	}
	return kindNames[k]
}

// ParseKind maps a primary type token such as "TEXT" to a Kind. Unknown
// types are KindOther.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k)
		}
	}
	return KindOther
}

// Fetcher hands out the raw bytes of one message. Path "" is the whole body
// below the top-level header.
type Fetcher interface {
	FetchHeader(ctx context.Context) ([]byte, error)
	FetchBody(ctx context.Context, path string) ([]byte, error)
}

// Node is one MIME part. A node is either a multipart container with
// Children or a leaf with a Size and a body; never both. Nodes are built
// once and not safe for concurrent use.
type Node struct {
	// Path is the dotted IMAP section number, "" for the top-level part.
	Path string

	Kind    Kind
	Subtype string

	Encoding    decode.Encoding
	Disposition string

	// Params and DispositionParams have lower-cased keys.
	Params            map[string]string
	DispositionParams map[string]string

	ID          string
	Description string

	Size     int64
	Children []*Node

	raw    []byte
	hasRaw bool

	data    []byte
	dataErr error
	hasData bool
}

// IsMultipart reports whether n is a container.
func (n *Node) IsMultipart() bool {
	return n.Kind == KindMultipart
}

// IsAttachment reports whether the part was sent with an attachment
// disposition.
func (n *Node) IsAttachment() bool {
	return n.Disposition == "attachment"
}

// MIMEType returns "kind/subtype" in lower case.
func (n *Node) MIMEType() string {
	if n.Subtype == "" {
		return n.Kind.String()
	}
	return n.Kind.String() + "/" + n.Subtype
}

// Param returns a Content-Type parameter.
func (n *Node) Param(key string) string {
	return n.Params[strings.ToLower(key)]
}

// DispositionParam returns a Content-Disposition parameter.
func (n *Node) DispositionParam(key string) string {
	return n.DispositionParams[strings.ToLower(key)]
}

// Walk calls fn for n and every descendant, depth first.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Stash records body bytes already at hand so Raw never goes to the
// session for this node.
func (n *Node) Stash(raw []byte) {
	n.raw = raw
	n.hasRaw = true
}

// Raw returns the undecoded body of a leaf, fetching it on first use.
func (n *Node) Raw(ctx context.Context, f Fetcher) ([]byte, error) {
	if n.hasRaw {
		return n.raw, nil
	}
	if n.IsMultipart() {
		return nil, ErrNotLeaf
	}
	raw, err := f.FetchBody(ctx, n.Path)
	if err != nil {
		return nil, err
	}
	n.Stash(raw)
	return raw, nil
}

// Data returns the transfer-decoded body of a leaf. Decoding happens once;
// a partial decode is returned together with an error wrapping
// decode.ErrDecodeFailure.
func (n *Node) Data(ctx context.Context, f Fetcher) ([]byte, error) {
	if n.hasData {
		return n.data, n.dataErr
	}
	raw, err := n.Raw(ctx, f)
	if err != nil {
		return nil, err
	}
	n.data, n.dataErr = decode.Content(raw, n.Encoding)
	n.hasData = true
	return n.data, n.dataErr
}

func childPath(parent string, index int) string {
	if parent == "" {
		return strconv.Itoa(index)
	}
	return parent + "." + strconv.Itoa(index)
}

// ParsePath turns a dotted section path such as "1.2" into part numbers.
func ParsePath(path string) ([]int, error) {
	fields := strings.Split(path, ".")
	section := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: %q", ErrBadPath, path)
		}
		section = append(section, n)
	}
	return section, nil
}

package part

import (
	"context"
	"strconv"
	"time"

	"github.com/dhcgn/imap-reader/decode"
)

var now = time.Now

// File is a leaf offered to the caller as an attachment or an inline
// content part.
type File struct {
	node     *Node
	src      Fetcher
	filename string
}

// NewFile wraps leaf n. Bytes are fetched through src on first use.
func NewFile(n *Node, src Fetcher) *File {
	return &File{node: n, src: src}
}

// Node returns the underlying part.
func (f *File) Node() *Node { return f.node }

// Path returns the part's section number.
func (f *File) Path() string { return f.node.Path }

// MIMEType returns the lower-cased "kind/subtype".
func (f *File) MIMEType() string { return f.node.MIMEType() }

// IsAttachment reports whether the part has an attachment disposition.
func (f *File) IsAttachment() bool { return f.node.IsAttachment() }

// Size is the encoded length reported for the part.
func (f *File) Size() int64 { return f.node.Size }

// Title returns the decoded Content-Type name parameter, if any.
func (f *File) Title() string {
	return decode.Header(f.node.Param("name"), decode.DefaultCharset)
}

// Filename is the disposition filename, else the Content-Type name, else a
// name generated from the current time and the subtype. The result is fixed
// after the first call.
func (f *File) Filename() string {
	if f.filename != "" {
		return f.filename
	}

	name := f.node.DispositionParam("filename")
	if name == "" {
		name = f.node.Param("name")
	}
	if name != "" {
		f.filename = decode.Header(name, decode.DefaultCharset)
		return f.filename
	}

	subtype := f.node.Subtype
	if subtype == "" {
		subtype = "bin"
	}
	f.filename = strconv.FormatInt(now().Unix(), 10) + "." + subtype
	return f.filename
}

// Data returns the transfer-decoded bytes. A partial decode comes back
// together with an error wrapping decode.ErrDecodeFailure.
func (f *File) Data(ctx context.Context) ([]byte, error) {
	return f.node.Data(ctx, f.src)
}

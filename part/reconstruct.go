package part

import (
	"bytes"
	"errors"
	"strings"

	"github.com/dhcgn/imap-reader/decode"
)

// Reconstruct builds a tree from a raw header block and the body below it.
// Multipart bodies are split on their boundary and each segment is parsed
// the same way. Malformed header lines are skipped; their errors are
// returned joined, next to the tree built from what did parse.
func Reconstruct(header, body []byte) (*Node, error) {
	return reconstruct("", header, body)
}

func reconstruct(path string, header, body []byte) (*Node, error) {
	h, err := ParseHeader(header)
	errs := []error{err}

	n := nodeFromHeader(path, h)

	if !n.IsMultipart() {
		n.Size = int64(len(body))
		n.Stash(body)
		return n, errors.Join(errs...)
	}

	boundary := n.Param("boundary")
	if boundary == "" {
		return n, errors.Join(errs...)
	}

	for i, segment := range splitBoundary(body, boundary) {
		subHeader, subBody := splitSegment(segment)
		child, err := reconstruct(childPath(path, i+1), subHeader, subBody)
		errs = append(errs, err)
		n.Children = append(n.Children, child)
	}

	return n, errors.Join(errs...)
}

func nodeFromHeader(path string, h Header) *Node {
	n := &Node{Path: path, Kind: KindText, Subtype: "plain"}

	if ct := h.Get("content-type"); ct != nil && ct.Value() != "" {
		kind, subtype, _ := strings.Cut(strings.ToLower(ct.Value()), "/")
		n.Kind = ParseKind(kind)
		n.Subtype = strings.TrimSpace(subtype)
		n.Params = ct.ParamMap()
	}
	if n.Params == nil {
		n.Params = map[string]string{}
	}

	if cte := h.Get("content-transfer-encoding"); cte != nil && !n.IsMultipart() {
		n.Encoding = decode.ParseEncoding(cte.Value())
	}

	if cd := h.Get("content-disposition"); cd != nil {
		n.Disposition = strings.ToLower(cd.Value())
		n.DispositionParams = cd.ParamMap()
	}
	if n.DispositionParams == nil {
		n.DispositionParams = map[string]string{}
	}

	n.ID = strings.Trim(h.Value("content-id"), "<>")
	if cd := h.Get("content-description"); cd != nil {
		n.Description = cd.Raw
	}

	return n
}

// splitBoundary returns the segments between "--boundary" delimiter lines,
// dropping the preamble and the epilogue after the closing delimiter. A
// delimiter starts a line and may only be followed by "--" and transport
// padding, so a boundary that prefixes a nested one does not split it.
// Each segment keeps the line break that ended its opening delimiter.
func splitBoundary(body []byte, boundary string) [][]byte {
	delim := []byte("--" + boundary)

	var segments [][]byte
	start := -1
	for pos := 0; pos < len(body); {
		next := len(body)
		if i := bytes.IndexByte(body[pos:], '\n'); i >= 0 {
			next = pos + i + 1
		}

		rest, ok := bytes.CutPrefix(body[pos:next], delim)
		if ok {
			closing := bytes.HasPrefix(rest, []byte("--"))
			if closing {
				rest = rest[2:]
			}
			if padding := bytes.TrimLeft(rest, " \t"); isLineEnd(padding) {
				if start >= 0 {
					segments = append(segments, body[start:pos])
				}
				if closing {
					return segments
				}
				start = next - len(padding)
			}
		}

		pos = next
	}

	return segments
}

func isLineEnd(b []byte) bool {
	return len(b) == 0 || string(b) == "\n" || string(b) == "\r\n"
}

// splitSegment separates one boundary segment into its header and body. A
// segment that opens with a blank line has no header.
func splitSegment(segment []byte) (header, body []byte) {
	segment = trimLeadingBreak(segment)
	segment = trimTrailingBreak(segment)

	if bytes.HasPrefix(segment, []byte("\r\n")) {
		return nil, segment[2:]
	}
	if bytes.HasPrefix(segment, []byte("\n")) {
		return nil, segment[1:]
	}

	header, body = Split(segment)
	return header, body
}

func trimLeadingBreak(b []byte) []byte {
	if bytes.HasPrefix(b, []byte("\r\n")) {
		return b[2:]
	}
	return bytes.TrimPrefix(b, []byte("\n"))
}

func trimTrailingBreak(b []byte) []byte {
	if bytes.HasSuffix(b, []byte("\r\n")) {
		return b[:len(b)-2]
	}
	return bytes.TrimSuffix(b, []byte("\n"))
}


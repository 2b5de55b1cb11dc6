package part

import (
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/dhcgn/imap-reader/decode"
)

// FromNative converts a BODYSTRUCTURE reported by the session into a tree.
// A message/rfc822 part is kept as a leaf; its inner structure is not
// expanded.
func FromNative(bs imap.BodyStructure) *Node {
	if bs == nil {
		return nil
	}
	return fromNative("", bs)
}

func fromNative(path string, bs imap.BodyStructure) *Node {
	n := &Node{Path: path}

	if d := bs.Disposition(); d != nil {
		n.Disposition = strings.ToLower(d.Value)
		n.DispositionParams = lowerKeys(d.Params)
	} else {
		n.DispositionParams = map[string]string{}
	}

	switch bs := bs.(type) {
	case *imap.BodyStructureMultiPart:
		n.Kind = KindMultipart
		n.Subtype = strings.ToLower(bs.Subtype)
		if bs.Extended != nil {
			n.Params = lowerKeys(bs.Extended.Params)
		} else {
			n.Params = map[string]string{}
		}
		for i, child := range bs.Children {
			n.Children = append(n.Children, fromNative(childPath(path, i+1), child))
		}
	case *imap.BodyStructureSinglePart:
		n.Kind = ParseKind(bs.Type)
		n.Subtype = strings.ToLower(bs.Subtype)
		n.Params = lowerKeys(bs.Params)
		n.Encoding = decode.ParseEncoding(bs.Encoding)
		n.ID = strings.Trim(bs.ID, "<>")
		n.Description = bs.Description
		n.Size = int64(bs.Size)
	}

	return n
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

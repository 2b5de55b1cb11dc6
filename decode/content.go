// Package decode turns transfer-encoded MIME bodies and RFC 2047 header
// words into text in a configured output charset.
package decode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/quotedprintable"
	"strings"
)

// ErrDecodeFailure marks output that could only be decoded partially. The
// accompanying bytes are still the best available rendition of the input.
var ErrDecodeFailure = errors.New("decode failure")

// Encoding is a Content-Transfer-Encoding.
type Encoding int

const (
	EncodingSevenBit Encoding = iota
	EncodingEightBit
	EncodingBinary
	EncodingBase64
	EncodingQuotedPrintable
	EncodingOther
)

var encodingNames = [...]string{
	EncodingSevenBit:        "7bit",
	EncodingEightBit:        "8bit",
	EncodingBinary:          "binary",
	EncodingBase64:          "base64",
	EncodingQuotedPrintable: "quoted-printable",
	EncodingOther:           "other",
}

func (e Encoding) String() string {
	if e < 0 || int(e) >= len(encodingNames) {
		return encodingNames[EncodingOther]
	}
	return encodingNames[e]
}

// ParseEncoding maps a Content-Transfer-Encoding token to an Encoding.
// Matching ignores case and dashes; anything unknown is EncodingOther.
func ParseEncoding(s string) Encoding {
	token := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "")
	switch token {
	case "7bit":
		return EncodingSevenBit
	case "8bit":
		return EncodingEightBit
	case "binary":
		return EncodingBinary
	case "base64":
		return EncodingBase64
	case "quotedprintable":
		return EncodingQuotedPrintable
	}
	return EncodingOther
}

// Content decodes raw according to enc. Malformed input never fails the
// call: the error, if any, wraps ErrDecodeFailure and the returned bytes hold
// whatever could be recovered.
func Content(raw []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingBase64:
		return decodeBase64(raw), nil
	case EncodingQuotedPrintable:
		out, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return out, fmt.Errorf("%w: quoted-printable: %v", ErrDecodeFailure, err)
		}
		return out, nil
	default:
		// 7bit, 8bit, binary and unknown encodings are already in their final
		// byte form.
		return raw, nil
	}
}

// decodeBase64 drops every byte outside the base64 alphabet, ignores padding
// and a dangling final sextet, so it decodes anything it is given.
func decodeBase64(raw []byte) []byte {
	clean := make([]byte, 0, len(raw))
	for _, b := range raw {
		switch {
		case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9', b == '+', b == '/':
			clean = append(clean, b)
		}
	}
	if len(clean)%4 == 1 {
		clean = clean[:len(clean)-1]
	}

	out := make([]byte, base64.RawStdEncoding.DecodedLen(len(clean)))
	n, _ := base64.RawStdEncoding.Decode(out, clean)
	return out[:n]
}

package decode

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// DefaultCharset is used when nothing else is configured, and as the source
// charset of header text that does not declare one.
const DefaultCharset = "UTF-8"

func init() {
	// Labels seen in the wild that the stock table does not resolve.
	charset.RegisterEncoding("cp1251", charmap.Windows1251)
	charset.RegisterEncoding("win-1251", charmap.Windows1251)
	charset.RegisterEncoding("cp866", charmap.CodePage866)
	charset.RegisterEncoding("cp1252", charmap.Windows1252)
	charset.RegisterEncoding("latin1", charmap.ISO8859_1)
}

// IsUTF8 reports whether name labels UTF-8.
func IsUTF8(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return true
	}
	return false
}

// SameCharset reports whether a and b label the same charset.
func SameCharset(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if strings.EqualFold(a, b) {
		return true
	}
	return IsUTF8(a) && IsUTF8(b)
}

// Charset converts data from charset from to charset to. On failure it
// returns data unchanged together with an error wrapping ErrDecodeFailure.
func Charset(data []byte, from, to string) ([]byte, error) {
	if to == "" {
		to = DefaultCharset
	}
	if from == "" || SameCharset(from, to) {
		return data, nil
	}

	text := data
	if !IsUTF8(from) {
		r, err := charset.Reader(from, bytes.NewReader(data))
		if err != nil {
			return data, fmt.Errorf("%w: charset %q: %v", ErrDecodeFailure, from, err)
		}
		text, err = io.ReadAll(r)
		if err != nil {
			return data, fmt.Errorf("%w: charset %q: %v", ErrDecodeFailure, from, err)
		}
	}

	return FromUTF8(text, to)
}

// FromUTF8 encodes UTF-8 text into charset to.
func FromUTF8(text []byte, to string) ([]byte, error) {
	if to == "" || IsUTF8(to) {
		return text, nil
	}
	enc, err := lookupEncoding(to)
	if err != nil {
		return text, err
	}
	out, err := enc.NewEncoder().Bytes(text)
	if err != nil {
		return text, fmt.Errorf("%w: encode %q: %v", ErrDecodeFailure, to, err)
	}
	return out, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.MIME.Encoding(name)
	if err != nil || enc == nil {
		enc, err = ianaindex.IANA.Encoding(name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: unknown charset %q: %v", ErrDecodeFailure, name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("%w: unsupported charset %q", ErrDecodeFailure, name)
	}
	return enc, nil
}

// KnownCharset reports whether text can be converted into name.
func KnownCharset(name string) bool {
	if name == "" || IsUTF8(name) {
		return true
	}
	_, err := lookupEncoding(name)
	return err == nil
}

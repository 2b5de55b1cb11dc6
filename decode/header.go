package decode

import (
	"mime"

	"github.com/emersion/go-message/charset"
)

// NewWordDecoder returns an RFC 2047 decoder that understands every charset
// go-message knows about. Decoded text is always UTF-8.
func NewWordDecoder() *mime.WordDecoder {
	return &mime.WordDecoder{CharsetReader: charset.Reader}
}

var wordDecoder = NewWordDecoder()

// Header decodes the encoded words in a human-facing header value (Subject,
// From, To, file names) and returns it in charset target. Text outside
// encoded words is taken as DefaultCharset. When a word cannot be decoded
// the value is returned as it was received.
func Header(text, target string) string {
	if text == "" {
		return ""
	}
	decoded, err := wordDecoder.DecodeHeader(text)
	if err != nil {
		decoded = text
	}
	out, err := FromUTF8([]byte(decoded), target)
	if err != nil {
		return decoded
	}
	return string(out)
}

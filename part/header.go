package part

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedHeader marks a header line that was skipped because it has no
// "name: value" shape.
var ErrMalformedHeader = errors.New("malformed header line")

var (
	fieldRE = regexp.MustCompile(`^([\w.-]+):[ \t]*(.*)$`)
	tokenRE = regexp.MustCompile(`\s*(?:([\w.*-]+)\s*=\s*(?:"([^"]*)"|([^;]*))|([^;]+))\s*(?:;|$)`)
)

// Param is one key=value attribute of a header field.
type Param struct {
	Key   string
	Value string
}

// Field is a header value split into its bare tokens (such as "text/plain"
// or "attachment") and its attributes, both in source order. Raw keeps the
// unfolded text of the last occurrence.
type Field struct {
	Raw    string
	Values []string
	Params []Param
}

// Value returns the first bare token.
func (f *Field) Value() string {
	if f == nil || len(f.Values) == 0 {
		return ""
	}
	return f.Values[0]
}

// Param returns the last attribute named key.
func (f *Field) Param(key string) string {
	if f == nil {
		return ""
	}
	key = strings.ToLower(key)
	value := ""
	for _, p := range f.Params {
		if p.Key == key {
			value = p.Value
		}
	}
	return value
}

// ParamMap folds the attributes into a map, resolving RFC 2231 extended and
// continued parameters.
func (f *Field) ParamMap() map[string]string {
	if f == nil {
		return map[string]string{}
	}
	return normalizeParams(f.Params)
}

// Header maps lower-cased header names to their parsed fields. Repeated
// headers accumulate into one field.
type Header map[string]*Field

// Get returns the field for name or nil.
func (h Header) Get(name string) *Field {
	return h[strings.ToLower(name)]
}

// Value returns the first bare token of name.
func (h Header) Value(name string) string {
	return h.Get(name).Value()
}

// ParseHeader parses a raw header block up to the first blank line. Folded
// lines are joined before attributes are extracted. Lines without a
// "name: value" shape are skipped; they are reported through the returned
// error, which wraps ErrMalformedHeader, while the header holds everything
// that did parse.
func ParseHeader(raw []byte) (Header, error) {
	header := Header{}
	var errs []error

	for i, line := range unfold(raw) {
		m := fieldRE.FindStringSubmatch(line)
		if m == nil {
			errs = append(errs, fmt.Errorf("%w: line %d: %q", ErrMalformedHeader, i+1, line))
			continue
		}

		name := strings.ToLower(m[1])
		field := header[name]
		if field == nil {
			field = &Field{}
			header[name] = field
		}
		field.Raw = strings.TrimSpace(m[2])
		parseFieldValue(field, m[2])
	}

	return header, errors.Join(errs...)
}

func parseFieldValue(field *Field, value string) {
	for _, idx := range tokenRE.FindAllStringSubmatchIndex(value, -1) {
		group := func(n int) (string, bool) {
			if idx[2*n] < 0 {
				return "", false
			}
			return value[idx[2*n]:idx[2*n+1]], true
		}

		if key, ok := group(1); ok {
			v, quoted := group(2)
			if !quoted {
				v, _ = group(3)
				v = strings.Trim(strings.TrimSpace(v), `"`)
			}
			field.Params = append(field.Params, Param{Key: strings.ToLower(key), Value: v})
			continue
		}
		if bare, ok := group(4); ok {
			if bare = strings.TrimSpace(bare); bare != "" {
				field.Values = append(field.Values, bare)
			}
		}
	}
}

// unfold splits a header block into logical lines, joining continuation
// lines onto the line they continue. It stops at the first blank line.
func unfold(raw []byte) []string {
	var lines []string
	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			break
		}
		if (line[0] == ' ' || line[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += string(line)
			continue
		}
		lines = append(lines, string(line))
	}
	return lines
}

// Split separates a raw entity into its header block and body at the first
// blank line. Without a blank line everything is header.
func Split(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		if lf := bytes.Index(raw, []byte("\n\n")); lf >= 0 && lf < idx {
			return raw[:lf], raw[lf+2:]
		}
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}

package part

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/dhcgn/imap-reader/decode"
)

type paramSection struct {
	index    int
	value    string
	extended bool
}

// normalizeParams resolves RFC 2231 forms: "name*" carries
// charset'lang'percent-encoded text and "name*0", "name*1*" are continuations.
// A resolved extended value replaces a plain one of the same name.
func normalizeParams(params []Param) map[string]string {
	out := make(map[string]string, len(params))
	sections := map[string][]paramSection{}

	for _, p := range params {
		base, section, ok := splitParamKey(p.Key)
		if !ok {
			out[p.Key] = p.Value
			continue
		}
		section.value = p.Value
		sections[base] = append(sections[base], section)
	}

	for base, parts := range sections {
		out[base] = joinSections(parts)
	}

	return out
}

func splitParamKey(key string) (string, paramSection, bool) {
	base, rest, found := strings.Cut(key, "*")
	if !found || base == "" {
		return "", paramSection{}, false
	}
	if rest == "" {
		return base, paramSection{extended: true}, true
	}

	s := paramSection{}
	if strings.HasSuffix(rest, "*") {
		s.extended = true
		rest = strings.TrimSuffix(rest, "*")
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return "", paramSection{}, false
	}
	s.index = n
	return base, s, true
}

func joinSections(parts []paramSection) string {
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].index < parts[j].index })

	var (
		buf     []byte
		charset string
	)
	for i, p := range parts {
		value := p.value
		if !p.extended {
			buf = append(buf, value...)
			continue
		}
		if i == 0 {
			if fields := strings.SplitN(value, "'", 3); len(fields) == 3 {
				charset = fields[0]
				value = fields[2]
			}
		}
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}
		buf = append(buf, value...)
	}

	if charset == "" {
		return string(buf)
	}
	out, _ := decode.Charset(buf, charset, decode.DefaultCharset)
	return string(out)
}

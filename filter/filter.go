package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dhcgn/imap-reader/decode"
	"github.com/dhcgn/imap-reader/message"
)

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Filter holds compiled regex patterns for filtering messages.
type Filter struct {
	includeMode    bool
	excludeMode    bool
	includeHeader  []*regexp.Regexp
	includeBody    []*regexp.Regexp
	excludeHeader  []*regexp.Regexp
	excludeBody    []*regexp.Regexp
	needHeaderText bool
	needBodyText   bool
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeHeader, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	includeActive := len(includeHeader) > 0 || len(includeBody) > 0
	excludeActive := len(excludeHeader) > 0 || len(excludeBody) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{
		includeMode:    includeActive,
		excludeMode:    excludeActive,
		includeHeader:  includeHeader,
		includeBody:    includeBody,
		excludeHeader:  excludeHeader,
		excludeBody:    excludeBody,
		needHeaderText: len(includeHeader) > 0 || len(excludeHeader) > 0,
		needBodyText:   len(includeBody) > 0 || len(excludeBody) > 0,
	}, nil
}

// Active reports whether any pattern is set.
func (f *Filter) Active() bool {
	return f != nil && (f.includeMode || f.excludeMode)
}

// NeedsHeader reports whether Allows looks at the header.
func (f *Filter) NeedsHeader() bool { return f != nil && f.needHeaderText }

// NeedsBody reports whether Allows looks at the body.
func (f *Filter) NeedsBody() bool { return f != nil && f.needBodyText }

// Allows returns true if the message passes the filter criteria. Encoded
// words in the header are decoded first, so patterns match what a reader
// sees.
func (f *Filter) Allows(header, body []byte) bool {
	if !f.Active() {
		return true
	}

	var headerText, bodyText string
	if f.needHeaderText {
		headerText = decode.Header(string(header), decode.DefaultCharset)
	}
	if f.needBodyText {
		bodyText = string(body)
	}

	if f.includeMode {
		matched := matchAny(f.includeHeader, headerText) || matchAny(f.includeBody, bodyText)
		return matched
	}

	if f.excludeMode {
		if matchAny(f.excludeHeader, headerText) || matchAny(f.excludeBody, bodyText) {
			return false
		}
	}

	return true
}

// Apply keeps the messages that pass f. The header comes from the session
// and the body is the message's plain text rendering; each is fetched only
// when a pattern needs it.
func (f *Filter) Apply(ctx context.Context, s message.Session, msgs []*message.Message) ([]*message.Message, error) {
	if !f.Active() {
		return msgs, nil
	}

	kept := make([]*message.Message, 0, len(msgs))
	for _, m := range msgs {
		var header, body []byte
		if f.needHeaderText {
			h, err := s.FetchHeader(ctx, m.UID())
			if err != nil {
				return nil, fmt.Errorf("filter uid %d: %w", m.UID(), err)
			}
			header = h
		}
		if f.needBodyText {
			text, _, err := m.Body(ctx, "plain")
			if err != nil {
				return nil, fmt.Errorf("filter uid %d: %w", m.UID(), err)
			}
			body = []byte(text)
		}
		if f.Allows(header, body) {
			kept = append(kept, m)
		}
	}
	return kept, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

package model

import (
	"slices"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
)

// FlagRecent is the IMAP4rev1 \Recent flag, which go-imap v2 no longer
// defines.
const FlagRecent imapv2.Flag = `\Recent`

// Overview is the lightweight metadata of one message, available without
// fetching its structure or body. Header text is stored as received.
type Overview struct {
	UID    imapv2.UID
	SeqNum uint32

	Subject string
	From    string
	To      string
	Date    time.Time

	MessageID  string
	InReplyTo  string
	References string

	Size  int64
	Flags []imapv2.Flag
}

// HasFlag reports whether flag is set.
func (o Overview) HasFlag(flag imapv2.Flag) bool {
	return slices.Contains(o.Flags, flag)
}

func (o Overview) Seen() bool     { return o.HasFlag(imapv2.FlagSeen) }
func (o Overview) Recent() bool   { return o.HasFlag(FlagRecent) }
func (o Overview) Flagged() bool  { return o.HasFlag(imapv2.FlagFlagged) }
func (o Overview) Answered() bool { return o.HasFlag(imapv2.FlagAnswered) }
func (o Overview) Deleted() bool  { return o.HasFlag(imapv2.FlagDeleted) }
func (o Overview) Draft() bool    { return o.HasFlag(imapv2.FlagDraft) }

// WithFlag returns a copy of o with flag set.
func (o Overview) WithFlag(flag imapv2.Flag) Overview {
	if o.HasFlag(flag) {
		return o
	}
	o.Flags = append(slices.Clone(o.Flags), flag)
	return o
}

// Page skips offset uids and returns at most limit of the rest. A limit of
// 0 means all.
func Page(uids []imapv2.UID, offset, limit int) []imapv2.UID {
	offset = max(offset, 0)
	if offset >= len(uids) {
		return nil
	}
	uids = uids[offset:]
	if limit > 0 && limit < len(uids) {
		uids = uids[:limit]
	}
	return uids
}
